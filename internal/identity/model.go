package identity

import "time"

// User is a portal customer account.
type User struct {
	ID             string
	Email          string
	Phone          string
	Name           string
	PasswordHash   []byte
	IsNewUser      bool
	MarketingOptIn bool
	CreatedAt      time.Time
}

// RegisterInput carries a sign-up request.
type RegisterInput struct {
	Email          string
	Password       string
	Name           string
	Phone          string
	MarketingOptIn bool
}

// Patch lists the mutable account fields. Nil fields are left unchanged.
type Patch struct {
	Name      *string
	Email     *string
	IsNewUser *bool
}
