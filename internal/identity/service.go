package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dreluxe/portal/internal/credential"
)

const minPasswordLength = 8

// DemoUserID is the fixed account id of the demo identity.
const DemoUserID = "user123"

// Service manages customer accounts.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// EnsureDemo provisions the demo account if it does not exist yet. The
// account starts out new so its first login goes through onboarding. When
// another account already holds the demo email, ErrDemoIdentifierTaken is
// returned rather than a session for an account that does not exist.
func (s *Service) EnsureDemo(ctx context.Context, email, name string) (User, error) {
	if user, err := s.repo.FindByID(ctx, DemoUserID); err == nil {
		return user, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}
	user := User{
		ID:        DemoUserID,
		Email:     email,
		Name:      name,
		IsNewUser: true,
		CreatedAt: s.now().UTC(),
	}
	err := s.repo.Create(ctx, user)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserExists) {
		return User{}, err
	}
	// Either a concurrent call created the demo account or the email
	// belongs to someone else.
	existing, findErr := s.repo.FindByID(ctx, DemoUserID)
	if errors.Is(findErr, ErrUserNotFound) {
		return User{}, ErrDemoIdentifierTaken
	}
	if findErr != nil {
		return User{}, findErr
	}
	return existing, nil
}

// Register creates a new account and stores a hashed password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return User{}, &credential.ValidationError{Field: "email", Message: "Email and password are required"}
	}
	if err := credential.ValidateEmail(email); err != nil {
		return User{}, err
	}
	if len(in.Password) < minPasswordLength {
		return User{}, &credential.ValidationError{Field: "password", Message: "Password must be at least 8 characters"}
	}
	phone := strings.TrimSpace(in.Phone)
	if phone != "" {
		if kind, err := credential.ValidateIdentifier(phone); err != nil || kind != credential.KindPhone {
			return User{}, &credential.ValidationError{Field: "phone", Message: "Please enter a valid 10-digit phone number"}
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	user := User{
		ID:             uuid.New().String(),
		Email:          strings.ToLower(email),
		Phone:          phone,
		Name:           name,
		PasswordHash:   hash,
		IsNewUser:      true,
		MarketingOptIn: in.MarketingOptIn,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Get returns the account with id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// Lookup returns the account registered under an email or phone.
func (s *Service) Lookup(ctx context.Context, identifier string) (User, error) {
	return s.repo.FindByIdentifier(ctx, strings.TrimSpace(identifier))
}

// PasswordHash implements credential.PasswordHashes.
func (s *Service) PasswordHash(ctx context.Context, identifier string) ([]byte, error) {
	user, err := s.Lookup(ctx, identifier)
	if errors.Is(err, ErrUserNotFound) {
		return nil, credential.ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	return user.PasswordHash, nil
}

// Update applies patch to the account with id.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return User{}, &credential.ValidationError{Field: "name", Message: "Name cannot be empty"}
		}
		user.Name = name
	}
	if patch.Email != nil {
		if err := credential.ValidateEmail(*patch.Email); err != nil {
			return User{}, err
		}
		user.Email = strings.ToLower(strings.TrimSpace(*patch.Email))
	}
	if patch.IsNewUser != nil {
		user.IsNewUser = *patch.IsNewUser
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}
