package profile

import "time"

// Address is a pickup and delivery location.
type Address struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Street    string    `json:"street"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	ZipCode   string    `json:"zipCode"`
	Landmark  string    `json:"landmark,omitempty"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
}

// AddressInput is the address form.
type AddressInput struct {
	Street   string   `json:"street"`
	City     string   `json:"city"`
	State    string   `json:"state"`
	ZipCode  string   `json:"zipCode"`
	Landmark string   `json:"landmark"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

// Preferences are the customer's laundry handling choices.
type Preferences struct {
	UserID          string    `json:"userId"`
	FabricCare      string    `json:"fabricCare"`
	AvoidMixing     []string  `json:"avoidMixing"`
	FoldStyle       string    `json:"foldStyle"`
	HangerType      string    `json:"hangerType"`
	SpecialRequests string    `json:"specialRequests,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Payment method kinds.
const (
	MethodUPI  = "upi"
	MethodCard = "card"
)

// PaymentMethod is a saved way to pay. Only the last four card digits are kept.
type PaymentMethod struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Method     string    `json:"method"`
	UPIID      string    `json:"upiId,omitempty"`
	CardLast4  string    `json:"cardLast4,omitempty"`
	CardName   string    `json:"cardName,omitempty"`
	CardExpiry string    `json:"cardExpiry,omitempty"`
	IsDefault  bool      `json:"isDefault"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CardInput is the card form.
type CardInput struct {
	Number string `json:"number"`
	Name   string `json:"name"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
}

// PaymentInput is the payment method form.
type PaymentInput struct {
	Method string     `json:"method"`
	UPIID  string     `json:"upiId"`
	Card   *CardInput `json:"card"`
}
