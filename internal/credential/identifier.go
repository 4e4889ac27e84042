package credential

import (
	"regexp"
	"strings"
)

// IdentifierKind classifies a login identifier for input affordances.
type IdentifierKind string

const (
	KindEmail   IdentifierKind = "email"
	KindPhone   IdentifierKind = "phone"
	KindUnknown IdentifierKind = "unknown"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\d{10}$`)
	digitsOnly   = regexp.MustCompile(`^\d+$`)
)

// ClassifyIdentifier reports whether the identifier looks like an email or a
// phone number. It never decides whether a login succeeds.
func ClassifyIdentifier(identifier string) IdentifierKind {
	identifier = strings.TrimSpace(identifier)
	switch {
	case strings.Contains(identifier, "@"):
		return KindEmail
	case digitsOnly.MatchString(identifier):
		return KindPhone
	default:
		return KindUnknown
	}
}

// ValidateIdentifier checks the identifier format for its kind.
func ValidateIdentifier(identifier string) (IdentifierKind, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return KindUnknown, &ValidationError{Field: "identifier", Message: "Please enter your email or phone number"}
	}
	kind := ClassifyIdentifier(identifier)
	switch kind {
	case KindEmail:
		if !emailPattern.MatchString(identifier) {
			return kind, &ValidationError{Field: "identifier", Message: "Please enter a valid email address"}
		}
	case KindPhone:
		if !phonePattern.MatchString(identifier) {
			return kind, &ValidationError{Field: "identifier", Message: "Please enter a valid 10-digit phone number"}
		}
	default:
		return kind, &ValidationError{Field: "identifier", Message: "Please enter a valid email or phone number"}
	}
	return kind, nil
}

// ValidateEmail checks the email format used at registration.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return &ValidationError{Field: "email", Message: "Please enter a valid email address"}
	}
	return nil
}
