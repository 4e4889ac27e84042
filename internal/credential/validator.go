package credential

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// OTPLength is the number of digits in a one-time code.
const OTPLength = 6

// Verdict is the outcome of a credential check.
type Verdict bool

const (
	Valid   Verdict = true
	Invalid Verdict = false
)

// ErrUnknownAccount is returned by a PasswordHashes lookup with no match.
var ErrUnknownAccount = errors.New("unknown account")

// PasswordHashes resolves the bcrypt hash stored for a registered identifier.
type PasswordHashes interface {
	PasswordHash(ctx context.Context, identifier string) ([]byte, error)
}

// Validator judges identifier and password pairs. The demo identity is always
// accepted; registered accounts are checked against their bcrypt hash.
type Validator struct {
	demoIdentifier string
	demoPassword   string
	accounts       PasswordHashes
}

// NewValidator builds a Validator. accounts may be nil.
func NewValidator(demoIdentifier, demoPassword string, accounts PasswordHashes) *Validator {
	return &Validator{demoIdentifier: demoIdentifier, demoPassword: demoPassword, accounts: accounts}
}

// CheckPassword returns Valid only for a matching pair.
func (v *Validator) CheckPassword(ctx context.Context, identifier, password string) (Verdict, error) {
	identifier = strings.TrimSpace(identifier)
	if v.isDemo(identifier, password) {
		return Valid, nil
	}
	if v.accounts == nil || password == "" {
		return Invalid, nil
	}
	hash, err := v.accounts.PasswordHash(ctx, identifier)
	if errors.Is(err, ErrUnknownAccount) || len(hash) == 0 {
		return Invalid, nil
	}
	if err != nil {
		return Invalid, err
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return Invalid, nil
	}
	return Valid, nil
}

// IsDemoIdentifier reports whether identifier names the demo identity.
func (v *Validator) IsDemoIdentifier(identifier string) bool {
	return strings.TrimSpace(identifier) == v.demoIdentifier
}

func (v *Validator) isDemo(identifier, password string) bool {
	idOK := subtle.ConstantTimeCompare([]byte(identifier), []byte(v.demoIdentifier)) == 1
	pwOK := subtle.ConstantTimeCompare([]byte(password), []byte(v.demoPassword)) == 1
	return idOK && pwOK
}

// CheckOTP returns Valid only when submitted is exactly six ASCII digits equal
// to expected. The caller owns the attempt counter.
func CheckOTP(submitted, expected string) Verdict {
	if !IsCompleteOTP(submitted) || len(expected) != OTPLength {
		return Invalid
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(expected)) == 1
}

// IsCompleteOTP reports whether code consists of exactly six ASCII digits.
func IsCompleteOTP(code string) bool {
	if len(code) != OTPLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
