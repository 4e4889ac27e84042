package credential

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrInvalidCredentials means the identifier and secret did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLockoutUnavailable wraps failures of the lockout backend.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// ValidationError is a field level format problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// LockedError reports an active lockout and how long it still lasts.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return "account locked, try again later"
}

// SecondsRemaining rounds the remaining lock time up to whole seconds.
func (e *LockedError) SecondsRemaining() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}
