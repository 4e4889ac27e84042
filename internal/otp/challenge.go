// Package otp manages one-time code challenges: issuing codes, the resend
// cooldown schedule, attempt counting and the captcha gate.
package otp

import (
	"errors"
	"math"
	"time"
)

// Purpose names why a code was requested.
type Purpose string

const (
	PurposeLogin     Purpose = "login"
	PurposeRegister  Purpose = "register"
	PurposeTwoFactor Purpose = "two_factor"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposeRegister, PurposeTwoFactor:
		return true
	}
	return false
}

var resendSchedule = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

// cooldownAfter returns the wait imposed after the given number of resends.
func cooldownAfter(resends int) time.Duration {
	if resends >= len(resendSchedule) {
		return resendSchedule[len(resendSchedule)-1]
	}
	return resendSchedule[resends]
}

var (
	// ErrNoChallenge means no live challenge exists for the client.
	ErrNoChallenge = errors.New("no pending verification, request a new code")
	// ErrInvalidCode means the submitted code did not match.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrCaptchaRequired means too many failures; the captcha must be solved first.
	ErrCaptchaRequired = errors.New("please complete the captcha to continue")
	// ErrCaptchaFailed means the captcha answer was rejected.
	ErrCaptchaFailed = errors.New("captcha verification failed")
)

// CooldownError is returned by Resend before the cooldown has elapsed.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return "please wait before requesting another code"
}

// SecondsRemaining rounds Remaining up to whole seconds.
func (e *CooldownError) SecondsRemaining() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

// Challenge is one pending verification. Deadlines are stored as timestamps
// so every reader derives the same countdown.
type Challenge struct {
	Identifier        string    `json:"identifier"`
	Purpose           Purpose   `json:"purpose"`
	Secret            string    `json:"secret,omitempty"`
	Attempts          int       `json:"attempts"`
	CaptchaRequired   bool      `json:"captchaRequired"`
	Resends           int       `json:"resends"`
	ResendAvailableAt time.Time `json:"resendAvailableAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ResendIn returns how long until a resend is allowed.
func (c Challenge) ResendIn(now time.Time) time.Duration {
	if now.Before(c.ResendAvailableAt) {
		return c.ResendAvailableAt.Sub(now)
	}
	return 0
}

// Expired reports whether the challenge is past its deadline.
func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
