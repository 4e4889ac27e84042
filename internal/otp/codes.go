package otp

import (
	"time"

	pqotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/dreluxe/portal/internal/credential"
)

// CodeSource issues and checks codes for a challenge.
type CodeSource interface {
	// Issue returns the per-challenge secret (possibly empty) and the code to deliver.
	Issue(identifier string, now time.Time) (secret, code string, err error)
	Verify(secret, code string, now time.Time) bool
}

// DemoCodes accepts one fixed code for every challenge.
type DemoCodes struct {
	Code string
}

func (d DemoCodes) Issue(string, time.Time) (string, string, error) {
	return "", d.Code, nil
}

func (d DemoCodes) Verify(_ string, code string, _ time.Time) bool {
	return credential.CheckOTP(code, d.Code) == credential.Valid
}

const defaultTOTPPeriod = 30 * time.Second

// TOTPCodes generates a fresh TOTP secret per challenge. Period is the TOTP
// time step; set it to the challenge lifetime so a delivered code stays valid
// until the challenge expires. Zero means 30 seconds.
type TOTPCodes struct {
	Issuer string
	Period time.Duration
}

func (t TOTPCodes) opts() totp.ValidateOpts {
	period := t.Period
	if period < time.Second {
		period = defaultTOTPPeriod
	}
	return totp.ValidateOpts{
		Period:    uint(period / time.Second),
		Skew:      1,
		Digits:    pqotp.DigitsSix,
		Algorithm: pqotp.AlgorithmSHA1,
	}
}

func (t TOTPCodes) Issue(identifier string, now time.Time) (string, string, error) {
	opts := t.opts()
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.Issuer,
		AccountName: identifier,
		Period:      opts.Period,
		Digits:      opts.Digits,
		Algorithm:   opts.Algorithm,
	})
	if err != nil {
		return "", "", err
	}
	code, err := totp.GenerateCodeCustom(key.Secret(), now, opts)
	if err != nil {
		return "", "", err
	}
	return key.Secret(), code, nil
}

func (t TOTPCodes) Verify(secret, code string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, t.opts())
	return err == nil && ok
}
