package otp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dreluxe/portal/internal/credential"
	"github.com/dreluxe/portal/internal/notification"
)

// Service runs OTP challenges for client contexts.
type Service struct {
	store       Store
	codes       CodeSource
	notifier    notification.Notifier
	maxAttempts int
	ttl         time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Options configures a Service.
type Options struct {
	MaxAttempts int
	TTL         time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// NewService builds an OTP service.
func NewService(store Store, codes CodeSource, notifier notification.Notifier, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	return &Service{
		store:       store,
		codes:       codes,
		notifier:    notifier,
		maxAttempts: opts.MaxAttempts,
		ttl:         opts.TTL,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// Request opens a challenge for identifier and delivers its code. A previous
// challenge for the same identifier keeps its attempt count and captcha gate.
func (s *Service) Request(ctx context.Context, client, identifier string, purpose Purpose) (Challenge, error) {
	identifier = strings.TrimSpace(identifier)
	if _, err := credential.ValidateIdentifier(identifier); err != nil {
		return Challenge{}, err
	}
	if !purpose.Valid() {
		return Challenge{}, &credential.ValidationError{Field: "purpose", Message: "unknown verification purpose"}
	}

	now := s.now()
	c := Challenge{
		Identifier:        identifier,
		Purpose:           purpose,
		ResendAvailableAt: now.Add(cooldownAfter(0)),
		ExpiresAt:         now.Add(s.ttl),
		CreatedAt:         now,
	}
	if prev, err := s.live(ctx, client); err == nil && prev.Identifier == identifier {
		c.Attempts = prev.Attempts
		c.CaptchaRequired = prev.CaptchaRequired
	}

	if err := s.issue(ctx, client, &c, now); err != nil {
		return Challenge{}, err
	}
	return c, nil
}

// Resend issues the code again once the cooldown has elapsed. Each resend
// lengthens the next cooldown: 30s, 60s, then 120s.
func (s *Service) Resend(ctx context.Context, client string) (Challenge, error) {
	c, err := s.live(ctx, client)
	if err != nil {
		return Challenge{}, err
	}
	now := s.now()
	if wait := c.ResendIn(now); wait > 0 {
		return c, &CooldownError{Remaining: wait}
	}
	c.Resends++
	c.ResendAvailableAt = now.Add(cooldownAfter(c.Resends))
	if err := s.issue(ctx, client, &c, now); err != nil {
		return Challenge{}, err
	}
	return c, nil
}

// Verify checks six single-digit entries against the challenge. Malformed
// input is rejected without counting an attempt. A non-empty captcha answer
// clears the captcha gate before the code is checked.
func (s *Service) Verify(ctx context.Context, client string, digits []string, captcha string) (Challenge, error) {
	code, err := joinDigits(digits)
	if err != nil {
		return Challenge{}, err
	}
	c, err := s.live(ctx, client)
	if err != nil {
		return Challenge{}, err
	}
	now := s.now()

	if c.CaptchaRequired {
		if strings.TrimSpace(captcha) == "" {
			return c, ErrCaptchaRequired
		}
		c.CaptchaRequired = false
		c.Attempts = 0
	}

	if s.codes.Verify(c.Secret, code, now) {
		if err := s.store.Delete(ctx, client); err != nil {
			return Challenge{}, err
		}
		return c, nil
	}

	c.Attempts++
	if c.Attempts >= s.maxAttempts {
		c.CaptchaRequired = true
	}
	if err := s.store.Put(ctx, client, c, c.ExpiresAt.Sub(now)); err != nil {
		return Challenge{}, err
	}
	return c, ErrInvalidCode
}

// SolveCaptcha clears the captcha gate and the attempt counter. Any non-empty
// answer is accepted.
func (s *Service) SolveCaptcha(ctx context.Context, client, answer string) (Challenge, error) {
	c, err := s.live(ctx, client)
	if err != nil {
		return Challenge{}, err
	}
	if strings.TrimSpace(answer) == "" {
		return c, ErrCaptchaFailed
	}
	c.CaptchaRequired = false
	c.Attempts = 0
	if err := s.store.Put(ctx, client, c, c.ExpiresAt.Sub(s.now())); err != nil {
		return Challenge{}, err
	}
	return c, nil
}

// Pending returns the live challenge of client.
func (s *Service) Pending(ctx context.Context, client string) (Challenge, error) {
	return s.live(ctx, client)
}

// Discard drops any challenge of client.
func (s *Service) Discard(ctx context.Context, client string) error {
	return s.store.Delete(ctx, client)
}

func (s *Service) live(ctx context.Context, client string) (Challenge, error) {
	c, err := s.store.Get(ctx, client)
	if err != nil {
		return Challenge{}, err
	}
	if c.Expired(s.now()) {
		if err := s.store.Delete(ctx, client); err != nil {
			return Challenge{}, err
		}
		return Challenge{}, ErrNoChallenge
	}
	return c, nil
}

func (s *Service) issue(ctx context.Context, client string, c *Challenge, now time.Time) error {
	secret, code, err := s.codes.Issue(c.Identifier, now)
	if err != nil {
		return fmt.Errorf("issue otp code: %w", err)
	}
	c.Secret = secret
	if err := s.store.Put(ctx, client, *c, c.ExpiresAt.Sub(now)); err != nil {
		return err
	}
	if s.notifier == nil {
		return nil
	}
	msg := notification.Message{Kind: notification.KindOTPCode, Destination: c.Identifier, Body: code}
	if err := s.notifier.Send(ctx, msg); err != nil && s.logger != nil {
		s.logger.Warn("deliver otp code", slog.String("purpose", string(c.Purpose)), slog.Any("error", err))
	}
	return nil
}

func joinDigits(digits []string) (string, error) {
	invalid := &credential.ValidationError{Field: "code", Message: "Please enter all 6 digits"}
	if len(digits) != credential.OTPLength {
		return "", invalid
	}
	var b strings.Builder
	for _, d := range digits {
		if len(d) != 1 || d[0] < '0' || d[0] > '9' {
			return "", invalid
		}
		b.WriteString(d)
	}
	code := b.String()
	if !credential.IsCompleteOTP(code) {
		return "", invalid
	}
	return code, nil
}

// SplitCode turns "123456" into its single-digit entries.
func SplitCode(code string) []string {
	code = strings.TrimSpace(code)
	out := make([]string, 0, len(code))
	for _, r := range code {
		out = append(out, string(r))
	}
	return out
}

