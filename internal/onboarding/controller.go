package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dreluxe/portal/internal/profile"
	"github.com/dreluxe/portal/internal/session"
)

// ErrUnknownStep is returned for a step name outside the sequence.
var ErrUnknownStep = errors.New("unknown onboarding step")

// StepIncompleteError names the first step whose data is still missing.
type StepIncompleteError struct {
	Step Step
}

func (e *StepIncompleteError) Error() string {
	return fmt.Sprintf("please complete the %s step first", e.Step)
}

// Profiles reports which onboarding data a user has saved.
type Profiles interface {
	Completion(ctx context.Context, client, userID string) (profile.Completion, error)
}

// Sessions reads the current session and finishes onboarding for it.
type Sessions interface {
	Current(ctx context.Context, client string) (session.Session, error)
	MarkOnboarded(ctx context.Context, client string) (session.Session, error)
}

// Progress records which steps have their data saved.
type Progress map[Step]bool

// FirstIncomplete returns the earliest step without data.
func (p Progress) FirstIncomplete() (Step, bool) {
	for _, s := range steps {
		if !p[s] {
			return s, true
		}
	}
	return "", false
}

// Controller tracks onboarding progress from saved profile data.
type Controller struct {
	profiles Profiles
	sessions Sessions
	logger   *slog.Logger
}

// NewController builds a Controller.
func NewController(profiles Profiles, sessions Sessions, logger *slog.Logger) *Controller {
	return &Controller{profiles: profiles, sessions: sessions, logger: logger}
}

// Progress derives step completion for userID.
func (c *Controller) Progress(ctx context.Context, client, userID string) (Progress, error) {
	done, err := c.profiles.Completion(ctx, client, userID)
	if err != nil {
		return nil, err
	}
	return Progress{
		StepAddress:     done.Address,
		StepPreferences: done.Preferences,
		StepPayment:     done.Payment,
	}, nil
}

// FirstIncomplete returns the route of the earliest step without data, or
// the first step when everything is saved but the flag is still set.
func (c *Controller) FirstIncomplete(ctx context.Context, client, userID string) (string, error) {
	p, err := c.Progress(ctx, client, userID)
	if err != nil {
		return "", err
	}
	if s, ok := p.FirstIncomplete(); ok {
		return s.Path(), nil
	}
	return steps[len(steps)-1].Path(), nil
}

// EntryPath is where a signed-in session should go: the dashboard once
// onboarding is done, otherwise the first onboarding step.
func (c *Controller) EntryPath(_ context.Context, _ string, s session.Session) (string, error) {
	if IsComplete(s) {
		return DashboardPath, nil
	}
	return steps[0].Path(), nil
}

// Ready reports whether every step has its data saved.
func (c *Controller) Ready(ctx context.Context, client, userID string) (bool, error) {
	p, err := c.Progress(ctx, client, userID)
	if err != nil {
		return false, err
	}
	_, missing := p.FirstIncomplete()
	return !missing, nil
}

// Complete marks step as done for the signed-in customer and returns the
// route to go to next. Completing the last step finishes onboarding and
// returns the dashboard.
func (c *Controller) Complete(ctx context.Context, client string, step Step) (string, error) {
	if _, ok := ParseStep(string(step)); !ok {
		return "", ErrUnknownStep
	}
	s, err := c.sessions.Current(ctx, client)
	if err != nil {
		return "", err
	}
	p, err := c.Progress(ctx, client, s.ID)
	if err != nil {
		return "", err
	}
	for _, earlier := range steps {
		if !p[earlier] {
			return "", &StepIncompleteError{Step: earlier}
		}
		if earlier == step {
			break
		}
	}

	if next, ok := step.Next(); ok {
		return next.Path(), nil
	}
	if !IsComplete(s) {
		if _, err := c.sessions.MarkOnboarded(ctx, client); err != nil {
			return "", err
		}
		c.logger.Info("onboarding completed", slog.String("client", client), slog.String("user_id", s.ID))
	}
	return DashboardPath, nil
}
