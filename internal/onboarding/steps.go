// Package onboarding drives the address, preferences and payment sequence a
// new customer completes before reaching the dashboard.
package onboarding

import (
	"slices"
	"strings"

	"github.com/dreluxe/portal/internal/session"
)

// Step is one page of the onboarding sequence.
type Step string

const (
	StepAddress     Step = "address"
	StepPreferences Step = "preferences"
	StepPayment     Step = "payment"
)

const (
	// DashboardPath is where a customer lands once onboarding is done.
	DashboardPath = "/customer/dashboard"
	pathPrefix    = "/customer/"
)

var steps = []Step{StepAddress, StepPreferences, StepPayment}

// Steps returns the fixed step order.
func Steps() []Step {
	return slices.Clone(steps)
}

// ParseStep accepts a step name.
func ParseStep(name string) (Step, bool) {
	s := Step(strings.ToLower(strings.TrimSpace(name)))
	return s, slices.Contains(steps, s)
}

// Path is the page route of the step.
func (s Step) Path() string {
	return pathPrefix + string(s)
}

// Next returns the step after s. ok is false for the last step.
func (s Step) Next() (Step, bool) {
	i := slices.Index(steps, s)
	if i < 0 || i == len(steps)-1 {
		return "", false
	}
	return steps[i+1], true
}

// StepForPath maps a page route to its step.
func StepForPath(path string) (Step, bool) {
	path = strings.TrimSuffix(path, "/")
	for _, s := range steps {
		if s.Path() == path {
			return s, true
		}
	}
	return "", false
}

// IsStepPath reports whether path is one of the onboarding pages.
func IsStepPath(path string) bool {
	_, ok := StepForPath(path)
	return ok
}

// IsComplete reports whether the session has finished onboarding.
func IsComplete(s session.Session) bool {
	return !s.IsNewUser
}

// ResolveEntryStep keeps a customer on the onboarding page they are already
// on and otherwise starts them at the first step.
func ResolveEntryStep(currentPath string) string {
	if s, ok := StepForPath(currentPath); ok {
		return s.Path()
	}
	return steps[0].Path()
}
