// Package guard decides whether a portal page or API call may proceed, must
// go to login, or must go through onboarding first.
package guard

import (
	"strings"

	"github.com/dreluxe/portal/internal/onboarding"
	"github.com/dreluxe/portal/internal/session"
)

// LoginPath is where denied navigations are sent.
const LoginPath = "/customer"

// State is the outcome of a guard check.
type State string

const (
	Checking   State = "checking"
	Denied     State = "denied"
	Allowed    State = "allowed"
	Onboarding State = "onboarding"
)

// Requirement is the access level a route asks for.
type Requirement struct {
	Auth       bool
	Onboarding bool
}

// Public reports whether the route needs nothing.
func (r Requirement) Public() bool {
	return !r.Auth && !r.Onboarding
}

var (
	// RequireAuth needs a session.
	RequireAuth = Requirement{Auth: true}
	// RequireOnboarded needs a session that finished onboarding.
	RequireOnboarded = Requirement{Auth: true, Onboarding: true}
)

// Input is everything Evaluate looks at.
type Input struct {
	// Session is nil when the client is signed out.
	Session *session.Session
	// Resolved is false while the session is still loading.
	Resolved    bool
	Requirement Requirement
	Path        string
	// FirstIncomplete is the route of the earliest onboarding step still
	// missing data. Empty means unknown.
	FirstIncomplete string
}

// Decision is the guard verdict and where to go when it is not Allowed.
// Resume is set for onboarding redirects when saved data means the customer
// could continue at a later step than Redirect.
type Decision struct {
	State    State  `json:"state"`
	Redirect string `json:"redirect,omitempty"`
	Resume   string `json:"resume,omitempty"`
}

// Evaluate applies the guard rules.
func Evaluate(in Input) Decision {
	if in.Requirement.Public() {
		return Decision{State: Allowed}
	}
	if !in.Resolved {
		return Decision{State: Checking}
	}
	if in.Session == nil {
		return Decision{State: Denied, Redirect: LoginPath}
	}
	if in.Requirement.Onboarding && !onboarding.IsComplete(*in.Session) {
		if onboarding.IsStepPath(in.Path) {
			return Decision{State: Allowed}
		}
		d := Decision{State: Onboarding, Redirect: onboarding.ResolveEntryStep(in.Path)}
		if in.FirstIncomplete != d.Redirect {
			d.Resume = in.FirstIncomplete
		}
		return d
	}
	return Decision{State: Allowed}
}

var publicPages = []string{
	"/customer/register",
	"/customer/verify",
	"/customer/forgot-password",
	"/customer/reset-password",
}

// Requirements returns the access level of a portal page. Onboarding pages
// need a session; every other customer page also needs onboarding done.
func Requirements(path string) Requirement {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" || path == "/" || path == LoginPath {
		return Requirement{}
	}
	for _, p := range publicPages {
		if path == p || strings.HasPrefix(path, p+"/") {
			return Requirement{}
		}
	}
	if onboarding.IsStepPath(path) {
		return RequireAuth
	}
	if strings.HasPrefix(path, LoginPath+"/") {
		return RequireOnboarded
	}
	return Requirement{}
}
