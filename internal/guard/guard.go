package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dreluxe/portal/internal/auth"
	"github.com/dreluxe/portal/internal/middleware"
	"github.com/dreluxe/portal/internal/onboarding"
	"github.com/dreluxe/portal/internal/session"
)

const defaultResolveTimeout = 2 * time.Second

// Sessions resolves the session behind a client and token.
type Sessions interface {
	Resolve(ctx context.Context, client, token string) (session.Session, error)
}

// Progress finds where an unfinished onboarding should resume.
type Progress interface {
	FirstIncomplete(ctx context.Context, client, userID string) (string, error)
}

// Guard evaluates route requirements against live session state.
type Guard struct {
	sessions Sessions
	progress Progress
	timeout  time.Duration
	logger   *slog.Logger
}

// New builds a Guard. A zero timeout uses the default.
func New(sessions Sessions, progress Progress, timeout time.Duration, logger *slog.Logger) *Guard {
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	return &Guard{sessions: sessions, progress: progress, timeout: timeout, logger: logger}
}

// Check resolves the session of client and evaluates req for path. The
// session is returned when one was found.
func (g *Guard) Check(ctx context.Context, client, token, path string, req Requirement) (Decision, *session.Session) {
	if req.Public() {
		return Decision{State: Allowed}, nil
	}

	rctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	in := Input{Requirement: req, Path: path, Resolved: true}
	s, err := g.sessions.Resolve(rctx, client, token)
	switch {
	case err == nil:
		in.Session = &s
	case timedOut(rctx, err):
		in.Resolved = false
	case errors.Is(err, auth.ErrNoActiveSession):
	default:
		g.logger.Warn("session resolution failed, treating as signed out", slog.String("client", client), slog.Any("error", err))
	}

	if in.Session != nil && req.Onboarding && !onboarding.IsComplete(s) && !onboarding.IsStepPath(path) && g.progress != nil {
		first, err := g.progress.FirstIncomplete(rctx, client, s.ID)
		if err != nil {
			g.logger.Warn("onboarding progress unavailable", slog.String("client", client), slog.Any("error", err))
		}
		in.FirstIncomplete = first
	}
	return Evaluate(in), in.Session
}

// timedOut reports whether err means the store did not answer in time,
// either through the context or a network deadline kept in its chain.
func timedOut(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// Protect enforces req on an API route. Allowed requests carry the session
// for downstream handlers.
func (g *Guard) Protect(req Requirement) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, s := g.Check(c.UserContext(), middleware.ClientID(c), c.Cookies(auth.TokenCookie), c.Path(), req)
		switch d.State {
		case Allowed:
			if s != nil {
				middleware.SetSession(c, *s)
			}
			return c.Next()
		case Denied:
			apiErr := middleware.NewAPIError(http.StatusUnauthorized, "Please log in to continue")
			apiErr.Redirect = d.Redirect
			return apiErr
		case Onboarding:
			apiErr := middleware.NewAPIError(http.StatusConflict, "Please finish setting up your account first")
			apiErr.Redirect = d.Redirect
			return apiErr
		default:
			return middleware.NewAPIError(http.StatusServiceUnavailable, "Session is still loading, please retry")
		}
	}
}

// Handle answers GET /api/guard?path= for the portal client router.
func (g *Guard) Handle(c *fiber.Ctx) error {
	path := c.Query("path", "/")
	d, _ := g.Check(c.UserContext(), middleware.ClientID(c), c.Cookies(auth.TokenCookie), path, Requirements(path))
	return c.JSON(fiber.Map{"success": true, "state": d.State, "redirect": d.Redirect, "resume": d.Resume})
}
