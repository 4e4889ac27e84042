package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/dreluxe/portal/internal/session"
)

const (
	// ClientCookie identifies a browser profile across tabs.
	ClientCookie = "dl_client"

	clientLocal  = "client_id"
	sessionLocal = "session"
	clientMaxAge = 365 * 24 * time.Hour
)

// ClientContext makes sure every request carries a client id, issuing the
// dl_client cookie on first contact.
func ClientContext(secure bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Cookies(ClientCookie)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     ClientCookie,
				Value:    id,
				Path:     "/",
				Expires:  time.Now().Add(clientMaxAge),
				HTTPOnly: true,
				Secure:   secure,
				SameSite: fiber.CookieSameSiteStrictMode,
			})
		}
		c.Locals(clientLocal, id)
		return c.Next()
	}
}

// ClientID returns the client id set by ClientContext.
func ClientID(c *fiber.Ctx) string {
	id, _ := c.Locals(clientLocal).(string)
	return id
}

// SetSession records the resolved session on the request.
func SetSession(c *fiber.Ctx, s session.Session) {
	c.Locals(sessionLocal, s)
}

// CurrentSession returns the session recorded by SetSession.
func CurrentSession(c *fiber.Ctx) (session.Session, bool) {
	s, ok := c.Locals(sessionLocal).(session.Session)
	return s, ok
}
