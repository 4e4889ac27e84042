package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dreluxe/portal/internal/credential"
	"github.com/dreluxe/portal/internal/identity"
	"github.com/dreluxe/portal/internal/middleware"
	"github.com/dreluxe/portal/internal/otp"
	"github.com/dreluxe/portal/internal/session"
)

const (
	// TokenCookie carries the session marker.
	TokenCookie = "auth_token"
	// IdentifierCookie remembers the last identifier for autofill.
	IdentifierCookie = "saved_identifier"

	loginPath         = "/customer"
	rememberMaxAge    = 30 * 24 * time.Hour
	heartbeatInterval = 25 * time.Second
)

// OnboardingGate answers onboarding questions for the auth endpoints.
type OnboardingGate interface {
	EntryPath(ctx context.Context, client string, s session.Session) (string, error)
	Ready(ctx context.Context, client, userID string) (bool, error)
	FirstIncomplete(ctx context.Context, client, userID string) (string, error)
}

// HandlerOptions configures cookies and logging.
type HandlerOptions struct {
	SecureCookies bool
	SessionTTL    time.Duration
	Logger        *slog.Logger
}

// Handler exposes the auth endpoints.
type Handler struct {
	manager *Manager
	users   *identity.Service
	gate    OnboardingGate
	opts    HandlerOptions
}

// NewHandler builds a Handler.
func NewHandler(manager *Manager, users *identity.Service, gate OnboardingGate, opts HandlerOptions) *Handler {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	return &Handler{manager: manager, users: users, gate: gate, opts: opts}
}

type userView struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	IsNewUser bool   `json:"isNewUser"`
}

func viewOf(s session.Session) userView {
	return userView{ID: s.ID, Email: s.Email, Name: s.Name, IsNewUser: s.IsNewUser}
}

type accountView struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	Name           string    `json:"name"`
	IsNewUser      bool      `json:"isNewUser"`
	MarketingOptIn bool      `json:"marketingOptIn"`
	CreatedAt      time.Time `json:"createdAt"`
}

func accountOf(u identity.User) accountView {
	return accountView{
		ID:             u.ID,
		Email:          u.Email,
		Phone:          u.Phone,
		Name:           u.Name,
		IsNewUser:      u.IsNewUser,
		MarketingOptIn: u.MarketingOptIn,
		CreatedAt:      u.CreatedAt,
	}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// Login checks credentials, sets the session cookie and tells the client
// where to go next.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	client := middleware.ClientID(c)
	s, err := h.manager.Login(c.UserContext(), client, req.Identifier, req.Password)
	if err != nil {
		return h.mapError(err)
	}
	h.setToken(c, s.Token)
	h.remember(c, req.Identifier, req.RememberMe)
	return c.JSON(fiber.Map{"success": true, "user": viewOf(s), "redirect": h.entry(c, client, s)})
}

// Logout ends the session of this client.
func (h *Handler) Logout(c *fiber.Ctx) error {
	err := h.manager.Logout(c.UserContext(), middleware.ClientID(c))
	h.clearToken(c)
	if err != nil && !errors.Is(err, ErrNoActiveSession) {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "redirect": loginPath})
}

// Me returns the signed-in account without secret fields.
func (h *Handler) Me(c *fiber.Ctx) error {
	token := c.Cookies(TokenCookie)
	if token == "" {
		return middleware.NewAPIError(http.StatusUnauthorized, "Not authenticated")
	}
	s, err := h.manager.Resolve(c.UserContext(), middleware.ClientID(c), token)
	if err != nil {
		return h.mapError(err)
	}
	user, err := h.users.Get(c.UserContext(), s.ID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return middleware.NewAPIError(http.StatusNotFound, "User not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "user": accountOf(user)})
}

type updateRequest struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	IsNewUser *bool   `json:"isNewUser"`
}

// UpdateMe patches the signed-in account. Onboarding can only be marked
// finished once every step has its data.
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	client := middleware.ClientID(c)
	if req.IsNewUser != nil && !*req.IsNewUser && h.gate != nil {
		cur, err := h.manager.Current(c.UserContext(), client)
		if err != nil {
			return h.mapError(err)
		}
		ready, err := h.gate.Ready(c.UserContext(), client, cur.ID)
		if err != nil {
			return err
		}
		if !ready {
			apiErr := middleware.NewAPIError(http.StatusConflict, "Please finish setting up your account first")
			apiErr.Redirect, _ = h.gate.FirstIncomplete(c.UserContext(), client, cur.ID)
			return apiErr
		}
	}

	s, err := h.manager.UpdateUser(c.UserContext(), client, Patch{Name: req.Name, Email: req.Email, IsNewUser: req.IsNewUser})
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(fiber.Map{"success": true, "user": viewOf(s)})
}

type registerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	MarketingOptIn bool   `json:"marketingOptIn"`
}

// Register creates an account and sends its verification code.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	user, ch, err := h.manager.Register(c.UserContext(), middleware.ClientID(c), identity.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		Name:           req.Name,
		Phone:          req.Phone,
		MarketingOptIn: req.MarketingOptIn,
	})
	if err != nil {
		return h.mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success":      true,
		"user":         accountOf(user),
		"verification": challengeView(ch, time.Now()),
		"redirect":     "/customer/verify",
	})
}

type otpRequest struct {
	Identifier string `json:"identifier"`
	Purpose    string `json:"purpose"`
}

// RequestOTP sends a code to a known email or phone.
func (h *Handler) RequestOTP(c *fiber.Ctx) error {
	var req otpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	purpose := otp.Purpose(req.Purpose)
	if purpose == "" {
		purpose = otp.PurposeLogin
	}
	ch, err := h.manager.RequestOTP(c.UserContext(), middleware.ClientID(c), req.Identifier, purpose)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(fiber.Map{"success": true, "verification": challengeView(ch, time.Now())})
}

// ResendOTP re-sends the pending code.
func (h *Handler) ResendOTP(c *fiber.Ctx) error {
	ch, err := h.manager.ResendOTP(c.UserContext(), middleware.ClientID(c))
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(fiber.Map{"success": true, "verification": challengeView(ch, time.Now())})
}

type verifyRequest struct {
	Code       string   `json:"code"`
	Digits     []string `json:"digits"`
	Identifier string   `json:"identifier"`
	Captcha    string   `json:"captcha"`
}

// VerifyOTP checks the submitted code and signs the client in.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	client := middleware.ClientID(c)
	digits := req.Digits
	if len(digits) == 0 {
		digits = otp.SplitCode(req.Code)
	}
	if req.Identifier != "" {
		if pending, err := h.manager.PendingOTP(c.UserContext(), client); err == nil &&
			!strings.EqualFold(pending.Identifier, strings.TrimSpace(req.Identifier)) {
			return middleware.NewAPIError(http.StatusBadRequest, "Verification code was sent to a different address")
		}
	}

	s, err := h.manager.VerifyOTP(c.UserContext(), client, digits, req.Captcha)
	if errors.Is(err, otp.ErrInvalidCode) {
		apiErr := middleware.NewAPIError(http.StatusBadRequest, "Invalid OTP. Please try again.")
		if pending, perr := h.manager.PendingOTP(c.UserContext(), client); perr == nil {
			apiErr.CaptchaRequired = pending.CaptchaRequired
		}
		return apiErr
	}
	if err != nil {
		return h.mapError(err)
	}
	h.setToken(c, s.Token)
	return c.JSON(fiber.Map{"success": true, "user": viewOf(s), "redirect": h.entry(c, client, s)})
}

type captchaRequest struct {
	Answer string `json:"answer"`
}

// SolveCaptcha clears the captcha gate of the pending code.
func (h *Handler) SolveCaptcha(c *fiber.Ctx) error {
	var req captchaRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	ch, err := h.manager.SolveCaptcha(c.UserContext(), middleware.ClientID(c), req.Answer)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(fiber.Map{"success": true, "verification": challengeView(ch, time.Now())})
}

// Lockout reports the login lockout countdown of this client.
func (h *Handler) Lockout(c *fiber.Ctx) error {
	st, err := h.manager.LockoutStatus(c.UserContext(), middleware.ClientID(c))
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(fiber.Map{
		"success":          true,
		"locked":           st.Locked,
		"secondsRemaining": st.SecondsRemaining(),
		"failures":         st.Failures,
	})
}

// Remembered returns the identifier saved by "remember me".
func (h *Handler) Remembered(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "identifier": c.Cookies(IdentifierCookie)})
}

// Events streams this client's session changes as server-sent events so
// every open tab follows logins and logouts.
func (h *Handler) Events(c *fiber.Ctx) error {
	client := middleware.ClientID(c)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.manager.Events(ctx, client)
	if err != nil {
		cancel()
		return h.mapError(err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	logger := h.opts.Logger
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer sub.Close()
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		fmt.Fprint(w, ": connected\n\n")
		if w.Flush() != nil {
			return
		}
		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				payload, err := json.Marshal(eventView(ev))
				if err != nil {
					if logger != nil {
						logger.Warn("encode session event", slog.Any("error", err))
					}
					continue
				}
				fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload)
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if w.Flush() != nil {
				return
			}
		}
	})
	return nil
}

func eventView(ev session.Event) fiber.Map {
	out := fiber.Map{"kind": ev.Kind}
	if ev.Session != nil {
		out["user"] = viewOf(*ev.Session)
	}
	return out
}

func challengeView(ch otp.Challenge, now time.Time) fiber.Map {
	return fiber.Map{
		"identifier":        ch.Identifier,
		"purpose":           ch.Purpose,
		"captchaRequired":   ch.CaptchaRequired,
		"resendInSeconds":   int(math.Ceil(ch.ResendIn(now).Seconds())),
		"expiresAt":         ch.ExpiresAt,
		"resendAvailableAt": ch.ResendAvailableAt,
	}
}

func (h *Handler) entry(c *fiber.Ctx, client string, s session.Session) string {
	if h.gate == nil {
		return ""
	}
	path, err := h.gate.EntryPath(c.UserContext(), client, s)
	if err != nil {
		if h.opts.Logger != nil {
			h.opts.Logger.Warn("resolve entry path", slog.String("client", client), slog.Any("error", err))
		}
		return ""
	}
	return path
}

func (h *Handler) setToken(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.opts.SessionTTL),
		HTTPOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (h *Handler) clearToken(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (h *Handler) remember(c *fiber.Ctx, identifier string, on bool) {
	ck := &fiber.Cookie{
		Name:     IdentifierCookie,
		Path:     "/",
		Secure:   h.opts.SecureCookies,
		SameSite: fiber.CookieSameSiteStrictMode,
	}
	if on {
		ck.Value = strings.TrimSpace(identifier)
		ck.Expires = time.Now().Add(rememberMaxAge)
	} else {
		ck.Expires = time.Unix(0, 0)
	}
	c.Cookie(ck)
}

func (h *Handler) mapError(err error) error {
	var locked *credential.LockedError
	var cooldown *otp.CooldownError
	switch {
	case errors.As(err, &locked):
		return middleware.NewAPIError(http.StatusUnauthorized,
			fmt.Sprintf("Too many failed attempts. Please try again in %d seconds.", locked.SecondsRemaining())).
			WithSeconds(locked.SecondsRemaining())
	case errors.As(err, &cooldown):
		return middleware.NewAPIError(http.StatusTooManyRequests, cooldown.Error()).WithSeconds(cooldown.SecondsRemaining())
	case errors.Is(err, credential.ErrInvalidCredentials):
		return middleware.NewAPIError(http.StatusUnauthorized, "Invalid email/phone or password")
	case errors.Is(err, ErrNoActiveSession):
		apiErr := middleware.NewAPIError(http.StatusUnauthorized, "Not authenticated")
		apiErr.Redirect = loginPath
		return apiErr
	case errors.Is(err, ErrBusy), errors.Is(err, ErrSuperseded):
		return middleware.NewAPIError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownAccount), errors.Is(err, identity.ErrUserNotFound):
		return middleware.NewAPIError(http.StatusNotFound, ErrUnknownAccount.Error())
	case errors.Is(err, identity.ErrDemoIdentifierTaken):
		return middleware.NewAPIError(http.StatusConflict, "The demo account is unavailable")
	case errors.Is(err, identity.ErrUserExists):
		return middleware.NewAPIError(http.StatusConflict, "An account with this email or phone already exists")
	case errors.Is(err, otp.ErrCaptchaRequired):
		apiErr := middleware.NewAPIError(http.StatusBadRequest, err.Error())
		apiErr.CaptchaRequired = true
		return apiErr
	case errors.Is(err, otp.ErrNoChallenge), errors.Is(err, otp.ErrCaptchaFailed):
		return middleware.NewAPIError(http.StatusBadRequest, err.Error())
	case errors.Is(err, credential.ErrLockoutUnavailable), errors.Is(err, session.ErrStorageUnavailable):
		return middleware.NewAPIError(http.StatusServiceUnavailable, "Service temporarily unavailable, please retry")
	default:
		return err
	}
}
