// Package auth owns the current-user value of every client context. All
// session mutations go through Manager.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreluxe/portal/internal/credential"
	"github.com/dreluxe/portal/internal/identity"
	"github.com/dreluxe/portal/internal/otp"
	"github.com/dreluxe/portal/internal/session"
)

const (
	demoName      = "John Doe"
	cacheLifetime = 30 * time.Second
)

var (
	// ErrBusy is returned when a credential operation is already in flight
	// for the client.
	ErrBusy = errors.New("another sign-in is already in progress")
	// ErrSuperseded is returned by a login that finished after a logout of
	// the same client. Its result is discarded.
	ErrSuperseded = errors.New("sign-in was cancelled by a logout")
	// ErrNoActiveSession is returned by operations that need a session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrUnknownAccount is returned when no account exists for an identifier.
	ErrUnknownAccount = errors.New("no account found for this email or phone")
)

// Evictor drops per-client cached data on logout.
type Evictor interface {
	Evict(ctx context.Context, client string) error
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Store          session.Store
	Validator      *credential.Validator
	Lockout        *credential.Lockout
	OTP            *otp.Service
	Users          *identity.Service
	Evictors       []Evictor
	Logger         *slog.Logger
	DemoIdentifier string
	LoginDelay     time.Duration
}

// Patch lists the session fields a caller may change.
type Patch struct {
	Name      *string
	Email     *string
	IsNewUser *bool
}

type cachedSession struct {
	session session.Session
	expires time.Time
}

// Manager orchestrates login, logout, registration and profile updates.
type Manager struct {
	store       session.Store
	validator   *credential.Validator
	lockout     *credential.Lockout
	otp         *otp.Service
	users       *identity.Service
	evictors    []Evictor
	logger      *slog.Logger
	demoID      string
	wait        func(ctx context.Context) error
	now         func() time.Time
	stateMu     sync.Mutex
	busy        map[string]bool
	generations map[string]uint64 // bumped by every logout
	cacheMu     sync.RWMutex
	cache       map[string]cachedSession
}

// NewManager builds a Manager.
func NewManager(d Deps) *Manager {
	m := &Manager{
		store:       d.Store,
		validator:   d.Validator,
		lockout:     d.Lockout,
		otp:         d.OTP,
		users:       d.Users,
		evictors:    d.Evictors,
		logger:      d.Logger,
		demoID:      d.DemoIdentifier,
		now:         time.Now,
		busy:        make(map[string]bool),
		generations: make(map[string]uint64),
		cache:       make(map[string]cachedSession),
	}
	delay := d.LoginDelay
	m.wait = func(ctx context.Context) error {
		if delay <= 0 {
			return nil
		}
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m
}

// Login checks credentials and opens a session. A first-time login of an
// account yields IsNewUser so the client is sent through onboarding.
func (m *Manager) Login(ctx context.Context, client, identifier, password string) (session.Session, error) {
	if _, err := credential.ValidateIdentifier(identifier); err != nil {
		return session.Session{}, err
	}
	if password == "" {
		return session.Session{}, &credential.ValidationError{Field: "password", Message: "Please enter your password"}
	}

	gen, err := m.begin(client)
	if err != nil {
		return session.Session{}, err
	}
	defer m.end(client)

	if err := m.lockout.Check(ctx, client); err != nil {
		return session.Session{}, err
	}
	if err := m.wait(ctx); err != nil {
		return session.Session{}, err
	}

	verdict, err := m.validator.CheckPassword(ctx, identifier, password)
	if err != nil {
		return session.Session{}, err
	}
	if verdict == credential.Invalid {
		st, err := m.lockout.RecordFailure(ctx, client)
		if err != nil {
			return session.Session{}, err
		}
		if st.Locked {
			m.logger.Warn("login locked out", slog.String("client", client), slog.Int("seconds", st.SecondsRemaining()))
			return session.Session{}, &credential.LockedError{Remaining: st.Remaining}
		}
		return session.Session{}, credential.ErrInvalidCredentials
	}
	if err := m.lockout.RecordSuccess(ctx, client); err != nil {
		return session.Session{}, err
	}

	user, err := m.account(ctx, identifier)
	if err != nil {
		return session.Session{}, err
	}
	s, err := m.open(ctx, client, gen, user)
	if err != nil {
		return session.Session{}, err
	}
	m.logger.Info("login succeeded", slog.String("client", client), slog.String("user_id", s.ID), slog.Bool("new_user", s.IsNewUser))
	return s, nil
}

// Logout clears the session and every per-client copy of dependent data. A
// login still in flight for the client is discarded. The lockout record is
// reset only when a session was active. ErrNoActiveSession is
// returned when there was nothing to log out, after clearing anyway.
func (m *Manager) Logout(ctx context.Context, client string) error {
	m.supersede(client)
	_, currentErr := m.Current(ctx, client)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.store.Clear(gctx, client) })
	g.Go(func() error { return m.otp.Discard(gctx, client) })
	if currentErr == nil {
		// Only a signed-in client may drop its lockout record.
		g.Go(func() error { return m.lockout.Reset(gctx, client) })
	}
	for _, e := range m.evictors {
		g.Go(func() error { return e.Evict(gctx, client) })
	}
	err := g.Wait()
	m.forget(client)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	if errors.Is(currentErr, ErrNoActiveSession) {
		m.logger.Warn("logout without active session", slog.String("client", client))
		return ErrNoActiveSession
	}
	m.logger.Info("logged out", slog.String("client", client))
	return nil
}

// UpdateUser merges patch into the current session, writes it through to the
// account and persists the result. A logout that lands while the update is in
// flight wins: the session stays cleared and ErrNoActiveSession is returned.
func (m *Manager) UpdateUser(ctx context.Context, client string, patch Patch) (session.Session, error) {
	gen := m.generation(client)
	cur, err := m.Current(ctx, client)
	if err != nil {
		return session.Session{}, err
	}
	user, err := m.users.Update(ctx, cur.ID, identity.Patch{Name: patch.Name, Email: patch.Email, IsNewUser: patch.IsNewUser})
	if err != nil {
		return session.Session{}, err
	}
	if m.superseded(client, gen) {
		return session.Session{}, ErrNoActiveSession
	}

	next := cur
	next.Name = user.Name
	next.Email = user.Email
	next.IsNewUser = user.IsNewUser
	if err := m.store.Save(ctx, client, next); err != nil {
		return session.Session{}, err
	}
	if m.superseded(client, gen) {
		if err := m.store.Clear(ctx, client); err != nil {
			m.logger.Warn("clear session updated after logout", slog.String("client", client), slog.Any("error", err))
		}
		m.forget(client)
		return session.Session{}, ErrNoActiveSession
	}
	m.remember(client, next)
	return next, nil
}

// MarkOnboarded flips IsNewUser to false for the signed-in account.
func (m *Manager) MarkOnboarded(ctx context.Context, client string) (session.Session, error) {
	done := false
	return m.UpdateUser(ctx, client, Patch{IsNewUser: &done})
}

// Current returns the session of client, loading it from the store when it
// is not cached. Missing or corrupt state yields ErrNoActiveSession.
func (m *Manager) Current(ctx context.Context, client string) (session.Session, error) {
	m.cacheMu.RLock()
	entry, ok := m.cache[client]
	m.cacheMu.RUnlock()
	if ok && m.now().Before(entry.expires) {
		return entry.session, nil
	}

	s, err := m.store.Load(ctx, client)
	switch {
	case err == nil:
		m.remember(client, s)
		return s, nil
	case errors.Is(err, session.ErrNoSession):
		m.forget(client)
		return session.Session{}, ErrNoActiveSession
	case errors.Is(err, session.ErrCorruptState):
		m.forget(client)
		m.logger.Warn("corrupt session discarded", slog.String("client", client), slog.Any("error", err))
		return session.Session{}, ErrNoActiveSession
	default:
		return session.Session{}, err
	}
}

// Resolve returns the session of client when token is its marker.
func (m *Manager) Resolve(ctx context.Context, client, token string) (session.Session, error) {
	if token == "" {
		return session.Session{}, ErrNoActiveSession
	}
	s, err := m.Current(ctx, client)
	if err != nil {
		return session.Session{}, err
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return session.Session{}, ErrNoActiveSession
	}
	return s, nil
}

// Register creates an account and sends a verification code to its email.
// The demo identifier is reserved for the demo account.
func (m *Manager) Register(ctx context.Context, client string, in identity.RegisterInput) (identity.User, otp.Challenge, error) {
	if m.reserved(in.Email) || m.reserved(in.Phone) {
		return identity.User{}, otp.Challenge{}, identity.ErrUserExists
	}
	user, err := m.users.Register(ctx, in)
	if err != nil {
		return identity.User{}, otp.Challenge{}, err
	}
	ch, err := m.otp.Request(ctx, client, user.Email, otp.PurposeRegister)
	if err != nil {
		return identity.User{}, otp.Challenge{}, err
	}
	m.logger.Info("account registered", slog.String("client", client), slog.String("user_id", user.ID))
	return user, ch, nil
}

// RequestOTP sends a code to a known identifier.
func (m *Manager) RequestOTP(ctx context.Context, client, identifier string, purpose otp.Purpose) (otp.Challenge, error) {
	if _, err := credential.ValidateIdentifier(identifier); err != nil {
		return otp.Challenge{}, err
	}
	if _, err := m.account(ctx, identifier); err != nil {
		return otp.Challenge{}, err
	}
	return m.otp.Request(ctx, client, identifier, purpose)
}

// ResendOTP re-sends the pending code once the cooldown allows it.
func (m *Manager) ResendOTP(ctx context.Context, client string) (otp.Challenge, error) {
	return m.otp.Resend(ctx, client)
}

// SolveCaptcha clears the captcha gate of the pending challenge.
func (m *Manager) SolveCaptcha(ctx context.Context, client, answer string) (otp.Challenge, error) {
	return m.otp.SolveCaptcha(ctx, client, answer)
}

// VerifyOTP checks the code of the pending challenge and, on success, opens
// a session for the account behind the challenge identifier.
func (m *Manager) VerifyOTP(ctx context.Context, client string, digits []string, captcha string) (session.Session, error) {
	gen, err := m.begin(client)
	if err != nil {
		return session.Session{}, err
	}
	defer m.end(client)

	ch, err := m.otp.Verify(ctx, client, digits, captcha)
	if err != nil {
		return session.Session{}, err
	}
	user, err := m.account(ctx, ch.Identifier)
	if err != nil {
		return session.Session{}, err
	}
	s, err := m.open(ctx, client, gen, user)
	if err != nil {
		return session.Session{}, err
	}
	m.logger.Info("otp verified", slog.String("client", client), slog.String("purpose", string(ch.Purpose)), slog.String("user_id", s.ID))
	return s, nil
}

// PendingOTP returns the challenge awaiting verification.
func (m *Manager) PendingOTP(ctx context.Context, client string) (otp.Challenge, error) {
	return m.otp.Pending(ctx, client)
}

// LockoutStatus reports the login lockout of client for countdown display.
func (m *Manager) LockoutStatus(ctx context.Context, client string) (credential.Status, error) {
	return m.lockout.Status(ctx, client)
}

// Events subscribes to session changes of client.
func (m *Manager) Events(ctx context.Context, client string) (*session.Subscription, error) {
	return m.store.Subscribe(ctx, client)
}

// Run keeps the session cache coherent with changes made by other instances.
// It blocks until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	sub, err := m.store.Subscribe(ctx, session.AllClients)
	if err != nil {
		return err
	}
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if ev.Kind == session.EventSaved && ev.Session != nil {
				m.remember(ev.Client, *ev.Session)
			} else {
				m.forget(ev.Client)
			}
		}
	}
}

func (m *Manager) account(ctx context.Context, identifier string) (identity.User, error) {
	if m.validator.IsDemoIdentifier(identifier) {
		return m.users.EnsureDemo(ctx, m.demoID, demoName)
	}
	user, err := m.users.Lookup(ctx, identifier)
	if errors.Is(err, identity.ErrUserNotFound) {
		return identity.User{}, ErrUnknownAccount
	}
	return user, err
}

func (m *Manager) reserved(identifier string) bool {
	identifier = strings.TrimSpace(identifier)
	return identifier != "" && m.demoID != "" && strings.EqualFold(identifier, m.demoID)
}

func (m *Manager) open(ctx context.Context, client string, gen uint64, user identity.User) (session.Session, error) {
	s := session.Session{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		IsNewUser: user.IsNewUser,
		Token:     session.NewToken(),
	}
	if m.superseded(client, gen) {
		return session.Session{}, ErrSuperseded
	}
	if err := m.store.Save(ctx, client, s); err != nil {
		return session.Session{}, err
	}
	// A logout may have run while the record was being written.
	if m.superseded(client, gen) {
		if err := m.store.Clear(ctx, client); err != nil {
			m.logger.Warn("clear superseded session", slog.String("client", client), slog.Any("error", err))
		}
		return session.Session{}, ErrSuperseded
	}
	m.remember(client, s)
	return s, nil
}

func (m *Manager) begin(client string) (uint64, error) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.busy[client] {
		return 0, ErrBusy
	}
	m.busy[client] = true
	return m.generations[client], nil
}

func (m *Manager) end(client string) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	delete(m.busy, client)
}

func (m *Manager) generation(client string) uint64 {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.generations[client]
}

func (m *Manager) supersede(client string) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.generations[client]++
}

func (m *Manager) superseded(client string, gen uint64) bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.generations[client] != gen
}

func (m *Manager) remember(client string, s session.Session) {
	m.cacheMu.Lock()
	m.cache[client] = cachedSession{session: s, expires: m.now().Add(cacheLifetime)}
	m.cacheMu.Unlock()
}

func (m *Manager) forget(client string) {
	m.cacheMu.Lock()
	delete(m.cache, client)
	m.cacheMu.Unlock()
}
