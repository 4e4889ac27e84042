package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreluxe/portal/internal/credential"
	"github.com/dreluxe/portal/internal/identity"
	"github.com/dreluxe/portal/internal/logging"
	"github.com/dreluxe/portal/internal/otp"
	"github.com/dreluxe/portal/internal/session"
)

const (
	demoEmail    = "user@example.com"
	demoPassword = "pass123"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingEvictor struct {
	mu      sync.Mutex
	clients []string
}

func (r *recordingEvictor) Evict(_ context.Context, client string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, client)
	return nil
}

type fixture struct {
	manager *Manager
	store   *session.MemoryStore
	users   *identity.Service
	clock   *fakeClock
	evictor *recordingEvictor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := session.NewMemoryStore()
	users := identity.NewService(identity.NewMemoryRepository())
	evictor := &recordingEvictor{}
	m := NewManager(Deps{
		Store:          store,
		Validator:      credential.NewValidator(demoEmail, demoPassword, users),
		Lockout:        credential.NewLockout(credential.NewMemoryLockoutStore(), 3, 30*time.Second, clock.Now),
		OTP:            otp.NewService(otp.NewMemoryStore(), otp.DemoCodes{Code: "123456"}, nil, otp.Options{Now: clock.Now}),
		Users:          users,
		Evictors:       []Evictor{evictor},
		Logger:         logging.Discard(),
		DemoIdentifier: demoEmail,
	})
	m.now = clock.Now
	return &fixture{manager: m, store: store, users: users, clock: clock, evictor: evictor}
}

// blockLogins makes every login pause after the lockout check until release
// is closed. started receives once per paused login.
func (f *fixture) blockLogins() (started chan struct{}, release chan struct{}) {
	started = make(chan struct{}, 4)
	release = make(chan struct{})
	f.manager.wait = func(ctx context.Context) error {
		started <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return started, release
}

func TestFirstDemoLoginStartsOnboarding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.manager.Login(ctx, "c1", demoEmail, demoPassword)
	require.NoError(t, err)
	assert.True(t, s.IsNewUser)
	assert.Equal(t, identity.DemoUserID, s.ID)
	assert.Equal(t, "John Doe", s.Name)
	assert.NotEmpty(t, s.Token)

	stored, err := f.store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, s, stored)
}

func TestLoginRejectsEveryOtherPair(t *testing.T) {
	f := newFixture(t)
	cases := []struct{ identifier, password string }{
		{demoEmail, "wrong"},
		{"a@b.com", demoPassword},
		{"9876543210", demoPassword},
		{"USER@example.com", demoPassword},
	}
	for i, tc := range cases {
		client := string(rune('a' + i))
		_, err := f.manager.Login(context.Background(), client, tc.identifier, tc.password)
		assert.ErrorIs(t, err, credential.ErrInvalidCredentials, tc.identifier)
	}
}

func TestLoginValidatesInputBeforeCounting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Login(ctx, "c1", "john", demoPassword)
	var verr *credential.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "identifier", verr.Field)

	_, err = f.manager.Login(ctx, "c1", demoEmail, "")
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "password", verr.Field)

	st, err := f.manager.LockoutStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, st.Failures)
}

func TestLockoutWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.manager.Login(ctx, "c1", "a@b.com", "wrong")
		require.ErrorIs(t, err, credential.ErrInvalidCredentials)
	}
	_, err := f.manager.Login(ctx, "c1", "a@b.com", "wrong")
	var locked *credential.LockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, 30, locked.SecondsRemaining())

	f.clock.Advance(29 * time.Second)
	_, err = f.manager.Login(ctx, "c1", demoEmail, demoPassword)
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, 1, locked.SecondsRemaining())

	f.clock.Advance(2 * time.Second)
	s, err := f.manager.Login(ctx, "c1", demoEmail, demoPassword)
	require.NoError(t, err)
	assert.Equal(t, identity.DemoUserID, s.ID)
}

func TestSuccessfulLoginResetsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.manager.Login(ctx, "c1", demoEmail, "wrong")
		require.ErrorIs(t, err, credential.ErrInvalidCredentials)
	}
	_, err := f.manager.Login(ctx, "c1", demoEmail, demoPassword)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.manager.Login(ctx, "c1", demoEmail, "wrong")
		require.ErrorIs(t, err, credential.ErrInvalidCredentials)
	}
}

func TestConcurrentLoginIsRejected(t *testing.T) {
	f := newFixture(t)
	started, release := f.blockLogins()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Login(ctx, "c1", demoEmail, demoPassword)
		done <- err
	}()
	<-started

	_, err := f.manager.Login(ctx, "c1", demoEmail, demoPassword)
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
}

func TestLogoutDiscardsLoginInFlight(t *testing.T) {
	f := newFixture(t)
	started, release := f.blockLogins()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Login(ctx, "c1", demoEmail, demoPassword)
		done <- err
	}()
	<-started

	assert.ErrorIs(t, f.manager.Logout(ctx, "c1"), ErrNoActiveSession)
	close(release)
	assert.ErrorIs(t, <-done, ErrSuperseded)

	_, err := f.store.Load(ctx, "c1")
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestLogoutClearsSessionAndCachedData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Login(ctx, "c1", demoEmail, demoPassword)
	require.NoError(t, err)
	require.NoError(t, f.manager.Logout(ctx, "c1"))

	_, err = f.manager.Current(ctx, "c1")
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = f.store.Load(ctx, "c1")
	assert.ErrorIs(t, err, session.ErrNoSession)
	assert.Equal(t, []string{"c1"}, f.evictor.clients)

	assert.ErrorIs(t, f.manager.Logout(ctx, "c1"), ErrNoActiveSession)
}

func TestLogoutWithoutSessionKeepsLockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = f.manager.Login(ctx, "c1", "a@b.com", "wrong")
	}
	assert.ErrorIs(t, f.manager.Logout(ctx, "c1"), ErrNoActiveSession)

	st, err := f.manager.LockoutStatus(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, st.Locked)
}

func TestUpdateUserNeedsSession(t *testing.T) {
	f := newFixture(t)
	name := "Jane"
	_, err := f.manager.UpdateUser(context.Background(), "c1", Patch{Name: &name})
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestMarkOnboardedPersistsAcrossLogins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Login(ctx, "c1", demoEmail, demoPassword)
	require.NoError(t, err)
	s, err := f.manager.MarkOnboarded(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, s.IsNewUser)

	stored, err := f.store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, stored.IsNewUser)

	require.NoError(t, f.manager.Logout(ctx, "c1"))
	s, err = f.manager.Login(ctx, "c1", demoEmail, demoPassword)
	require.NoError(t, err)
	assert.False(t, s.IsNewUser)
}

func TestCurrentReloadsFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.manager.Login(ctx, "c1", demoEmail, demoPassword)
	require.NoError(t, err)

	other := NewManager(Deps{Store: f.store, Logger: logging.Discard()})
	got, err := other.Current(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = other.Current(ctx, "c2")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestResolveMatchesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.manager.Login(ctx, "c1", demoEmail, demoPassword)
	require.NoError(t, err)

	got, err := f.manager.Resolve(ctx, "c1", s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = f.manager.Resolve(ctx, "c1", "forged")
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = f.manager.Resolve(ctx, "c1", "")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestRunFollowsStoreEvents(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = f.manager.Run(ctx) }()

	s := session.Session{ID: "u1", Email: "u1@example.com", Name: "U", Token: session.NewToken()}
	cached := func() bool {
		f.manager.cacheMu.RLock()
		defer f.manager.cacheMu.RUnlock()
		_, ok := f.manager.cache["c9"]
		return ok
	}
	require.Eventually(t, func() bool {
		_ = f.store.Save(context.Background(), "c9", s)
		return cached()
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_ = f.store.Clear(context.Background(), "c9")
		return !cached()
	}, time.Second, 10*time.Millisecond)
}

func TestRegisterThenVerifyOpensSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, ch, err := f.manager.Register(ctx, "c1", identity.RegisterInput{Email: "new@dreluxe.in", Password: "longenough"})
	require.NoError(t, err)
	assert.Equal(t, otp.PurposeRegister, ch.Purpose)
	assert.Equal(t, "new@dreluxe.in", ch.Identifier)

	s, err := f.manager.VerifyOTP(ctx, "c1", otp.SplitCode("123456"), "")
	require.NoError(t, err)
	assert.Equal(t, user.ID, s.ID)
	assert.True(t, s.IsNewUser)

	_, err = f.manager.VerifyOTP(ctx, "c1", otp.SplitCode("123456"), "")
	assert.ErrorIs(t, err, otp.ErrNoChallenge)

	require.NoError(t, f.manager.Logout(ctx, "c1"))
	s, err = f.manager.Login(ctx, "c1", "new@dreluxe.in", "longenough")
	require.NoError(t, err)
	assert.Equal(t, user.ID, s.ID)
}

func TestRequestOTPNeedsKnownAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.RequestOTP(ctx, "c1", "nobody@example.com", otp.PurposeLogin)
	assert.ErrorIs(t, err, ErrUnknownAccount)

	ch, err := f.manager.RequestOTP(ctx, "c1", demoEmail, otp.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, ch.ResendIn(f.clock.Now()))

	_, err = f.manager.ResendOTP(ctx, "c1")
	var cooldown *otp.CooldownError
	require.True(t, errors.As(err, &cooldown))
	assert.Equal(t, 30, cooldown.SecondsRemaining())
}

// pausingUsers holds every account update until release is closed.
type pausingUsers struct {
	identity.Repository
	started chan struct{}
	release chan struct{}
}

func (r *pausingUsers) Update(ctx context.Context, user identity.User) error {
	r.started <- struct{}{}
	<-r.release
	return r.Repository.Update(ctx, user)
}

func TestLogoutWinsOverUpdateInFlight(t *testing.T) {
	ctx := context.Background()
	repo := &pausingUsers{Repository: identity.NewMemoryRepository(), started: make(chan struct{}, 1), release: make(chan struct{})}
	users := identity.NewService(repo)
	store := session.NewMemoryStore()
	m := NewManager(Deps{
		Store:          store,
		Validator:      credential.NewValidator(demoEmail, demoPassword, users),
		Lockout:        credential.NewLockout(credential.NewMemoryLockoutStore(), 3, 30*time.Second, nil),
		OTP:            otp.NewService(otp.NewMemoryStore(), otp.DemoCodes{Code: "123456"}, nil, otp.Options{}),
		Users:          users,
		Logger:         logging.Discard(),
		DemoIdentifier: demoEmail,
	})

	_, err := m.Login(ctx, "c1", demoEmail, demoPassword)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.MarkOnboarded(ctx, "c1")
		done <- err
	}()
	<-repo.started

	require.NoError(t, m.Logout(ctx, "c1"))
	close(repo.release)
	assert.ErrorIs(t, <-done, ErrNoActiveSession)

	_, err = store.Load(ctx, "c1")
	assert.ErrorIs(t, err, session.ErrNoSession)
	_, err = m.Current(ctx, "c1")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	// The account change itself stands.
	user, err := users.Get(ctx, identity.DemoUserID)
	require.NoError(t, err)
	assert.False(t, user.IsNewUser)
}

func TestRegisterRefusesDemoIdentifier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.manager.Register(ctx, "c1", identity.RegisterInput{Email: "User@Example.com", Password: "longenough"})
	assert.ErrorIs(t, err, identity.ErrUserExists)
	_, err = f.users.Lookup(ctx, demoEmail)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)

	s, err := f.manager.Login(ctx, "c1", demoEmail, demoPassword)
	require.NoError(t, err)
	assert.Equal(t, identity.DemoUserID, s.ID)
}

func TestDemoLoginFailsWhenEmailTakenElsewhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.Register(ctx, identity.RegisterInput{Email: demoEmail, Password: "longenough"})
	require.NoError(t, err)

	_, err = f.manager.Login(ctx, "c1", demoEmail, demoPassword)
	assert.ErrorIs(t, err, identity.ErrDemoIdentifierTaken)
	_, err = f.store.Load(ctx, "c1")
	assert.ErrorIs(t, err, session.ErrNoSession)
}
