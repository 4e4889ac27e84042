package routes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dreluxe/portal/internal/auth"
	"github.com/dreluxe/portal/internal/config"
	"github.com/dreluxe/portal/internal/credential"
	"github.com/dreluxe/portal/internal/guard"
	"github.com/dreluxe/portal/internal/identity"
	"github.com/dreluxe/portal/internal/middleware"
	"github.com/dreluxe/portal/internal/notification"
	"github.com/dreluxe/portal/internal/onboarding"
	"github.com/dreluxe/portal/internal/orders"
	"github.com/dreluxe/portal/internal/otp"
	"github.com/dreluxe/portal/internal/profile"
	"github.com/dreluxe/portal/internal/session"
)

const (
	credentialRatePerMinute = 10
	guardResolveTimeout     = 2 * time.Second
	profileCacheTTL         = 5 * time.Minute
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// backends holds the storage chosen for each component. Postgres and Redis
// are used when configured; development falls back to process memory.
type backends struct {
	sessions  session.Store
	lockouts  credential.LockoutStore
	otps      otp.Store
	users     identity.Repository
	profiles  profile.Repository
	cache     profile.Cache
	orderRepo orders.Repository
}

func chooseBackends(d Deps) backends {
	b := backends{
		sessions:  session.NewMemoryStore(),
		lockouts:  credential.NewMemoryLockoutStore(),
		otps:      otp.NewMemoryStore(),
		users:     identity.NewMemoryRepository(),
		profiles:  profile.NewMemoryRepository(),
		cache:     profile.NewMemoryCache(),
		orderRepo: orders.NewMemoryRepository(),
	}
	if d.Cache != nil {
		b.sessions = session.NewRedisStore(d.Cache, d.Cfg.Session.TTL, d.Logger)
		b.lockouts = credential.NewRedisLockoutStore(d.Cache)
		b.otps = otp.NewRedisStore(d.Cache)
		b.cache = profile.NewRedisCache(d.Cache, profileCacheTTL)
	}
	if d.DB != nil {
		b.users = identity.NewPostgresRepository(d.DB)
		b.profiles = profile.NewPostgresRepository(d.DB)
		b.orderRepo = orders.NewPostgresRepository(d.DB)
	}
	return b
}

func codeSource(cfg config.Config) otp.CodeSource {
	if cfg.OTP.Mode == config.OTPModeTOTP {
		return otp.TOTPCodes{Issuer: cfg.AppName, Period: cfg.OTP.TTL}
	}
	return otp.DemoCodes{Code: cfg.Demo.OTPCode}
}

// Setup configures middlewares and all application routes. Background
// workers started here stop when ctx is done.
func Setup(ctx context.Context, app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.ClientContext(d.Cfg.CookieSecure()))

	RegisterHealthRoutes(app, d)

	b := chooseBackends(d)
	notifier := notification.NewLoggerNotifier(d.Logger, d.Cfg.IsDevelopment())

	users := identity.NewService(b.users)
	profiles := profile.NewService(b.profiles, b.cache, d.Logger)
	otps := otp.NewService(b.otps, codeSource(d.Cfg), notifier, otp.Options{
		MaxAttempts: d.Cfg.OTP.MaxAttempts,
		TTL:         d.Cfg.OTP.TTL,
		Logger:      d.Logger,
	})
	manager := auth.NewManager(auth.Deps{
		Store:          b.sessions,
		Validator:      credential.NewValidator(d.Cfg.Demo.Identifier, d.Cfg.Demo.Password, users),
		Lockout:        credential.NewLockout(b.lockouts, d.Cfg.Lockout.Threshold, d.Cfg.Lockout.Duration, time.Now),
		OTP:            otps,
		Users:          users,
		Evictors:       []auth.Evictor{profiles},
		Logger:         d.Logger,
		DemoIdentifier: d.Cfg.Demo.Identifier,
		LoginDelay:     d.Cfg.Demo.LoginDelay,
	})
	go func() {
		if err := manager.Run(ctx); err != nil {
			d.Logger.Error("session event bridge stopped", slog.Any("error", err))
		}
	}()

	flow := onboarding.NewController(profiles, manager, d.Logger)
	gate := guard.New(manager, flow, guardResolveTimeout, d.Logger)
	orderSvc := orders.NewService(b.orderRepo, notifier, d.Logger)

	authHandler := auth.NewHandler(manager, users, flow, auth.HandlerOptions{
		SecureCookies: d.Cfg.CookieSecure(),
		SessionTTL:    d.Cfg.Session.TTL,
		Logger:        d.Logger,
	})

	api := app.Group("/api")
	throttle := middleware.LoginRateLimit(d.Cache, credentialRatePerMinute)
	signedIn := gate.Protect(guard.RequireAuth)
	onboarded := gate.Protect(guard.RequireOnboarded)

	RegisterAuthRoutes(api, authHandler, throttle, signedIn)
	api.Get("/guard", gate.Handle)
	RegisterProfileRoutes(api, profile.NewHandler(profiles), signedIn)
	RegisterOnboardingRoutes(api, onboarding.NewHandler(flow), signedIn)

	var idem fiber.Handler
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterOrderRoutes(api, orders.NewHandler(orderSvc), onboarded, idem)

	return nil
}
