package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAppName          = "DreLuxe"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultSessionTTL       = 7 * 24 * time.Hour
	defaultLockoutThreshold = 3
	defaultLockoutDuration  = 30 * time.Second
	defaultOTPMode          = OTPModeDemo
	defaultOTPMaxAttempts   = 3
	defaultOTPTTL           = 10 * time.Minute
	defaultDemoIdentifier   = "user@example.com"
	defaultDemoPassword     = "pass123"
	defaultDemoOTPCode      = "123456"

	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	configFileEnvVar       = "CONFIG_FILE"
)

// OTP code sources.
const (
	OTPModeDemo = "demo"
	OTPModeTOTP = "totp"
)

// Config captures application runtime configuration. Values are resolved from
// built-in defaults, then an optional YAML file named by CONFIG_FILE, then
// environment variables.
type Config struct {
	AppName        string        `yaml:"app_name"`
	AppEnv         string        `yaml:"app_env"`
	Port           string        `yaml:"port"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	DatabaseURL    string        `yaml:"database_url"`
	RedisURL       string        `yaml:"redis_url"`
	ShutdownPeriod time.Duration `yaml:"shutdown_timeout"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`

	Session SessionConfig `yaml:"session"`
	Lockout LockoutConfig `yaml:"lockout"`
	OTP     OTPConfig     `yaml:"otp"`
	Demo    DemoConfig    `yaml:"demo"`
}

// SessionConfig controls the session cookie and stored record lifetime.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// LockoutConfig controls login lockout.
type LockoutConfig struct {
	Threshold int           `yaml:"threshold"`
	Duration  time.Duration `yaml:"duration"`
}

// OTPConfig controls one-time code challenges.
type OTPConfig struct {
	Mode        string        `yaml:"mode"`
	MaxAttempts int           `yaml:"max_attempts"`
	TTL         time.Duration `yaml:"ttl"`
}

// DemoConfig holds the sentinel demo identity and the simulated latency of
// credential checks.
type DemoConfig struct {
	Identifier string        `yaml:"identifier"`
	Password   string        `yaml:"password"`
	OTPCode    string        `yaml:"otp_code"`
	LoginDelay time.Duration `yaml:"login_delay"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		AppName:        defaultAppName,
		AppEnv:         defaultAppEnv,
		Port:           defaultPort,
		LogLevel:       defaultLogLevel,
		LogFormat:      defaultLogFormat,
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		Session:        SessionConfig{TTL: defaultSessionTTL},
		Lockout:        LockoutConfig{Threshold: defaultLockoutThreshold, Duration: defaultLockoutDuration},
		OTP:            OTPConfig{Mode: defaultOTPMode, MaxAttempts: defaultOTPMaxAttempts, TTL: defaultOTPTTL},
		Demo: DemoConfig{
			Identifier: defaultDemoIdentifier,
			Password:   defaultDemoPassword,
			OTPCode:    defaultDemoOTPCode,
		},
	}
}

// Load reads configuration values and populates a Config instance.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(configFileEnvVar); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.AppName = getEnv("APP_NAME", cfg.AppName)
	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.LogFormat))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.OTP.Mode = strings.ToLower(getEnv("OTP_MODE", cfg.OTP.Mode))
	cfg.Demo.Identifier = getEnv("DEMO_IDENTIFIER", cfg.Demo.Identifier)
	cfg.Demo.Password = getEnv("DEMO_PASSWORD", cfg.Demo.Password)
	cfg.Demo.OTPCode = getEnv("DEMO_OTP_CODE", cfg.Demo.OTPCode)

	var err error
	if cfg.ShutdownPeriod, err = getSecondsOrDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = getSecondsOrDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.Session.TTL, err = getDuration("SESSION_TTL", cfg.Session.TTL); err != nil {
		return Config{}, err
	}
	if cfg.Lockout.Duration, err = getDuration("LOCKOUT_DURATION", cfg.Lockout.Duration); err != nil {
		return Config{}, err
	}
	if cfg.OTP.TTL, err = getDuration("OTP_TTL", cfg.OTP.TTL); err != nil {
		return Config{}, err
	}
	if cfg.Demo.LoginDelay, err = getDuration("LOGIN_DELAY", cfg.Demo.LoginDelay); err != nil {
		return Config{}, err
	}
	if cfg.Lockout.Threshold, err = getInt("LOCKOUT_THRESHOLD", cfg.Lockout.Threshold); err != nil {
		return Config{}, err
	}
	if cfg.OTP.MaxAttempts, err = getInt("OTP_MAX_ATTEMPTS", cfg.OTP.MaxAttempts); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants Load relies on.
func (c Config) Validate() error {
	if !c.IsDevelopment() {
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set")
		}
		if c.RedisURL == "" {
			return errors.New("REDIS_URL must be set")
		}
	}
	switch c.OTP.Mode {
	case OTPModeDemo, OTPModeTOTP:
	default:
		return fmt.Errorf("invalid OTP_MODE %q", c.OTP.Mode)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("LOCKOUT_THRESHOLD must be positive")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("LOCKOUT_DURATION must be positive")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP_MAX_ATTEMPTS must be positive")
	}
	if c.Session.TTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDevelopment reports whether the service runs in a local development mode.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// CookieSecure reports whether cookies must carry the Secure flag.
func (c Config) CookieSecure() bool {
	return !c.IsDevelopment()
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getSecondsOrDuration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return getDuration(durationKey, fallback)
}
