package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsInDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv(configFileEnvVar, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Lockout.Threshold != 3 || cfg.Lockout.Duration != 30*time.Second {
		t.Fatalf("unexpected lockout defaults: %+v", cfg.Lockout)
	}
	if cfg.Session.TTL != 7*24*time.Hour {
		t.Fatalf("expected 7 day session ttl, got %s", cfg.Session.TTL)
	}
	if cfg.Demo.OTPCode != "123456" {
		t.Fatalf("expected demo otp code, got %q", cfg.Demo.OTPCode)
	}
	if cfg.CookieSecure() {
		t.Fatalf("cookies must not be secure in development")
	}
}

func TestLoadRequiresBackendsOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv(configFileEnvVar, "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected missing DATABASE_URL error")
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.yaml")
	body := []byte("app_name: FromFile\nlockout:\n  threshold: 5\n  duration: 45s\notp:\n  mode: totp\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("APP_ENV", "development")
	t.Setenv(configFileEnvVar, path)
	t.Setenv("APP_NAME", "")
	t.Setenv("LOCKOUT_THRESHOLD", "4")
	t.Setenv("LOCKOUT_DURATION", "")
	t.Setenv("OTP_MODE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppName != "FromFile" {
		t.Fatalf("expected app name from file, got %q", cfg.AppName)
	}
	if cfg.Lockout.Threshold != 4 {
		t.Fatalf("expected env override 4, got %d", cfg.Lockout.Threshold)
	}
	if cfg.Lockout.Duration != 45*time.Second {
		t.Fatalf("expected 45s from file, got %s", cfg.Lockout.Duration)
	}
	if cfg.OTP.Mode != OTPModeTOTP {
		t.Fatalf("expected totp mode, got %q", cfg.OTP.Mode)
	}
}

func TestLoadRejectsUnknownOTPMode(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv(configFileEnvVar, "")
	t.Setenv("OTP_MODE", "sms")

	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid OTP_MODE error")
	}
}

func TestShutdownSecondsTakesPrecedence(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv(configFileEnvVar, "")
	t.Setenv("OTP_MODE", "")
	t.Setenv(shutdownSecondsEnvVar, "3")
	t.Setenv(shutdownDurationEnvVar, "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ShutdownPeriod != 3*time.Second {
		t.Fatalf("expected 3s, got %s", cfg.ShutdownPeriod)
	}
}
