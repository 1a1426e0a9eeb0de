// config.go

// Environment variable loading and validation.
package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/hkdf"
)

// SupportedProviders lists the providers that have an exchange adapter.
// Each gets its own state signing key.
var SupportedProviders = []string{"google", "apple"}

// Config holds all env configuration vars for the auth service.
type Config struct {
	Port         string `env:"PORT" envDefault:"7865"`
	LogLevelRaw  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"json"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// LogLevel is derived from LogLevelRaw.
	LogLevel slog.Level

	// CookieSecure is only ever false for local plain-http development.
	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"true"`

	// Optional backing stores. Empty disables the features that use them.
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// AuthConfigDir holds {provider}_{platform}.env files.
	AuthConfigDir string `env:"AUTH_CONFIG_DIR" envDefault:"conf.d"`

	// State token signing. Per-provider keys win over the shared one.
	StateSecret       string        `env:"STATE_SECRET_KEY"`
	GoogleStateSecret string        `env:"GOOGLE_STATE_SECRET_KEY"`
	AppleStateSecret  string        `env:"APPLE_STATE_SECRET_KEY"`
	StateTTL          time.Duration `env:"STATE_TTL" envDefault:"10m"`
	ReplayProtection  bool          `env:"STATE_REPLAY_PROTECTION" envDefault:"true"`

	// Application JWT.
	JWTSecret      string   `env:"JWT_SECRET"`
	JWTExpireHours int      `env:"JWT_EXPIRE_HOURS" envDefault:"24"`
	AdminEmails    []string `env:"ADMIN_EMAILS" envSeparator:","`

	ExchangeTimeout  time.Duration `env:"OAUTH_EXCHANGE_TIMEOUT" envDefault:"10s"`
	IdentityQueueMax int64         `env:"IDENTITY_QUEUE_MAX" envDefault:"1000"`
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if JWT_SECRET or every state secret is missing.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env: %w", err)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StateSecret == "" && cfg.GoogleStateSecret == "" && cfg.AppleStateSecret == "" {
		return nil, fmt.Errorf("STATE_SECRET_KEY (or a per-provider state secret) is required")
	}

	// Parse log level, default to info
	cfg.LogLevel = ParseLogLevel(cfg.LogLevelRaw)

	// Fall back to defaults so a bad env value can't mint never-expiring tokens.
	if cfg.JWTExpireHours <= 0 {
		slog.Warn("invalid env var, using default", "key", "JWT_EXPIRE_HOURS", "value", cfg.JWTExpireHours, "default", 24)
		cfg.JWTExpireHours = 24
	}
	if cfg.StateTTL <= 0 {
		slog.Warn("invalid env var, using default", "key", "STATE_TTL", "value", cfg.StateTTL, "default", 10*time.Minute)
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = 10 * time.Second
	}

	for i, e := range cfg.AdminEmails {
		cfg.AdminEmails[i] = strings.ToLower(strings.TrimSpace(e))
	}

	return cfg, nil
}

// ParseLogLevel maps LOG_LEVEL strings to slog levels; unknown values mean info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// JWTTTL is the application token lifetime.
func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTExpireHours) * time.Hour
}

// StateKey returns the HMAC key for a provider's state tokens.
// A provider-specific secret is used verbatim; the shared secret is expanded
// with HKDF so two providers never sign with the same key.
// Returns nil when no secret is configured at all.
func (c *Config) StateKey(provider string) ([]byte, error) {
	var specific string
	switch provider {
	case "google":
		specific = c.GoogleStateSecret
	case "apple":
		specific = c.AppleStateSecret
	default:
		specific = os.Getenv(strings.ToUpper(provider) + "_STATE_SECRET_KEY")
	}
	if specific != "" {
		return []byte(specific), nil
	}
	if c.StateSecret == "" {
		return nil, nil
	}
	return DeriveKey(c.StateSecret, "state-token:"+provider)
}

// DeriveKey expands secret into a 32-byte key bound to info.
func DeriveKey(secret, info string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}
