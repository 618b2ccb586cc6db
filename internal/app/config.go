package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/campusbite/campusbite-api/internal/mpesa"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (BITE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (BITE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string `usage:"Redis URL for Idempotency-Key tracking; empty disables it" flag:"redis-url"`
	Auth        AuthConfig
	MPesa       mpesa.Config
	Payment     PaymentConfig
	Idempotency IdempotencyConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig configures verification of session tokens issued at login.
type AuthConfig struct {
	Secret string `usage:"HS256 secret shared with the login service (BITE_AUTH_SECRET)"`
	Issuer string `default:"campusbite" usage:"Expected iss claim"`
}

// PaymentConfig tunes the mobile-money flow.
type PaymentConfig struct {
	RetryAfter time.Duration `default:"60s" usage:"How long an unanswered prompt blocks a retry" flag:"payment-retry-after"`
}

// IdempotencyConfig controls how long Idempotency-Key results are kept.
type IdempotencyConfig struct {
	TTL time.Duration `default:"24h" usage:"Lifetime of idempotency keys"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BITE",
		Files:     []string{"config.yaml", "/etc/campusbite/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's BITE_-prefixed configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = getenv("REDIS_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set BITE_DATABASE_URL or DATABASE_URL")
	case c.Auth.Secret == "":
		return errors.New("session token secret is required: set BITE_AUTH_SECRET")
	case c.MPesa.ConsumerKey == "" || c.MPesa.ConsumerSecret == "":
		return errors.New("M-Pesa consumer key and secret are required")
	case c.MPesa.Passkey == "":
		return errors.New("M-Pesa passkey is required")
	case c.MPesa.CallbackURL == "":
		return errors.New("M-Pesa callback URL is required")
	case c.Payment.RetryAfter <= 0:
		return errors.New("payment retry interval must be positive")
	}
	return nil
}
