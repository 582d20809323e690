// Package config loads process configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dukerupert/galactic-archives/internal/middleware"
)

const PlaceholderJWTSecret = "your-secret-key-change-in-production"

var DefaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5137",
	"http://127.0.0.1:5173",
	"http://127.0.0.1:5137",
	"https://notes-taker-demo-application.onrender.com",
}

type Config struct {
	Env       string
	Port      string
	LogLevel  string
	LogFormat string

	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration
	SQLitePath    string

	JWTSecret         string
	JWTExpiresIn      time.Duration
	Argon2MemoryKiB   uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8

	StripeSecretKey     string
	StripeWebhookSecret string
	FrontendURL         string

	CORSOrigins    []string
	RateLimitAuth  int
	TrustedProxies []netip.Prefix

	argon2ParallelismRaw uint
	trustedProxiesErr    error
}

func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c *Config) BillingEnabled() bool {
	return c.StripeSecretKey != ""
}

// Load reads the environment. If envFile names an existing file its values
// are used for keys the environment does not set.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read %s: %w", envFile, err)
			}
		}
	}

	parallelism := v.GetUint("ARGON2_PARALLELISM")
	proxies, proxiesErr := middleware.ParseTrustedProxies(splitList(v.GetString("TRUSTED_PROXIES")))

	cfg := &Config{
		Env:       v.GetString("APP_ENV"),
		Port:      v.GetString("PORT"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		StoreDriver:   strings.ToLower(v.GetString("STORE_DRIVER")),
		MongoURI:      v.GetString("MONGODB_URI"),
		MongoDatabase: v.GetString("MONGODB_DATABASE"),
		MongoTimeout:  v.GetDuration("MONGODB_TIMEOUT"),
		SQLitePath:    v.GetString("SQLITE_PATH"),

		JWTSecret:         v.GetString("JWT_SECRET"),
		JWTExpiresIn:      time.Duration(v.GetInt64("JWT_EXPIRES_IN")) * time.Second,
		Argon2MemoryKiB:   v.GetUint32("ARGON2_MEMORY_KIB"),
		Argon2Iterations:  v.GetUint32("ARGON2_ITERATIONS"),
		Argon2Parallelism: uint8(min(parallelism, math.MaxUint8)),

		StripeSecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		FrontendURL:         strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),

		CORSOrigins:    splitList(v.GetString("CORS_ORIGINS")),
		RateLimitAuth:  v.GetInt("RATE_LIMIT_AUTH"),
		TrustedProxies: proxies,

		argon2ParallelismRaw: parallelism,
		trustedProxiesErr:    proxiesErr,
	}

	if cfg.StoreDriver == "" {
		cfg.StoreDriver = "sqlite"
		if cfg.MongoURI != "" {
			cfg.StoreDriver = "mongo"
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = DefaultCORSOrigins
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("STORE_DRIVER", "")
	v.SetDefault("MONGODB_URI", "")
	v.SetDefault("MONGODB_DATABASE", "galactic_archives")
	v.SetDefault("MONGODB_TIMEOUT", "5s")
	v.SetDefault("SQLITE_PATH", "archives.db")
	v.SetDefault("JWT_SECRET", PlaceholderJWTSecret)
	v.SetDefault("JWT_EXPIRES_IN", 86400)
	v.SetDefault("ARGON2_MEMORY_KIB", 64*1024)
	v.SetDefault("ARGON2_ITERATIONS", 3)
	v.SetDefault("ARGON2_PARALLELISM", 4)
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("RATE_LIMIT_AUTH", 10)
	v.SetDefault("TRUSTED_PROXIES", "")
}

func (c *Config) validate() error {
	var errs []error
	switch c.StoreDriver {
	case "mongo":
		if c.MongoURI == "" {
			errs = append(errs, errors.New("STORE_DRIVER=mongo requires MONGODB_URI"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is empty"))
	}
	if c.Production() && c.JWTSecret == PlaceholderJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be changed in production"))
	}
	if c.JWTExpiresIn <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES_IN must be positive"))
	}
	if c.MongoTimeout <= 0 {
		errs = append(errs, errors.New("MONGODB_TIMEOUT must be positive"))
	}
	if c.argon2ParallelismRaw > math.MaxUint8 {
		errs = append(errs, fmt.Errorf("ARGON2_PARALLELISM must be at most %d", math.MaxUint8))
	}
	if c.trustedProxiesErr != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", c.trustedProxiesErr))
	}
	if c.RateLimitAuth <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_AUTH must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
