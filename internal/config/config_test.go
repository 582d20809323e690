package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"APP_ENV", "PORT", "LOG_LEVEL", "LOG_FORMAT",
	"STORE_DRIVER", "MONGODB_URI", "MONGODB_DATABASE", "MONGODB_TIMEOUT", "SQLITE_PATH",
	"JWT_SECRET", "JWT_EXPIRES_IN", "ARGON2_MEMORY_KIB", "ARGON2_ITERATIONS", "ARGON2_PARALLELISM",
	"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "FRONTEND_URL", "CORS_ORIGINS", "RATE_LIMIT_AUTH", "TRUSTED_PROXIES",
}

// clearEnv blanks every key for the test. Empty variables count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "archives.db", cfg.SQLitePath)
	assert.Equal(t, "galactic_archives", cfg.MongoDatabase)
	assert.Equal(t, 5*time.Second, cfg.MongoTimeout)
	assert.Equal(t, PlaceholderJWTSecret, cfg.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiresIn)
	assert.Equal(t, uint32(65536), cfg.Argon2MemoryKiB)
	assert.Equal(t, uint32(3), cfg.Argon2Iterations)
	assert.Equal(t, uint8(4), cfg.Argon2Parallelism)
	assert.Equal(t, "http://localhost:5173", cfg.FrontendURL)
	assert.Equal(t, DefaultCORSOrigins, cfg.CORSOrigins)
	assert.Equal(t, 10, cfg.RateLimitAuth)
	assert.Empty(t, cfg.TrustedProxies)
	assert.False(t, cfg.BillingEnabled())
	assert.False(t, cfg.Production())
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_SECRET", "shh")
	t.Setenv("JWT_EXPIRES_IN", "3600")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("FRONTEND_URL", "https://archives.example/")
	t.Setenv("CORS_ORIGINS", " https://a.example, ,https://b.example ")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "mongo", cfg.StoreDriver, "a mongo uri selects the mongo driver")
	assert.Equal(t, "shh", cfg.JWTSecret)
	assert.Equal(t, time.Hour, cfg.JWTExpiresIn)
	assert.True(t, cfg.BillingEnabled())
	assert.Equal(t, "https://archives.example", cfg.FrontendURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=7000\nJWT_SECRET=from-file\nSTORE_DRIVER=sqlite\n"), 0o600))
	t.Setenv("PORT", "7001")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7001", cfg.Port, "environment wins over the file")
	assert.Equal(t, "from-file", cfg.JWTSecret)
}

func TestLoadMissingEnvFileIgnored(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"placeholder secret in production", map[string]string{"APP_ENV": "production"}},
		{"mongo without uri", map[string]string{"STORE_DRIVER": "mongo"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "postgres"}},
		{"zero rate limit", map[string]string{"RATE_LIMIT_AUTH": "0"}},
		{"parallelism overflows uint8", map[string]string{"ARGON2_PARALLELISM": "256"}},
		{"parallelism far above uint8", map[string]string{"ARGON2_PARALLELISM": "300"}},
		{"malformed trusted proxy", map[string]string{"TRUSTED_PROXIES": "10.0.0.0/8,proxy.internal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadArgon2ParallelismUpperBound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARGON2_PARALLELISM", "255")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint8(255), cfg.Argon2Parallelism)
}

func TestLoadTrustedProxies(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.5/32"),
	}, cfg.TrustedProxies)
}

func TestProductionWithRealSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "a-real-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Production())
}
