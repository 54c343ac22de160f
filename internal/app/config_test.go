package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "DATABASE_URL", "MONGODB_URI"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROMO_STORAGE_DRIVER", "memory")
	t.Setenv("PROMO_AUTH_SECRET", "s3cret")

	cfg, err := loadConfig([]string{})
	require.NoError(t, err)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "promo", cfg.Storage.MongoDatabase)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, 30, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROMO_AUTH_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://localhost/promo")
	t.Setenv("PORT", "9090")

	cfg, err := loadConfig([]string{})
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/promo", cfg.Storage.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing database url", map[string]string{"PROMO_AUTH_SECRET": "x"}, "database URL is required"},
		{"missing mongo uri", map[string]string{"PROMO_AUTH_SECRET": "x", "PROMO_STORAGE_DRIVER": "mongo"}, "mongo URI is required"},
		{"unknown driver", map[string]string{"PROMO_AUTH_SECRET": "x", "PROMO_STORAGE_DRIVER": "redis"}, "unknown storage driver"},
		{"missing secret", map[string]string{"PROMO_STORAGE_DRIVER": "memory"}, "auth secret is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig([]string{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
