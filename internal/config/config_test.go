package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("RATE_LIMIT_RPS", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, 2*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 7, cfg.RateLimitRPS)
}

func TestValidate(t *testing.T) {
	cfg := &Config{AppEnv: "production", DBDriver: "postgres", JWTTTL: time.Hour}
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")

	cfg.JWTSecret = "s"
	assert.ErrorContains(t, cfg.Validate(), "CRON_SECRET")

	cfg.CronSecret = "c"
	assert.ErrorContains(t, cfg.Validate(), "DB_DSN")

	cfg.DBDSN = "postgres://x"
	assert.NoError(t, cfg.Validate())

	cfg.DBDriver = "sqlite"
	assert.ErrorContains(t, cfg.Validate(), "unsupported DB_DRIVER")
}
