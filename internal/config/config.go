// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the service.
type Config struct {
	AppEnv   string `env:"APP_ENV,default=development"`
	LogLevel string `env:"LOG_LEVEL"`
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`
	AppURL   string `env:"APP_URL,default=http://localhost:3000"`

	DBDriver       string `env:"DB_DRIVER,default=postgres"`
	DBDSN          string `env:"DB_DSN"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS,default=20"`
	DBMaxIdleConns int    `env:"DB_MAX_IDLE_CONNS,default=5"`

	JWTSecret  string        `env:"JWT_SECRET"`
	JWTTTL     time.Duration `env:"JWT_TTL,default=24h"`
	CronSecret string        `env:"CRON_SECRET"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB,default=0"`
	CacheTTL      time.Duration `env:"CACHE_TTL,default=5m"`

	RateLimitRPS   int `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST,default=40"`

	AdminEmail       string `env:"ADMIN_EMAIL"`
	SchedulerEnabled bool   `env:"SCHEDULER_ENABLED,default=false"`
}

// Load reads .env (when present) and decodes the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Validate checks combinations envdecode cannot express.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required in production")
		}
		if c.CronSecret == "" {
			return errors.New("CRON_SECRET is required in production")
		}
		if c.DBDSN == "" {
			return errors.New("DB_DSN is required in production")
		}
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	return nil
}
