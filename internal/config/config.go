package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinSigningKeyBytes is the shortest AUTH_SIGNING_KEY accepted in production.
const MinSigningKeyBytes = 32

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	SeedWorkers     int           `mapstructure:"SEED_WORKERS"`
	SeedPatients    int           `mapstructure:"SEED_PATIENTS"`
	SeedVisits      int           `mapstructure:"SEED_VISITS"`
	SeedRandom      int64         `mapstructure:"SEED_RANDOM"`
	NeedsVisitDays  int           `mapstructure:"NEEDS_VISIT_DAYS"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	AuthSigningKey  string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience    string        `mapstructure:"AUTH_AUDIENCE"`
	SandboxEnabled  bool          `mapstructure:"SANDBOX_ENABLED"`
	BodyLimit       string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"SEED_WORKERS", "SEED_PATIENTS", "SEED_VISITS", "SEED_RANDOM",
	"NEEDS_VISIT_DAYS", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "SANDBOX_ENABLED",
	"BODY_LIMIT", "REQUEST_TIMEOUT", "SHUTDOWN_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SEED_WORKERS", 30)
	v.SetDefault("SEED_PATIENTS", 150)
	v.SetDefault("SEED_VISITS", 300)
	v.SetDefault("SEED_RANDOM", 0)
	v.SetDefault("NEEDS_VISIT_DAYS", 30)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SANDBOX_ENABLED", false)
	v.SetDefault("BODY_LIMIT", "1MB")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	return cfg, nil
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

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SandboxActive reports whether the seeding and export endpoints are mounted.
// They are always on in development.
func (c *Config) SandboxActive() bool {
	return c.SandboxEnabled || c.IsDev()
}

// AnonymousAuth reports whether requests are identified without a token.
func (c *Config) AnonymousAuth() bool {
	return c.AuthSigningKey == ""
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}
	if c.SeedWorkers < 0 || c.SeedPatients < 0 || c.SeedVisits < 0 {
		return fmt.Errorf("SEED_WORKERS, SEED_PATIENTS and SEED_VISITS must be non-negative")
	}
	if c.SeedPatients > 0 && c.SeedWorkers == 0 {
		return fmt.Errorf("SEED_PATIENTS=%d requires SEED_WORKERS of at least 1", c.SeedPatients)
	}
	if c.SeedVisits > 0 && c.SeedPatients == 0 {
		return fmt.Errorf("SEED_VISITS=%d requires SEED_PATIENTS of at least 1", c.SeedVisits)
	}
	if c.NeedsVisitDays < 0 {
		return fmt.Errorf("NEEDS_VISIT_DAYS must be non-negative, got %d", c.NeedsVisitDays)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}

	if c.IsProduction() {
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
		}
		if len(c.AuthSigningKey) < MinSigningKeyBytes {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least %d bytes, got %d", MinSigningKeyBytes, len(c.AuthSigningKey))
		}
	}

	return nil
}
