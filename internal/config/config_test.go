package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range keys {
		os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("expected development env, got %s", cfg.Env)
	}
	if cfg.SeedWorkers != 30 || cfg.SeedPatients != 150 || cfg.SeedVisits != 300 {
		t.Errorf("unexpected seed counts %d/%d/%d", cfg.SeedWorkers, cfg.SeedPatients, cfg.SeedVisits)
	}
	if cfg.NeedsVisitDays != 30 {
		t.Errorf("expected NEEDS_VISIT_DAYS 30, got %d", cfg.NeedsVisitDays)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected 10s shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected 30s request timeout, got %s", cfg.RequestTimeout)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("unexpected CORS origins %v", cfg.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	os.Setenv("PORT", "9090")
	os.Setenv("SEED_WORKERS", "5")
	os.Setenv("NEEDS_VISIT_DAYS", "14")
	os.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	os.Setenv("SHUTDOWN_TIMEOUT", "3s")
	defer func() {
		for _, k := range []string{"PORT", "SEED_WORKERS", "NEEDS_VISIT_DAYS", "CORS_ORIGINS", "SHUTDOWN_TIMEOUT"} {
			os.Unsetenv(k)
		}
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.SeedWorkers != 5 {
		t.Errorf("expected 5 seed workers, got %d", cfg.SeedWorkers)
	}
	if cfg.NeedsVisitDays != 14 {
		t.Errorf("expected 14 days, got %d", cfg.NeedsVisitDays)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("expected 3s, got %s", cfg.ShutdownTimeout)
	}
	if strings.Join(cfg.CORSOrigins, "|") != "https://a.example|https://b.example" {
		t.Errorf("unexpected CORS origins %v", cfg.CORSOrigins)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
	if !c.IsProduction() {
		t.Error("expected IsProduction() to return true for production")
	}
}

func TestConfig_SandboxActive(t *testing.T) {
	tests := []struct {
		env     string
		enabled bool
		want    bool
	}{
		{"development", false, true},
		{"production", false, false},
		{"production", true, true},
		{"staging", true, true},
	}
	for _, tt := range tests {
		c := &Config{Env: tt.env, SandboxEnabled: tt.enabled}
		if got := c.SandboxActive(); got != tt.want {
			t.Errorf("SandboxActive(env=%s, enabled=%v) = %v, want %v", tt.env, tt.enabled, got, tt.want)
		}
	}
}

func validConfig() Config {
	return Config{
		Port:            "8000",
		Env:             "development",
		SeedWorkers:     30,
		SeedPatients:    150,
		SeedVisits:      300,
		NeedsVisitDays:  30,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		ShutdownTimeout: 10 * time.Second,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"non-numeric port", func(c *Config) { c.Port = "http" }, "PORT"},
		{"port out of range", func(c *Config) { c.Port = "70000" }, "PORT"},
		{"negative seed", func(c *Config) { c.SeedVisits = -1 }, "non-negative"},
		{"patients without workers", func(c *Config) { c.SeedWorkers = 0 }, "SEED_WORKERS"},
		{"visits without patients", func(c *Config) { c.SeedPatients = 0 }, "SEED_PATIENTS"},
		{"nothing to seed", func(c *Config) { c.SeedWorkers, c.SeedPatients, c.SeedVisits = 0, 0, 0 }, ""},
		{"negative threshold", func(c *Config) { c.NeedsVisitDays = -1 }, "NEEDS_VISIT_DAYS"},
		{"zero rate", func(c *Config) { c.RateLimitRPS = 0 }, "RATE_LIMIT"},
		{"zero shutdown", func(c *Config) { c.ShutdownTimeout = 0 }, "SHUTDOWN_TIMEOUT"},
		{"production without key", func(c *Config) { c.Env = "production" }, "AUTH_SIGNING_KEY is required"},
		{"production short key", func(c *Config) {
			c.Env = "production"
			c.AuthSigningKey = "short"
		}, "at least 32 bytes"},
		{"production with key", func(c *Config) {
			c.Env = "production"
			c.AuthSigningKey = strings.Repeat("k", 32)
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
