package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if !cfg.Features.SingleActiveSubscription {
		t.Error("expected single active subscription to default to enabled")
	}
	if cfg.Features.CascadeClientDelete {
		t.Error("expected cascade client delete to default to disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: \"9000\"\nrate_limit:\n  rate: 5\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("SERVER_PORT", "9100")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9100" {
		t.Errorf("expected env port 9100, got %s", cfg.Server.Port)
	}
	if cfg.RateLimit.Rate != 5 {
		t.Errorf("expected file rate 5, got %d", cfg.RateLimit.Rate)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }},
		{"tls without cert", func(c *Config) { c.Server.EnableTLS = true }},
		{"zero rate", func(c *Config) { c.RateLimit.Rate = 0 }},
		{"bad schedule", func(c *Config) { c.Scheduler.ExpirySchedule = "every minute" }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
