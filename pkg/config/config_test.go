package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8402" {
		t.Errorf("expected :8402, got %s", cfg.Listen)
	}
	if cfg.Client.MaxPrice != 1000 {
		t.Errorf("expected max price 1000, got %d", cfg.Client.MaxPrice)
	}
	if cfg.Client.BudgetPeriod != "day" {
		t.Errorf("expected day period, got %s", cfg.Client.BudgetPeriod)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_API_KEY", "key_test_123")

	path := writeConfig(t, `
listen: ":9090"
db_path: "test.db"
processor:
  url: https://api.ln.bot
  api_key: ${TEST_API_KEY}
  timeout: 10s
client:
  max_price: 100
  budget_sats: 5000
  budget_period: week
  store: sqlite
  coalesce_payments: true
paywall:
  price: 21
  description: "Premium API"
  expiry_seconds: 3600
  caveats: ["service=api"]
  path_prefix: /api
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Processor.APIKey != "key_test_123" {
		t.Errorf("env var not expanded: got %s", cfg.Processor.APIKey)
	}
	if cfg.Processor.Timeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", cfg.Processor.Timeout)
	}
	if cfg.Client.BudgetSats != 5000 || cfg.Client.BudgetPeriod != "week" {
		t.Errorf("unexpected budget: %d/%s", cfg.Client.BudgetSats, cfg.Client.BudgetPeriod)
	}
	if cfg.Client.Store != StoreSQLite || !cfg.Client.CoalescePayments {
		t.Errorf("unexpected client config: %+v", cfg.Client)
	}
	if cfg.Paywall.Price != 21 || cfg.Paywall.ExpirySeconds != 3600 {
		t.Errorf("unexpected paywall config: %+v", cfg.Paywall)
	}
	if len(cfg.Paywall.Caveats) != 1 || cfg.Paywall.Caveats[0] != "service=api" {
		t.Errorf("unexpected caveats: %v", cfg.Paywall.Caveats)
	}
	// Unset keys keep their defaults.
	if cfg.Client.StoreSize != 4096 {
		t.Errorf("expected default store size, got %d", cfg.Client.StoreSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("L402_CLIENT_MAX_PRICE", "250")
	t.Setenv("L402_PROCESSOR_API_KEY", "key_from_env")
	t.Setenv("L402_DB_PATH", "/tmp/env.db")
	t.Setenv("L402_PAYWALL_PATH_PREFIX", "/paid")

	path := writeConfig(t, `
client:
  max_price: 100
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Client.MaxPrice != 250 {
		t.Errorf("expected env max price 250, got %d", cfg.Client.MaxPrice)
	}
	if cfg.Processor.APIKey != "key_from_env" {
		t.Errorf("expected env api key, got %s", cfg.Processor.APIKey)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Errorf("expected env db path, got %s", cfg.DBPath)
	}
	if cfg.Paywall.PathPrefix != "/paid" {
		t.Errorf("expected env path prefix, got %s", cfg.Paywall.PathPrefix)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("L402_LISTEN", ":7000")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":7000" {
		t.Errorf("expected :7000, got %s", cfg.Listen)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative max price", func(c *Config) { c.Client.MaxPrice = -1 }},
		{"negative budget", func(c *Config) { c.Client.BudgetSats = -5 }},
		{"unknown period", func(c *Config) { c.Client.BudgetPeriod = "fortnight" }},
		{"unknown store", func(c *Config) { c.Client.Store = "redis" }},
		{"negative paywall price", func(c *Config) { c.Paywall.Price = -1 }},
		{"negative expiry", func(c *Config) { c.Paywall.ExpirySeconds = -1 }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
client:
  store: redis
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown store")
	}
}
