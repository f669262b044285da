package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/l402/pkg/models"
)

// EnvPrefix prefixes every environment override, e.g. L402_CLIENT_MAX_PRICE.
const EnvPrefix = "L402"

// Credential store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config holds all l402 configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	DBPath    string          `yaml:"db_path" split_words:"true"`
	Log       LogConfig       `yaml:"log"`
	Processor ProcessorConfig `yaml:"processor"`
	Client    ClientConfig    `yaml:"client"`
	Paywall   PaywallConfig   `yaml:"paywall"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LogConfig controls the root logger. Format is "console" or "json".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProcessorConfig points at the payment processor API.
type ProcessorConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key" split_words:"true"`
	Timeout time.Duration `yaml:"timeout"`
}

// ClientConfig controls the paying side. BudgetSats of zero means no budget.
type ClientConfig struct {
	MaxPrice         int64  `yaml:"max_price" split_words:"true"`
	BudgetSats       int64  `yaml:"budget_sats" split_words:"true"`
	BudgetPeriod     string `yaml:"budget_period" split_words:"true"`
	Store            string `yaml:"store"`
	StoreSize        int    `yaml:"store_size" split_words:"true"`
	CoalescePayments bool   `yaml:"coalesce_payments" split_words:"true"`
	Upstream         string `yaml:"upstream"`
}

// PaywallConfig controls the selling side. ExpirySeconds of zero issues
// credentials without an expiry.
type PaywallConfig struct {
	Price         int64    `yaml:"price"`
	Description   string   `yaml:"description"`
	ExpirySeconds int64    `yaml:"expiry_seconds" split_words:"true"`
	Caveats       []string `yaml:"caveats"`
	PathPrefix    string   `yaml:"path_prefix" split_words:"true"`
	Upstream      string   `yaml:"upstream"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8402",
		DBPath: "l402.db",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Processor: ProcessorConfig{
			URL:     "https://api.ln.bot",
			Timeout: 30 * time.Second,
		},
		Client: ClientConfig{
			MaxPrice:     1000,
			BudgetPeriod: string(models.BudgetDay),
			Store:        StoreMemory,
			StoreSize:    4096,
		},
		Paywall: PaywallConfig{
			Price: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a YAML config file, expands environment variables in it and
// applies L402_* overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the l402 components cannot run with.
func (c *Config) Validate() error {
	if c.Client.MaxPrice < 0 {
		return fmt.Errorf("client.max_price must not be negative")
	}
	if c.Client.BudgetSats < 0 {
		return fmt.Errorf("client.budget_sats must not be negative")
	}
	if !models.BudgetPeriod(c.Client.BudgetPeriod).Valid() {
		return fmt.Errorf("client.budget_period %q: want hour, day, week or month", c.Client.BudgetPeriod)
	}
	switch c.Client.Store {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("client.store %q: want memory or sqlite", c.Client.Store)
	}
	if c.Paywall.Price < 0 {
		return fmt.Errorf("paywall.price must not be negative")
	}
	if c.Paywall.ExpirySeconds < 0 {
		return fmt.Errorf("paywall.expiry_seconds must not be negative")
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format %q: want console or json", c.Log.Format)
	}
	return nil
}
