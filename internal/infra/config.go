package infra

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the application. Secrets can be injected
// through environment variables after the file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Database struct {
		Driver string `yaml:"driver"` // sqlite or postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	Galoy struct {
		Endpoint        string `yaml:"endpoint"`
		APIKey          string `yaml:"api_key"`
		PollIntervalSec int    `yaml:"poll_interval_sec"`
	} `yaml:"galoy"`

	OKX struct {
		APIKey          string `yaml:"api_key"`
		SecretKey       string `yaml:"secret_key"`
		Passphrase      string `yaml:"passphrase"`
		Simulated       bool   `yaml:"simulated"`
		PollIntervalSec int    `yaml:"poll_interval_sec"`
	} `yaml:"okx"`

	Price struct {
		StaleAfterSec int `yaml:"stale_after_sec"`
		ThrottleMS    int `yaml:"throttle_ms"`
		// MockPrice pins the cache to a fixed cents-per-satoshi value.
		// Empty means live prices.
		MockPrice string `yaml:"mock_price"`
		Fees      struct {
			Base      decimal.Decimal `yaml:"base"`
			Immediate decimal.Decimal `yaml:"immediate"`
			Delayed   decimal.Decimal `yaml:"delayed"`
		} `yaml:"fees"`
	} `yaml:"price"`

	Hedging struct {
		ToleranceCents int64 `yaml:"tolerance_cents"`
	} `yaml:"hedging"`

	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Galoy.Endpoint == "" || (!hasPrefix(c.Galoy.Endpoint, "http://") && !hasPrefix(c.Galoy.Endpoint, "https://")) {
		return fmt.Errorf("invalid galoy endpoint: %s", c.Galoy.Endpoint)
	}
	if c.Galoy.PollIntervalSec <= 0 {
		return fmt.Errorf("galoy poll interval must be positive")
	}
	if c.OKX.PollIntervalSec <= 0 {
		return fmt.Errorf("okx poll interval must be positive")
	}
	if c.Price.StaleAfterSec <= 0 {
		return fmt.Errorf("price staleness threshold must be positive")
	}
	if c.Hedging.ToleranceCents < 0 {
		return fmt.Errorf("hedging tolerance must not be negative")
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}
	if c.Price.MockPrice != "" {
		if _, err := decimal.NewFromString(c.Price.MockPrice); err != nil {
			return fmt.Errorf("invalid mock price %q: %w", c.Price.MockPrice, err)
		}
	}
	return nil
}

// GaloyPollInterval returns the reconciler pacing as a duration.
func (c *Config) GaloyPollInterval() time.Duration {
	return time.Duration(c.Galoy.PollIntervalSec) * time.Second
}

// OKXPollInterval returns the hedger pacing as a duration.
func (c *Config) OKXPollInterval() time.Duration {
	return time.Duration(c.OKX.PollIntervalSec) * time.Second
}

// PriceStaleAfter returns the staleness threshold as a duration.
func (c *Config) PriceStaleAfter() time.Duration {
	return time.Duration(c.Price.StaleAfterSec) * time.Second
}

// PriceThrottle returns the price bus coalescing window as a duration.
func (c *Config) PriceThrottle() time.Duration {
	return time.Duration(c.Price.ThrottleMS) * time.Millisecond
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv replaces settings when the environment provides them.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("HEDGE_GALOY_API_KEY"); key != "" {
		cfg.Galoy.APIKey = key
	}
	if key := os.Getenv("HEDGE_OKX_KEY"); key != "" {
		cfg.OKX.APIKey = key
	}
	if secret := os.Getenv("HEDGE_OKX_SECRET"); secret != "" {
		cfg.OKX.SecretKey = secret
	}
	if pass := os.Getenv("HEDGE_OKX_PASSPHRASE"); pass != "" {
		cfg.OKX.Passphrase = pass
	}
	if dsn := os.Getenv("HEDGE_DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
