// Package config provides configuration management for the trading bot.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultPollInterval is used when orders.poll_interval is unset
	defaultPollInterval = 5 * time.Second
	// defaultFillTimeout is used when orders.fill_timeout is unset
	defaultFillTimeout = 5 * time.Minute
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Quotes      QuotesConfig      `yaml:"quotes"`
	Trade       TradeConfig       `yaml:"trade"`
	Orders      OrdersConfig      `yaml:"orders"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines Alpaca API settings.
type BrokerConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	// APIEndpoint overrides the trading host (tests, proxies). Empty selects
	// the paper or live host based on environment.mode.
	APIEndpoint string `yaml:"api_endpoint"`
	// DataEndpoint overrides the market-data host.
	DataEndpoint string `yaml:"data_endpoint"`
}

// LedgerConfig defines where the bot's append-only activity log lives.
type LedgerConfig struct {
	Provider      string `yaml:"provider"` // sheets | file
	SpreadsheetID string `yaml:"spreadsheet_id"`
	AccessToken   string `yaml:"access_token"`
	APIEndpoint   string `yaml:"api_endpoint"` // override for tests
	Path          string `yaml:"path"`         // directory for the file provider
}

// QuotesConfig defines the optional fundamentals enrichment source.
type QuotesConfig struct {
	Enabled     bool   `yaml:"enabled"`
	APIEndpoint string `yaml:"api_endpoint"`
}

// TradeConfig defines the per-strategy trading parameters. Two sizing forms
// are supported: equity-relative (timepoint + allocation_pct) and fixed
// (amount + holding_period_days).
type TradeConfig struct {
	Timepoint         string  `yaml:"timepoint"`     // e.g. "1m", "2w"
	ThresholdPct      float64 `yaml:"threshold_pct"` // model threshold, names the channel
	AllocationPct     float64 `yaml:"allocation_pct"`
	Amount            float64 `yaml:"amount"`
	HoldingPeriodDays int     `yaml:"holding_period_days"`
}

// OrdersConfig defines fill-polling behavior after a sell is submitted.
type OrdersConfig struct {
	PollInterval string `yaml:"poll_interval"` // e.g. "5s"
	FillTimeout  string `yaml:"fill_timeout"`  // e.g. "5m"
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Environment validation
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	// Broker validation
	if c.Broker.APIKey == "" {
		return fmt.Errorf("broker.api_key is required")
	}
	if c.Broker.APISecret == "" {
		return fmt.Errorf("broker.api_secret is required")
	}

	// Ledger validation
	switch c.Ledger.Provider {
	case "sheets":
		if c.Ledger.SpreadsheetID == "" {
			return fmt.Errorf("ledger.spreadsheet_id is required for the sheets provider")
		}
		if c.Ledger.AccessToken == "" {
			return fmt.Errorf("ledger.access_token is required for the sheets provider")
		}
	case "file":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path is required for the file provider")
		}
	default:
		return fmt.Errorf("ledger.provider must be 'sheets' or 'file'")
	}

	// Trade validation: one of the two sizing forms must be complete
	if c.Trade.Timepoint == "" && c.Trade.HoldingPeriodDays <= 0 {
		return fmt.Errorf("trade requires either timepoint or holding_period_days")
	}
	if c.Trade.Amount < 0 {
		return fmt.Errorf("trade.amount must be >= 0")
	}
	if c.Trade.Amount == 0 {
		if c.Trade.AllocationPct <= 0 || c.Trade.AllocationPct > 100 {
			return fmt.Errorf("trade.allocation_pct must be in (0,100] when trade.amount is unset")
		}
	}
	if c.Trade.ThresholdPct < 0 {
		return fmt.Errorf("trade.threshold_pct must be >= 0")
	}

	// Orders validation
	if c.Orders.PollInterval != "" {
		if _, err := time.ParseDuration(c.Orders.PollInterval); err != nil {
			return fmt.Errorf("orders.poll_interval invalid: %w", err)
		}
	}
	if c.Orders.FillTimeout != "" {
		if _, err := time.ParseDuration(c.Orders.FillTimeout); err != nil {
			return fmt.Errorf("orders.fill_timeout invalid: %w", err)
		}
	}

	return nil
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// Channel derives the ledger namespace for this strategy instance. One channel
// exists per (timepoint, threshold) pair; fixed-budget deployments use the
// holding period in days instead of a timepoint spec.
func (c *Config) Channel() string {
	threshold := strconv.FormatFloat(c.Trade.ThresholdPct, 'f', -1, 64)
	if c.Trade.Timepoint != "" {
		return fmt.Sprintf("%s-%s%%", c.Trade.Timepoint, threshold)
	}
	return fmt.Sprintf("%dd-%s%%", c.Trade.HoldingPeriodDays, threshold)
}

// UsesFixedBudget reports whether per-trade sizing is a fixed dollar amount
// rather than a share of portfolio equity.
func (c *Config) UsesFixedBudget() bool {
	return c.Trade.Amount > 0
}

// GetPollInterval returns the configured order fill poll interval.
func (c *Config) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Orders.PollInterval)
	if err != nil || d <= 0 {
		return defaultPollInterval
	}
	return d
}

// GetFillTimeout returns the configured order fill wait bound.
func (c *Config) GetFillTimeout() time.Duration {
	d, err := time.ParseDuration(c.Orders.FillTimeout)
	if err != nil || d <= 0 {
		return defaultFillTimeout
	}
	return d
}
