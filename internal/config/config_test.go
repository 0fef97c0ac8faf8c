package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment: EnvironmentConfig{Mode: "paper", LogLevel: "info"},
		Broker:      BrokerConfig{APIKey: "key", APISecret: "secret"},
		Ledger:      LedgerConfig{Provider: "file", Path: "./ledger"},
		Trade: TradeConfig{
			Timepoint:     "1m",
			ThresholdPct:  5.0,
			AllocationPct: 2.0,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad mode", func(c *Config) { c.Environment.Mode = "demo" }, "environment.mode"},
		{"missing api key", func(c *Config) { c.Broker.APIKey = "" }, "broker.api_key"},
		{"missing api secret", func(c *Config) { c.Broker.APISecret = "" }, "broker.api_secret"},
		{"bad ledger provider", func(c *Config) { c.Ledger.Provider = "redis" }, "ledger.provider"},
		{"sheets without spreadsheet", func(c *Config) {
			c.Ledger = LedgerConfig{Provider: "sheets", AccessToken: "t"}
		}, "ledger.spreadsheet_id"},
		{"sheets without token", func(c *Config) {
			c.Ledger = LedgerConfig{Provider: "sheets", SpreadsheetID: "s"}
		}, "ledger.access_token"},
		{"no holding period at all", func(c *Config) {
			c.Trade.Timepoint = ""
			c.Trade.HoldingPeriodDays = 0
		}, "timepoint or holding_period_days"},
		{"zero allocation without amount", func(c *Config) { c.Trade.AllocationPct = 0 }, "trade.allocation_pct"},
		{"allocation above 100", func(c *Config) { c.Trade.AllocationPct = 150 }, "trade.allocation_pct"},
		{"fixed amount skips allocation check", func(c *Config) {
			c.Trade.AllocationPct = 0
			c.Trade.Amount = 500
		}, ""},
		{"negative amount", func(c *Config) { c.Trade.Amount = -1 }, "trade.amount"},
		{"negative threshold", func(c *Config) { c.Trade.ThresholdPct = -2 }, "trade.threshold_pct"},
		{"bad poll interval", func(c *Config) { c.Orders.PollInterval = "soon" }, "orders.poll_interval"},
		{"bad fill timeout", func(c *Config) { c.Orders.FillTimeout = "later" }, "orders.fill_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestChannel(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "1m-5%", cfg.Channel())

	cfg.Trade.ThresholdPct = 7.5
	assert.Equal(t, "1m-7.5%", cfg.Channel())

	cfg.Trade.Timepoint = ""
	cfg.Trade.HoldingPeriodDays = 10
	assert.Equal(t, "10d-7.5%", cfg.Channel())
}

func TestDurationsAndDefaults(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 5*time.Second, cfg.GetPollInterval())
	assert.Equal(t, 5*time.Minute, cfg.GetFillTimeout())

	cfg.Orders.PollInterval = "2s"
	cfg.Orders.FillTimeout = "90s"
	assert.Equal(t, 2*time.Second, cfg.GetPollInterval())
	assert.Equal(t, 90*time.Second, cfg.GetFillTimeout())
}

func TestLoadExpandsEnvAndRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	t.Setenv("TEST_ALPACA_KEY", "expanded-key")
	yaml := `
environment:
  mode: paper
  log_level: info
broker:
  api_key: ${TEST_ALPACA_KEY}
  api_secret: sec
ledger:
  provider: file
  path: ./ledger
trade:
  timepoint: 1m
  threshold_pct: 5.0
  allocation_pct: 2.0
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-key", cfg.Broker.APIKey)
	assert.True(t, cfg.IsPaperTrading())
	assert.False(t, cfg.UsesFixedBudget())

	// Unknown keys must be rejected by the strict decoder.
	require.NoError(t, os.WriteFile(path, []byte(yaml+"\nmystery: true\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
