package infra

import (
	"os"
	"path/filepath"
	"testing"
)

const validConfig = `
app:
  name: "folio"
  version: "test"
exchange:
  name: "binance"
  rest_url: "https://api.binance.com"
  ws_url: "wss://stream.binance.com:9443/stream"
  reference_market: "USDT"
  pairs:
    - "BTC/USDT"
  timeframes:
    - "1h"
logging:
  level: "debug"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Exchange.Name != "binance" {
		t.Errorf("expected exchange binance, got %s", cfg.Exchange.Name)
	}
	if cfg.Exchange.ReferenceMarket != "USDT" {
		t.Errorf("expected reference market USDT, got %s", cfg.Exchange.ReferenceMarket)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("FOLIO_API_KEY", "env-key")
	t.Setenv("FOLIO_API_SECRET", "env-secret")

	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Exchange.APIKey != "env-key" || cfg.Exchange.APISecret != "env-secret" {
		t.Errorf("environment credentials not applied: %q / %q",
			cfg.Exchange.APIKey, cfg.Exchange.APISecret)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Exchange.Name = "binance"
		cfg.Exchange.RestURL = "https://api.binance.com"
		cfg.Exchange.ReferenceMarket = "USDT"
		cfg.Exchange.Pairs = []string{"BTC/USDT"}
		cfg.Exchange.Timeframes = []string{"1h"}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing exchange name", func(c *Config) { c.Exchange.Name = "" }},
		{"bad rest url", func(c *Config) { c.Exchange.RestURL = "ftp://api" }},
		{"bad ws url", func(c *Config) { c.Exchange.WSURL = "http://stream" }},
		{"missing reference market", func(c *Config) { c.Exchange.ReferenceMarket = "" }},
		{"no pairs", func(c *Config) { c.Exchange.Pairs = nil }},
		{"malformed pair", func(c *Config) { c.Exchange.Pairs = []string{"BTCUSDT"} }},
		{"no timeframes", func(c *Config) { c.Exchange.Timeframes = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("base config should be valid: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
