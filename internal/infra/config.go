package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"folio_go/internal/domain"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config holds the full application configuration. Credentials may be
// overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Exchange struct {
		Name            string   `yaml:"name"`
		RestURL         string   `yaml:"rest_url"`
		WSURL           string   `yaml:"ws_url"`
		APIKey          string   `yaml:"api_key"`
		APISecret       string   `yaml:"api_secret"`
		ReferenceMarket string   `yaml:"reference_market"`
		Pairs           []string `yaml:"pairs"`
		Timeframes      []string `yaml:"timeframes"`
	} `yaml:"exchange"`

	Updater struct {
		TradesRefreshSec int `yaml:"trades_refresh_sec"`
	} `yaml:"updater"`

	Cache struct {
		MaxCandles      int `yaml:"max_candles"`
		MaxRecentTrades int `yaml:"max_recent_trades"`
	} `yaml:"cache"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
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
	if c.Exchange.Name == "" {
		return &domain.ConfigError{Field: "exchange.name", Err: errors.New("exchange name is required")}
	}
	if c.Exchange.RestURL == "" || !strings.HasPrefix(c.Exchange.RestURL, "http") {
		return &domain.ConfigError{Field: "exchange.rest_url",
			Err: fmt.Errorf("invalid URL %q", c.Exchange.RestURL)}
	}
	if c.Exchange.WSURL != "" &&
		!strings.HasPrefix(c.Exchange.WSURL, "ws://") && !strings.HasPrefix(c.Exchange.WSURL, "wss://") {
		return &domain.ConfigError{Field: "exchange.ws_url",
			Err: fmt.Errorf("invalid URL %q", c.Exchange.WSURL)}
	}
	if c.Exchange.ReferenceMarket == "" {
		return &domain.ConfigError{Field: "exchange.reference_market", Err: errors.New("reference market is required")}
	}
	if len(c.Exchange.Pairs) == 0 {
		return &domain.ConfigError{Field: "exchange.pairs", Err: errors.New("at least one traded pair is required")}
	}
	for _, pair := range c.Exchange.Pairs {
		if !strings.Contains(pair, "/") {
			return &domain.ConfigError{Field: "exchange.pairs",
				Err: fmt.Errorf("malformed pair %q, expected BASE/QUOTE", pair)}
		}
	}
	if len(c.Exchange.Timeframes) == 0 {
		return &domain.ConfigError{Field: "exchange.timeframes", Err: errors.New("at least one timeframe is required")}
	}
	return nil
}

// overrideWithEnv replaces credential values when environment variables exist.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("FOLIO_API_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if secret := os.Getenv("FOLIO_API_SECRET"); secret != "" {
		cfg.Exchange.APISecret = secret
	}
}
