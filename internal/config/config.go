// Package config loads the margind node configuration from a TOML file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/openmargin/margind/internal/core/tx"
)

// Config is the complete margind configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level" mapstructure:"log_level"`

	// CloseInterval is the wall-clock spacing of ledger closes in
	// standalone mode, in seconds.
	CloseInterval int `toml:"close_interval" mapstructure:"close_interval"`

	Database  DatabaseConfig  `toml:"database" mapstructure:"database"`
	NodeStore NodeStoreConfig `toml:"node_store" mapstructure:"node_store"`
	Feed      FeedConfig      `toml:"feed" mapstructure:"feed"`

	// Trading lists the configured margin markets.
	Trading []TradingPairConfig `toml:"trading" mapstructure:"trading"`
}

// DatabaseConfig selects the SQL backend for ledger entry persistence.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `toml:"driver" mapstructure:"driver"`
	DSN    string `toml:"dsn" mapstructure:"dsn"`
}

// NodeStoreConfig controls the per-ledger entry snapshot store.
type NodeStoreConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Path    string `toml:"path" mapstructure:"path"`
}

// FeedConfig controls the websocket event feed.
type FeedConfig struct {
	Enabled    bool   `toml:"enabled" mapstructure:"enabled"`
	ListenAddr string `toml:"listen_addr" mapstructure:"listen_addr"`
}

// CoinConfig names one asset of a trading pair.
type CoinConfig struct {
	Code   string `toml:"code" mapstructure:"code"`
	Issuer string `toml:"issuer" mapstructure:"issuer"`
}

// ReferenceFeedConfig locates the oracle data entry for a pair.
type ReferenceFeedConfig struct {
	DataName string `toml:"data_name" mapstructure:"data_name"`
	Issuer   string `toml:"issuer" mapstructure:"issuer"`
}

// TradingPairConfig is one margin market.
type TradingPairConfig struct {
	Name          string              `toml:"name" mapstructure:"name"`
	Coin1         CoinConfig          `toml:"coin1" mapstructure:"coin1"`
	Coin2         CoinConfig          `toml:"coin2" mapstructure:"coin2"`
	BaseAsset     CoinConfig          `toml:"base_asset" mapstructure:"base_asset"`
	ReferenceFeed ReferenceFeedConfig `toml:"reference_feed" mapstructure:"reference_feed"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("log_level", "info")
	v.SetDefault("close_interval", 5)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:margind.db")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.CloseInterval <= 0 {
		return fmt.Errorf("close_interval must be positive, got %d", c.CloseInterval)
	}
	for i, pair := range c.Trading {
		if pair.Name == "" {
			return fmt.Errorf("trading pair %d has no name", i)
		}
		for _, coin := range []CoinConfig{pair.Coin1, pair.Coin2, pair.BaseAsset} {
			if coin.Code == "" || coin.Issuer == "" {
				return fmt.Errorf("trading pair %s has an incomplete coin", pair.Name)
			}
		}
		if pair.ReferenceFeed.DataName == "" || pair.ReferenceFeed.Issuer == "" {
			return fmt.Errorf("trading pair %s has an incomplete reference feed", pair.Name)
		}
	}
	return nil
}

// ClosePeriod is CloseInterval as a duration.
func (c *Config) ClosePeriod() time.Duration {
	return time.Duration(c.CloseInterval) * time.Second
}

// TradingPairs converts the configured markets into the engine's form.
func (c *Config) TradingPairs() []tx.TradingPair {
	pairs := make([]tx.TradingPair, 0, len(c.Trading))
	for _, p := range c.Trading {
		pairs = append(pairs, tx.TradingPair{
			Name:      p.Name,
			Coin1:     tx.CoinConfig{Code: p.Coin1.Code, Issuer: p.Coin1.Issuer},
			Coin2:     tx.CoinConfig{Code: p.Coin2.Code, Issuer: p.Coin2.Issuer},
			BaseAsset: tx.CoinConfig{Code: p.BaseAsset.Code, Issuer: p.BaseAsset.Issuer},
			ReferenceFeed: tx.FeedConfig{
				DataName: p.ReferenceFeed.DataName,
				Issuer:   p.ReferenceFeed.Issuer,
			},
		})
	}
	return pairs
}
