package config

import (
	"time"

	redisclient "github.com/vietddude/tokenwatch/internal/infra/redis"
	"github.com/vietddude/tokenwatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Explorer ExplorerConfig     `yaml:"explorer"`
	Token    TokenConfig        `yaml:"token"`
	Ingest   IngestConfig       `yaml:"ingest"`
	Server   ServerConfig       `yaml:"server"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ExplorerConfig holds the block-explorer API settings.
type ExplorerConfig struct {
	URL                 string        `yaml:"url"`
	ChainID             int64         `yaml:"chain_id"`
	Contract            string        `yaml:"contract"`
	Keys                []string      `yaml:"keys"`
	Timeout             time.Duration `yaml:"timeout"`
	RequestDelay        time.Duration `yaml:"request_delay"`
	MaxBackoff          time.Duration `yaml:"max_backoff"`
	MaxTransientRetries int           `yaml:"max_transient_retries"`
	PageSize            int           `yaml:"page_size"`
	MaxPages            int           `yaml:"max_pages"`  // 0 = unlimited
	WindowCap           int           `yaml:"window_cap"` // max page*offset per window
}

// TokenConfig holds token metadata and thresholds. Amounts are decimal
// strings in the token's natural unit.
type TokenConfig struct {
	Name           string `yaml:"name"`
	Symbol         string `yaml:"symbol"`
	Decimals       int32  `yaml:"decimals"`
	DustThreshold  string `yaml:"dust_threshold"`
	WhaleThreshold string `yaml:"whale_threshold"`
	FeeFiatRate    string `yaml:"fee_fiat_rate"`
}

// IngestConfig holds batching settings for save mode.
type IngestConfig struct {
	BatchSize      int `yaml:"batch_size"`
	PersistRetries int `yaml:"persist_retries"`
}

// ServerConfig holds the metrics/health HTTP server settings.
type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr"` // empty disables the server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the WBTC-on-Ethereum defaults.
func Default() AppConfig {
	return AppConfig{
		Explorer: ExplorerConfig{
			URL:                 "https://api.etherscan.io/v2/api",
			ChainID:             1,
			Contract:            "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599",
			Timeout:             20 * time.Second,
			RequestDelay:        500 * time.Millisecond,
			MaxBackoff:          30 * time.Second,
			MaxTransientRetries: 5,
			PageSize:            5000,
			WindowCap:           10_000,
		},
		Token: TokenConfig{
			Name:           "Wrapped Bitcoin",
			Symbol:         "WBTC",
			Decimals:       8,
			DustThreshold:  "0.01",
			WhaleThreshold: "5",
			FeeFiatRate:    "26000",
		},
		Ingest: IngestConfig{
			BatchSize:      5000,
			PersistRetries: 3,
		},
		Redis: redisclient.Config{
			LockTTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Database: postgres.Config{
			Driver: postgres.DriverPgx,
		},
	}
}
