package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/tokenwatch/internal/core/config"
)

var (
	cfgPath string
	isDebug bool

	appCfg *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "tokenwatch",
	Short: "ERC-20 transfer ingestion",
	Long: `tokenwatch crawls an Etherscan-compatible explorer for one token contract,
newest block first, filters dust, normalizes every transfer and stores it in Postgres.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (defaults and environment only when empty)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// setup loads .env and config, then initializes logging.
func setup(cmd *cobra.Command, args []string) error {
	// .env never overrides variables already set in the environment
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		return fmt.Errorf("failed to load config: %w", err)
	}
	appCfg = cfg

	initLogger(cfg.Logging, isDebug)
	slog.Debug("Logger initialized", "config", cfgPath)
	return nil
}

func initLogger(cfg config.LoggingConfig, debug bool) {
	level := parseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}

	if strings.EqualFold(cfg.Format, "json") {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return
	}

	stylelog.InitDefault(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
