package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file on top of Default, then applies
// environment overrides. An empty path loads defaults and environment only.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv honours the plain environment variables older deployments set.
func applyEnv(cfg *AppConfig, lookup func(string) (string, bool)) error {
	if v, ok := lookup("ETHERSCAN_KEYS"); ok && strings.TrimSpace(v) != "" {
		cfg.Explorer.Keys = splitList(v)
	}
	if v, ok := lookup("ETHERSCAN_API_URL"); ok && v != "" {
		cfg.Explorer.URL = v
	}
	if v, ok := lookup("DUST_THRESHOLD_WBTC_BTC"); ok && v != "" {
		cfg.Token.DustThreshold = v
	}
	if v, ok := lookup("WBTC_WHALE_THRESHOLD_BTC"); ok && v != "" {
		cfg.Token.WhaleThreshold = v
	}
	if v, ok := lookup("GAS_ETH_TO_USD"); ok && v != "" {
		cfg.Token.FeeFiatRate = v
	}
	if v, ok := lookup("REDIS_URL"); ok && v != "" {
		cfg.Redis.URL = v
	}

	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.Database.URL = v
	}
	if v, ok := lookup("PGHOST"); ok && v != "" {
		cfg.Database.Host = v
	}
	if v, ok := lookup("PGPORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PGPORT %q: %w", v, err)
		}
		cfg.Database.Port = port
	}
	if v, ok := lookup("PGDATABASE"); ok && v != "" {
		cfg.Database.Database = v
	}
	if v, ok := lookup("PGUSER"); ok && v != "" {
		cfg.Database.User = v
	}
	if v, ok := lookup("PGPASSWORD"); ok {
		cfg.Database.Password = v
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the settings a crawl needs.
func (c *AppConfig) Validate() error {
	var errs []error

	if len(splitList(strings.Join(c.Explorer.Keys, ","))) == 0 {
		errs = append(errs, errors.New("explorer.keys: at least one API key is required (or ETHERSCAN_KEYS)"))
	}
	if c.Explorer.URL == "" {
		errs = append(errs, errors.New("explorer.url: required"))
	}
	if c.Explorer.Contract == "" {
		errs = append(errs, errors.New("explorer.contract: required"))
	}
	if c.Explorer.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("explorer.page_size: must be positive, got %d", c.Explorer.PageSize))
	}
	if c.Explorer.WindowCap > 0 && c.Explorer.WindowCap < c.Explorer.PageSize {
		errs = append(errs, fmt.Errorf("explorer.window_cap: %d is smaller than page size %d",
			c.Explorer.WindowCap, c.Explorer.PageSize))
	}
	if c.Explorer.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("explorer.max_pages: must not be negative, got %d", c.Explorer.MaxPages))
	}
	if c.Token.Decimals < 0 || c.Token.Decimals > 77 {
		errs = append(errs, fmt.Errorf("token.decimals: out of range, got %d", c.Token.Decimals))
	}
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.batch_size: must be positive, got %d", c.Ingest.BatchSize))
	}

	for name, raw := range map[string]string{
		"token.dust_threshold":  c.Token.DustThreshold,
		"token.whale_threshold": c.Token.WhaleThreshold,
		"token.fee_fiat_rate":   c.Token.FeeFiatRate,
	} {
		if _, err := parseAmount(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// DustThreshold returns the dust threshold in token units.
func (c *AppConfig) DustThreshold() (decimal.Decimal, error) {
	return parseAmount(c.Token.DustThreshold)
}

// WhaleThreshold returns the whale threshold in token units.
func (c *AppConfig) WhaleThreshold() (decimal.Decimal, error) {
	return parseAmount(c.Token.WhaleThreshold)
}

// FeeFiatRate returns the fiat price of one native-currency unit.
func (c *AppConfig) FeeFiatRate() (decimal.Decimal, error) {
	return parseAmount(c.Token.FeeFiatRate)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q", raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("must not be negative, got %s", raw)
	}
	return d, nil
}
