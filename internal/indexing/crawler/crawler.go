// Package crawler walks an explorer's paginated tokentx listing from the newest
// block down to a caller-supplied floor.
//
// The explorer caps how many results one query window may return, rate limits
// each API key, and only exposes page numbers. The crawler copes with all three:
//
//   - CredentialPool rotates through API keys, one direction only
//   - Window bounds each pagination sequence by block number and shrinks the
//     ceiling whenever the result cap is hit
//   - Stream is the state machine (paging, window shift, key rotate, done) that
//     yields dust-filtered raw transfers lazily, one page at a time
//
// # Quick Start
//
//	c, _ := crawler.New(crawler.DefaultConfig(), keys, explorer.NewClient(cfg))
//	s := c.Stream(startBlock)
//	for s.Next(ctx) {
//	    handle(s.Transfer())
//	}
//	if err := s.Err(); err != nil {
//	    // ErrPoolExhausted, ErrWindowTooLarge, ErrMaxRetriesExceeded or ctx error
//	}
package crawler

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/tokenwatch/internal/infra/explorer"
)

// Config controls pagination, filtering and pacing of a crawl.
type Config struct {
	PageSize            int
	MaxPages            int      // Request budget per crawl, 0 = unlimited
	MaxResultsPerWindow int      // Server-side cap on page*offset, 0 = no cap
	DustThreshold       *big.Int // Minimal token units, nil disables the filter
	MaxTransientRetries int      // Consecutive transient failures per page, <= 0 = unbounded

	Pacing       PacingPolicy
	Sleep        Sleeper
	Logger       *slog.Logger
	OnTransition func(Transition)
}

// DefaultConfig returns the explorer's documented limits.
func DefaultConfig() Config {
	return Config{
		PageSize:            5000,
		MaxResultsPerWindow: 10_000,
		MaxTransientRetries: 5,
		Pacing:              ExponentialPacing(500*time.Millisecond, 30*time.Second),
		Sleep:               SleepContext,
	}
}

// DustThresholdUnits converts a threshold in token units to minimal units,
// truncating any fraction below one unit.
func DustThresholdUnits(threshold decimal.Decimal, decimals int32) *big.Int {
	return threshold.Shift(decimals).BigInt()
}

// Crawler creates independent crawl streams sharing one configuration.
type Crawler struct {
	cfg     Config
	keys    []string
	fetcher explorer.Fetcher
}

// New validates the configuration and credentials.
func New(cfg Config, keys []string, fetcher explorer.Fetcher) (*Crawler, error) {
	if _, err := NewCredentialPool(keys); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", cfg.PageSize)
	}
	if cfg.MaxPages < 0 {
		return nil, fmt.Errorf("page budget must not be negative, got %d", cfg.MaxPages)
	}
	if cfg.Pacing == nil {
		cfg.Pacing = FixedPacing(0)
	}
	if cfg.Sleep == nil {
		cfg.Sleep = SleepContext
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Crawler{cfg: cfg, keys: keys, fetcher: fetcher}, nil
}

// Stream starts a fresh crawl from the explorer's newest transfer down to
// startBlock. No state is shared between streams.
func (c *Crawler) Stream(startBlock uint64) *Stream {
	pool, _ := NewCredentialPool(c.keys)
	return &Stream{
		cfg:     c.cfg,
		fetcher: c.fetcher,
		log:     c.cfg.Logger,
		pool:    pool,
		window:  NewWindow(startBlock),
		state:   StatePaging,
		page:    1,
	}
}
