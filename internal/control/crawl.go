// Package control wires configuration, storage, coordination and the crawl
// pipeline into a single run.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/tokenwatch/internal/core/config"
	"github.com/vietddude/tokenwatch/internal/indexing/crawler"
	"github.com/vietddude/tokenwatch/internal/indexing/health"
	"github.com/vietddude/tokenwatch/internal/indexing/ingest"
	"github.com/vietddude/tokenwatch/internal/indexing/normalize"
	"github.com/vietddude/tokenwatch/internal/infra/explorer"
	redisclient "github.com/vietddude/tokenwatch/internal/infra/redis"
	"github.com/vietddude/tokenwatch/internal/infra/storage"
	"github.com/vietddude/tokenwatch/internal/infra/storage/postgres"
)

// Options are the per-invocation crawl settings.
type Options struct {
	StartBlock  uint64
	MaxPages    int // overrides config when > 0
	NoLimit     bool
	PageSize    int // overrides config when > 0
	Save        bool
	SinceLatest bool
	MetricsAddr string
	Out         io.Writer // print mode destination
}

// Report summarises one crawl run.
type Report struct {
	RunID      string
	StartBlock uint64
	Crawl      crawler.Stats
	Ingest     ingest.Result
	Printed    int
}

// Crawl runs one crawl. Dependencies not injected through options are built
// from config on Run.
type Crawl struct {
	cfg     *config.AppConfig
	fetcher explorer.Fetcher
	repo    storage.TransferRepository
	sleep   crawler.Sleeper
	log     *slog.Logger
}

// Option customises a Crawl.
type Option func(*Crawl)

// WithFetcher replaces the HTTP explorer client.
func WithFetcher(f explorer.Fetcher) Option {
	return func(c *Crawl) { c.fetcher = f }
}

// WithRepository replaces the Postgres repository.
func WithRepository(r storage.TransferRepository) Option {
	return func(c *Crawl) { c.repo = r }
}

// WithSleeper replaces the pacing sleeper.
func WithSleeper(s crawler.Sleeper) Option {
	return func(c *Crawl) { c.sleep = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawl) { c.log = l }
}

// NewCrawl creates a Crawl for cfg.
func NewCrawl(cfg *config.AppConfig, opts ...Option) *Crawl {
	c := &Crawl{cfg: cfg, sleep: crawler.SleepContext, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the crawl described by opts.
func (c *Crawl) Run(ctx context.Context, opts Options) (report Report, err error) {
	cfg := *c.cfg
	if opts.PageSize > 0 {
		cfg.Explorer.PageSize = opts.PageSize
	}
	if err := cfg.Validate(); err != nil {
		return report, fmt.Errorf("invalid config: %w", err)
	}

	report.RunID = uuid.NewString()
	log := c.log.With("run_id", report.RunID)

	dust, _ := cfg.DustThreshold()
	whale, _ := cfg.WhaleThreshold()
	rate, _ := cfg.FeeFiatRate()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Storage
	repo := c.repo
	var db *postgres.DB
	if repo == nil && (opts.Save || opts.SinceLatest) {
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return report, fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return report, err
		}
		db.StartMetricsCollector(ctx)
		repo = postgres.NewTransferRepo(db)
		log.Info("Using PostgreSQL storage")
	}

	// 2. Crawl lock
	var redis *redisclient.Client
	if cfg.Redis.URL != "" {
		redis, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return report, err
		}
		defer redis.Close()

		ttl := cfg.Redis.LockTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		lock, err := redis.AcquireLock(ctx, cfg.Explorer.Contract, ttl)
		if err != nil {
			return report, err
		}
		stopKeepAlive := lock.KeepAlive(ctx, ttl, func(err error) {
			log.Error("Lost crawl lock, stopping", "error", err)
			cancel()
		})
		defer func() {
			stopKeepAlive()
			releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer releaseCancel()
			if err := lock.Release(releaseCtx); err != nil {
				log.Warn("Failed to release crawl lock", "error", err)
			}
		}()
	}

	// 3. Start block, read under the crawl lock
	startBlock := opts.StartBlock
	if opts.SinceLatest {
		latest, ok, err := repo.LatestBlock(ctx)
		if err != nil {
			return report, err
		}
		if ok {
			startBlock = latest
			log.Info("Resuming from latest stored block", "block", latest)
		}
	}
	report.StartBlock = startBlock

	// 4. Health and metrics
	var dbPinger health.Pinger
	if db != nil {
		dbPinger = db
	}
	monitor := health.NewMonitor(report.RunID, dbPinger, 5*time.Minute)
	if opts.MetricsAddr != "" {
		srv := health.NewServer(monitor, opts.MetricsAddr)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Stop(shutdownCtx)
		}()
		log.Info("Metrics server listening", "addr", opts.MetricsAddr)
	}

	// 5. Crawler
	fetcher := c.fetcher
	if fetcher == nil {
		client := explorer.NewClient(explorer.Config{
			URL:      cfg.Explorer.URL,
			ChainID:  cfg.Explorer.ChainID,
			Contract: cfg.Explorer.Contract,
			Timeout:  cfg.Explorer.Timeout,
		})
		defer client.Close()
		fetcher = client
	}

	crawlCfg := crawler.Config{
		PageSize:            cfg.Explorer.PageSize,
		MaxPages:            cfg.Explorer.MaxPages,
		MaxResultsPerWindow: cfg.Explorer.WindowCap,
		DustThreshold:       crawler.DustThresholdUnits(dust, cfg.Token.Decimals),
		MaxTransientRetries: cfg.Explorer.MaxTransientRetries,
		Pacing:              crawler.ExponentialPacing(cfg.Explorer.RequestDelay, cfg.Explorer.MaxBackoff),
		Sleep:               c.sleep,
		Logger:              log,
		OnTransition:        monitor.OnTransition,
	}
	if opts.MaxPages > 0 {
		crawlCfg.MaxPages = opts.MaxPages
	}
	if opts.NoLimit {
		crawlCfg.MaxPages = 0
	}

	cr, err := crawler.New(crawlCfg, cfg.Explorer.Keys, fetcher)
	if err != nil {
		return report, err
	}
	stream := cr.Stream(startBlock)

	log.Info("Starting crawl",
		"contract", cfg.Explorer.Contract,
		"start_block", startBlock,
		"page_size", crawlCfg.PageSize,
		"max_pages", crawlCfg.MaxPages,
		"keys", len(cfg.Explorer.Keys),
		"save", opts.Save,
	)

	// 6. Drive
	if opts.Save {
		runner := ingest.NewRunner(ingest.Config{
			BatchSize:      cfg.Ingest.BatchSize,
			PersistRetries: cfg.Ingest.PersistRetries,
			Logger:         log,
			OnFlush: func(records, inserted int) {
				monitor.RecordProgress(records)
			},
		}, normalize.New(normalize.Config{
			WhaleThreshold:     whale,
			FeeFiatRate:        rate,
			DefaultDecimals:    cfg.Token.Decimals,
			DefaultTokenName:   cfg.Token.Name,
			DefaultTokenSymbol: cfg.Token.Symbol,
		}), repo)
		report.Ingest, err = runner.Run(ctx, stream)
	} else {
		report.Printed, err = printStream(ctx, stream, opts.Out, monitor)
	}

	report.Crawl = stream.Stats()
	monitor.Finish(report.Crawl.Reason, err)

	log.Info("Crawl finished",
		"stop_reason", report.Crawl.Reason,
		"requests", report.Crawl.Requests,
		"yielded", report.Crawl.Yielded,
		"dust", report.Crawl.Dust,
		"malformed", report.Crawl.Malformed,
		"rotations", report.Crawl.Rotations,
		"window_shifts", report.Crawl.WindowShifts,
		"lowest_block", report.Crawl.LowestBlock,
		"inserted", report.Ingest.Inserted,
		"printed", report.Printed,
	)

	if redis != nil && err == nil {
		summary := redisclient.RunSummary{
			RunID:       report.RunID,
			FinishedAt:  time.Now(),
			LowestBlock: report.Crawl.LowestBlock,
			Inserted:    report.Ingest.Inserted,
			StopReason:  string(report.Crawl.Reason),
		}
		if rerr := redis.RecordRun(ctx, cfg.Explorer.Contract, summary); rerr != nil {
			log.Warn("Failed to record run summary", "error", rerr)
		}
	}

	return report, err
}

func printStream(ctx context.Context, stream *crawler.Stream, out io.Writer, monitor *health.Monitor) (int, error) {
	if out == nil {
		out = io.Discard
	}
	enc := json.NewEncoder(out)

	printed := 0
	for stream.Next(ctx) {
		if err := enc.Encode(stream.Transfer()); err != nil {
			return printed, fmt.Errorf("failed to write transfer: %w", err)
		}
		printed++
		monitor.RecordProgress(1)
	}
	return printed, stream.Err()
}
