// Package ingest drives a crawl to completion, normalizing each raw transfer
// and flushing canonical rows to storage in fixed-size batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/tokenwatch/internal/core/domain"
	"github.com/vietddude/tokenwatch/internal/indexing/crawler"
	"github.com/vietddude/tokenwatch/internal/indexing/metrics"
	"github.com/vietddude/tokenwatch/internal/indexing/normalize"
	"github.com/vietddude/tokenwatch/internal/infra/storage"
)

// Source is a forward-only sequence of raw transfers. *crawler.Stream implements it.
type Source interface {
	Next(ctx context.Context) bool
	Transfer() domain.RawTransfer
	Err() error
}

// Config controls batching and flush retries.
type Config struct {
	BatchSize      int
	PersistRetries int // extra attempts after the first failed flush
	RetryPacing    crawler.PacingPolicy
	Sleep          crawler.Sleeper
	Logger         *slog.Logger
	OnFlush        func(records, inserted int)
}

// DefaultConfig returns batch size 5000 with 3 flush retries.
func DefaultConfig() Config {
	return Config{
		BatchSize:      5000,
		PersistRetries: 3,
		RetryPacing:    crawler.ExponentialPacing(time.Second, 30*time.Second),
		Sleep:          crawler.SleepContext,
	}
}

// Result counts what happened to every record pulled from the source.
type Result struct {
	Fetched     int
	Malformed   int
	NonPositive int
	Normalized  int
	Inserted    int
	Batches     int
}

// Runner wires a Source, a Normalizer and a TransferRepository.
type Runner struct {
	cfg        Config
	normalizer *normalize.Normalizer
	repo       storage.TransferRepository
	log        *slog.Logger
}

// NewRunner creates a Runner, filling unset config fields with defaults.
func NewRunner(cfg Config, normalizer *normalize.Normalizer, repo storage.TransferRepository) *Runner {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PersistRetries < 0 {
		cfg.PersistRetries = 0
	}
	if cfg.RetryPacing == nil {
		cfg.RetryPacing = def.RetryPacing
	}
	if cfg.Sleep == nil {
		cfg.Sleep = def.Sleep
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Runner{cfg: cfg, normalizer: normalizer, repo: repo, log: log}
}

// Run consumes src until it ends. Buffered rows are flushed once more when
// the source stops, including when it stops on an error. The source error, if
// any, is returned after that final flush.
func (r *Runner) Run(ctx context.Context, src Source) (Result, error) {
	var (
		res   Result
		batch = make([]domain.CanonicalTransfer, 0, r.cfg.BatchSize)
	)

	for src.Next(ctx) {
		res.Fetched++
		raw := src.Transfer()

		rec, err := r.normalizer.Normalize(raw)
		if err != nil {
			res.Malformed++
			metrics.TransfersDropped.WithLabelValues("malformed").Inc()
			r.log.Warn("Dropping malformed transfer", "hash", raw.Hash, "error", err)
			continue
		}
		if !rec.Value.IsPositive() {
			res.NonPositive++
			metrics.TransfersDropped.WithLabelValues("non_positive").Inc()
			continue
		}

		res.Normalized++
		batch = append(batch, rec)
		if len(batch) < r.cfg.BatchSize {
			continue
		}

		if err := r.flush(ctx, batch, &res); err != nil {
			return res, err
		}
		batch = batch[:0]
	}

	// The final flush must run even when ctx ended the crawl.
	if err := r.flush(context.WithoutCancel(ctx), batch, &res); err != nil {
		return res, errors.Join(err, src.Err())
	}
	return res, src.Err()
}

func (r *Runner) flush(ctx context.Context, batch []domain.CanonicalTransfer, res *Result) error {
	if len(batch) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.PersistRetries; attempt++ {
		if attempt > 0 {
			if err := r.cfg.Sleep(ctx, r.cfg.RetryPacing(attempt)); err != nil {
				return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
			}
		}

		n, err := r.repo.Persist(ctx, batch)
		if err == nil {
			res.Inserted += n
			res.Batches++
			if r.cfg.OnFlush != nil {
				r.cfg.OnFlush(len(batch), n)
			}
			r.log.Info("Flushed batch",
				"records", len(batch),
				"inserted", n,
				"skipped", len(batch)-n,
			)
			return nil
		}

		lastErr = err
		r.log.Warn("Batch flush failed",
			"records", len(batch),
			"attempt", attempt+1,
			"error", err,
		)
	}

	if errors.Is(lastErr, domain.ErrPersistenceFailure) {
		return lastErr
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, lastErr)
}
