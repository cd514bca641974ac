package crawler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/tokenwatch/internal/core/domain"
	"github.com/vietddude/tokenwatch/internal/infra/explorer"
)

// =============================================================================
// Scripted fetcher
// =============================================================================

type scriptedFetcher struct {
	mu       sync.Mutex
	outcomes []explorer.Outcome
	requests []explorer.Request
}

func newScriptedFetcher(outcomes ...explorer.Outcome) *scriptedFetcher {
	return &scriptedFetcher{outcomes: outcomes}
}

func (f *scriptedFetcher) Fetch(ctx context.Context, req explorer.Request) explorer.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.outcomes) == 0 {
		return explorer.Outcome{Kind: explorer.OutcomeData, Message: "No transactions found"}
	}
	out := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	return out
}

func (f *scriptedFetcher) calls() []explorer.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]explorer.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

func data(txs ...domain.RawTransfer) explorer.Outcome {
	return explorer.Outcome{Kind: explorer.OutcomeData, Transfers: txs, Message: "OK"}
}

func empty() explorer.Outcome {
	return explorer.Outcome{Kind: explorer.OutcomeData, Message: "No transactions found"}
}

func windowTooLarge() explorer.Outcome {
	return explorer.Outcome{Kind: explorer.OutcomeWindowTooLarge, Message: "Result window is too large"}
}

func rateLimited() explorer.Outcome {
	return explorer.Outcome{Kind: explorer.OutcomeRateLimited, Message: "Max rate limit reached"}
}

func transient() explorer.Outcome {
	return explorer.Outcome{Kind: explorer.OutcomeTransient, Message: "HTTP_503", StatusCode: 503}
}

func tx(block, value string) domain.RawTransfer {
	return domain.RawTransfer{Hash: "0x" + block + value, BlockNumber: block, Value: value}
}

// recordingSleeper captures requested waits without sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func testConfig(pageSize int) (Config, *recordingSleeper) {
	sleeper := &recordingSleeper{}
	cfg := DefaultConfig()
	cfg.PageSize = pageSize
	cfg.MaxResultsPerWindow = 0
	cfg.Pacing = FixedPacing(500 * time.Millisecond)
	cfg.Sleep = sleeper.Sleep
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg, sleeper
}

func drain(t interface{ Helper() }, s *Stream) []domain.RawTransfer {
	t.Helper()
	var out []domain.RawTransfer
	for s.Next(context.Background()) {
		out = append(out, s.Transfer())
	}
	return out
}
