package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/vietddude/tokenwatch/internal/core/domain"
	"github.com/vietddude/tokenwatch/internal/indexing/metrics"
	"github.com/vietddude/tokenwatch/internal/infra/explorer"
)

// Stats summarises one crawl.
type Stats struct {
	Requests         int
	DataPages        int
	Yielded          int
	Dust             int
	Unparseable      int
	Malformed        int
	Rotations        int
	WindowShifts     int
	TransientRetries int
	CredentialIndex  int
	LowestBlock      uint64
	HasLowestBlock   bool
	EndBlock         uint64
	Reason           StopReason
}

// Stream is a lazy, forward-only sequence of dust-filtered raw transfers.
// It is driven by Next and is exhausted exactly once. A Stream is not safe
// for concurrent use.
type Stream struct {
	cfg     Config
	fetcher explorer.Fetcher
	log     *slog.Logger

	pool              *CredentialPool
	window            Window
	state             State
	page              int
	transientAttempts int

	pending     []domain.RawTransfer
	current     domain.RawTransfer
	err         error
	stats       Stats
	transitions []Transition
}

// Next advances to the next transfer, fetching pages as needed. It returns
// false once the crawl is done; check Err to tell exhaustion from failure.
func (s *Stream) Next(ctx context.Context) bool {
	for len(s.pending) == 0 {
		if s.state == StateDone {
			return false
		}
		s.step(ctx)
	}

	s.current = s.pending[0]
	s.pending = s.pending[1:]
	s.stats.Yielded++
	return true
}

// Transfer returns the record produced by the last successful Next.
func (s *Stream) Transfer() domain.RawTransfer {
	return s.current
}

// Err returns the abnormal termination cause, or nil for normal exhaustion.
func (s *Stream) Err() error {
	return s.err
}

// State returns the current state tag.
func (s *Stream) State() State {
	return s.state
}

// Stats returns a snapshot of crawl counters.
func (s *Stream) Stats() Stats {
	st := s.stats
	st.CredentialIndex = s.pool.Index()
	st.LowestBlock, st.HasLowestBlock = s.window.LastSeen()
	st.EndBlock = s.window.UpperBound()
	return st
}

// Transitions returns every state change recorded so far.
func (s *Stream) Transitions() []Transition {
	out := make([]Transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}

func (s *Stream) step(ctx context.Context) {
	switch s.state {
	case StatePaging:
		s.fetchPage(ctx)
	case StateWindowShift:
		s.shiftWindow()
	case StateKeyRotate:
		s.rotateKey()
	}
}

func (s *Stream) fetchPage(ctx context.Context) {
	if s.cfg.MaxPages > 0 && s.stats.Requests >= s.cfg.MaxPages {
		s.log.Info("Page budget reached", "max_pages", s.cfg.MaxPages)
		s.finish(StopPageBudget, nil, "page budget exhausted")
		return
	}

	if s.stats.Requests > 0 {
		if err := s.cfg.Sleep(ctx, s.cfg.Pacing(s.transientAttempts)); err != nil {
			s.finish(StopCanceled, err, "canceled while pacing")
			return
		}
	}
	if err := ctx.Err(); err != nil {
		s.finish(StopCanceled, err, "canceled before request")
		return
	}

	req := explorer.Request{
		APIKey:     s.pool.Current(),
		Page:       s.page,
		PageSize:   s.cfg.PageSize,
		StartBlock: s.window.Floor(),
		EndBlock:   s.window.UpperBound(),
	}
	s.log.Debug("Fetching page",
		"page", req.Page,
		"end_block", req.EndBlock,
		"key", MaskKey(req.APIKey),
	)

	out := s.fetcher.Fetch(ctx, req)
	s.stats.Requests++

	switch out.Kind {
	case explorer.OutcomeData:
		s.transientAttempts = 0
		s.handleData(out)

	case explorer.OutcomeWindowTooLarge:
		s.transientAttempts = 0
		if _, ok := s.window.LastSeen(); !ok {
			s.log.Warn("Window too large before any block was observed", "message", out.Message)
			s.finish(StopWindowUnshrinkable,
				fmt.Errorf("%w: %w", domain.ErrWindowTooLarge, ErrNoReferenceBlock),
				"window too large without reference block")
			return
		}
		s.transition(StateWindowShift, "explorer rejected window: "+out.Message)

	case explorer.OutcomeRateLimited:
		s.transientAttempts = 0
		s.log.Warn("Explorer rejected credential",
			"key", MaskKey(req.APIKey),
			"message", out.Message,
		)
		s.transition(StateKeyRotate, "credential rejected: "+out.Message)

	case explorer.OutcomeTransient:
		s.transientAttempts++
		s.stats.TransientRetries++
		if s.cfg.MaxTransientRetries > 0 && s.transientAttempts > s.cfg.MaxTransientRetries {
			s.finish(StopRetriesExceeded,
				fmt.Errorf("%w: page %d after %d attempts: %s",
					domain.ErrMaxRetriesExceeded, s.page, s.transientAttempts, out.Message),
				"transient retries exhausted")
			return
		}
		s.log.Warn("Transient explorer error, retrying page",
			"page", s.page,
			"attempt", s.transientAttempts,
			"message", out.Message,
			"error", out.Err,
		)
	}
}

func (s *Stream) handleData(out explorer.Outcome) {
	txs := out.Transfers
	pageLen := len(txs) + out.Malformed
	if pageLen == 0 {
		s.log.Info("No more transfers", "message", out.Message)
		s.finish(StopEmptyPage, nil, "empty page")
		return
	}
	s.stats.DataPages++
	if out.Malformed > 0 {
		s.stats.Malformed += out.Malformed
		metrics.TransfersDropped.WithLabelValues("malformed").Add(float64(out.Malformed))
		s.log.Warn("Dropped undecodable transfers", "page", s.page, "count", out.Malformed)
	}

	lowest, ok := lowestBlock(txs)
	if ok {
		s.window.Observe(lowest)
		metrics.CrawlLowestBlock.Set(float64(lowest))
	}

	for _, tx := range txs {
		if s.keep(tx) {
			s.pending = append(s.pending, tx)
		}
	}

	if pageLen < s.cfg.PageSize || (ok && s.window.Reached(lowest)) {
		s.log.Info("Reached end of range", "lowest_block", lowest, "floor", s.window.Floor())
		s.finish(StopRangeExhausted, nil, "range exhausted")
		return
	}

	if s.exceedsWindow(s.page + 1) {
		s.transition(StateWindowShift, "window result cap reached")
		return
	}
	s.page++
}

func (s *Stream) shiftWindow() {
	upper, err := s.window.Shrink()
	if err != nil {
		s.log.Warn("Cannot shrink window", "upper_bound", upper, "error", err)
		s.finish(StopWindowUnshrinkable, fmt.Errorf("%w: %w", domain.ErrWindowTooLarge, err), "window cannot shrink")
		return
	}

	s.page = 1
	s.stats.WindowShifts++
	metrics.WindowShifts.Inc()
	s.log.Info("Shifted window", "end_block", upper)
	s.transition(StatePaging, fmt.Sprintf("end block lowered to %d", upper))
}

func (s *Stream) rotateKey() {
	if err := s.pool.Advance(); err != nil {
		s.log.Error("All API credentials exhausted", "keys", s.pool.Len())
		s.finish(StopPoolExhausted, err, "no credentials left")
		return
	}

	s.stats.Rotations++
	metrics.CredentialRotations.Inc()
	s.log.Info("Switched API credential", "key", MaskKey(s.pool.Current()), "index", s.pool.Index())
	s.transition(StatePaging, "rotated credential")
}

// keep applies the dust filter in minimal token units.
func (s *Stream) keep(tx domain.RawTransfer) bool {
	if s.cfg.DustThreshold == nil {
		return true
	}

	value, ok := new(big.Int).SetString(strings.TrimSpace(tx.Value), 10)
	if !ok {
		s.stats.Unparseable++
		metrics.TransfersDropped.WithLabelValues("unparseable_value").Inc()
		return false
	}
	if value.Cmp(s.cfg.DustThreshold) < 0 {
		s.stats.Dust++
		metrics.TransfersDropped.WithLabelValues("dust").Inc()
		return false
	}
	return true
}

func (s *Stream) exceedsWindow(nextPage int) bool {
	limit := s.cfg.MaxResultsPerWindow
	if limit <= 0 {
		return false
	}
	maxPages := max(1, limit/s.cfg.PageSize)
	return nextPage*s.cfg.PageSize > limit || nextPage > maxPages
}

func (s *Stream) transition(to State, reason string) {
	t := NewTransition(s.state, to, reason)
	if !t.IsValid() {
		s.log.Error("Invalid crawl transition", "from", t.From, "to", t.To, "reason", reason)
	}
	s.state = to
	s.transitions = append(s.transitions, t)
	if s.cfg.OnTransition != nil {
		s.cfg.OnTransition(t)
	}
}

func (s *Stream) finish(reason StopReason, err error, detail string) {
	s.stats.Reason = reason
	s.err = err
	s.transition(StateDone, detail)
}

// lowestBlock returns the smallest parseable block number in a page.
func lowestBlock(txs []domain.RawTransfer) (uint64, bool) {
	var (
		lowest uint64
		found  bool
	)
	for _, tx := range txs {
		n, err := strconv.ParseUint(strings.TrimSpace(tx.BlockNumber), 10, 64)
		if err != nil {
			continue
		}
		if !found || n < lowest {
			lowest, found = n, true
		}
	}
	return lowest, found
}
