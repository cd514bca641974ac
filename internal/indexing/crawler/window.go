package crawler

import (
	"errors"

	"github.com/vietddude/tokenwatch/internal/infra/explorer"
)

var (
	// ErrNoReferenceBlock is returned when a shrink is requested before any block was observed.
	ErrNoReferenceBlock = errors.New("no block observed to shrink window against")

	// ErrWindowStalled is returned when a shrink would not lower the upper bound.
	ErrWindowStalled = errors.New("window shrink made no progress")
)

// Window tracks the [floor, upper] block range one pagination sequence targets.
// The crawl never descends below floor.
type Window struct {
	floor    uint64
	upper    uint64
	lastSeen uint64
	observed bool
}

// NewWindow creates a window with an unbounded ceiling above floor.
func NewWindow(floor uint64) Window {
	return Window{floor: floor, upper: explorer.UnboundedEndBlock}
}

// Floor returns the caller-supplied starting block.
func (w *Window) Floor() uint64 { return w.floor }

// UpperBound returns the current ceiling block.
func (w *Window) UpperBound() uint64 { return w.upper }

// LastSeen returns the lowest block observed so far, if any.
func (w *Window) LastSeen() (uint64, bool) { return w.lastSeen, w.observed }

// Observe records the lowest block number of a fetched page.
func (w *Window) Observe(block uint64) {
	if !w.observed || block < w.lastSeen {
		w.lastSeen = block
	}
	w.observed = true
}

// Reached reports whether block is at or below the floor.
func (w *Window) Reached(block uint64) bool {
	return block <= w.floor
}

// Shrink lowers the ceiling to max(floor, lastSeen-1).
func (w *Window) Shrink() (uint64, error) {
	if !w.observed {
		return w.upper, ErrNoReferenceBlock
	}

	next := w.floor
	if w.lastSeen > 0 && w.lastSeen-1 > w.floor {
		next = w.lastSeen - 1
	}
	if next >= w.upper {
		return w.upper, ErrWindowStalled
	}

	w.upper = next
	return w.upper, nil
}
