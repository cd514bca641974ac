// Package explorer implements the page fetcher for an Etherscan-compatible
// block-explorer API.
//
// This package contains:
//   - Fetcher interface: one bounded call per page, no retries, no state
//   - Client: the HTTP implementation for action=tokentx
//   - Outcome classification: data, rate-limited, window-too-large, transient
package explorer

import (
	"context"

	"github.com/vietddude/tokenwatch/internal/core/domain"
)

// UnboundedEndBlock is sent as endblock while the crawl window has no ceiling yet.
const UnboundedEndBlock uint64 = 9_999_999_999

// OutcomeKind classifies the result of a single page request.
type OutcomeKind int

const (
	OutcomeData           OutcomeKind = iota // Zero or more records, descending block order
	OutcomeRateLimited                       // Credential depleted or invalid, rotate
	OutcomeWindowTooLarge                    // Window exceeds server capacity, shrink
	OutcomeTransient                         // Network failure or 5xx, retry same page
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeData:
		return "data"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeWindowTooLarge:
		return "window_too_large"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Request describes one page of the tokentx listing.
type Request struct {
	APIKey     string
	Page       int
	PageSize   int
	StartBlock uint64
	EndBlock   uint64
}

// Outcome is the classified result of a page request.
type Outcome struct {
	Kind       OutcomeKind
	Transfers  []domain.RawTransfer
	Malformed  int // Records on the page that could not be decoded
	Message    string
	StatusCode int
	Err        error
}

// Fetcher performs exactly one network call per Fetch and never mutates crawl state.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) Outcome
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req Request) Outcome

// Fetch calls f(ctx, req).
func (f FetcherFunc) Fetch(ctx context.Context, req Request) Outcome {
	return f(ctx, req)
}
