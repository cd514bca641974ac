package domain

import "errors"

var (
	// ErrNoCredentials is returned when a crawl is configured without API keys.
	ErrNoCredentials = errors.New("no explorer credentials configured")

	// ErrPoolExhausted means every credential was rejected during one crawl.
	ErrPoolExhausted = errors.New("credential pool exhausted")

	// ErrWindowTooLarge means the explorer rejected a window that could not be shrunk.
	ErrWindowTooLarge = errors.New("result window too large and cannot be shrunk")

	// ErrMaxRetriesExceeded means a page kept failing with transient errors.
	ErrMaxRetriesExceeded = errors.New("max transient retries exceeded")

	// ErrMalformedRecord marks a raw record that cannot be normalized. Drop it, never retry.
	ErrMalformedRecord = errors.New("malformed transfer record")

	// ErrPersistenceFailure wraps a storage error that aborted a whole batch.
	ErrPersistenceFailure = errors.New("batch persistence failed")

	// ErrCrawlLocked is returned when another crawl holds the contract lock.
	ErrCrawlLocked = errors.New("crawl already running for contract")
)
