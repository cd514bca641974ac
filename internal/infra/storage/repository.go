package storage

import (
	"context"

	"github.com/vietddude/tokenwatch/internal/core/domain"
)

// TransferRepository persists canonical transfers.
type TransferRepository interface {
	// Persist writes records in one atomic operation. Rows whose tx hash is
	// already stored are skipped. It returns how many rows were newly inserted.
	Persist(ctx context.Context, records []domain.CanonicalTransfer) (int, error)

	// Stats summarises stored transfers
	Stats(ctx context.Context) (domain.TransferStats, error)

	// LatestBlock returns the highest stored block number, false when empty
	LatestBlock(ctx context.Context) (uint64, bool, error)
}
