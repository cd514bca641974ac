// Package memory provides an in-process TransferRepository with the same
// uniqueness semantics as the Postgres store. Used for dry runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vietddude/tokenwatch/internal/core/domain"
)

type TransferStore struct {
	mu      sync.RWMutex
	rows    []domain.CanonicalTransfer
	byHash  map[string]int
	nextID  uint64
	failing error
}

func NewTransferStore() *TransferStore {
	return &TransferStore{byHash: make(map[string]int)}
}

// FailWith makes subsequent Persist calls fail with err until cleared with nil.
func (s *TransferStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = err
}

func (s *TransferStore) Persist(ctx context.Context, records []domain.CanonicalTransfer) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing != nil {
		return 0, s.failing
	}

	inserted := 0
	for _, rec := range records {
		if _, ok := s.byHash[rec.TxHash]; ok {
			continue
		}
		s.nextID++
		rec.ID = s.nextID
		s.byHash[rec.TxHash] = len(s.rows)
		s.rows = append(s.rows, rec)
		inserted++
	}
	return inserted, nil
}

func (s *TransferStore) Stats(ctx context.Context) (domain.TransferStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := domain.TransferStats{TotalVolume: decimal.Zero}
	for i, r := range s.rows {
		st.Rows++
		if r.IsWhale {
			st.Whales++
		}
		if i == 0 || r.BlockNumber < st.MinBlock {
			st.MinBlock = r.BlockNumber
		}
		if r.BlockNumber > st.MaxBlock {
			st.MaxBlock = r.BlockNumber
		}
		st.TotalVolume = st.TotalVolume.Add(r.Value)
	}
	return st, nil
}

func (s *TransferStore) LatestBlock(ctx context.Context) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rows) == 0 {
		return 0, false, nil
	}
	var latest uint64
	for _, r := range s.rows {
		latest = max(latest, r.BlockNumber)
	}
	return latest, true, nil
}

// All returns stored rows in insertion order.
func (s *TransferStore) All() []domain.CanonicalTransfer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CanonicalTransfer, len(s.rows))
	copy(out, s.rows)
	return out
}
