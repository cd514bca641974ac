package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vietddude/tokenwatch/internal/core/domain"
)

func record(hash string, block uint64, value string, whale bool) domain.CanonicalTransfer {
	return domain.CanonicalTransfer{
		TxHash:      hash,
		BlockNumber: block,
		Value:       decimal.RequireFromString(value),
		IsWhale:     whale,
	}
}

func TestTransferStore_PersistIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewTransferStore()

	n, err := s.Persist(ctx, []domain.CanonicalTransfer{
		record("0xa", 10, "1", false),
		record("0xb", 11, "6", true),
	})
	if err != nil || n != 2 {
		t.Fatalf("first persist: n=%d err=%v", n, err)
	}

	n, err = s.Persist(ctx, []domain.CanonicalTransfer{
		record("0xa", 10, "1", false),
		record("0xc", 9, "2", false),
	})
	if err != nil {
		t.Fatalf("second persist: %v", err)
	}
	if n != 1 {
		t.Errorf("expected only the new row counted, got %d", n)
	}
	if len(s.All()) != 3 {
		t.Errorf("expected 3 rows, got %d", len(s.All()))
	}

	if n, _ := s.Persist(ctx, nil); n != 0 {
		t.Errorf("empty batch should insert nothing, got %d", n)
	}
}

func TestTransferStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := NewTransferStore()

	if _, ok, _ := s.LatestBlock(ctx); ok {
		t.Fatal("empty store should have no latest block")
	}

	_, _ = s.Persist(ctx, []domain.CanonicalTransfer{
		record("0xa", 10, "1.5", false),
		record("0xb", 12, "6", true),
		record("0xc", 8, "0.5", false),
	})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Rows != 3 || st.Whales != 1 || st.MinBlock != 8 || st.MaxBlock != 12 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if !st.TotalVolume.Equal(decimal.NewFromInt(8)) {
		t.Errorf("expected volume 8, got %s", st.TotalVolume)
	}

	latest, ok, err := s.LatestBlock(ctx)
	if err != nil || !ok || latest != 12 {
		t.Errorf("expected latest 12, got %d ok=%v err=%v", latest, ok, err)
	}
}

func TestTransferStore_FailWith(t *testing.T) {
	s := NewTransferStore()
	boom := errors.New("connection reset")
	s.FailWith(boom)

	if _, err := s.Persist(context.Background(), []domain.CanonicalTransfer{record("0xa", 1, "1", false)}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if len(s.All()) != 0 {
		t.Error("failed batch must not be applied")
	}

	s.FailWith(nil)
	if n, err := s.Persist(context.Background(), []domain.CanonicalTransfer{record("0xa", 1, "1", false)}); err != nil || n != 1 {
		t.Errorf("expected recovery, got n=%d err=%v", n, err)
	}
}
