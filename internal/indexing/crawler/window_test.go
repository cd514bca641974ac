package crawler

import (
	"errors"
	"testing"

	"github.com/vietddude/tokenwatch/internal/infra/explorer"
)

func TestWindow_Shrink(t *testing.T) {
	w := NewWindow(0)
	if w.UpperBound() != explorer.UnboundedEndBlock {
		t.Fatalf("expected unbounded upper, got %d", w.UpperBound())
	}

	if _, err := w.Shrink(); !errors.Is(err, ErrNoReferenceBlock) {
		t.Fatalf("expected ErrNoReferenceBlock, got %v", err)
	}

	w.Observe(105)
	w.Observe(104)
	w.Observe(110)
	if last, ok := w.LastSeen(); !ok || last != 104 {
		t.Fatalf("expected last seen 104, got %d", last)
	}

	upper, err := w.Shrink()
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if upper != 103 || w.UpperBound() != 103 {
		t.Errorf("expected upper 103, got %d", upper)
	}

	if _, err := w.Shrink(); !errors.Is(err, ErrWindowStalled) {
		t.Errorf("second shrink without new observation should stall, got %v", err)
	}
}

func TestWindow_ShrinkClampsToFloor(t *testing.T) {
	tests := []struct {
		name     string
		floor    uint64
		observed uint64
		want     uint64
	}{
		{"above floor", 100, 150, 149},
		{"one above floor", 100, 101, 100},
		{"at floor", 100, 100, 100},
		{"zero block", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(tt.floor)
			w.Observe(tt.observed)
			got, err := w.Shrink()
			if err != nil {
				t.Fatalf("Shrink: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestWindow_Reached(t *testing.T) {
	w := NewWindow(50)
	if w.Reached(51) {
		t.Error("51 is above floor 50")
	}
	if !w.Reached(50) || !w.Reached(49) {
		t.Error("blocks at or below floor should be reached")
	}
}
