package crawler

import (
	"context"
	"math"
	"time"
)

// PacingPolicy returns the wait before the next explorer call. attempt is the
// number of consecutive transient failures on the current page (0 otherwise).
type PacingPolicy func(attempt int) time.Duration

// FixedPacing waits the same delay before every call.
func FixedPacing(delay time.Duration) PacingPolicy {
	return func(int) time.Duration { return delay }
}

// ExponentialPacing waits base between normal calls and base * 2^attempt after
// transient failures, capped at maxDelay.
// 500ms, 1s, 2s, 4s, ... (max maxDelay)
func ExponentialPacing(base, maxDelay time.Duration) PacingPolicy {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return base
		}
		delay := float64(base) * math.Pow(2, float64(attempt))
		if maxDelay > 0 && delay > float64(maxDelay) {
			return maxDelay
		}
		return time.Duration(delay)
	}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
