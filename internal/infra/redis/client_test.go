package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/tokenwatch/internal/core/domain"
)

func setupClient(t *testing.T) *Client {
	t.Helper()

	url := os.Getenv("TOKENWATCH_TEST_REDIS")
	if url == "" {
		t.Skip("TOKENWATCH_TEST_REDIS not set, skipping redis test")
	}
	c, err := NewClient(Config{URL: url})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLock_Exclusive(t *testing.T) {
	c := setupClient(t)
	ctx := context.Background()
	contract := "0x" + uuid.NewString()

	lock, err := c.AcquireLock(ctx, contract, time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	if _, err := c.AcquireLock(ctx, contract, time.Minute); !errors.Is(err, domain.ErrCrawlLocked) {
		t.Fatalf("expected ErrCrawlLocked, got %v", err)
	}

	if err := lock.Refresh(ctx, time.Minute); err != nil {
		t.Errorf("Refresh: %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}
	if err := lock.Refresh(ctx, time.Minute); !errors.Is(err, domain.ErrCrawlLocked) {
		t.Errorf("refreshing a released lock should fail, got %v", err)
	}

	again, err := c.AcquireLock(ctx, contract, time.Minute)
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	_ = again.Release(ctx)
}

func TestLock_StopKeepAliveBeforeRelease(t *testing.T) {
	c := setupClient(t)
	ctx := context.Background()
	contract := "0x" + uuid.NewString()

	lock, err := c.AcquireLock(ctx, contract, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	lost := make(chan error, 1)
	stop := lock.KeepAlive(ctx, 30*time.Millisecond, func(err error) { lost <- err })
	time.Sleep(50 * time.Millisecond)

	stop()
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	select {
	case err := <-lost:
		t.Fatalf("lock reported lost after an orderly release: %v", err)
	default:
	}
}

func TestLock_ReleaseDoesNotStealForeignLock(t *testing.T) {
	c := setupClient(t)
	ctx := context.Background()
	contract := "0x" + uuid.NewString()

	stale := &Lock{c: c, key: lockKey(contract), token: "someone-else"}
	lock, err := c.AcquireLock(ctx, contract, time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release(ctx)

	_ = stale.Release(ctx)
	if _, err := c.AcquireLock(ctx, contract, time.Minute); !errors.Is(err, domain.ErrCrawlLocked) {
		t.Errorf("foreign release must not drop the lock, got %v", err)
	}
}

func TestLastRun(t *testing.T) {
	c := setupClient(t)
	ctx := context.Background()
	contract := "0x" + uuid.NewString()
	defer c.rdb.Del(ctx, lastRunKey(contract))

	if _, ok, err := c.LastRun(ctx, contract); err != nil || ok {
		t.Fatalf("expected no run, got ok=%v err=%v", ok, err)
	}

	want := RunSummary{
		RunID:       uuid.NewString(),
		FinishedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		LowestBlock: 19_000_000,
		Inserted:    42,
		StopReason:  "empty_page",
	}
	if err := c.RecordRun(ctx, contract, want); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	got, ok, err := c.LastRun(ctx, contract)
	if err != nil || !ok {
		t.Fatalf("LastRun: ok=%v err=%v", ok, err)
	}
	if !got.FinishedAt.Equal(want.FinishedAt) {
		t.Errorf("finished_at: expected %v, got %v", want.FinishedAt, got.FinishedAt)
	}
	got.FinishedAt = want.FinishedAt
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestKeys(t *testing.T) {
	if got := lockKey("0xABC"); got != "tokenwatch:crawl_lock:0xabc" {
		t.Errorf("lockKey = %s", got)
	}
	if got := lastRunKey("0xABC"); got != "tokenwatch:last_run:0xabc" {
		t.Errorf("lastRunKey = %s", got)
	}
}
