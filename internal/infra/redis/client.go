package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/tokenwatch/internal/core/domain"
)

// releaseLua deletes the lock only when it still holds the caller's token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// refreshLua extends the lock TTL only when it still holds the caller's token.
const refreshLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// Client wraps Redis operations used to coordinate crawls.
type Client struct {
	rdb       *redis.Client
	releaseSc *redis.Script
	refreshSc *redis.Script
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// NewClient creates a new Redis client and pings it.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{
		rdb:       rdb,
		releaseSc: redis.NewScript(releaseLua),
		refreshSc: redis.NewScript(refreshLua),
	}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func lockKey(contract string) string {
	return fmt.Sprintf("tokenwatch:crawl_lock:%s", strings.ToLower(contract))
}

func lastRunKey(contract string) string {
	return fmt.Sprintf("tokenwatch:last_run:%s", strings.ToLower(contract))
}

// Lock is a held crawl lock.
type Lock struct {
	c     *Client
	key   string
	token string
}

// AcquireLock takes the crawl lock for contract. It returns
// domain.ErrCrawlLocked when another crawl holds it.
func (c *Client) AcquireLock(ctx context.Context, contract string, ttl time.Duration) (*Lock, error) {
	key := lockKey(contract)
	token := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return nil, domain.ErrCrawlLocked
	}
	return &Lock{c: c, key: key, token: token}, nil
}

// Refresh extends the lock TTL. It fails with domain.ErrCrawlLocked if the
// lock expired and was taken by someone else.
func (l *Lock) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := l.c.refreshSc.Run(ctx, l.c.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock: %w", err)
	}
	if n == 0 {
		return domain.ErrCrawlLocked
	}
	return nil
}

// Release drops the lock if it is still ours. Safe to call more than once.
func (l *Lock) Release(ctx context.Context) error {
	if err := l.c.releaseSc.Run(ctx, l.c.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// KeepAlive refreshes the lock every ttl/3 until ctx is done or stop is
// called. stop returns once the refresh loop has exited, so a Release after
// it never races a refresh.
func (l *Lock) KeepAlive(ctx context.Context, ttl time.Duration, onLost func(error)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	interval := max(ttl/3, time.Millisecond)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Refresh(ctx, ttl); err != nil {
					if ctx.Err() == nil && onLost != nil {
						onLost(err)
					}
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// RunSummary is the outcome of the last finished crawl of a contract.
type RunSummary struct {
	RunID       string
	FinishedAt  time.Time
	LowestBlock uint64
	Inserted    int
	StopReason  string
}

// RecordRun stores the summary of a finished crawl.
func (c *Client) RecordRun(ctx context.Context, contract string, s RunSummary) error {
	err := c.rdb.HSet(ctx, lastRunKey(contract), map[string]any{
		"run_id":       s.RunID,
		"finished_at":  s.FinishedAt.UTC().Format(time.RFC3339),
		"lowest_block": strconv.FormatUint(s.LowestBlock, 10),
		"inserted":     strconv.Itoa(s.Inserted),
		"stop_reason":  s.StopReason,
	}).Err()
	if err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

// LastRun returns the summary of the last recorded crawl, false if none.
func (c *Client) LastRun(ctx context.Context, contract string) (RunSummary, bool, error) {
	vals, err := c.rdb.HGetAll(ctx, lastRunKey(contract)).Result()
	if err != nil {
		return RunSummary{}, false, fmt.Errorf("hgetall failed: %w", err)
	}
	if len(vals) == 0 {
		return RunSummary{}, false, nil
	}

	s := RunSummary{RunID: vals["run_id"], StopReason: vals["stop_reason"]}
	if s.FinishedAt, err = time.Parse(time.RFC3339, vals["finished_at"]); err != nil {
		return RunSummary{}, false, fmt.Errorf("invalid finished_at: %w", err)
	}
	if s.LowestBlock, err = strconv.ParseUint(vals["lowest_block"], 10, 64); err != nil {
		return RunSummary{}, false, fmt.Errorf("invalid lowest_block: %w", err)
	}
	if s.Inserted, err = strconv.Atoi(vals["inserted"]); err != nil {
		return RunSummary{}, false, fmt.Errorf("invalid inserted: %w", err)
	}
	return s, true, nil
}
