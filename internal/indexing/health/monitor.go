package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/tokenwatch/internal/indexing/crawler"
)

// Pinger checks a dependency, typically the database.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor tracks crawl progress reported by the crawl loop.
type Monitor struct {
	runID      string
	db         Pinger
	stallAfter time.Duration
	now        func() time.Time

	mu           sync.Mutex
	state        crawler.State
	stopReason   crawler.StopReason
	records      int
	lastProgress time.Time
	err          error
}

// NewMonitor creates a monitor. db may be nil in print mode.
func NewMonitor(runID string, db Pinger, stallAfter time.Duration) *Monitor {
	return &Monitor{
		runID:        runID,
		db:           db,
		stallAfter:   stallAfter,
		now:          time.Now,
		state:        crawler.StatePaging,
		lastProgress: time.Now(),
	}
}

// OnTransition records a crawl state change. Pass it as crawler.Config.OnTransition.
func (m *Monitor) OnTransition(t crawler.Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = t.To
	m.lastProgress = m.now()
}

// RecordProgress counts n more records handled by the crawl loop.
func (m *Monitor) RecordProgress(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records += n
	m.lastProgress = m.now()
}

// Finish records how the crawl ended.
func (m *Monitor) Finish(reason crawler.StopReason, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = crawler.StateDone
	m.stopReason = reason
	m.err = err
	m.lastProgress = m.now()
}

// CheckHealth evaluates the crawl and its dependencies.
func (m *Monitor) CheckHealth(ctx context.Context) CrawlHealth {
	m.mu.Lock()
	report := CrawlHealth{
		Status:       StatusHealthy,
		RunID:        m.runID,
		State:        string(m.state),
		StopReason:   string(m.stopReason),
		Records:      m.records,
		LastProgress: m.lastProgress,
	}
	if m.err != nil {
		report.Error = m.err.Error()
	}
	stalled := m.state != crawler.StateDone && m.stallAfter > 0 && m.now().Sub(m.lastProgress) > m.stallAfter
	abnormal := m.stopReason.Abnormal() || m.err != nil
	rotating := m.state == crawler.StateKeyRotate
	m.mu.Unlock()

	dbDown := false
	if m.db != nil {
		report.Database = "ok"
		if err := m.db.Health(ctx); err != nil {
			report.Database = err.Error()
			dbDown = true
		}
	}

	switch {
	case dbDown || abnormal:
		report.Status = StatusCritical
	case stalled || rotating:
		report.Status = StatusDegraded
	}
	return report
}
