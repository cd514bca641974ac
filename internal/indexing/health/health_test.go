package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/tokenwatch/internal/core/domain"
	"github.com/vietddude/tokenwatch/internal/indexing/crawler"
)

// =============================================================================
// Mocks
// =============================================================================

type stubPinger struct {
	err error
}

func (s *stubPinger) Health(ctx context.Context) error { return s.err }

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestMonitor(db Pinger) (*Monitor, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMonitor("run-1", db, time.Minute)
	m.now = clock.Now
	m.lastProgress = clock.t
	return m, clock
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	m, _ := newTestMonitor(&stubPinger{})
	m.RecordProgress(10)

	report := m.CheckHealth(context.Background())
	if report.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
	if report.Records != 10 || report.Database != "ok" || report.RunID != "run-1" {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestMonitor_DegradedWhenStalled(t *testing.T) {
	m, clock := newTestMonitor(nil)
	clock.t = clock.t.Add(2 * time.Minute)

	if report := m.CheckHealth(context.Background()); report.Status != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.Status)
	}

	m.OnTransition(crawler.NewTransition(crawler.StatePaging, crawler.StateWindowShift, "cap"))
	if report := m.CheckHealth(context.Background()); report.Status != StatusHealthy {
		t.Errorf("transition should count as progress, got %s", report.Status)
	}
}

func TestMonitor_DegradedWhileRotating(t *testing.T) {
	m, _ := newTestMonitor(nil)
	m.OnTransition(crawler.NewTransition(crawler.StatePaging, crawler.StateKeyRotate, "rate limited"))

	report := m.CheckHealth(context.Background())
	if report.Status != StatusDegraded || report.State != "key_rotate" {
		t.Errorf("expected degraded key_rotate, got %+v", report)
	}
}

func TestMonitor_CheckHealthDuringTransitions(t *testing.T) {
	m, _ := newTestMonitor(nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			m.OnTransition(crawler.NewTransition(crawler.StatePaging, crawler.StateKeyRotate, "rate limited"))
			m.OnTransition(crawler.NewTransition(crawler.StateKeyRotate, crawler.StatePaging, "rotated"))
		}
	}()

	for i := 0; i < 500; i++ {
		report := m.CheckHealth(context.Background())
		rotating := report.State == string(crawler.StateKeyRotate)
		if rotating != (report.Status == StatusDegraded) {
			t.Fatalf("status %s does not match state %s", report.Status, report.State)
		}
	}
	<-done
}

func TestMonitor_Critical(t *testing.T) {
	m, _ := newTestMonitor(&stubPinger{err: errors.New("connection refused")})
	if report := m.CheckHealth(context.Background()); report.Status != StatusCritical {
		t.Errorf("db down: expected critical, got %s", report.Status)
	}

	m, _ = newTestMonitor(nil)
	m.Finish(crawler.StopPoolExhausted, domain.ErrPoolExhausted)
	report := m.CheckHealth(context.Background())
	if report.Status != StatusCritical || report.StopReason != "pool_exhausted" || report.Error == "" {
		t.Errorf("abnormal stop: unexpected report %+v", report)
	}
}

func TestMonitor_FinishedNormally(t *testing.T) {
	m, clock := newTestMonitor(nil)
	m.Finish(crawler.StopEmptyPage, nil)
	clock.t = clock.t.Add(time.Hour)

	if report := m.CheckHealth(context.Background()); report.Status != StatusHealthy {
		t.Errorf("finished crawl should not be stalled, got %s", report.Status)
	}
}

func TestServer_Endpoints(t *testing.T) {
	m, _ := newTestMonitor(&stubPinger{err: errors.New("down")})
	srv := httptest.NewServer(NewServer(m, ":0").Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "critical" {
		t.Errorf("unexpected /health: %d %v", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/health/detailed")
	if err != nil {
		t.Fatalf("GET /health/detailed: %v", err)
	}
	var report CrawlHealth
	_ = json.NewDecoder(resp.Body).Decode(&report)
	resp.Body.Close()
	if report.RunID != "run-1" || report.Database != "down" {
		t.Errorf("unexpected detailed report: %+v", report)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	_, _ = io.Copy(buf, resp.Body)
	if !strings.Contains(buf.String(), "go_goroutines") {
		t.Error("metrics endpoint should expose default collectors")
	}
}
