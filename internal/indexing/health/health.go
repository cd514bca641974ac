// Package health provides crawl health monitoring and the metrics endpoint.
package health

import "time"

// SystemStatus represents the overall health state of the crawl.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// CrawlHealth is the health report of the running crawl.
type CrawlHealth struct {
	Status       SystemStatus `json:"status"`
	RunID        string       `json:"run_id"`
	State        string       `json:"state"`
	StopReason   string       `json:"stop_reason,omitempty"`
	Records      int          `json:"records"`
	LastProgress time.Time    `json:"last_progress"`
	Database     string       `json:"database,omitempty"`
	Error        string       `json:"error,omitempty"`
}
