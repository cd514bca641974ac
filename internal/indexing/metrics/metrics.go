package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExplorerRequests tracks explorer calls by classified outcome
	ExplorerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenwatch_explorer_requests_total",
			Help: "Total number of explorer page requests by outcome",
		},
		[]string{"outcome"},
	)

	// ExplorerLatency tracks explorer call latency
	ExplorerLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tokenwatch_explorer_latency_seconds",
			Help:    "Explorer call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CredentialRotations counts switches to the next API key
	CredentialRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenwatch_credential_rotations_total",
			Help: "Total number of API credential rotations",
		},
	)

	// WindowShifts counts block-window shrinks
	WindowShifts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenwatch_window_shifts_total",
			Help: "Total number of crawl window shifts",
		},
	)

	// TransfersDropped counts records dropped before storage, by reason
	TransfersDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenwatch_transfers_dropped_total",
			Help: "Total number of transfers dropped before persistence",
		},
		[]string{"reason"},
	)

	// TransfersInserted counts rows newly written to storage
	TransfersInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenwatch_transfers_inserted_total",
			Help: "Total number of transfers inserted",
		},
	)

	// BatchSize tracks persisted batch sizes
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tokenwatch_batch_size",
			Help:    "Size of persisted batches",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	// CrawlLowestBlock tracks the lowest block observed by the running crawl
	CrawlLowestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tokenwatch_crawl_lowest_block",
			Help: "Lowest block number observed by the current crawl",
		},
	)

	// PersistLatency tracks batch persistence latency
	PersistLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tokenwatch_persist_latency_seconds",
			Help:    "Batch persistence latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// PersistFailures counts failed batch writes, including retried ones
	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenwatch_persist_failures_total",
			Help: "Total number of failed batch persistence attempts",
		},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool limit
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tokenwatch_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
