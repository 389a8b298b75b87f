// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "beatvault"

var (
	// CacheOperationsTotal tracks cache operations (get, set, delete).
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// DBQueriesTotal tracks database queries.
	// Labels:
	//   - query_type: select, insert, update
	//   - table: assets, asset_events
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// PipelineRunsTotal counts finished pipeline runs.
	// Labels:
	//   - outcome: ready, error, rejected, persistence_failed
	//   - error_kind: empty on success
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by outcome",
		},
		[]string{"outcome", "error_kind"},
	)

	// StageDuration observes how long each pipeline stage takes.
	// Labels:
	//   - stage: preview, waveform, encrypt
	//   - status: success, error
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage", "status"},
	)

	// ActiveRuns is the number of pipeline runs in flight.
	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_active_runs",
			Help:      "Number of pipeline runs currently executing",
		},
	)

	// TerminalWriteRetriesTotal counts retried markReady/markError writes.
	// Labels:
	//   - status: ready, error
	TerminalWriteRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminal_write_retries_total",
			Help:      "Total number of retried terminal status writes",
		},
		[]string{"status"},
	)

	// PendingResultsTotal tracks stashed terminal results.
	// Labels:
	//   - operation: saved, replayed, abandoned
	PendingResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_results_total",
			Help:      "Total number of pending terminal result operations",
		},
		[]string{"operation"},
	)

	// ColdStoreUploadsTotal tracks content store writes.
	// Labels:
	//   - result: uploaded, deduplicated, rejected (breaker open), error
	ColdStoreUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cold_store_uploads_total",
			Help:      "Total number of cold store uploads",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal counts API requests.
	// Labels:
	//   - method, route, status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeRedis = "redis"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryInsert = "insert"
	DBQueryUpdate = "update"
)

// Table name constants.
const (
	TableAssets      = "assets"
	TableAssetEvents = "asset_events"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// Pipeline outcome constants.
const (
	OutcomeReady             = "ready"
	OutcomeError             = "error"
	OutcomeRejected          = "rejected"
	OutcomePersistenceFailed = "persistence_failed"
)

// Stage status constants.
const (
	StageStatusSuccess = "success"
	StageStatusError   = "error"
)

// Pending result operation constants.
const (
	PendingSaved     = "saved"
	PendingReplayed  = "replayed"
	PendingAbandoned = "abandoned"
)

// Cold store upload result constants.
const (
	ColdStoreUploaded     = "uploaded"
	ColdStoreDeduplicated = "deduplicated"
	ColdStoreRejected     = "rejected"
	ColdStoreError        = "error"
)
