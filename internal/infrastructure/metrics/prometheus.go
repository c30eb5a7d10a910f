// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "countrytube"

var (
	// CacheOperationsTotal tracks page cache operations.
	// Labels:
	//   - operation: get, set, clear
	//   - status: hit, miss, success, error
	//   - cache_type: memory, redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of page cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior on cache misses.
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

	// PrefetchDispatchTotal tracks dispatch-once decisions.
	// Labels:
	//   - result: dispatched, suppressed, error
	PrefetchDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prefetch_dispatch_total",
			Help:      "Total number of prefetch dispatch decisions",
		},
		[]string{"result"},
	)

	// PrefetchTasksTotal tracks warm-up task outcomes.
	// Labels:
	//   - status: published, publish_error, completed, failed, stale, dropped
	PrefetchTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prefetch_tasks_total",
			Help:      "Total number of prefetch tasks by outcome",
		},
		[]string{"status"},
	)

	// PrefetchPagesWarmedTotal counts pages stored by warm-up tasks.
	PrefetchPagesWarmedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prefetch_pages_warmed_total",
			Help:      "Total number of pages stored by prefetch warm-up",
		},
	)

	// SeedsTotal tracks catalog seeding.
	// Labels:
	//   - origin: static, youtube, snapshot
	//   - status: success, error
	SeedsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seeds_total",
			Help:      "Total number of catalog seed attempts",
		},
		[]string{"origin", "status"},
	)

	// CatalogSize reports the size of the active catalog.
	// Labels:
	//   - unit: countries, videos
	CatalogSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_size",
			Help:      "Size of the active catalog",
		},
		[]string{"unit"},
	)

	// DBQueriesTotal tracks database queries.
	// Labels:
	//   - query_type: select, insert, delete
	//   - table: countries, videos
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
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
	CacheOpGet   = "get"
	CacheOpSet   = "set"
	CacheOpClear = "clear"
)

// Cache type constants.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// Prefetch dispatch result constants.
const (
	DispatchDispatched = "dispatched"
	DispatchSuppressed = "suppressed"
	DispatchError      = "error"
)

// Prefetch task status constants.
const (
	TaskPublished    = "published"
	TaskPublishError = "publish_error"
	TaskCompleted    = "completed"
	TaskFailed       = "failed"
	TaskStale        = "stale"
	TaskDropped      = "dropped"
)

// Seed status constants.
const (
	SeedSuccess = "success"
	SeedError   = "error"
)

// Catalog size unit constants.
const (
	UnitCountries = "countries"
	UnitVideos    = "videos"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryInsert = "insert"
	DBQueryDelete = "delete"
)

// Table name constants.
const (
	TableCountries = "countries"
	TableVideos    = "videos"
)
