// Package metrics defines the Prometheus collectors shared by the pool
// manager, the maintenance scheduler, the transaction coordinator and the
// stats mirror. Registered eagerly via promauto so every package can use
// them without a separate registration step.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolSize tracks the live population (idle + in-use) of a pool.
	PoolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dbpool_pool_size",
		Help: "Live connection count (idle + in-use) per pool",
	}, []string{"pool"})

	// PoolIdle tracks the idle count of a pool.
	PoolIdle = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dbpool_pool_idle",
		Help: "Idle connection count per pool",
	}, []string{"pool"})

	// PoolPeakSize tracks the high-water mark of PoolSize since pool creation.
	PoolPeakSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dbpool_pool_peak_size",
		Help: "Peak connection count observed per pool",
	}, []string{"pool"})

	// PoolMaxSize tracks the configured ceiling per pool.
	PoolMaxSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dbpool_pool_max_size",
		Help: "Configured maximum connections per pool",
	}, []string{"pool"})

	// PoolOperationsTotal counts acquire/release/discard outcomes.
	PoolOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbpool_pool_operations_total",
		Help: "Total pool operations by outcome",
	}, []string{"pool", "status"})

	// AcquireWaitSeconds tracks time spent waiting for a connection.
	AcquireWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dbpool_acquire_wait_seconds",
		Help:    "Time spent waiting to acquire a connection",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"pool"})

	// ValidationTotal counts liveness-probe outcomes.
	ValidationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbpool_validation_total",
		Help: "Total liveness-probe outcomes by result",
	}, []string{"pool", "result"})

	// EvictionTotal counts maintenance-driven evictions.
	EvictionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbpool_eviction_total",
		Help: "Total idle connections evicted by the maintenance scheduler",
	}, []string{"pool", "reason"})

	// TxnOperationsTotal counts transaction coordinator operations.
	TxnOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbpool_txn_operations_total",
		Help: "Total transaction coordinator operations by outcome",
	}, []string{"op", "result"})

	// StatsMirrorOperationsTotal counts stats-mirror publish attempts.
	StatsMirrorOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbpool_statsmirror_operations_total",
		Help: "Total stats-mirror publish operations by outcome",
	}, []string{"operation", "status"})
)
