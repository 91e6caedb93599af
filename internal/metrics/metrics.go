package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APICallsTotal tracks generation API calls per operation and outcome
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidgate_api_calls_total",
			Help: "Total number of generation API calls (one per retry sequence)",
		},
		[]string{"operation", "outcome"},
	)

	// APICallLatency tracks the duration of a whole retry sequence
	APICallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidgate_api_call_latency_seconds",
			Help:    "Generation API call latency in seconds, including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)

	// APIRetriesTotal tracks retry attempts per operation and error kind
	APIRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidgate_api_retries_total",
			Help: "Total number of retried attempts",
		},
		[]string{"operation", "kind"},
	)

	// APIErrorsTotal tracks terminal failures per operation and error kind
	APIErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidgate_api_errors_total",
			Help: "Total number of terminal generation API failures",
		},
		[]string{"operation", "kind"},
	)

	// MetricsRecordedTotal tracks performance metrics written per target
	MetricsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidgate_performance_metrics_total",
			Help: "Total number of performance metrics recorded",
		},
		[]string{"target", "outcome"},
	)

	// MetricWriteFailuresTotal tracks metric inserts that failed and were dropped
	MetricWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidgate_performance_metric_write_failures_total",
			Help: "Total number of performance metrics that could not be persisted",
		},
	)

	// TargetHealthStatus exposes the latest health per target
	// (-1 unknown, 0 healthy, 1 degraded, 2 critical)
	TargetHealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vidgate_target_health_status",
			Help: "Latest computed health status per target",
		},
		[]string{"target"},
	)

	// TargetSuccessRate exposes the latest success rate per target
	TargetSuccessRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vidgate_target_success_rate_percent",
			Help: "Success rate over the health window per target",
		},
		[]string{"target"},
	)

	// DBConnectionPoolUsage tracks database connection pool utilisation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidgate_db_connection_pool_usage_percent",
			Help: "Open connections as a percentage of the pool maximum",
		},
	)
)
