package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WebSocket client surface
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vanna_ws_connections",
			Help: "Current number of connected client sockets",
		},
	)

	ActiveSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vanna_active_subscriptions",
			Help: "Current number of active subscriptions per underlying",
		},
		[]string{"underlying"},
	)

	SendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanna_send_failures_total",
			Help: "Total number of failed pushes to client sockets",
		},
		[]string{"underlying"},
	)

	// Snapshot pipeline
	SnapshotsBuilt = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanna_snapshots_built_total",
			Help: "Total number of chain snapshot assemblies",
		},
		[]string{"underlying", "status"}, // status: success|error
	)

	SnapshotDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vanna_snapshot_duration_seconds",
			Help:    "Chain snapshot assembly duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"underlying"},
	)

	// Market data ingestion
	FeedTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vanna_feed_ticks_total",
			Help: "Total number of ticks received from the broker push feed",
		},
	)

	FeedReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vanna_feed_reconnects_total",
			Help: "Total number of push-feed reconnections",
		},
	)

	QuoteFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanna_quote_fallbacks_total",
			Help: "Total number of REST point-queries issued on tick cache misses",
		},
		[]string{"status"}, // status: success|error
	)

	// Background workers
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanna_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vanna_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"worker"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(WSConnections)
	prometheus.MustRegister(ActiveSubscriptions)
	prometheus.MustRegister(SendFailures)

	prometheus.MustRegister(SnapshotsBuilt)
	prometheus.MustRegister(SnapshotDuration)

	prometheus.MustRegister(FeedTicks)
	prometheus.MustRegister(FeedReconnects)
	prometheus.MustRegister(QuoteFallbacks)

	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSnapshot records a chain assembly
func RecordSnapshot(underlying string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	SnapshotsBuilt.WithLabelValues(underlying, status).Inc()
	SnapshotDuration.WithLabelValues(underlying).Observe(duration.Seconds())
}

// RecordQuoteFallback records a REST point-query
func RecordQuoteFallback(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	QuoteFallbacks.WithLabelValues(status).Inc()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
}
