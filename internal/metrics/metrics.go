// Package metrics exposes the process-wide Prometheus collectors for the
// Scheduler, Store, and embedding drain, grounded on
// Hola-to-network_logistics_problem/pkg/metrics/prometheus.go's
// promauto-registered-collector-struct idiom, generalized from gRPC/solver
// metrics to sync-engine metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide collector set, built once at startup
type Metrics struct {
	JobRunsTotal   *prometheus.CounterVec
	JobRunDuration *prometheus.HistogramVec
	JobErrorCount  *prometheus.GaugeVec
	StoreLockWaits prometheus.Histogram
	EmbedBacklog   prometheus.Gauge
	EmbedProcessed *prometheus.CounterVec
}

// New registers every collector under namespace "daylog" and returns the set
func New() *Metrics {
	return &Metrics{
		JobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daylog",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total scheduler job runs by namespace and outcome",
		}, []string{"namespace", "outcome"}),

		JobRunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "daylog",
			Subsystem: "scheduler",
			Name:      "job_run_duration_seconds",
			Help:      "Scheduler job run duration",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"namespace"}),

		JobErrorCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "daylog",
			Subsystem: "scheduler",
			Name:      "job_consecutive_errors",
			Help:      "Consecutive failure count for a namespace's job",
		}, []string{"namespace"}),

		StoreLockWaits: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "daylog",
			Subsystem: "store",
			Name:      "write_lock_wait_seconds",
			Help:      "Time spent waiting to acquire the single-writer SQLite lock",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),

		EmbedBacklog: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "daylog",
			Subsystem: "embed",
			Name:      "pending_backlog",
			Help:      "Rows awaiting embedding",
		}),

		EmbedProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daylog",
			Subsystem: "embed",
			Name:      "processed_total",
			Help:      "Embedding drain outcomes",
		}, []string{"outcome"}),
	}
}

// RecordJobRun is a scheduler.Scheduler.OnRun callback feeding the run-stats collectors
func (m *Metrics) RecordJobRun(namespace string, duration time.Duration, errorCount int, failed bool) {
	outcome := "success"
	if failed {
		outcome = "error"
	}
	m.JobRunsTotal.WithLabelValues(namespace, outcome).Inc()
	m.JobRunDuration.WithLabelValues(namespace).Observe(duration.Seconds())
	m.JobErrorCount.WithLabelValues(namespace).Set(float64(errorCount))
}

// RecordEmbedDrain mirrors one ProcessPendingEmbeddings/ReprocessFailedEmbeddings
// outcome and the remaining backlog depth
func (m *Metrics) RecordEmbedDrain(successful, failed, backlog int) {
	m.EmbedProcessed.WithLabelValues("success").Add(float64(successful))
	m.EmbedProcessed.WithLabelValues("failed").Add(float64(failed))
	m.EmbedBacklog.Set(float64(backlog))
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
