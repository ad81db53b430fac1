// Package metrics holds the process-global Prometheus registrations
// exposed by the orchestrator. These are the counters,
// gauges, and histograms that back the /metrics admin endpoint; the
// bounded in-memory execution ring itself lives in internal/execmetrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// durationBuckets matches the documented histogram bucket layout exactly.
var durationBuckets = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600}

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskorch_executions_total",
			Help: "Total number of task executions started",
		},
		[]string{"type"},
	)

	ExecutionsSuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskorch_executions_success_total",
			Help: "Total number of task executions that completed successfully",
		},
		[]string{"type"},
	)

	ExecutionsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskorch_executions_failed_total",
			Help: "Total number of task executions that failed",
		},
		[]string{"type"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskorch_retries_total",
			Help: "Total number of task retries scheduled",
		},
		[]string{"type"},
	)

	TasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskorch_tasks_running",
			Help: "Current number of tasks running",
		},
	)

	TasksQueued = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskorch_tasks_queued",
			Help: "Current number of ready tasks waiting in the heap, by priority",
		},
		[]string{"priority"},
	)

	DurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskorch_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: durationBuckets,
		},
		[]string{"type"},
	)

	ActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskorch_active_workers",
			Help: "Current number of live worker units, by priority",
		},
		[]string{"priority"},
	)

	AlertsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskorch_alerts_active",
			Help: "Current number of unresolved alerts",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskorch_http_request_duration_seconds",
			Help:    "Admin HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskorch_http_requests_total",
			Help: "Total number of admin HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

func RecordExecutionStart(taskType string) {
	ExecutionsTotal.WithLabelValues(taskType).Inc()
}

func RecordExecutionFinish(taskType string, success bool, duration float64) {
	if success {
		ExecutionsSuccess.WithLabelValues(taskType).Inc()
	} else {
		ExecutionsFailed.WithLabelValues(taskType).Inc()
	}
	DurationSeconds.WithLabelValues(taskType).Observe(duration)
}

func RecordRetry(taskType string) {
	RetriesTotal.WithLabelValues(taskType).Inc()
}

func SetTasksRunning(n float64) {
	TasksRunning.Set(n)
}

func SetTasksQueued(priority string, n float64) {
	TasksQueued.WithLabelValues(priority).Set(n)
}

func SetActiveWorkers(priority string, n float64) {
	ActiveWorkers.WithLabelValues(priority).Set(n)
}

func SetAlertsActive(n float64) {
	AlertsActive.Set(n)
}

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}
