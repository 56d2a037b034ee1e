// Package metrics exposes process-wide Prometheus collectors for the
// exporter: open browser sessions, per-task latency and the operator HTTP
// surface.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	activeSessions             prometheus.Gauge
	sessionAcquireSeconds      prometheus.Histogram
	taskDurationSeconds        *prometheus.HistogramVec
	queueDepth                 prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors on the default registry. It is safe to call
// more than once.
func Init() {
	once.Do(func() {
		activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "exporter_active_sessions",
			Help: "Number of browser sessions currently held by workers.",
		})

		sessionAcquireSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "exporter_session_acquire_seconds",
			Help:    "Time taken to start a fresh session.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		})

		taskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exporter_task_duration_seconds",
			Help:    "Wall time per task, labeled by outcome.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"outcome"})

		queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "exporter_queue_depth",
			Help: "Tasks submitted but not yet picked up by a worker.",
		})

		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"})

		httpRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"})
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncActiveSessions increments the open session gauge.
func IncActiveSessions() {
	activeSessions.Inc()
}

// DecActiveSessions decrements the open session gauge.
func DecActiveSessions() {
	activeSessions.Dec()
}

// ObserveSessionAcquire records how long a session took to start.
func ObserveSessionAcquire(d time.Duration) {
	sessionAcquireSeconds.Observe(d.Seconds())
}

// ObserveTask records the duration of a finished task.
func ObserveTask(outcome string, d time.Duration) {
	taskDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// SetQueueDepth records the number of waiting tasks.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
