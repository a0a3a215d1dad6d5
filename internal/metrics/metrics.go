// Package metrics exposes Prometheus collectors for the integration
// runtime: HTTP traffic, deferral queue pressure, and handler failures.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the runtime-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "integration",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "integration",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "integration",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "integration",
			Subsystem: "queue",
			Name:      "pending_events",
			Help:      "Current number of deferred events awaiting the worker.",
		},
	)

	queueSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "integration",
			Subsystem: "queue",
			Name:      "submitted_events_total",
			Help:      "Total number of events accepted by the deferral queue.",
		},
	)

	queueSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "integration",
			Subsystem: "queue",
			Name:      "skipped_events_total",
			Help:      "Total number of events rejected because the queue was full.",
		},
	)

	handlerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "integration",
			Subsystem: "handlers",
			Name:      "errors_total",
			Help:      "Total number of handler invocation failures.",
		},
		[]string{"handler"},
	)

	commandsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "integration",
			Subsystem: "ledger",
			Name:      "commands_submitted_total",
			Help:      "Total number of ledger commands submitted by handlers.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		queueDepth,
		queueSubmitted,
		queueSkipped,
		handlerErrors,
		commandsSubmitted,
	)
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetQueueDepth records the current deferral queue depth.
func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

// RecordQueueSubmitted counts one accepted deferral queue entry.
func RecordQueueSubmitted() { queueSubmitted.Inc() }

// RecordQueueSkipped counts one rejected deferral queue entry.
func RecordQueueSkipped() { queueSkipped.Inc() }

// RecordHandlerError counts one handler invocation failure.
func RecordHandlerError(handler string) { handlerErrors.WithLabelValues(handler).Inc() }

// RecordCommands counts submitted ledger commands.
func RecordCommands(n int) { commandsSubmitted.Add(float64(n)) }

// InstrumentHandler wraps an HTTP handler with request counting and
// duration collection.
func InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
