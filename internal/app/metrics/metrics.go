// Package metrics exposes the Prometheus collectors for the test execution
// engine: HTTP traffic, session outcomes, per-point execution latency and
// instrument lease activity.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	core "github.com/webpdtool/engine/internal/app/core/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "webpdtool",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webpdtool",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "webpdtool",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webpdtool",
			Subsystem: "session",
			Name:      "terminal_total",
			Help:      "Total number of sessions reaching a terminal state, by status.",
		},
		[]string{"status"},
	)

	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "webpdtool",
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a session from start to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		},
		[]string{"status"},
	)

	pointExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webpdtool",
			Subsystem: "point",
			Name:      "executions_total",
			Help:      "Total number of executed test points, by execute_name and result.",
		},
		[]string{"execute_name", "result"},
	)

	pointDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "webpdtool",
			Subsystem: "point",
			Name:      "execution_duration_seconds",
			Help:      "Duration of a single test point's measurement handler.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"execute_name"},
	)

	instrumentBusy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "webpdtool",
			Subsystem: "instrument",
			Name:      "busy",
			Help:      "1 when the instrument is currently leased, 0 otherwise.",
		},
		[]string{"instrument_id"},
	)

	instrumentErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webpdtool",
			Subsystem: "instrument",
			Name:      "errors_total",
			Help:      "Total number of instrument errors recorded by the instrument manager.",
		},
		[]string{"instrument_id"},
	)

	observationCollectors sync.Map
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		sessionsTotal,
		sessionDuration,
		pointExecutions,
		pointDuration,
		instrumentBusy,
		instrumentErrors,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordSessionTerminal records a session's final status and total duration.
func RecordSessionTerminal(status string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	sessionsTotal.WithLabelValues(status).Inc()
	sessionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPointExecution records one point's handler outcome and duration.
func RecordPointExecution(executeName, result string, duration time.Duration) {
	if executeName == "" {
		executeName = "unknown"
	}
	if duration < 0 {
		duration = 0
	}
	pointExecutions.WithLabelValues(executeName, result).Inc()
	pointDuration.WithLabelValues(executeName).Observe(duration.Seconds())
}

// SetInstrumentBusy reflects an instrument's current lease state.
func SetInstrumentBusy(instrumentID string, busy bool) {
	value := 0.0
	if busy {
		value = 1.0
	}
	instrumentBusy.WithLabelValues(instrumentID).Set(value)
}

// RecordInstrumentError increments the error counter for an instrument.
func RecordInstrumentError(instrumentID string) {
	instrumentErrors.WithLabelValues(instrumentID).Inc()
}

type observationCollector struct {
	gauge *prometheus.GaugeVec
	hist  *prometheus.HistogramVec
}

// ObservationHooks creates core observation hooks backed by Prometheus metrics.
func ObservationHooks(namespace, subsystem, name string) core.ObservationHooks {
	key := namespace + ":" + subsystem + ":" + name
	var collector observationCollector
	if entry, ok := observationCollectors.Load(key); ok {
		collector = entry.(observationCollector)
	} else {
		collector = createObservationCollector(namespace, subsystem, name)
		observationCollectors.Store(key, collector)
	}
	return core.ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			collector.hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func createObservationCollector(namespace, subsystem, name string) observationCollector {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_in_flight",
			Help:      "Current operations in flight for " + subsystem,
		},
		[]string{"resource"},
	)
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_duration_seconds",
			Help:      "Duration of operations for " + subsystem,
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"resource", "status"},
	)
	Registry.MustRegister(gauge, hist)
	return observationCollector{gauge: gauge, hist: hist}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	if id, ok := meta["session_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["instrument_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["resource"]; ok && id != "" {
		return id
	}
	return "unknown"
}

// DispatcherHooks wraps ObservationHooks for dispatcher instrumentation.
func DispatcherHooks(namespace, subsystem, name string) core.DispatchHooks {
	return ObservationHooks(namespace, subsystem, name)
}

// PointDispatchHooks captures measurement dispatcher attempts.
func PointDispatchHooks() core.DispatchHooks {
	return DispatcherHooks("webpdtool", "dispatch", "point")
}

// InstrumentAcquireHooks captures instrument lease acquire/release cycles.
func InstrumentAcquireHooks() core.ObservationHooks {
	return ObservationHooks("webpdtool", "instrument", "acquire")
}

// SFCRequestHooks captures SFC/MES round-trip attempts.
func SFCRequestHooks() core.ObservationHooks {
	return ObservationHooks("webpdtool", "sfc", "request")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters (session/result IDs) so the
// requests_total/request_duration_seconds label cardinality stays bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "sessions" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/sessions"
	}
	if len(parts) == 2 {
		return "/sessions/:id"
	}
	return "/sessions/:id/" + parts[2]
}
