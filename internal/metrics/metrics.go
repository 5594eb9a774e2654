// Package metrics exposes Prometheus instrumentation for crosslink.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslink_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crosslink_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// InvocationsTotal counts agent CLI invocations by outcome
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslink_invocations_total",
			Help: "Total number of agent CLI invocations",
		},
		[]string{"agent", "status"},
	)

	// InvocationDuration tracks how long agent invocations run
	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crosslink_invocation_duration_seconds",
			Help:    "Agent invocation duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"agent"},
	)

	// ParseFailures counts parser failures by parser identity
	ParseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslink_parse_failures_total",
			Help: "Total number of outputs no parser could normalize",
		},
		[]string{"parser"},
	)

	// RecoveriesTotal counts salvaged non-zero-exit invocations
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslink_recoveries_total",
			Help: "Total number of invocations salvaged after non-zero exit",
		},
		[]string{"agent"},
	)

	// ToolCalls tracks MCP tool invocations
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslink_tool_calls_total",
			Help: "Total number of MCP tool calls",
		},
		[]string{"tool", "status"},
	)
)

// Invocation outcome labels.
const (
	StatusParsed    = "parsed"
	StatusRecovered = "recovered"
	StatusFailed    = "failed"
)

// RecordInvocation records one completed agent invocation.
func RecordInvocation(agent, status string, durationSeconds float64) {
	InvocationsTotal.WithLabelValues(agent, status).Inc()
	InvocationDuration.WithLabelValues(agent).Observe(durationSeconds)
}

// RecordParseFailure records a parser that produced no usable content.
func RecordParseFailure(parserName string) {
	ParseFailures.WithLabelValues(parserName).Inc()
}

// RecordRecovery records a salvaged invocation.
func RecordRecovery(agent string) {
	RecoveriesTotal.WithLabelValues(agent).Inc()
}

// RecordToolCall records an MCP tool invocation.
func RecordToolCall(tool, status string) {
	ToolCalls.WithLabelValues(tool, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware creates an HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/mcp", "/mcp/", "/metrics":
		return path
	default:
		if len(path) > 5 && path[:5] == "/mcp/" {
			return "/mcp"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
