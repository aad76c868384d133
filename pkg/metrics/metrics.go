// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMStreamDuration tracks model streaming response duration.
	LLMStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_stream_duration_seconds",
			Help:    "Model streaming response duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// StreamFragmentsTotal tracks model output fragments forwarded to clients.
	StreamFragmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_fragments_total",
			Help: "Total model output fragments forwarded to clients",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// ContextSearchDuration tracks context provider search duration.
	ContextSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "context_search_duration_seconds",
			Help:    "Context provider search duration",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)

	// ContextSearchFailures tracks degraded context provider searches.
	ContextSearchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "context_search_failures_total",
			Help: "Context provider searches that degraded to placeholder output",
		},
		[]string{"provider"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// MessagesTotal tracks total messages persisted.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"role"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMStream records metrics for a model streaming response.
func RecordLLMStream(model, status string, duration float64) {
	LLMStreamDuration.WithLabelValues(model, status).Observe(duration)
}

// RecordContextSearch records a completed context provider search.
func RecordContextSearch(provider string, duration float64, degraded bool) {
	ContextSearchDuration.WithLabelValues(provider).Observe(duration)
	if degraded {
		ContextSearchFailures.WithLabelValues(provider).Inc()
	}
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
