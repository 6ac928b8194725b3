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
			Name:    "gateway_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// BackendDuration tracks round trips to the legal-assistant backend.
	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Legal-assistant backend call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"contract", "outcome"},
	)

	// BackendRequestsTotal counts backend calls by outcome.
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Total legal-assistant backend calls",
		},
		[]string{"contract", "outcome"},
	)

	// TranslationsTotal counts translation pass calls.
	TranslationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translations_total",
			Help: "Translation pass calls by direction and outcome",
		},
		[]string{"direction", "outcome"},
	)

	// StoreErrorsTotal counts swallowed session store failures.
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_store_errors_total",
			Help: "Session store failures by operation",
		},
		[]string{"op"},
	)

	// SessionEventsTotal counts broadcast session events.
	SessionEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_events_total",
			Help: "Session change notifications published",
		},
		[]string{"type"},
	)

	// MessagesTotal tracks chat turns appended to sessions.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total chat turns recorded",
		},
		[]string{"role", "outcome"},
	)

	// SSEConnectionsActive tracks active sidebar SSE subscribers.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordBackend records one backend round trip.
func RecordBackend(contract, outcome string, duration float64) {
	BackendDuration.WithLabelValues(contract, outcome).Observe(duration)
	BackendRequestsTotal.WithLabelValues(contract, outcome).Inc()
}

// RecordTranslation records one translation attempt.
func RecordTranslation(direction, outcome string) {
	TranslationsTotal.WithLabelValues(direction, outcome).Inc()
}

// RecordMessage records a chat turn appended to a session.
func RecordMessage(role, outcome string) {
	MessagesTotal.WithLabelValues(role, outcome).Inc()
}

// RecordStoreError records a swallowed storage failure.
func RecordStoreError(op string) {
	StoreErrorsTotal.WithLabelValues(op).Inc()
}

// RecordSessionEvent records a published session event.
func RecordSessionEvent(eventType string) {
	SessionEventsTotal.WithLabelValues(eventType).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
