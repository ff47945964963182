package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	// Session metrics
	activeSessions       prometheus.Gauge
	sessionsCreated      prometheus.Counter
	sessionsDisconnected prometheus.Counter

	// Rendezvous metrics
	announcements prometheus.Counter
	dialFailures  prometheus.Counter

	// Handshake metrics by outcome ("success", "exists", "not_exists", "invalid_password", "aborted")
	handshakes *prometheus.CounterVec

	// Request metrics by envelope kind
	requestsReceived *prometheus.CounterVec
	errorResponses   *prometheus.CounterVec
}

// NewMetrics creates a new metrics instance. It registers with the default
// prometheus registry, so create it at most once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		activeSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "huddle_active_sessions",
				Help: "Current number of active sessions",
			},
		),
		sessionsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "huddle_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		sessionsDisconnected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "huddle_sessions_disconnected_total",
				Help: "Total number of sessions disconnected",
			},
		),
		announcements: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "huddle_announcements_total",
				Help: "Total number of rendezvous announcements received",
			},
		),
		dialFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "huddle_dial_failures_total",
				Help: "Total number of failed dial-backs to announced reply addresses",
			},
		),
		handshakes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "huddle_handshakes_total",
				Help: "Total number of completed handshakes by outcome",
			},
			[]string{"outcome"},
		),
		requestsReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "huddle_requests_received_total",
				Help: "Total number of requests received by envelope kind",
			},
			[]string{"kind"},
		),
		errorResponses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "huddle_error_responses_total",
				Help: "Total number of error responses sent by error kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordActiveSessions updates the active session count
func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// RecordSessionCreated increments the session creation counter
func (m *Metrics) RecordSessionCreated() {
	m.sessionsCreated.Inc()
}

// RecordSessionDisconnected increments the session disconnection counter
func (m *Metrics) RecordSessionDisconnected() {
	m.sessionsDisconnected.Inc()
}

// RecordAnnouncement increments the announcement counter
func (m *Metrics) RecordAnnouncement() {
	m.announcements.Inc()
}

// RecordDialFailure increments the dial-back failure counter
func (m *Metrics) RecordDialFailure() {
	m.dialFailures.Inc()
}

// RecordHandshake increments the handshake counter for an outcome
func (m *Metrics) RecordHandshake(outcome string) {
	m.handshakes.WithLabelValues(outcome).Inc()
}

// RecordRequest increments the request counter for an envelope kind
func (m *Metrics) RecordRequest(kind string) {
	m.requestsReceived.WithLabelValues(kind).Inc()
}

// RecordErrorResponse increments the error response counter for an error kind
func (m *Metrics) RecordErrorResponse(kind string) {
	m.errorResponses.WithLabelValues(kind).Inc()
}
