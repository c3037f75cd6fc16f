package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "ticket_relay"

// Relay directions used as metric labels.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Relay outcomes used as metric labels.
const (
	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"
	OutcomeEcho      = "echo"
	OutcomeNoTicket  = "no_ticket"
	OutcomeClosed    = "closed"
	OutcomeFailed    = "failed"
)

// RelayMetrics holds the Prometheus collectors for the relay.
//
// All methods are safe on a nil receiver so components can run without metrics in tests.
type RelayMetrics struct {
	// TicketsOpen tracks tickets currently held in the store.
	TicketsOpen prometheus.Gauge

	// TicketsCreatedTotal counts tickets that received a channel.
	TicketsCreatedTotal prometheus.Counter

	// TicketsClosedTotal counts closed tickets.
	// Labels: trigger (command, button, channel_gone, channel_deleted)
	TicketsClosedTotal *prometheus.CounterVec

	// MessagesTotal counts routed messages.
	// Labels: direction (inbound, outbound), outcome
	MessagesTotal *prometheus.CounterVec

	// PlatformErrorsTotal counts collaborator failures by operation and classification.
	PlatformErrorsTotal *prometheus.CounterVec

	// ActiveSessions tracks live web socket sessions.
	ActiveSessions prometheus.Gauge

	// HTTPRequestsTotal counts HTTP requests by route, method and status.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes HTTP request latency.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewRelayMetrics creates and registers all collectors on reg.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	factory := promauto.With(reg)
	return &RelayMetrics{
		TicketsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tickets_open",
			Help:      "Number of tickets currently open",
		}),
		TicketsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tickets_created_total",
			Help:      "Total number of tickets created",
		}),
		TicketsClosedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tickets_closed_total",
			Help:      "Total number of tickets closed by trigger",
		}, []string{"trigger"}),
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Total number of routed messages by direction and outcome",
		}, []string{"direction", "outcome"}),
		PlatformErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "platform_errors_total",
			Help:      "Total number of platform collaborator errors by operation and kind",
		}, []string{"operation", "kind"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Number of connected web sessions",
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"path", "method", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
	}
}

// TicketCreated records a new ticket.
func (m *RelayMetrics) TicketCreated() {
	if m == nil {
		return
	}
	m.TicketsCreatedTotal.Inc()
	m.TicketsOpen.Inc()
}

// TicketClosed records a closed ticket.
func (m *RelayMetrics) TicketClosed(trigger string) {
	if m == nil {
		return
	}
	m.TicketsClosedTotal.WithLabelValues(trigger).Inc()
	m.TicketsOpen.Dec()
}

// RecordMessage counts a routed message.
func (m *RelayMetrics) RecordMessage(direction, outcome string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(direction, outcome).Inc()
}

// RecordPlatformError counts a collaborator failure.
func (m *RelayMetrics) RecordPlatformError(operation, kind string) {
	if m == nil {
		return
	}
	m.PlatformErrorsTotal.WithLabelValues(operation, kind).Inc()
}

// SessionOpened increments the live session gauge.
func (m *RelayMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the live session gauge.
func (m *RelayMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// RecordRequest records an HTTP request.
func (m *RelayMetrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}
