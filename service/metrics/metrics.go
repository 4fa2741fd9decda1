package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Ledger Gateway Metrics
	ledgerCallsTotal   *prometheus.CounterVec
	ledgerCallDuration *prometheus.HistogramVec

	// Payment Processor Metrics
	processorCallsTotal   *prometheus.CounterVec
	processorCallDuration *prometheus.HistogramVec

	// Matching Metrics
	reservationClaimsTotal *prometheus.CounterVec
	reservationsSweptTotal prometheus.Counter

	// Settlement Metrics
	settlementsTotal          *prometheus.CounterVec
	settlementWorkflowSeconds *prometheus.HistogramVec
	activityDuration          *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Ledger Gateway Metrics
		ledgerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_gateway_calls_total",
				Help: "Total number of ledger gateway calls by path and status",
			},
			[]string{"path", "status"},
		),
		ledgerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_gateway_call_duration_seconds",
				Help:    "Duration of ledger gateway calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"path"},
		),

		// Payment Processor Metrics
		processorCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processor_calls_total",
				Help: "Total number of payment processor calls by path and status",
			},
			[]string{"path", "status"},
		),
		processorCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "processor_call_duration_seconds",
				Help:    "Duration of payment processor calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"path"},
		),

		// Matching Metrics
		reservationClaimsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_claims_total",
				Help: "Total number of reservation claim attempts by outcome (won, lost)",
			},
			[]string{"outcome"},
		),
		reservationsSweptTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reservations_swept_total",
				Help: "Total number of expired reservations removed by the sweeper",
			},
		),

		// Settlement Metrics
		settlementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlements_total",
				Help: "Total number of completed settlement attempts by outcome",
			},
			[]string{"outcome"},
		),
		settlementWorkflowSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settlement_workflow_duration_seconds",
				Help:    "Duration of settlement workflow executions in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900, 1800},
			},
			[]string{"outcome"},
		),
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "activity_duration_seconds",
				Help:    "Duration of workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Ledger gateway metric helpers

// RecordLedgerCall records a ledger gateway call with duration.
func (m *Metrics) RecordLedgerCall(path, status string, duration float64) {
	m.ledgerCallsTotal.WithLabelValues(path, status).Inc()
	m.ledgerCallDuration.WithLabelValues(path).Observe(duration)
}

// Payment processor metric helpers

// RecordProcessorCall records a payment processor call with duration.
func (m *Metrics) RecordProcessorCall(path, status string, duration float64) {
	m.processorCallsTotal.WithLabelValues(path, status).Inc()
	m.processorCallDuration.WithLabelValues(path).Observe(duration)
}

// Matching metric helpers

// RecordReservationClaim records a claim attempt outcome (won or lost).
func (m *Metrics) RecordReservationClaim(outcome string) {
	m.reservationClaimsTotal.WithLabelValues(outcome).Inc()
}

// RecordReservationsSwept records expired reservations removed by a sweep.
func (m *Metrics) RecordReservationsSwept(count int) {
	m.reservationsSweptTotal.Add(float64(count))
}

// Settlement metric helpers

// RecordSettlement records a completed settlement attempt.
func (m *Metrics) RecordSettlement(outcome string) {
	m.settlementsTotal.WithLabelValues(outcome).Inc()
}

// RecordWorkflowDuration records settlement workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(outcome string, duration float64) {
	m.settlementWorkflowSeconds.WithLabelValues(outcome).Observe(duration)
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.activityDuration.WithLabelValues(activity).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
