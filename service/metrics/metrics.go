package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec

	// Relay Metrics
	relayBuildsTotal       *prometheus.CounterVec
	relayBuildDuration     *prometheus.HistogramVec
	relayAccountsCreated   prometheus.Counter
	relayFeePayerBalance   prometheus.Gauge
	relayUnderfundedTotal  prometheus.Counter
	profileCacheLookups    *prometheus.CounterVec
	cosignSubmissionsTotal *prometheus.CounterVec

	// Watcher Metrics
	watchResultsTotal *prometheus.CounterVec
	watchDuration     *prometheus.HistogramVec

	// Workflow Metrics
	watchWorkflowExecutionsTotal *prometheus.CounterVec
	watchActivityDuration        *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

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
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),

		// Relay Metrics
		relayBuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_builds_total",
				Help: "Total number of gasless transaction builds by route and outcome",
			},
			[]string{"route", "outcome"},
		),
		relayBuildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_build_duration_seconds",
				Help:    "Duration of gasless transaction builds in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"route"},
		),
		relayAccountsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_token_accounts_created_total",
				Help: "Total number of builds that include a recipient token account creation paid by the relay",
			},
		),
		relayFeePayerBalance: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_fee_payer_balance_lamports",
				Help: "Most recently observed fee payer balance in lamports",
			},
		),
		relayUnderfundedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_underfunded_total",
				Help: "Total number of builds rejected because the fee payer balance was too low",
			},
		),
		profileCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_profile_cache_lookups_total",
				Help: "Creator profile cache lookups by result",
			},
			[]string{"result"},
		),
		cosignSubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cosign_submissions_total",
				Help: "Total number of co-signed submissions by outcome",
			},
			[]string{"outcome"},
		),

		// Watcher Metrics
		watchResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watch_results_total",
				Help: "Total number of confirmation watches by final status",
			},
			[]string{"status"},
		),
		watchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watch_duration_seconds",
				Help:    "Time from watch start to a terminal or given-up status",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"status"},
		),

		// Workflow Metrics
		watchWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watch_workflow_executions_total",
				Help: "Total number of tip watch workflow executions",
			},
			[]string{"status"},
		),
		watchActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watch_activity_duration_seconds",
				Help:    "Duration of tip watch workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
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
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
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

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// Relay metric helpers

// RecordBuild records a gasless build attempt. outcome is "success" or a
// failure kind.
func (m *Metrics) RecordBuild(route, outcome string, duration float64) {
	m.relayBuildsTotal.WithLabelValues(route, outcome).Inc()
	m.relayBuildDuration.WithLabelValues(route).Observe(duration)
}

// RecordAccountCreated records a build that pays for a recipient token account.
func (m *Metrics) RecordAccountCreated() {
	m.relayAccountsCreated.Inc()
}

// RecordFeePayerBalance records the latest observed fee payer balance.
func (m *Metrics) RecordFeePayerBalance(lamports uint64) {
	m.relayFeePayerBalance.Set(float64(lamports))
}

// RecordUnderfunded records a build rejected for an underfunded fee payer.
func (m *Metrics) RecordUnderfunded() {
	m.relayUnderfundedTotal.Inc()
}

// RecordProfileCacheLookup records a profile cache hit or miss.
func (m *Metrics) RecordProfileCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.profileCacheLookups.WithLabelValues(result).Inc()
}

// RecordCoSign records the outcome of a co-sign and submit.
func (m *Metrics) RecordCoSign(outcome string) {
	m.cosignSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// Watcher metric helpers

// RecordWatch records a finished confirmation watch.
func (m *Metrics) RecordWatch(status string, duration float64) {
	m.watchResultsTotal.WithLabelValues(status).Inc()
	m.watchDuration.WithLabelValues(status).Observe(duration)
}

// Workflow metric helpers

// RecordWorkflowExecution records a finished tip watch workflow.
func (m *Metrics) RecordWorkflowExecution(status string) {
	m.watchWorkflowExecutionsTotal.WithLabelValues(status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.watchActivityDuration.WithLabelValues(activity).Observe(duration)
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

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
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
