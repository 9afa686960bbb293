package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/brojonat/txexplorer/client"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Remote API Metrics
	apiCallsTotal   *prometheus.CounterVec
	apiCallDuration *prometheus.HistogramVec

	// Resolution Metrics
	probeAttemptsTotal *prometheus.CounterVec
	pagesServedTotal   *prometheus.CounterVec

	// Live Feed Metrics
	feedEventsTotal *prometheus.CounterVec

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

	// Temporal Metrics
	activityDuration      *prometheus.HistogramVec
	blocksBackfilledTotal *prometheus.CounterVec
	archiveRowsPruned     prometheus.Counter
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Remote API Metrics
		apiCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "explorer_api_calls_total",
				Help: "Total number of blockchain-data API calls by endpoint, network and status",
			},
			[]string{"endpoint", "network", "status"},
		),
		apiCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "explorer_api_call_duration_seconds",
				Help:    "Duration of blockchain-data API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0},
			},
			[]string{"endpoint"},
		),

		// Resolution Metrics
		probeAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "explorer_probe_attempts_total",
				Help: "Total number of single-network probes by kind, network and result",
			},
			[]string{"kind", "network", "result"},
		),
		pagesServedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "explorer_pages_served_total",
				Help: "Total number of explorer pages resolved by requested and shown view",
			},
			[]string{"requested", "shown"},
		),

		// Live Feed Metrics
		feedEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "explorer_feed_events_total",
				Help: "Total number of live feed events by type, network and outcome",
			},
			[]string{"type", "network", "outcome"},
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
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10.0},
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
			[]string{"network", "event_type"},
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

		// Temporal Metrics
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "temporal_activity_duration_seconds",
				Help:    "Duration of Temporal activities in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"activity"},
		),
		blocksBackfilledTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "explorer_blocks_backfilled_total",
				Help: "Total number of network tip blocks archived by the backfill workflow",
			},
			[]string{"network"},
		),
		archiveRowsPruned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "explorer_archive_rows_pruned_total",
				Help: "Total number of archive rows deleted by retention pruning",
			},
		),
	}
}

// Remote API metric helpers

// ObserveAPICall records an API call. API-level misses are counted apart
// from transport and server errors. It satisfies client.Observer.
func (m *Metrics) ObserveAPICall(endpoint, network string, err error, started time.Time) {
	status := "success"
	switch {
	case errors.Is(err, client.ErrMiss):
		status = "miss"
	case err != nil:
		status = "error"
	}
	m.apiCallsTotal.WithLabelValues(endpoint, networkLabel(network), status).Inc()
	m.apiCallDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
}

// Resolution metric helpers

// RecordProbe records one single-network probe.
func (m *Metrics) RecordProbe(kind, network string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.probeAttemptsTotal.WithLabelValues(kind, networkLabel(network), result).Inc()
}

// RecordPage records a resolved page by the view that was requested and
// the view that was shown.
func (m *Metrics) RecordPage(requested, shown string) {
	m.pagesServedTotal.WithLabelValues(requested, shown).Inc()
}

// Live feed metric helpers

// RecordFeedEvent records the outcome of one live feed event.
func (m *Metrics) RecordFeedEvent(eventType, network, outcome string) {
	m.feedEventsTotal.WithLabelValues(eventType, networkLabel(network), outcome).Inc()
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
func (m *Metrics) RecordSSEEventSent(network, eventType string) {
	m.sseEventsSent.WithLabelValues(networkLabel(network), eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Temporal metric helpers

// RecordActivityDuration records how long an activity took.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.activityDuration.WithLabelValues(activity).Observe(duration)
}

// RecordBlocksBackfilled records tip blocks archived for a network.
func (m *Metrics) RecordBlocksBackfilled(network string, count int) {
	m.blocksBackfilledTotal.WithLabelValues(networkLabel(network)).Add(float64(count))
}

// RecordArchivePruned records rows deleted by retention pruning.
func (m *Metrics) RecordArchivePruned(count int64) {
	m.archiveRowsPruned.Add(float64(count))
}

// Helper functions

func networkLabel(network string) string {
	if network == "" {
		return "any"
	}
	return network
}

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
