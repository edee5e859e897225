// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bsc-token-scout/internal/domain"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "bsc_token_scout"

// Metrics holds all Prometheus metrics for the application. It implements the
// observer interfaces of the evm, explorer, ingestion and queue packages.
type Metrics struct {
	// Feed metrics
	EventsReceived  *prometheus.CounterVec
	EventsMalformed *prometheus.CounterVec
	EventsSkipped   *prometheus.CounterVec
	Candidates      prometheus.Counter
	FeedConnection  prometheus.Gauge

	// Queue metrics
	QueueDepth       prometheus.Gauge
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram

	// Upstream metrics
	RPCLatency      *prometheus.HistogramVec
	RPCErrors       *prometheus.CounterVec
	RPCTrips        *prometheus.CounterVec
	ExplorerCalls   *prometheus.CounterVec
	ExplorerLatency *prometheus.HistogramVec

	// Storage metrics
	StoreErrors *prometheus.CounterVec
	TokensSaved prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics registers all metrics on reg. A nil reg uses a fresh registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_received_total",
			Help:      "Total number of pair creation events received by source",
		}, []string{"source"}),
		EventsMalformed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_malformed_total",
			Help:      "Total number of undecodable pair creation logs by source",
		}, []string{"source"}),
		EventsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_skipped_total",
			Help:      "Total number of events that produced no candidate by reason",
		}, []string{"reason"}),
		Candidates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "candidates_total",
			Help:      "Total number of candidate tokens resolved",
		}),
		FeedConnection: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connection_state",
			Help:      "Push feed connection state (0=disconnected, 1=connecting, 2=connected)",
		}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of tokens waiting for analysis",
		}),
		AnalysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "analyses_total",
			Help:      "Total number of analyses run by status",
		}, []string{"status"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "analysis_duration_seconds",
			Help:      "Duration of a full token analysis",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		RPCLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "Latency of JSON-RPC calls",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		RPCErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "errors_total",
			Help:      "Total number of failed JSON-RPC calls by endpoint",
		}, []string{"endpoint"}),
		RPCTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of circuit breaker trips by endpoint",
		}, []string{"endpoint"}),
		ExplorerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "explorer",
			Name:      "calls_total",
			Help:      "Total number of explorer API calls by action and status",
		}, []string{"action", "status"}),
		ExplorerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "explorer",
			Name:      "call_latency_seconds",
			Help:      "Latency of explorer API calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"action"}),

		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total number of storage errors by store and operation",
		}, []string{"store", "operation"}),
		TokensSaved: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "tokens",
			Help:      "Number of tokens in the token store",
		}),

		gatherer: reg,
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveEvent implements ingestion.Observer.
func (m *Metrics) ObserveEvent(source domain.FeedSource) {
	m.EventsReceived.WithLabelValues(string(source)).Inc()
}

// ObserveMalformed implements ingestion.Observer.
func (m *Metrics) ObserveMalformed(source domain.FeedSource) {
	m.EventsMalformed.WithLabelValues(string(source)).Inc()
}

// ObserveSkip implements ingestion.Observer.
func (m *Metrics) ObserveSkip(reason string) {
	m.EventsSkipped.WithLabelValues(reason).Inc()
}

// ObserveCandidate implements ingestion.Observer.
func (m *Metrics) ObserveCandidate() {
	m.Candidates.Inc()
}

// ObserveConnection records the push feed state.
func (m *Metrics) ObserveConnection(state domain.ConnectionState) {
	var v float64
	switch state {
	case domain.StateConnecting:
		v = 1
	case domain.StateConnected:
		v = 2
	}
	m.FeedConnection.Set(v)
}

// ObserveQueueDepth implements queue.Observer.
func (m *Metrics) ObserveQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// ObserveAnalysis implements queue.Observer.
func (m *Metrics) ObserveAnalysis(status string, d time.Duration) {
	m.AnalysesTotal.WithLabelValues(status).Inc()
	m.AnalysisDuration.Observe(d.Seconds())
}

// ObserveRPC implements evm.Observer. Endpoint is only used as an error
// label to keep latency cardinality bounded.
func (m *Metrics) ObserveRPC(method, endpoint string, d time.Duration, err error) {
	m.RPCLatency.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		m.RPCErrors.WithLabelValues(endpoint).Inc()
	}
}

// ObserveTrip implements evm.Observer.
func (m *Metrics) ObserveTrip(endpoint string) {
	m.RPCTrips.WithLabelValues(endpoint).Inc()
}

// ObserveExplorer implements explorer.Observer.
func (m *Metrics) ObserveExplorer(action string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ExplorerCalls.WithLabelValues(action, status).Inc()
	m.ExplorerLatency.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveStoreError counts a failed storage operation. Context cancellation
// is not counted.
func (m *Metrics) ObserveStoreError(store, operation string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	m.StoreErrors.WithLabelValues(store, operation).Inc()
}

// SetTokens records the token store size.
func (m *Metrics) SetTokens(n int) {
	m.TokensSaved.Set(float64(n))
}
