package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	apiErrorsTotal         *prometheus.CounterVec
	transactionsTotal      *prometheus.CounterVec
	executionSeconds       *prometheus.HistogramVec
	eventsPublishedTotal   *prometheus.CounterVec
	eventPublishErrorTotal *prometheus.CounterVec
	creditsCacheTotal      *prometheus.CounterVec
	eventStreamClients     prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the ledger service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		transactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Executed contract calls by method and outcome.",
		}, []string{"method", "status"})

		executionSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_execution_seconds",
			Help:    "Time spent executing contract calls, including the sequencer lock.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"method"})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_events_published_total",
			Help: "Ledger events handed to the event bus.",
		}, []string{"name"})

		eventPublishErrorTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_event_publish_errors_total",
			Help: "Failed attempts to publish ledger events.",
		}, []string{"sink"})

		creditsCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_credits_cache_total",
			Help: "Credit summary cache lookups by result.",
		}, []string{"result"})

		eventStreamClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_event_stream_clients",
			Help: "Active websocket event stream subscribers.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			transactionsTotal,
			executionSeconds,
			eventsPublishedTotal,
			eventPublishErrorTotal,
			creditsCacheTotal,
			eventStreamClients,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// Transactions exposes the executed transaction counter.
func Transactions() *prometheus.CounterVec {
	RegisterMetrics()
	return transactionsTotal
}

// ExecutionLatency exposes the execution latency histogram.
func ExecutionLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return executionSeconds
}

// EventsPublished exposes the published events counter.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}

// EventPublishErrors exposes the publish failure counter.
func EventPublishErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return eventPublishErrorTotal
}

// CreditsCache exposes the credit cache lookup counter.
func CreditsCache() *prometheus.CounterVec {
	RegisterMetrics()
	return creditsCacheTotal
}

// EventStreamClients exposes the websocket subscriber gauge.
func EventStreamClients() prometheus.Gauge {
	RegisterMetrics()
	return eventStreamClients
}
