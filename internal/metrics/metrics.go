// Package metrics provides Prometheus metrics for the research agent.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Retrieval outcomes.
const (
	OutcomeHit   = "hit"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
	OutcomeOK    = "ok"
)

// Policy actions.
const (
	PolicyDeclined           = "declined"
	PolicyDisclaimerRewrite  = "disclaimer_regenerated"
	PolicyDisclaimerInjected = "disclaimer_injected"
)

// Metrics holds all Prometheus metrics for the research agent.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RetrievalsTotal        *prometheus.CounterVec
	RetrievalDuration      prometheus.Histogram
	EmbeddingAttemptsTotal *prometheus.CounterVec
	GenerationsTotal       *prometheus.CounterVec
	GenerationDuration     prometheus.Histogram
	ToolCallsTotal         *prometheus.CounterVec
	PolicyActionsTotal     *prometheus.CounterVec
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	DocumentsIngestedTotal *prometheus.CounterVec
	ActiveSessions         prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a fresh registry, together with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RetrievalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_retrievals_total",
				Help: "Total number of retrievals by outcome",
			},
			[]string{"outcome"},
		),
		RetrievalDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "research_retrieval_duration_seconds",
				Help:    "Duration of retrievals including embedding retries",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		EmbeddingAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_embedding_attempts_total",
				Help: "Total number of query embedding attempts by outcome",
			},
			[]string{"outcome"},
		),
		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_generations_total",
				Help: "Total number of generation calls by outcome",
			},
			[]string{"outcome"},
		),
		GenerationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "research_generation_duration_seconds",
				Help:    "Duration of generation calls",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_tool_calls_total",
				Help: "Total number of tool calls requested by the model",
			},
			[]string{"tool"},
		),
		PolicyActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_policy_actions_total",
				Help: "Total number of compliance policy actions",
			},
			[]string{"action"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "research_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		DocumentsIngestedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_documents_ingested_total",
				Help: "Total number of report files processed by outcome",
			},
			[]string{"outcome"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "research_active_sessions",
				Help: "Number of conversation sessions held in memory",
			},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRetrieval records one retrieval call.
func (m *Metrics) ObserveRetrieval(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RetrievalsTotal.WithLabelValues(outcome).Inc()
	m.RetrievalDuration.Observe(d.Seconds())
}

// ObserveEmbeddingAttempt records one query embedding attempt.
func (m *Metrics) ObserveEmbeddingAttempt(outcome string) {
	if m == nil {
		return
	}
	m.EmbeddingAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGeneration records one generation call.
func (m *Metrics) ObserveGeneration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(outcome).Inc()
	m.GenerationDuration.Observe(d.Seconds())
}

// ObserveToolCall records a tool call requested by the model.
func (m *Metrics) ObserveToolCall(tool string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool).Inc()
}

// ObservePolicyAction records a compliance policy action.
func (m *Metrics) ObservePolicyAction(action string) {
	if m == nil {
		return
	}
	m.PolicyActionsTotal.WithLabelValues(action).Inc()
}

// ObserveHTTPRequest records a served HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveDocument records the outcome of ingesting one report file.
func (m *Metrics) ObserveDocument(outcome string) {
	if m == nil {
		return
	}
	m.DocumentsIngestedTotal.WithLabelValues(outcome).Inc()
}

// SetActiveSessions updates the in-memory session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
