// Package metrics exposes Prometheus instrumentation for the API,
// analysis pipeline, suggestion lifecycle, LLM adapter and scheduler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every collector behind one Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	AnalysisRuns     *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	SignalsEmitted   *prometheus.CounterVec
	SignalsDeduped   prometheus.Counter

	SuggestionTransitions *prometheus.CounterVec
	FeedbackDecisions     *prometheus.CounterVec

	LLMRequests prometheus.Counter
	LLMFailures prometheus.Counter
	LLMRetries  prometheus.Counter

	SchedulerRuns         *prometheus.CounterVec
	SchedulerUserFailures prometheus.Counter
}

// New builds a registry with Go runtime and process collectors plus the
// application series.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	return &Registry{
		reg: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finpulse_http_requests_total",
			Help: "HTTP requests by method, route and status class.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finpulse_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AnalysisRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finpulse_analysis_runs_total",
			Help: "Per-user analysis runs by outcome.",
		}, []string{"result"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "finpulse_analysis_duration_seconds",
			Help:    "Full analysis pipeline duration per user.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SignalsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finpulse_signals_emitted_total",
			Help: "Signals stored by type.",
		}, []string{"type"}),
		SignalsDeduped: factory.NewCounter(prometheus.CounterOpts{
			Name: "finpulse_signals_deduplicated_total",
			Help: "Signals skipped because an active duplicate exists.",
		}),
		SuggestionTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finpulse_suggestion_transitions_total",
			Help: "Suggestion state transitions by from and to status.",
		}, []string{"from", "to"}),
		FeedbackDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finpulse_feedback_decisions_total",
			Help: "User feedback decisions by kind.",
		}, []string{"decision"}),
		LLMRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "finpulse_llm_requests_total",
			Help: "LLM generate calls attempted.",
		}),
		LLMFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "finpulse_llm_failures_total",
			Help: "LLM calls that exhausted retries or failed validation.",
		}),
		LLMRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "finpulse_llm_retries_total",
			Help: "LLM transport retries.",
		}),
		SchedulerRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finpulse_scheduler_runs_total",
			Help: "Scheduler job executions by job and outcome.",
		}, []string{"job", "result"}),
		SchedulerUserFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "finpulse_scheduler_user_failures_total",
			Help: "Per-user failures inside scheduled batches.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
