package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prompt agent metrics for production monitoring
var (
	// Optimization run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_agent_runs_total",
			Help: "Total number of optimization runs by outcome",
		},
		[]string{"model_type", "status"}, // status: completed/degraded/cancelled/rejected
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_agent_run_duration_seconds",
			Help:    "Optimization run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
		[]string{"model_type"},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_agent_step_duration_seconds",
			Help:    "Duration of a single optimization step",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"stage"},
	)

	StepFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_agent_step_fallbacks_total",
			Help: "Total number of steps that substituted their fallback value",
		},
		[]string{"stage"},
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_agent_llm_requests_total",
			Help: "Total number of LLM API requests",
		},
		[]string{"provider", "model", "status"},
	)

	LLMRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_agent_llm_retries_total",
			Help: "Total number of retried LLM API attempts",
		},
		[]string{"provider"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_agent_llm_tokens_total",
			Help: "Estimated number of LLM tokens exchanged",
		},
		[]string{"provider", "model", "type"}, // type: input/output
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_agent_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider", "model"},
	)

	ModelHandlesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_agent_model_handles_created_total",
			Help: "Total number of model handles constructed by the registry",
		},
		[]string{"provider"},
	)

	BudgetRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_agent_budget_rejections_total",
			Help: "Total number of model calls refused because the daily budget was spent",
		},
		[]string{"provider"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_agent_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_agent_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prompt_agent_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	UnauthorizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prompt_agent_unauthorized_total",
			Help: "Total number of requests rejected for a missing or unknown API key",
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prompt_agent_active_streams",
			Help: "Number of open WebSocket progress streams",
		},
	)
)
