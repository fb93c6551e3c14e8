package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devflow_http_requests_total",
			Help: "HTTP API requests by route and status code",
		},
		[]string{"route", "code"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devflow_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	githubCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devflow_github_calls_total",
			Help: "GitHub REST calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	llmCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devflow_llm_calls_total",
			Help: "LLM completions by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	llmDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devflow_llm_call_duration_seconds",
			Help:    "LLM completion latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
		[]string{"provider"},
	)

	rollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devflow_rollbacks_total",
			Help: "Rollback executions by outcome",
		},
		[]string{"outcome"},
	)

	riskLevels = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devflow_rollback_risk_assessments_total",
			Help: "Rollback safety assessments by risk level",
		},
		[]string{"risk_level"},
	)

	pushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devflow_push_events_total",
			Help: "Observed pushes by result (new, duplicate, stale)",
		},
		[]string{"result"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveHTTP(route string, code string, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func ObserveGitHub(op string, err error) {
	githubCalls.WithLabelValues(op, outcome(err)).Inc()
}

func ObserveLLM(provider string, elapsed time.Duration, err error) {
	llmCalls.WithLabelValues(provider, outcome(err)).Inc()
	llmDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveRollback records an execute outcome: "pr", "manual", or "failed".
func ObserveRollback(result string) {
	rollbacks.WithLabelValues(result).Inc()
}

func ObserveRisk(level string) {
	riskLevels.WithLabelValues(level).Inc()
}

func ObservePush(result string) {
	pushes.WithLabelValues(result).Inc()
}
