package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "survey_analysis_duration_seconds",
			Help:    "Holistic analysis duration in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"survey_type"},
	)

	AnalysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_analysis_total",
			Help: "Total number of analysis runs",
		},
		[]string{"survey_type", "status"},
	)

	SecondaryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_secondary_analysis_failures_total",
			Help: "Secondary analyses (correlation, cohort) that failed and were omitted",
		},
		[]string{"analysis"},
	)

	FallbacksUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_ai_fallbacks_total",
			Help: "Deterministic fallbacks substituted for failed model calls",
		},
		[]string{"component"},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_llm_requests_total",
			Help: "Completion requests by profile and outcome",
		},
		[]string{"profile", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_llm_tokens_used_total",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "survey_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "survey_insight_confidence_score",
			Help:    "Confidence of generated holistic insights",
			Buckets: []float64{0.5, 0.6, 0.75, 0.85, 0.95, 1.0},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"analysis_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"analysis_type"},
	)

	RecordsImported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_records_imported_total",
			Help: "Records imported into the survey store",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AnalysisDuration,
			AnalysisTotal,
			SecondaryFailures,
			FallbacksUsed,
			LLMRequests,
			LLMTokensUsed,
			BreakerState,
			ConfidenceScore,
			CacheHits,
			CacheMisses,
			RecordsImported,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
