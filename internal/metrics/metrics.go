// Package metrics registers the prometheus instruments the core emits:
// investigation duration by tier, tier-usage counters, completeness
// histograms, cache hit/miss counters, and circuit-breaker state
// gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "incidentpilot",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Number of cache key lookups that found a value.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "incidentpilot",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Number of cache key lookups that found nothing.",
	})

	InvestigationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "incidentpilot",
		Subsystem: "investigation",
		Name:      "duration_seconds",
		Help:      "Investigation wall-clock duration, labeled by tier.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tier"})

	TierUsage = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incidentpilot",
		Subsystem: "investigation",
		Name:      "tier_usage_total",
		Help:      "Number of investigations run at each tier.",
	}, []string{"tier"})

	EvidenceCompleteness = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "incidentpilot",
		Subsystem: "investigation",
		Name:      "completeness_ratio",
		Help:      "Distribution of evidence bundle completeness scores.",
		Buckets:   []float64{0, 0.25, 0.5, 0.6, 0.75, 0.9, 1.0},
	})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "incidentpilot",
		Subsystem: "llm",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0=closed, 1=open, 2=half-open.",
	}, []string{"breaker"})

	LLMCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "incidentpilot",
		Subsystem: "llm",
		Name:      "cache_hits_total",
		Help:      "Number of analysis calls served from the prompt cache.",
	})

	AnalysisFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "incidentpilot",
		Subsystem: "llm",
		Name:      "fallback_total",
		Help:      "Number of analyses that used the deterministic fallback template.",
	})
)
