package metrics

import "github.com/prometheus/client_golang/prometheus"

// Capability Prometheus metrics. Every provider attempt made by a
// fallback chain, success or failure, is counted here; this is the
// status-event surface exposed to external monitoring.
var (
	CapabilityAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripmatch",
			Name:      "capability_attempts_total",
			Help:      "Capability provider attempts by task, provider and outcome",
		},
		[]string{"task", "provider", "outcome"}, // outcome: success | timeout | error | malformed
	)

	CapabilityAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tripmatch",
			Name:      "capability_attempt_duration_seconds",
			Help:      "Capability provider attempt latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"task", "provider"},
	)

	CapabilityFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripmatch",
			Name:      "capability_fallbacks_total",
			Help:      "Times a component fell back to its deterministic path",
		},
		[]string{"component"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripmatch",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripmatch",
			Name:      "turns_total",
			Help:      "Conversation turns processed by outcome",
		},
		[]string{"outcome"}, // success | interrupted | disconnected
	)

	CatalogOffers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tripmatch",
			Name:      "catalog_offers",
			Help:      "Offers in the current catalog snapshot",
		},
	)
)

// RegisterCapabilityMetrics registers all capability metrics with the
// default registry. Called explicitly from the composition root (no init).
func RegisterCapabilityMetrics() {
	prometheus.MustRegister(
		CapabilityAttemptsTotal,
		CapabilityAttemptDuration,
		CapabilityFallbacksTotal,
		EmbeddingCacheTotal,
		TurnsTotal,
		CatalogOffers,
	)
}
