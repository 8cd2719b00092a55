// Package metrics defines the crmdex Prometheus metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search and indexing metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crmdex",
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"mode", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crmdex",
			Name:      "search_duration_seconds",
			Help:      "Search request duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	// SubSearchDegradedTotal counts hybrid sub-searches that failed and were
	// degraded to empty. Degradation is invisible in the response; this is
	// the only place it surfaces.
	SubSearchDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crmdex",
			Name:      "sub_search_degraded_total",
			Help:      "Hybrid sub-searches degraded to empty results",
		},
		[]string{"engine"}, // "text" / "vector"
	)

	IndexEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crmdex",
			Name:      "index_events_total",
			Help:      "Change-capture events processed",
		},
		[]string{"operation", "status"},
	)

	IndexEventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crmdex",
			Name:      "index_event_duration_seconds",
			Help:      "Change event processing duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	WatchedPartitions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crmdex",
			Name:      "watched_partitions",
			Help:      "Number of live change-feed subscriptions",
		},
	)
)

// Embedding metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crmdex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crmdex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crmdex",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var metricsRegistered bool

// Register registers all crmdex metrics. Must be called once from main.
func Register() {
	if metricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SubSearchDegradedTotal)
	prometheus.MustRegister(IndexEventsTotal)
	prometheus.MustRegister(IndexEventDuration)
	prometheus.MustRegister(WatchedPartitions)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingCacheTotal)
	metricsRegistered = true
}
