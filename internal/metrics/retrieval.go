package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval Prometheus metrics, labeled by the stage that produced the
// final result set.
var (
	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classnav",
			Name:      "retrieval_requests_total",
			Help:      "Total retrieval requests by winning stage",
		},
		[]string{"stage"}, // code, vector, hybrid, fallback, empty
	)

	RetrievalResultCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "classnav",
			Name:      "retrieval_result_count",
			Help:      "Number of results returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 20},
		},
	)

	KeywordFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "classnav",
			Name:      "keyword_fallback_total",
			Help:      "Times the keyword fallback stage was triggered",
		},
	)

	HallucinationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "classnav",
			Name:      "hallucinations_dropped_total",
			Help:      "Generated recommendations dropped by the allow-list filter",
		},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalRequestsTotal)
	prometheus.MustRegister(RetrievalResultCount)
	prometheus.MustRegister(KeywordFallbackTotal)
	prometheus.MustRegister(HallucinationsDropped)
	retrievalMetricsRegistered = true
}
