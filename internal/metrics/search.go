package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Search Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simsearch",
			Name:      "search_requests_total",
			Help:      "Total number of similarity searches",
		},
		[]string{"dataset", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simsearch",
			Name:      "search_duration_seconds",
			Help:      "Similarity search duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"dataset"},
	)

	SearchResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simsearch",
			Name:      "search_results",
			Help:      "Number of matches returned per search",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"dataset"},
	)

	DocumentsUpsertedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simsearch",
			Name:      "documents_upserted_total",
			Help:      "Total documents written to the store",
		},
		[]string{"dataset"},
	)

	ReindexTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simsearch",
			Name:      "reindex_total",
			Help:      "Total dataset reindex operations",
		},
		[]string{"dataset", "status"},
	)
)

var registerSearchOnce sync.Once

// RegisterSearchMetrics registers the search metrics with the default registry.
// Safe to call more than once.
func RegisterSearchMetrics() {
	registerSearchOnce.Do(func() {
		prometheus.MustRegister(SearchRequestsTotal)
		prometheus.MustRegister(SearchDuration)
		prometheus.MustRegister(SearchResults)
		prometheus.MustRegister(DocumentsUpsertedTotal)
		prometheus.MustRegister(ReindexTotal)
	})
}

// ObserveSearch records one search outcome.
func ObserveSearch(dataset string, seconds float64, results int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	SearchRequestsTotal.WithLabelValues(dataset, status).Inc()
	if err != nil {
		return
	}
	SearchDuration.WithLabelValues(dataset).Observe(seconds)
	SearchResults.WithLabelValues(dataset).Observe(float64(results))
}
