package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initRetrievalMetrics initializes memory retrieval metrics.
func (m *Manager) initRetrievalMetrics(cfg Config) {
	m.retrievalQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_queries_total",
			Help: "Total number of retrieval queries by collection",
		},
		[]string{"collection"},
	)

	m.retrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retrieval_query_duration_seconds",
			Help:    "Retrieval query duration in seconds",
			Buckets: cfg.RetrievalDurationBuckets,
		},
		[]string{"collection"},
	)

	m.retrievalResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retrieval_result_count",
			Help:    "Number of records returned per retrieval query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"collection"},
	)

	m.registry.MustRegister(m.retrievalQueries)
	m.registry.MustRegister(m.retrievalDuration)
	m.registry.MustRegister(m.retrievalResults)
}

// RecordRetrievalQuery records a retrieval query against a collection.
func (m *Manager) RecordRetrievalQuery(collection string) {
	if !m.enabled {
		return
	}
	m.retrievalQueries.WithLabelValues(collection).Inc()
}

// RecordRetrievalDuration records how long a retrieval query took.
func (m *Manager) RecordRetrievalDuration(collection string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.retrievalDuration.WithLabelValues(collection).Observe(duration.Seconds())
}

// ObserveRetrievalResults records the result count of a retrieval query.
func (m *Manager) ObserveRetrievalResults(collection string, count int) {
	if !m.enabled {
		return
	}
	m.retrievalResults.WithLabelValues(collection).Observe(float64(count))
}
