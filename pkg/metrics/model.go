package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initModelMetrics initializes chat model and embedding metrics.
func (m *Manager) initModelMetrics(cfg Config) {
	m.modelRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_requests_total",
			Help: "Total number of chat model requests by model and status",
		},
		[]string{"model", "status"},
	)

	m.modelDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "model_request_duration_seconds",
			Help:    "Chat model request duration in seconds",
			Buckets: cfg.ModelDurationBuckets,
		},
		[]string{"model"},
	)

	m.embeddingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_requests_total",
			Help: "Total number of embedding requests by status",
		},
		[]string{"status"},
	)

	m.embeddingBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedding_batch_size",
			Help:    "Number of texts per embedding request",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	m.registry.MustRegister(m.modelRequests)
	m.registry.MustRegister(m.modelDuration)
	m.registry.MustRegister(m.embeddingRequests)
	m.registry.MustRegister(m.embeddingBatchSize)
}

// RecordModelRequest records a chat model request outcome.
func (m *Manager) RecordModelRequest(model, status string) {
	if !m.enabled {
		return
	}
	m.modelRequests.WithLabelValues(model, status).Inc()
}

// RecordModelDuration records how long a chat model request took.
func (m *Manager) RecordModelDuration(model string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.modelDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordEmbeddingRequest records an embedding request outcome.
func (m *Manager) RecordEmbeddingRequest(status string) {
	if !m.enabled {
		return
	}
	m.embeddingRequests.WithLabelValues(status).Inc()
}

// ObserveEmbeddingBatch records the size of an embedding batch.
func (m *Manager) ObserveEmbeddingBatch(size int) {
	if !m.enabled {
		return
	}
	m.embeddingBatchSize.Observe(float64(size))
}
