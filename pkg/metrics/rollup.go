package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initRollupMetrics initializes roll-up pipeline metrics.
func (m *Manager) initRollupMetrics(cfg Config) {
	m.rollupWindows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollup_windows_total",
			Help: "Total number of roll-up windows processed by tier and status",
		},
		[]string{"tier", "status"},
	)

	m.rollupWindowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollup_window_duration_seconds",
			Help:    "Roll-up window processing duration in seconds",
			Buckets: cfg.WindowDurationBuckets,
		},
		[]string{"tier"},
	)

	m.promotions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_promotions_total",
			Help: "Total number of events promoted into vector collections",
		},
		[]string{"collection"},
	)

	m.eventsAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_appended_total",
			Help: "Total number of events appended to the journal by tier",
		},
		[]string{"tier"},
	)

	m.registry.MustRegister(m.rollupWindows)
	m.registry.MustRegister(m.rollupWindowDuration)
	m.registry.MustRegister(m.promotions)
	m.registry.MustRegister(m.eventsAppended)
}

// WindowProcessed records a successfully processed roll-up window.
func (m *Manager) WindowProcessed(tier string) {
	if !m.enabled {
		return
	}
	m.rollupWindows.WithLabelValues(tier, "ok").Inc()
}

// WindowFailed records a failed roll-up window.
func (m *Manager) WindowFailed(tier string) {
	if !m.enabled {
		return
	}
	m.rollupWindows.WithLabelValues(tier, "error").Inc()
}

// EventPromoted records an event promoted into a vector collection.
func (m *Manager) EventPromoted(collection string) {
	if !m.enabled {
		return
	}
	m.promotions.WithLabelValues(collection).Inc()
}

// RecordWindowDuration records how long a roll-up window took to process.
func (m *Manager) RecordWindowDuration(tier string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.rollupWindowDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// RecordEventAppended records an event appended to the journal.
func (m *Manager) RecordEventAppended(tier string) {
	if !m.enabled {
		return
	}
	m.eventsAppended.WithLabelValues(tier).Inc()
}
