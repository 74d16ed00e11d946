// Package metrics holds all Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics registers and exposes the engine's instruments. It satisfies the
// resolver's observer interface.
type Metrics struct {
	Resolutions        *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram
	OrphansEnded       prometheus.Counter
	Events             *prometheus.CounterVec
	EntriesCreated     prometheus.Counter
}

// New creates and registers all metrics against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dirsync_resolutions_total",
			Help: "Resolution outcomes by decision",
		}, []string{"outcome"}),
		ResolutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dirsync_resolution_duration_seconds",
			Help:    "End-to-end resolution latency",
			Buckets: prometheus.DefBuckets,
		}),
		OrphansEnded: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirsync_orphaned_records_ended_total",
			Help: "Correlation records end-dated because their target disappeared",
		}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dirsync_events_total",
			Help: "Consumed events by topic and result",
		}, []string{"topic", "result"}),
		EntriesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirsync_directory_entries_created_total",
			Help: "Directory entries created by the engine",
		}),
	}
}

func (m *Metrics) ObserveResolution(outcome string, took time.Duration) {
	m.Resolutions.WithLabelValues(outcome).Inc()
	m.ResolutionDuration.Observe(took.Seconds())
}

func (m *Metrics) OrphanEnded() {
	m.OrphansEnded.Inc()
}

// EventHandled records one consumed event. Result is one of ok, retried,
// dropped.
func (m *Metrics) EventHandled(topic, result string) {
	m.Events.WithLabelValues(topic, result).Inc()
}

func (m *Metrics) EntryCreated() {
	m.EntriesCreated.Inc()
}
