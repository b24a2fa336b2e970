package realtime

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects ingestion and polling counters on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	UpdatesTotal    *prometheus.CounterVec // labels: feed, result
	RejectionsTotal *prometheus.CounterVec // label: cause
	CommitsTotal    prometheus.Counter
	SnapshotVersion prometheus.Gauge
	PollDuration    prometheus.Histogram
	PollErrors      prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		UpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wayfarer_trip_updates_total",
			Help: "Trip updates processed, by feed and result.",
		}, []string{"feed", "result"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wayfarer_trip_update_rejections_total",
			Help: "Rejected trip updates by cause.",
		}, []string{"cause"}),
		CommitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wayfarer_snapshot_commits_total",
			Help: "Realtime batches committed as new snapshot versions.",
		}),
		SnapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wayfarer_snapshot_version",
			Help: "Version of the currently published snapshot.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wayfarer_feed_poll_duration_seconds",
			Help:    "Duration of one feed fetch and ingest cycle.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wayfarer_feed_poll_errors_total",
			Help: "Failed feed fetch or decode attempts.",
		}),
	}

	reg.MustRegister(
		m.UpdatesTotal, m.RejectionsTotal, m.CommitsTotal,
		m.SnapshotVersion, m.PollDuration, m.PollErrors,
	)
	return m
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) observeUpdate(feed, result string) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(feed, result).Inc()
}

func (m *Metrics) observeRejection(cause RejectionCause) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(cause.String()).Inc()
}

func (m *Metrics) observeCommit(version uint64) {
	if m == nil {
		return
	}
	m.CommitsTotal.Inc()
	m.SnapshotVersion.Set(float64(version))
}
