// Package metrics exposes Prometheus collectors for the ring pool and
// the transport layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups every collector ringcast-server registers.
type Registry struct {
	PublishesTotal     prometheus.Counter
	PublishFailedTotal prometheus.Counter
	ConflationsTotal   prometheus.Gauge
	BorrowsTotal       prometheus.Counter
	BorrowFailedTotal  prometheus.Counter
	ClonesTotal        prometheus.Counter
	CloneFailedTotal   prometheus.Counter
	ActiveReceivers    prometheus.Gauge
	ActiveConnections  prometheus.Gauge
	PublishSeconds     prometheus.Histogram
}

// NewRegistry constructs and registers every collector against the
// default Prometheus registry.
func NewRegistry() *Registry {
	return &Registry{
		PublishesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ringcast_publishes_total",
			Help: "Total number of frames accepted by Sender.Publish.",
		}),
		PublishFailedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ringcast_publish_failed_total",
			Help: "Total number of Sender.Publish calls that failed because the pool had no receivers.",
		}),
		ConflationsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ringcast_conflations_total",
			Help: "Cumulative number of publishes that had to overwrite the last-written segment because every other one was pinned, mirrored from Sender.Stats.",
		}),
		BorrowsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ringcast_borrows_total",
			Help: "Total number of successful Receiver.Borrow calls.",
		}),
		BorrowFailedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ringcast_borrow_failed_total",
			Help: "Total number of Receiver.Borrow calls that failed because the sender was closed.",
		}),
		ClonesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ringcast_clones_total",
			Help: "Total number of successful Receiver.Clone calls.",
		}),
		CloneFailedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ringcast_clone_failed_total",
			Help: "Total number of Receiver.Clone calls rejected because the pool reached MaxSegments.",
		}),
		ActiveReceivers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ringcast_active_receivers",
			Help: "Current number of live receiver handles on the pool.",
		}),
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ringcast_active_connections",
			Help: "Current number of open transport connections.",
		}),
		PublishSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ringcast_publish_seconds",
			Help:    "Duration of each Sender.Publish call, from the feed's dispatch workers.",
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),
	}
}

// Handler returns the HTTP handler that serves /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}
