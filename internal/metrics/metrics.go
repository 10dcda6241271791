// v1
// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the dashboard's Prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	SnapshotsApplied *prometheus.CounterVec
	IntentsSent      prometheus.Counter
	IntentsDropped   prometheus.Counter
	AlertsRaised     *prometheus.CounterVec
	ConnectionState  prometheus.Gauge
	FrameDuration    prometheus.Histogram
	WSClients        prometheus.Gauge
}

// New builds and registers all instruments on a private registry so tests
// can construct Metrics repeatedly without duplicate-registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SnapshotsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_snapshots_applied_total",
			Help: "Snapshots merged into the view model, by source.",
		}, []string{"source"}),
		IntentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_intents_sent_total",
			Help: "Operator intents handed to the transport.",
		}),
		IntentsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_intents_dropped_total",
			Help: "Operator intents dropped because the channel was down.",
		}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_alerts_raised_total",
			Help: "Alerts pushed onto the feed, by kind.",
		}, []string{"kind"}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opsdash_feed_connected",
			Help: "1 while the live feed is connected, 0 otherwise.",
		}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsdash_frame_render_seconds",
			Help:    "Time spent projecting a dashboard frame.",
			Buckets: prometheus.DefBuckets,
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opsdash_dashboard_clients",
			Help: "Currently attached dashboard WebSocket clients.",
		}),
	}
	reg.MustRegister(
		m.SnapshotsApplied,
		m.IntentsSent,
		m.IntentsDropped,
		m.AlertsRaised,
		m.ConnectionState,
		m.FrameDuration,
		m.WSClients,
	)
	return m
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
