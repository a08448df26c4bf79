// Package metrics exposes Prometheus collectors for a detection session.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors fed by the processing loop. The detection
// core never touches these; the caller observes Process results and
// updates them.
type Metrics struct {
	EventsTotal    prometheus.Counter
	AnomaliesTotal prometheus.Counter
	RetrainsTotal  prometheus.Counter
	Trained        prometheus.Gauge
	AnomalyScore   prometheus.Histogram

	registry *prometheus.Registry
}

// New creates and registers the session collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowsentry_events_total",
			Help: "Observations processed.",
		}),
		AnomaliesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowsentry_anomalies_total",
			Help: "Anomaly reports emitted.",
		}),
		RetrainsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowsentry_retrains_total",
			Help: "Forest trainings, including the initial one.",
		}),
		Trained: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowsentry_trained",
			Help: "1 once the detector has left the buffering state.",
		}),
		AnomalyScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowsentry_anomaly_score",
			Help:    "Scores of reported anomalies.",
			Buckets: prometheus.LinearBuckets(0.6, 0.05, 8),
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.EventsTotal,
		m.AnomaliesTotal,
		m.RetrainsTotal,
		m.Trained,
		m.AnomalyScore,
	)

	return m
}

// Handler returns the HTTP handler serving the registered collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
