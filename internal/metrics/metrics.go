package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collabcanvas/internal/session"
)

// Metrics records canvas activity. It is a session.Recorder and is also
// handed to the hub as its drop hook.
type Metrics struct {
	registry     *prometheus.Registry
	changes      *prometheus.CounterVec
	history      prometheus.Gauge
	redo         prometheus.Gauge
	participants prometheus.Gauge
	dropped      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collabcanvas",
			Name:      "changes_total",
			Help:      "Applied changes by kind",
		}, []string{"kind"}),
		history: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "collabcanvas",
			Name:      "history_length",
			Help:      "Operations currently in history",
		}),
		redo: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "collabcanvas",
			Name:      "redo_length",
			Help:      "Operations currently in the redo buffer",
		}),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "collabcanvas",
			Name:      "participants",
			Help:      "Connected participants",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "collabcanvas",
			Name:      "dropped_clients_total",
			Help:      "Connections dropped because their send buffer was full",
		}),
	}
	m.registry.MustRegister(m.changes, m.history, m.redo, m.participants, m.dropped)
	return m
}

func (m *Metrics) Record(c session.Change) {
	m.changes.WithLabelValues(string(c.Kind)).Inc()
	m.history.Set(float64(c.Stats.History))
	m.redo.Set(float64(c.Stats.Redo))
	m.participants.Set(float64(c.Stats.Participants))
}

func (m *Metrics) ClientDropped(string) {
	m.dropped.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
