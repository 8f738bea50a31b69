// Package metrics holds the prometheus collectors of the bips service.
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Push results.
const (
	PushOK    = "ok"
	PushGone  = "gone"
	PushError = "error"
)

type Metrics struct {
	BipsCreated  prometheus.Counter
	BipQueries   prometheus.Counter
	PushAttempts *prometheus.CounterVec
	Connections  prometheus.Gauge
	GoneReaped   prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BipsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bips",
			Name:      "created_total",
			Help:      "bips created",
		}),
		BipQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bips",
			Name:      "queries_total",
			Help:      "bip queries served",
		}),
		PushAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bips",
			Name:      "push_attempts_total",
			Help:      "push deliveries attempted, by result",
		}, []string{"result"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bips",
			Name:      "connections",
			Help:      "connections seen in the last registry snapshot",
		}),
		GoneReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bips",
			Name:      "gone_reaped_total",
			Help:      "stale connections removed from the registry",
		}),
	}
	reg.MustRegister(m.BipsCreated, m.BipQueries, m.PushAttempts, m.Connections, m.GoneReaped)
	return m
}

func (m *Metrics) BipCreated() {
	if m != nil {
		m.BipsCreated.Inc()
	}
}

func (m *Metrics) BipQueried() {
	if m != nil {
		m.BipQueries.Inc()
	}
}

func (m *Metrics) Pushed(result string) {
	if m != nil {
		m.PushAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ConnectionsSeen(n int) {
	if m != nil {
		m.Connections.Set(float64(n))
	}
}

func (m *Metrics) Reaped(n int) {
	if m != nil {
		m.GoneReaped.Add(float64(n))
	}
}
