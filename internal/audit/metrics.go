package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts audit persistence.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	PersistDuration prometheus.Histogram
	CircuitOpen     prometheus.Gauge
}

// NewMetrics registers the audit collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerid_audit_events_emitted_total",
			Help: "Audit events persisted, by action",
		}, []string{"action"}),
		PersistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerid_audit_persist_failures_total",
			Help: "Audit events that failed to persist, by action",
		}, []string{"action"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "ledgerid_audit_events_dropped_total",
			Help: "Best-effort audit events dropped on a full buffer or open circuit",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledgerid_audit_persist_duration_seconds",
			Help:    "Time to persist one audit event",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		CircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledgerid_audit_circuit_open",
			Help: "1 while the best-effort audit circuit is open",
		}),
	}
}

func (m *Metrics) observeEmitted(action Action, seconds float64) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(string(action)).Inc()
	m.PersistDuration.Observe(seconds)
}

func (m *Metrics) incEmitted(action Action) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) incPersistFailure(action Action) {
	if m == nil {
		return
	}
	m.PersistFailures.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) incDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

func (m *Metrics) setCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}
