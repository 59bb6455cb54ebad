package message

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection stages label rejected messages without leaking free-form reasons
// into metric cardinality.
const (
	StageFilter   = "filter"
	StageDecode   = "decode"
	StageDecrypt  = "decrypt"
	StageValidate = "validate"
)

// Metrics holds Prometheus metrics for listeners, resolvers and transactions.
type Metrics struct {
	MessagesAccepted   prometheus.Counter
	MessagesRejected   *prometheus.CounterVec
	TransportErrors    prometheus.Counter
	Resolutions        prometheus.Counter
	ResolutionDuration prometheus.Histogram
	Transactions       *prometheus.CounterVec
}

// NewMetrics creates message metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgerid_messages_accepted_total",
			Help: "Total number of topic messages that passed decoding and validation",
		}),
		MessagesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerid_messages_rejected_total",
			Help: "Total number of topic messages rejected, by stage",
		}, []string{"stage"}),
		TransportErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgerid_transport_errors_total",
			Help: "Total number of subscription errors reported by the transport",
		}),
		Resolutions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgerid_resolutions_total",
			Help: "Total number of completed resolutions",
		}),
		ResolutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledgerid_resolution_duration_seconds",
			Help:    "Wall time from resolver start to idle completion",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		Transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerid_transactions_total",
			Help: "Total number of submitted transactions, by outcome",
		}, []string{"outcome"}),
	}
}

// IncAccepted increments the accepted counter.
func (m *Metrics) IncAccepted() {
	m.MessagesAccepted.Inc()
}

// IncRejected increments the rejected counter for stage.
func (m *Metrics) IncRejected(stage string) {
	m.MessagesRejected.WithLabelValues(stage).Inc()
}

// IncTransportErrors increments the transport error counter.
func (m *Metrics) IncTransportErrors() {
	m.TransportErrors.Inc()
}

// ObserveResolution records a completed resolution.
func (m *Metrics) ObserveResolution(d time.Duration) {
	m.Resolutions.Inc()
	m.ResolutionDuration.Observe(d.Seconds())
}

// IncTransactions increments the transaction counter for outcome.
func (m *Metrics) IncTransactions(outcome string) {
	m.Transactions.WithLabelValues(outcome).Inc()
}
