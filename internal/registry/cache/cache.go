// Package cache keeps resolved states so repeated resolves within a TTL skip
// the history replay.
package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace separates DID states from credential statuses.
type Namespace string

const (
	NamespaceDID Namespace = "did"
	NamespaceVC  Namespace = "vc"
)

// Snapshot is the resolved state of one key. Envelope holds the accepted
// envelope in its wire form; the consensus metadata is kept alongside because
// the wire form does not carry it.
type Snapshot struct {
	Key            string    `json:"key"`
	Envelope       []byte    `json:"envelope"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
	UpdatedAt      time.Time `json:"updated_at"`
	SequenceNumber uint64    `json:"sequence_number"`
}

// Cache stores snapshots. Get returns sentinel.ErrNotFound on a miss.
type Cache interface {
	Get(ctx context.Context, ns Namespace, key string) (*Snapshot, error)
	Set(ctx context.Context, ns Namespace, snap *Snapshot) error
	Invalidate(ctx context.Context, ns Namespace, key string) error
}

// Metrics counts cache lookups per namespace.
type Metrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Hits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerid_cache_hits_total",
			Help: "Resolution cache hits",
		}, []string{"namespace"}),
		Misses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerid_cache_misses_total",
			Help: "Resolution cache misses",
		}, []string{"namespace"}),
	}
}

func (m *Metrics) observe(ns Namespace, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.Hits.WithLabelValues(string(ns)).Inc()
		return
	}
	m.Misses.WithLabelValues(string(ns)).Inc()
}
