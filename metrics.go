package txstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a store. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// TxStarted counts transactions begun.
	TxStarted prometheus.Counter

	// TxCommitted counts transactions committed, read-only ones included.
	TxCommitted prometheus.Counter

	// TxRolledBack counts explicit rollbacks.
	TxRolledBack prometheus.Counter

	// TxFailed counts failed commits, labeled by error kind.
	TxFailed *prometheus.CounterVec

	// Conflicts counts commits rejected by read validation.
	Conflicts prometheus.Counter

	// CommitDuration observes the time spent holding the commit lock, in seconds.
	CommitDuration prometheus.Histogram

	// Operations counts merged statements applied, labeled by op.
	Operations *prometheus.CounterVec
}

// NewMetrics registers the store collectors on registerer. A nil registerer
// creates unregistered collectors.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		TxStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_started_total",
			Help:      "Total number of transactions begun",
		}),
		TxCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_committed_total",
			Help:      "Total number of transactions committed",
		}),
		TxRolledBack: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_rolled_back_total",
			Help:      "Total number of transactions rolled back",
		}),
		TxFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_failed_total",
			Help:      "Total number of failed commits by reason",
		}, []string{"reason"}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_conflicts_total",
			Help:      "Total number of commits rejected by optimistic validation",
		}),
		CommitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Time spent validating and applying a commit",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of merged statements applied by op",
		}, []string{"op"}),
	}
}

func (m *Metrics) txStarted() {
	if m == nil {
		return
	}
	m.TxStarted.Inc()
}

func (m *Metrics) txCommitted(ops []Statement) {
	if m == nil {
		return
	}
	m.TxCommitted.Inc()
	for _, op := range ops {
		m.Operations.WithLabelValues(op.Op.String()).Inc()
	}
}

func (m *Metrics) txRolledBack() {
	if m == nil {
		return
	}
	m.TxRolledBack.Inc()
}

func (m *Metrics) txFailed(reason string) {
	if m == nil {
		return
	}
	m.TxFailed.WithLabelValues(reason).Inc()
	if reason == KindConflict.String() {
		m.Conflicts.Inc()
	}
}

func (m *Metrics) observeCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.CommitDuration.Observe(d.Seconds())
}
