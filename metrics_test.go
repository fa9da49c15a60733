package txstore

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics("test_register", registry)
	require.NotNil(t, m)

	m.TxStarted.Inc()
	m.TxFailed.WithLabelValues("conflict").Inc()
	m.Operations.WithLabelValues("insert").Inc()
	n, err := testutil.GatherAndCount(registry, "test_register_tx_failed_total", "test_register_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TxStarted))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.txStarted()
		m.txCommitted([]Statement{Delete(tUsers, K(1))})
		m.txRolledBack()
		m.txFailed("conflict")
		m.observeCommit(0)
	})
}

func TestStoreMetrics(t *testing.T) {
	m := NewMetrics("test_store", prometheus.NewRegistry())
	s := newAccountStore(t, WithMetrics(m))
	ctx := context.Background()

	startedBefore := testutil.ToFloat64(m.TxStarted)
	committedBefore := testutil.ToFloat64(m.TxCommitted)
	insertsBefore := testutil.ToFloat64(m.Operations.WithLabelValues("insert"))

	ok := s.Begin()
	require.NoError(t, ok.Write(Insert(tAccounts, nil, account{ID: 1})))
	require.NoError(t, ok.Write(Delete(tAccounts, K(10))))
	require.NoError(t, ok.Commit(ctx))

	rolled := s.Begin()
	require.NoError(t, rolled.Rollback())

	loser := s.Begin()
	_, _, err := loser.Read(tAccounts, K(20))
	require.NoError(t, err)
	require.NoError(t, loser.Write(Delete(tAccounts, K(30))))
	winner := s.Begin()
	require.NoError(t, winner.Write(Delete(tAccounts, K(20))))
	require.NoError(t, winner.Commit(ctx))
	require.Error(t, loser.Commit(ctx))

	assert.Equal(t, startedBefore+4, testutil.ToFloat64(m.TxStarted))
	assert.Equal(t, committedBefore+2, testutil.ToFloat64(m.TxCommitted))
	assert.Equal(t, insertsBefore+1, testutil.ToFloat64(m.Operations.WithLabelValues("insert")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TxRolledBack))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Conflicts))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TxFailed.WithLabelValues("conflict")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CommitDuration))
}
