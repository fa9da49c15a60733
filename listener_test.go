package txstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenersReceiveCommits(t *testing.T) {
	s := newAccountStore(t)
	var events []CommitEvent
	s.Subscribe("audit", func(e CommitEvent) {
		events = append(events, e)
	})
	s.Subscribe("broken", func(CommitEvent) {
		panic("listener bug")
	})

	tx := s.Begin()
	require.NoError(t, tx.Write(Delete(tAccounts, K(10))))
	require.NoError(t, tx.Commit(context.Background()))

	require.Len(t, events, 1)
	assert.Equal(t, tx.ID(), events[0].TxID)
	assert.Equal(t, s.Current().Version(), events[0].Version)
	assert.Equal(t, []Statement{Delete(tAccounts, K(10))}, events[0].Operations)
	assert.Equal(t, []TableID{tAccounts}, events[0].Tables())
	assert.False(t, events[0].At.IsZero())
}

func TestListenersSkipReadOnlyAndFailedCommits(t *testing.T) {
	s := newAccountStore(t)
	calls := 0
	s.Subscribe("count", func(CommitEvent) { calls++ })

	readOnly := s.Begin()
	_, _, err := readOnly.Read(tAccounts, K(10))
	require.NoError(t, err)
	require.NoError(t, readOnly.Commit(context.Background()))

	failing := s.Begin()
	require.NoError(t, failing.Write(Insert(tAccounts, nil, account{ID: 10})))
	assert.Error(t, failing.Commit(context.Background()))

	assert.Zero(t, calls)
}

func TestUnsubscribe(t *testing.T) {
	s := newAccountStore(t)
	calls := 0
	s.Subscribe("count", func(CommitEvent) { calls++ })
	s.Subscribe("nil", nil)

	commit := func() {
		tx := s.Begin()
		require.NoError(t, tx.Write(Upsert(tAccounts, nil, account{ID: int64(calls + 1000)})))
		require.NoError(t, tx.Commit(context.Background()))
	}
	commit()
	s.Unsubscribe("count")
	commit()
	assert.Equal(t, 1, calls)
}
