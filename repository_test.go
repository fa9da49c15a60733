package txstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableFacade(t *testing.T) {
	s := newAccountStore(t)
	ctx := context.Background()

	tx := s.Begin()
	accounts := Open[account](tx, tAccounts)
	assert.Equal(t, tAccounts, accounts.ID())

	a, found, err := accounts.Find(K(10))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(10), a.ID)

	_, found, err = accounts.Find(K(11))
	require.NoError(t, err)
	assert.False(t, found)

	all, err := accounts.FindAll()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := accounts.FindRange(Range{From: K(20)})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, int64(20), some[0].ID)

	require.NoError(t, accounts.Insert(account{ID: 40, Owner: "new"}))
	require.NoError(t, accounts.Save(account{ID: 10, Owner: "owner", Balance: 1}))
	require.NoError(t, accounts.Delete(K(30)))
	assert.ErrorIs(t, accounts.Insert(account{ID: 40}), ErrAlreadyExists)
	require.NoError(t, tx.Commit(ctx))

	snap := s.Current()
	n, err := snap.Len(tAccounts)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	v, _, err := snap.Get(tAccounts, K(10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.(account).Balance)
}

func TestTableFacadeUpdateAll(t *testing.T) {
	s := newAccountStore(t)
	ctx := context.Background()

	tx := s.Begin()
	accounts := Open[account](tx, tAccounts)
	assert.ErrorIs(t, accounts.UpdateAll(nil, `UPDATE accounts SET balance = 0`), ErrIllegalState)
	require.NoError(t, accounts.UpdateAll(func(a account) (account, error) {
		a.Balance *= 2
		return a, nil
	}, `UPDATE accounts SET balance = balance * 2`))
	assert.ErrorIs(t, accounts.Save(account{ID: 10}), ErrIllegalState)

	ops, err := tx.Operations()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, OpBlindUpdate, ops[0].Op)
	assert.Equal(t, `UPDATE accounts SET balance = balance * 2`, ops[0].Patch.Query)
	require.NoError(t, tx.Commit(ctx))

	err = s.Current().Scan(tAccounts, FullRange(), func(row Row) bool {
		assert.Equal(t, int64(200), row.Value.(account).Balance)
		return true
	})
	require.NoError(t, err)
}

func TestTableFacadeDeleteAll(t *testing.T) {
	s := newAccountStore(t)
	tx := s.Begin()
	accounts := Open[account](tx, tAccounts)
	require.NoError(t, accounts.DeleteAll())
	require.NoError(t, accounts.Insert(account{ID: 1}))

	ops, err := tx.Operations()
	require.NoError(t, err)
	assert.Equal(t, []Statement{DeleteAll(tAccounts), Insert(tAccounts, K(1), account{ID: 1})}, ops)
	require.NoError(t, tx.Commit(context.Background()))

	n, err := s.Current().Len(tAccounts)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTableFacadeWrongType(t *testing.T) {
	s := newAccountStore(t)
	tx := s.Begin()
	_, _, err := Open[string](tx, tAccounts).Find(K(10))
	assert.Error(t, err)
}
