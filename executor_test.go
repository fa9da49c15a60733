package txstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderStatements(t *testing.T) {
	stmts, err := renderStatements([]Statement{
		DeleteAll(tUsers),
		Insert(tUsers, K(1), "a"),
		Upsert(tUsers, K(2), "b"),
		Delete(tUsers, K(3)),
		BlindUpdate(tUsers, Patch{Query: `UPDATE "RECORDS" SET "VALUE" = $1`, Args: []interface{}{[]byte{1}}}),
		Opaque("", Raw{Name: "analyze", Query: `ANALYZE "RECORDS"`}),
	})
	require.NoError(t, err)
	require.Len(t, stmts, 6)

	assert.Equal(t, sqlRecordDeleteAll, stmts[0].query)
	assert.Equal(t, []interface{}{"users"}, stmts[0].args)

	assert.Equal(t, sqlRecordInsert, stmts[1].query)
	require.Len(t, stmts[1].args, 3)
	assert.Equal(t, "users", stmts[1].args[0])
	assert.Equal(t, "[1]", stmts[1].args[1])
	var v string
	require.NoError(t, decodeVersion(stmts[1].args[2].([]byte), &v))
	assert.Equal(t, "a", v)

	assert.Equal(t, sqlRecordUpsert, stmts[2].query)
	assert.Equal(t, sqlRecordDelete, stmts[3].query)
	assert.Equal(t, []interface{}{"users", "[3]"}, stmts[3].args)
	assert.Equal(t, `UPDATE "RECORDS" SET "VALUE" = $1`, stmts[4].query)
	assert.Equal(t, `ANALYZE "RECORDS"`, stmts[5].query)
	assert.Equal(t, OpOpaque, stmts[5].source.Op)
}

func TestRenderStatementsNeedQueryText(t *testing.T) {
	_, err := renderStatements([]Statement{BlindUpdate(tUsers, Patch{})})
	assert.ErrorIs(t, err, ErrIllegalState)

	_, err = renderStatements([]Statement{Opaque(tUsers, Raw{Name: "in memory only"})})
	assert.ErrorIs(t, err, ErrIllegalState)
}

func TestRebindQuestion(t *testing.T) {
	assert.Equal(t,
		`DELETE FROM "RECORDS" WHERE "TABLE_ID" = ? AND "KEY" = ?`,
		rebindQuestion(sqlRecordDelete))
	assert.Equal(t, `SELECT '$' || ?`, rebindQuestion(`SELECT '$' || $12`))
}

func TestExecutorFunc(t *testing.T) {
	var got []Statement
	var e Executor = ExecutorFunc(func(_ context.Context, ops []Statement) error {
		got = ops
		return nil
	})
	require.NoError(t, e.Execute(context.Background(), []Statement{DeleteAll(tUsers)}))
	assert.Equal(t, []Statement{DeleteAll(tUsers)}, got)
}
