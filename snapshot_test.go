package txstore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowsIn(t *testing.T, s *Snapshot, id TableID, r Range) []Key {
	t.Helper()
	var keys []Key
	require.NoError(t, s.Scan(id, r, func(row Row) bool {
		keys = append(keys, row.Key)
		return true
	}))
	return keys
}

func TestKeyCompare(t *testing.T) {
	assert.Equal(t, 0, K(1, "a").Compare(K(int8(1), "a")))
	assert.Equal(t, -1, K(1).Compare(K(2)))
	assert.Equal(t, -1, K(1).Compare(K(1, "a")))
	assert.Equal(t, 1, K("b").Compare(K("a", "z")))
	assert.Equal(t, -1, K(false).Compare(K(true)))
	assert.Equal(t, -1, K(true).Compare(K(0)))
	assert.Equal(t, -1, K(99).Compare(K("1")))
	assert.Equal(t, 0, K(2).Compare(K(2.0)))
	assert.Equal(t, -1, K(int64(9)).Compare(K(uint64(1<<63))))
	assert.True(t, K(1, 2).HasPrefix(K(1)))
	assert.False(t, K(1).HasPrefix(K(1, 2)))

	_, err := NewKey(struct{}{})
	assert.Error(t, err)
}

func TestKeyCompareIntegersAgainstFloatsExactly(t *testing.T) {
	big := int64(1<<53 + 1)
	assert.Equal(t, 1, K(big).Compare(K(float64(1<<53))))
	assert.Equal(t, -1, K(float64(1<<53)).Compare(K(big)))
	assert.Equal(t, -1, K(2).Compare(K(2.5)))
	assert.Equal(t, 1, K(-2).Compare(K(-2.5)))
	assert.Equal(t, 0, K(-3).Compare(K(-3.0)))
	assert.Equal(t, -1, K(int64(math.MaxInt64)).Compare(K(math.Pow(2, 63))))
	assert.Equal(t, 1, K(uint64(1<<63+1)).Compare(K(math.Pow(2, 63))))
	assert.Equal(t, -1, K(uint64(1<<63)).Compare(K(math.Pow(2, 64))))
	assert.Equal(t, 1, K(uint64(1<<63)).Compare(K(-1.5)))

	_, err := NewKey(math.NaN())
	assert.Error(t, err)
	_, err = NewKey(1, float32(math.NaN()))
	assert.Error(t, err)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, `[1,"a",true]`, K(1, "a", true).String())
	assert.Equal(t, "[]", Key(nil).String())
}

func TestRangeContains(t *testing.T) {
	r := Between(K("a"), K("c"))
	assert.True(t, r.Contains(K("a")))
	assert.True(t, r.Contains(K("b", 1)))
	assert.False(t, r.Contains(K("c")))
	assert.False(t, r.Contains(K("c", 1)))

	p := Prefix(K("b"))
	assert.True(t, p.Contains(K("b")))
	assert.True(t, p.Contains(K("b", 9)))
	assert.False(t, p.Contains(K("a", 9)))
	assert.False(t, p.Contains(K("c")))

	excl := Range{From: K(1), FromExclusive: true}
	assert.False(t, excl.Contains(K(1)))
	assert.True(t, excl.Contains(K(2)))

	assert.True(t, FullRange().IsFull())
	assert.Equal(t, `[["a"], ["c"])`, r.String())
	assert.Equal(t, "[-inf, +inf)", FullRange().String())
}

func TestBuilderCopyOnWrite(t *testing.T) {
	b := emptySnapshot().Edit()
	require.True(t, b.CreateTable(tUsers, NewMapSchema("id")))
	require.True(t, b.CreateTable("other", NewMapSchema("id")))
	require.NoError(t, b.Insert(tUsers, K(1), "one"))
	s1 := b.Build()
	assert.Equal(t, uint64(1), s1.Version())

	b2 := s1.Edit()
	require.NoError(t, b2.Put(tUsers, K(2), "two"))
	deleted, err := b2.Delete(tUsers, K(1))
	require.NoError(t, err)
	assert.True(t, deleted)
	s2 := b2.Build()

	assert.Equal(t, []Key{K(1)}, rowsIn(t, s1, tUsers, FullRange()))
	assert.Equal(t, []Key{K(2)}, rowsIn(t, s2, tUsers, FullRange()))
	assert.Same(t, s1.lookup("other").rows, s2.lookup("other").rows)
	assert.NotSame(t, s1.lookup(tUsers).rows, s2.lookup(tUsers).rows)
}

func TestBuilderErrors(t *testing.T) {
	b := emptySnapshot().Edit()
	b.CreateTable(tUsers, NewMapSchema("id"))
	assert.False(t, b.CreateTable(tUsers, NewMapSchema("other")))

	require.NoError(t, b.Insert(tUsers, K(1), "one"))
	assert.ErrorIs(t, b.Insert(tUsers, K(1), "again"), ErrAlreadyExists)
	assert.ErrorIs(t, b.Put("missing", K(1), "x"), ErrTableNotFound)
	assert.ErrorIs(t, b.DropTable("missing"), ErrTableNotFound)

	deleted, err := b.Delete(tUsers, K(5))
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestBuilderDeleteAllAndUpdate(t *testing.T) {
	b := emptySnapshot().Edit()
	b.CreateTable(tUsers, NewMapSchema("id"))
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Put(tUsers, K(i), i))
	}
	s1 := b.Build()

	b2 := s1.Edit()
	require.NoError(t, b2.Update(tUsers, func(_ Key, v interface{}) (interface{}, error) {
		return v.(int) * 10, nil
	}))
	s2 := b2.Build()
	v, found, err := s2.Get(tUsers, K(2))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 20, v)

	b3 := s2.Edit()
	require.NoError(t, b3.DeleteAll(tUsers))
	s3 := b3.Build()
	n, err := s3.Len(tUsers)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s2.Len(tUsers)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSnapshotScanRanges(t *testing.T) {
	b := emptySnapshot().Edit()
	b.CreateTable("pairs", NewMapSchema("a", "b"))
	for _, k := range []Key{K("a", 1), K("a", 2), K("b", 1), K("b", 2), K("c", 1)} {
		require.NoError(t, b.Put("pairs", k, k.String()))
	}
	s := b.Build()

	assert.Equal(t, []Key{K("a", 1), K("a", 2), K("b", 1), K("b", 2)}, rowsIn(t, s, "pairs", Between(K("a"), K("c"))))
	assert.Equal(t, []Key{K("b", 1), K("b", 2)}, rowsIn(t, s, "pairs", Prefix(K("b"))))
	assert.Equal(t, []Key{K("b", 2)}, rowsIn(t, s, "pairs", Range{From: K("b", 1), FromExclusive: true, To: K("c")}))
	assert.Len(t, rowsIn(t, s, "pairs", FullRange()), 5)

	var first []Key
	require.NoError(t, s.Scan("pairs", FullRange(), func(row Row) bool {
		first = append(first, row.Key)
		return false
	}))
	assert.Equal(t, []Key{K("a", 1)}, first)

	assert.ErrorIs(t, s.Scan("missing", FullRange(), func(Row) bool { return true }), ErrTableNotFound)
	assert.Equal(t, []TableID{"pairs"}, s.Tables())
}
