package txstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyEncodingIsCanonical(t *testing.T) {
	a, err := encodeKey(K(int8(1), "x", 2.5, false))
	require.NoError(t, err)
	b, err := encodeKey(K(int64(1), "x", float32(2.5), false))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	k, err := decodeKey(a)
	require.NoError(t, err)
	assert.True(t, k.Equal(K(1, "x", 2.5, false)))
	assert.IsType(t, int64(0), k[0])

	big, err := decodeKey(`[18446744073709551615]`)
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), big[0])

	_, err = decodeKey(`{"not":"a key"}`)
	assert.Error(t, err)
}

func TestVersionEquality(t *testing.T) {
	assert.True(t, versionsEqual(
		map[string]interface{}{"a": 1, "b": []string{"x"}},
		map[string]interface{}{"b": []string{"x"}, "a": 1},
	))
	assert.False(t, versionsEqual(map[string]interface{}{"a": 1}, map[string]interface{}{"a": 2}))
	assert.True(t, versionsEqual(nil, nil))
	assert.False(t, versionsEqual(nil, 1))
	assert.False(t, versionsEqual(make(chan int), make(chan int)))

	_, err := encodeVersion(nil)
	assert.Error(t, err)
}

func TestVersionRoundTrip(t *testing.T) {
	p, err := encodeVersion(account{ID: 3, Owner: "o", Balance: 9})
	require.NoError(t, err)
	var got account
	require.NoError(t, decodeVersion(p, &got))
	assert.Equal(t, account{ID: 3, Owner: "o", Balance: 9}, got)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindOk, KindOf(nil))
	assert.Equal(t, KindAlreadyExists, KindOf(&AlreadyExistsError{Table: "t", Key: K(1)}))
	assert.Equal(t, KindConflict, KindOf(&ConflictError{Table: "t", Key: K(1)}))
	assert.Equal(t, KindIllegalState, KindOf(illegalState("bad %d", 1)))
	assert.Equal(t, KindTableNotFound, KindOf(&TableNotFoundError{Table: "t"}))
	assert.Equal(t, KindUnknown, KindOf(assert.AnError))

	assert.True(t, IsRetryable(&ConflictError{}))
	assert.True(t, IsRetryable(&AlreadyExistsError{}))
	assert.False(t, IsRetryable(illegalState("x")))
	assert.Equal(t, "conflict", KindConflict.String())
}
