package txstore

import (
	"fmt"
	"math"
	"strings"
)

// TableID names a logical collection of records.
type TableID string

// Key is an ordered tuple of scalars identifying a record inside a table.
// A Key shorter than the table's key arity is a partial key and is only
// meaningful as a range bound.
//
// Supported parts are bool, string and every integer and float type.
// Integers are normalized to int64 (uint64 above math.MaxInt64 is kept) and
// float32 to float64, so K(1) and K(int32(1)) are the same key. NaN is
// not a valid part.
type Key []interface{}

// NewKey builds a normalized key, rejecting unsupported part types.
func NewKey(parts ...interface{}) (key Key, err error) {
	key = make(Key, len(parts))
	for i, p := range parts {
		n, ok := normalizeKeyPart(p)
		if !ok {
			err = fmt.Errorf("unsupported key part %d of type %T", i, p)
			key = nil
			return
		}
		key[i] = n
	}
	return
}

// K is NewKey for literal keys; it panics on unsupported part types.
func K(parts ...interface{}) Key {
	key, err := NewKey(parts...)
	if err != nil {
		panic(err)
	}
	return key
}

func normalizeKeyPart(p interface{}) (interface{}, bool) {
	switch v := p.(type) {
	case string:
		return v, true
	case bool:
		return v, true
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return normalizeUint(uint64(v)), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return normalizeUint(v), true
	case float32:
		if math.IsNaN(float64(v)) {
			return nil, false
		}
		return float64(v), true
	case float64:
		if math.IsNaN(v) {
			return nil, false
		}
		return v, true
	default:
		return nil, false
	}
}

func normalizeUint(v uint64) interface{} {
	if v <= math.MaxInt64 {
		return int64(v)
	}
	return v
}

// Compare orders keys part by part; a key sorts before its own extensions.
func (k Key) Compare(o Key) int {
	n := len(k)
	if len(o) < n {
		n = len(o)
	}
	for i := 0; i < n; i++ {
		if c := comparePart(k[i], o[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(k) < len(o):
		return -1
	case len(k) > len(o):
		return 1
	default:
		return 0
	}
}

func (k Key) Equal(o Key) bool {
	return len(k) == len(o) && k.Compare(o) == 0
}

// HasPrefix reports whether the first len(p) parts of k equal p.
func (k Key) HasPrefix(p Key) bool {
	return len(k) >= len(p) && k[:len(p)].Compare(p) == 0
}

// compareBound compares k against a (possibly partial) bound on the bound's
// arity. Keys shorter than the bound that match it part for part sort first.
func (k Key) compareBound(bound Key) int {
	if len(k) >= len(bound) {
		return k[:len(bound)].Compare(bound)
	}
	return k.Compare(bound)
}

func (k Key) String() string {
	if k == nil {
		return "[]"
	}
	s, err := encodeKey(k)
	if err != nil {
		parts := make([]string, len(k))
		for i, p := range k {
			parts[i] = fmt.Sprint(p)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return s
}

const (
	rankBool = iota
	rankNumber
	rankString
	rankOther
)

func partRank(p interface{}) int {
	switch p.(type) {
	case bool:
		return rankBool
	case int64, uint64, float64:
		return rankNumber
	case string:
		return rankString
	default:
		return rankOther
	}
}

func comparePart(a, b interface{}) int {
	ra, rb := partRank(a), partRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case rankBool:
		av, bv := a.(bool), b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankNumber:
		return compareNumber(a, b)
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func compareNumber(a, b interface{}) int {
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return compareOrdered(av, bv)
		case uint64:
			// uint64 parts are always above math.MaxInt64 once normalized
			return -1
		case float64:
			return compareIntFloat(av, bv)
		}
	case uint64:
		switch bv := b.(type) {
		case int64:
			return 1
		case uint64:
			return compareOrdered(av, bv)
		case float64:
			return compareUintFloat(av, bv)
		}
	case float64:
		switch bv := b.(type) {
		case int64:
			return -compareIntFloat(bv, av)
		case uint64:
			return -compareUintFloat(bv, av)
		case float64:
			return compareOrdered(av, bv)
		}
	}
	return 0
}

// compareIntFloat orders an integer against a float without rounding the
// integer: the float's integral part is compared as an int64 first.
func compareIntFloat(i int64, f float64) int {
	switch {
	case f >= 1<<63:
		return -1
	case f < -(1 << 63):
		return 1
	}
	whole := math.Trunc(f)
	if c := compareOrdered(i, int64(whole)); c != 0 {
		return c
	}
	return compareOrdered(whole, f)
}

func compareUintFloat(u uint64, f float64) int {
	switch {
	case f >= 1<<64:
		return -1
	case f < 0:
		return 1
	}
	whole := math.Trunc(f)
	if c := compareOrdered(u, uint64(whole)); c != 0 {
		return c
	}
	return compareOrdered(whole, f)
}

func compareOrdered[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
