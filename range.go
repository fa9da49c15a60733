package txstore

import "strings"

// Range is an interval over (possibly partial) keys. An empty bound is
// unbounded. By default the lower bound is inclusive and the upper bound
// exclusive, so Range{From: a, To: c} is [a, c).
//
// Bounds are compared on their own arity: with a one-part bound K("b"),
// every key starting with "b" sits exactly on the bound.
type Range struct {
	From          Key
	To            Key
	FromExclusive bool
	ToInclusive   bool
}

// FullRange covers the whole key space of a table.
func FullRange() Range {
	return Range{}
}

// Prefix covers every key starting with p.
func Prefix(p Key) Range {
	return Range{From: p, To: p, ToInclusive: true}
}

// Between covers [from, to).
func Between(from, to Key) Range {
	return Range{From: from, To: to}
}

func (r Range) IsFull() bool {
	return len(r.From) == 0 && len(r.To) == 0
}

func (r Range) Contains(k Key) bool {
	return r.aboveLower(k) && r.belowUpper(k)
}

func (r Range) aboveLower(k Key) bool {
	if len(r.From) == 0 {
		return true
	}
	c := k.compareBound(r.From)
	return c > 0 || (c == 0 && !r.FromExclusive)
}

func (r Range) belowUpper(k Key) bool {
	if len(r.To) == 0 {
		return true
	}
	c := k.compareBound(r.To)
	return c < 0 || (c == 0 && r.ToInclusive)
}

func (r Range) String() string {
	b := new(strings.Builder)
	if r.FromExclusive {
		b.WriteString("(")
	} else {
		b.WriteString("[")
	}
	if len(r.From) == 0 {
		b.WriteString("-inf")
	} else {
		b.WriteString(r.From.String())
	}
	b.WriteString(", ")
	if len(r.To) == 0 {
		b.WriteString("+inf")
	} else {
		b.WriteString(r.To.String())
	}
	if r.ToInclusive {
		b.WriteString("]")
	} else {
		b.WriteString(")")
	}
	return b.String()
}
