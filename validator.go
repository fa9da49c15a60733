package txstore

import (
	"github.com/tidwall/btree"
)

func keyLess(a, b Key) bool {
	return a.Compare(b) < 0
}

// Validator records what a transaction read and checks, at commit, that
// none of it changed between the transaction's baseline and the snapshot it
// is about to commit on top of.
type Validator struct {
	keys   map[TableID]*btree.BTreeG[Key]
	ranges map[TableID][]Range
	order  []TableID
}

func NewValidator() *Validator {
	v := &Validator{}
	v.Reset()
	return v
}

func (v *Validator) Reset() {
	v.keys = make(map[TableID]*btree.BTreeG[Key])
	v.ranges = make(map[TableID][]Range)
	v.order = nil
}

// Empty reports whether nothing has been tracked.
func (v *Validator) Empty() bool {
	return len(v.order) == 0
}

func (v *Validator) see(table TableID) {
	_, hasKeys := v.keys[table]
	_, hasRanges := v.ranges[table]
	if !hasKeys && !hasRanges {
		v.order = append(v.order, table)
	}
}

func (v *Validator) TrackKey(table TableID, key Key) {
	v.see(table)
	keys, has := v.keys[table]
	if !has {
		keys = btree.NewBTreeG[Key](keyLess)
		v.keys[table] = keys
	}
	keys.Set(key)
}

// TrackRange records a range read; FullRange models a table scan.
func (v *Validator) TrackRange(table TableID, r Range) {
	v.see(table)
	v.ranges[table] = append(v.ranges[table], r)
}

// Validate returns a ConflictError for the first tracked key whose value
// differs between baseline and candidate. Absence is a value: a key that
// appears inside a tracked range is a conflict as well.
func (v *Validator) Validate(baseline, candidate *Snapshot) (err error) {
	if baseline == candidate {
		return
	}
	for _, id := range v.order {
		bt, ct := baseline.lookup(id), candidate.lookup(id)
		if bt != nil && ct != nil && bt.rows == ct.rows {
			continue
		}
		eq := tableEquality(bt, ct)
		if keys, has := v.keys[id]; has {
			keys.Scan(func(k Key) bool {
				bv, bf := tableGet(bt, k)
				cv, cf := tableGet(ct, k)
				if bf != cf || (bf && !eq(bv, cv)) {
					err = &ConflictError{Table: id, Key: k}
					return false
				}
				return true
			})
			if err != nil {
				return
			}
		}
		for _, r := range v.ranges[id] {
			if err = validateRange(id, bt, ct, r, eq); err != nil {
				return
			}
		}
	}
	return
}

func validateRange(id TableID, bt, ct *table, r Range, eq func(a, b interface{}) bool) (err error) {
	conflict := func(k Key) {
		rr := r
		err = &ConflictError{Table: id, Key: k, Range: &rr}
	}
	if bt != nil {
		bt.scan(r, func(row Row) bool {
			cv, cf := tableGet(ct, row.Key)
			if !cf || !eq(row.Value, cv) {
				conflict(row.Key)
				return false
			}
			return true
		})
		if err != nil {
			return
		}
	}
	if ct != nil {
		ct.scan(r, func(row Row) bool {
			if _, bf := tableGet(bt, row.Key); !bf {
				conflict(row.Key)
				return false
			}
			return true
		})
	}
	return
}

func tableGet(t *table, k Key) (value interface{}, found bool) {
	if t == nil {
		return
	}
	return t.get(k)
}

func tableEquality(bt, ct *table) func(a, b interface{}) bool {
	var schema Schema
	switch {
	case ct != nil:
		schema = ct.schema
	case bt != nil:
		schema = bt.schema
	}
	if schema == nil {
		return versionsEqual
	}
	return schema.Equal
}
