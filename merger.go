package txstore

import (
	"github.com/tidwall/btree"
)

type mergeState int

const (
	stateNone mergeState = iota
	stateInsert
	stateInsDel
	stateUpsert
	stateDelete
)

func (s mergeState) String() string {
	switch s {
	case stateInsert:
		return "INSERT"
	case stateInsDel:
		return "INS_DEL"
	case stateUpsert:
		return "UPSERT"
	case stateDelete:
		return "DELETE"
	default:
		return "NONE"
	}
}

// EqualFunc decides version equality for a table.
type EqualFunc func(table TableID, a, b interface{}) bool

type recordIntent struct {
	key   Key
	state mergeState
	value interface{}
	// trustReads is false when a table-wide statement ran on the table, or
	// any opaque statement ran, before this intent was first staged; reads
	// taken from the baseline say nothing about the key after that.
	trustReads bool
}

func intentLess(a, b *recordIntent) bool {
	return a.key.Compare(b.key) < 0
}

type tableWindow struct {
	deleteAll bool
	records   *btree.BTreeG[*recordIntent]
	updates   []Statement
}

type window struct {
	tables map[TableID]*tableWindow
	order  []TableID
	closer *Statement
}

func newWindow() *window {
	return &window{tables: make(map[TableID]*tableWindow)}
}

func (w *window) table(id TableID) *tableWindow {
	tw, has := w.tables[id]
	if !has {
		tw = &tableWindow{records: btree.NewBTreeG[*recordIntent](intentLess)}
		w.tables[id] = tw
		w.order = append(w.order, id)
	}
	return tw
}

type readMark struct {
	key   Key
	value interface{}
	found bool
}

func readMarkLess(a, b readMark) bool {
	return a.key.Compare(b.key) < 0
}

// Merger buffers the write intents of one transaction and reduces them to
// the smallest list of statements with the same effect.
//
// Intents are merged per key inside a window. An opaque statement closes the
// current window and opens a new one; windows are never merged together.
type Merger struct {
	equal    EqualFunc
	windows  []*window
	reads    map[TableID]*btree.BTreeG[readMark]
	dirty    map[TableID]bool
	allDirty bool
	touched  map[TableID]bool
	blind    map[TableID]bool
	staged   int
}

func NewMerger(equal EqualFunc) *Merger {
	m := &Merger{equal: equal}
	m.Reset()
	return m
}

func (m *Merger) Reset() {
	m.windows = []*window{newWindow()}
	m.reads = make(map[TableID]*btree.BTreeG[readMark])
	m.dirty = make(map[TableID]bool)
	m.allDirty = false
	m.touched = make(map[TableID]bool)
	m.blind = make(map[TableID]bool)
	m.staged = 0
}

// Len is the number of statements accepted since the last Reset.
func (m *Merger) Len() int {
	return m.staged
}

// ObserveRead remembers what the transaction saw for a key. It feeds the
// duplicate-insert check and the no-op upsert elimination.
func (m *Merger) ObserveRead(table TableID, key Key, value interface{}, found bool) {
	reads, has := m.reads[table]
	if !has {
		reads = btree.NewBTreeG[readMark](readMarkLess)
		m.reads[table] = reads
	}
	reads.Set(readMark{key: key, value: value, found: found})
}

func (m *Merger) lastRead(table TableID, key Key) (mark readMark, known bool) {
	reads, has := m.reads[table]
	if !has {
		return
	}
	mark, known = reads.Get(readMark{key: key})
	return
}

func (m *Merger) readPresent(table TableID, key Key) bool {
	mark, known := m.lastRead(table, key)
	return known && mark.found
}

func (m *Merger) current() *window {
	return m.windows[len(m.windows)-1]
}

// Stage adds one intent. Duplicate inserts fail here with
// AlreadyExistsError; misuse of table-wide statements with IllegalStateError.
// A rejected intent leaves the merger unchanged.
func (m *Merger) Stage(st Statement) (err error) {
	if err = st.validate(); err != nil {
		return
	}
	switch st.Op {
	case OpOpaque:
		closer := st
		m.current().closer = &closer
		m.windows = append(m.windows, newWindow())
		// an opaque statement may touch any table
		m.allDirty = true
	case OpDeleteAll:
		tw := m.current().table(st.Table)
		tw.deleteAll = true
		tw.records.Clear()
		tw.updates = nil
		m.dirty[st.Table] = true
	case OpBlindUpdate:
		if m.touched[st.Table] {
			err = illegalState("update after other modifications not allowed on %s", st.Table)
			return
		}
		tw := m.current().table(st.Table)
		tw.updates = append(tw.updates, st)
		m.blind[st.Table] = true
		m.dirty[st.Table] = true
	default:
		if m.blind[st.Table] {
			err = illegalState("modification of %s after blind update not allowed", st.Table)
			return
		}
		if err = m.stageRecord(st); err != nil {
			return
		}
		m.touched[st.Table] = true
	}
	m.staged++
	return
}

func (m *Merger) stageRecord(st Statement) (err error) {
	tw := m.current().table(st.Table)
	in, has := tw.records.Get(&recordIntent{key: st.Key})
	if !has {
		in = &recordIntent{
			key:        st.Key,
			state:      stateNone,
			trustReads: !m.allDirty && !m.dirty[st.Table],
		}
	}
	next, err := m.transition(st, in)
	if err != nil {
		return
	}
	in.state = next
	if st.Op == OpDelete {
		in.value = nil
	} else {
		in.value = st.Value
	}
	if !has {
		tw.records.Set(in)
	}
	return
}

func (m *Merger) transition(st Statement, in *recordIntent) (next mergeState, err error) {
	switch st.Op {
	case OpInsert:
		switch in.state {
		case stateNone, stateInsDel:
			next = stateInsert
		case stateInsert:
			err = &AlreadyExistsError{Table: st.Table, Key: st.Key}
		case stateUpsert:
			if in.trustReads && m.readPresent(st.Table, st.Key) {
				err = &AlreadyExistsError{Table: st.Table, Key: st.Key}
				return
			}
			next = stateInsert
		case stateDelete:
			// the key's state before the transaction is unknown here
			next = stateUpsert
		}
	case OpUpsert:
		switch in.state {
		case stateNone, stateUpsert, stateDelete:
			next = stateUpsert
		case stateInsert, stateInsDel:
			next = stateInsert
		}
	case OpDelete:
		switch in.state {
		case stateNone, stateUpsert, stateDelete:
			next = stateDelete
		case stateInsert, stateInsDel:
			next = stateInsDel
		}
	}
	return
}

// Operations finalizes the buffered intents. Per window and table the order
// is: DeleteAll, inserts, upserts, deletes, blind updates; each window ends
// with the opaque statement that closed it.
func (m *Merger) Operations() (ops []Statement, err error) {
	ops = make([]Statement, 0, m.staged)
	for _, w := range m.windows {
		for _, id := range w.order {
			tw := w.tables[id]
			if tw.deleteAll {
				ops = append(ops, DeleteAll(id))
			}
			var inserts, upserts, deletes []Statement
			tw.records.Scan(func(in *recordIntent) bool {
				switch in.state {
				case stateInsert:
					if in.trustReads && m.readPresent(id, in.key) {
						err = &AlreadyExistsError{Table: id, Key: in.key}
						return false
					}
					inserts = append(inserts, Insert(id, in.key, in.value))
				case stateUpsert:
					if in.trustReads && m.sameAsRead(id, in) {
						return true
					}
					upserts = append(upserts, Upsert(id, in.key, in.value))
				case stateDelete, stateInsDel:
					// INS_DEL is emitted as a delete, never dropped
					deletes = append(deletes, Delete(id, in.key))
				}
				return true
			})
			if err != nil {
				ops = nil
				return
			}
			ops = append(ops, inserts...)
			ops = append(ops, upserts...)
			ops = append(ops, deletes...)
			ops = append(ops, tw.updates...)
		}
		if w.closer != nil {
			ops = append(ops, *w.closer)
		}
	}
	return
}

func (m *Merger) sameAsRead(id TableID, in *recordIntent) bool {
	if m.equal == nil {
		return false
	}
	mark, known := m.lastRead(id, in.key)
	if !known || !mark.found {
		return false
	}
	return m.equal(id, mark.value, in.value)
}
