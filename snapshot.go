package txstore

import (
	"sort"

	"github.com/tidwall/btree"
)

// Row is one record of a snapshot table.
type Row struct {
	Key   Key
	Value interface{}
}

func rowLess(a, b Row) bool {
	return a.Key.Compare(b.Key) < 0
}

type table struct {
	id     TableID
	schema Schema
	rows   *btree.BTreeG[Row]
}

func newTable(id TableID, schema Schema) *table {
	return &table{id: id, schema: schema, rows: btree.NewBTreeG[Row](rowLess)}
}

func (t *table) get(key Key) (value interface{}, found bool) {
	row, found := t.rows.Get(Row{Key: key})
	if found {
		value = row.Value
	}
	return
}

func (t *table) scan(r Range, fn func(row Row) bool) {
	visit := func(row Row) bool {
		if !r.belowUpper(row.Key) {
			return false
		}
		if !r.aboveLower(row.Key) {
			return true
		}
		return fn(row)
	}
	if len(r.From) == 0 {
		t.rows.Scan(visit)
		return
	}
	t.rows.Ascend(Row{Key: r.From}, visit)
}

// Snapshot is an immutable view of every table at one commit. Published
// snapshots are never modified; a commit builds a new one through Edit.
type Snapshot struct {
	version uint64
	tables  map[TableID]*table
}

func emptySnapshot() *Snapshot {
	return &Snapshot{tables: make(map[TableID]*table)}
}

// Version counts the commits that led to this snapshot.
func (s *Snapshot) Version() uint64 {
	return s.version
}

func (s *Snapshot) HasTable(id TableID) bool {
	_, has := s.tables[id]
	return has
}

func (s *Snapshot) Tables() []TableID {
	ids := make([]TableID, 0, len(s.tables))
	for id := range s.tables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Snapshot) Schema(id TableID) (schema Schema, err error) {
	t, err := s.table(id)
	if err != nil {
		return
	}
	schema = t.schema
	return
}

func (s *Snapshot) Len(id TableID) (n int, err error) {
	t, err := s.table(id)
	if err != nil {
		return
	}
	n = t.rows.Len()
	return
}

func (s *Snapshot) Get(id TableID, key Key) (value interface{}, found bool, err error) {
	t, err := s.table(id)
	if err != nil {
		return
	}
	value, found = t.get(key)
	return
}

// Scan calls fn for every row of the table inside r, in key order, until fn
// returns false.
func (s *Snapshot) Scan(id TableID, r Range, fn func(row Row) bool) (err error) {
	t, err := s.table(id)
	if err != nil {
		return
	}
	t.scan(r, fn)
	return
}

// Edit starts building the successor of this snapshot.
func (s *Snapshot) Edit() *Builder {
	tables := make(map[TableID]*table, len(s.tables))
	for id, t := range s.tables {
		tables[id] = t
	}
	return &Builder{base: s, tables: tables, owned: make(map[TableID]bool)}
}

func (s *Snapshot) table(id TableID) (t *table, err error) {
	t, has := s.tables[id]
	if !has {
		err = &TableNotFoundError{Table: id}
	}
	return
}

// lookup returns nil for a missing table.
func (s *Snapshot) lookup(id TableID) *table {
	return s.tables[id]
}

// Builder accumulates changes on top of a snapshot. Tables are copied on
// first write only, so untouched tables keep sharing storage with the base.
type Builder struct {
	base   *Snapshot
	tables map[TableID]*table
	owned  map[TableID]bool
}

// CreateTable adds an empty table. It reports false and changes nothing
// when the table already exists.
func (b *Builder) CreateTable(id TableID, schema Schema) bool {
	if _, has := b.tables[id]; has {
		return false
	}
	b.tables[id] = newTable(id, schema)
	b.owned[id] = true
	return true
}

func (b *Builder) DropTable(id TableID) (err error) {
	if _, has := b.tables[id]; !has {
		err = &TableNotFoundError{Table: id}
		return
	}
	delete(b.tables, id)
	delete(b.owned, id)
	return
}

func (b *Builder) Get(id TableID, key Key) (value interface{}, found bool, err error) {
	t, has := b.tables[id]
	if !has {
		err = &TableNotFoundError{Table: id}
		return
	}
	value, found = t.get(key)
	return
}

func (b *Builder) Schema(id TableID) (schema Schema, err error) {
	t, has := b.tables[id]
	if !has {
		err = &TableNotFoundError{Table: id}
		return
	}
	schema = t.schema
	return
}

// Insert fails with AlreadyExistsError when the key is present.
func (b *Builder) Insert(id TableID, key Key, value interface{}) (err error) {
	t, err := b.writable(id)
	if err != nil {
		return
	}
	if _, has := t.rows.Get(Row{Key: key}); has {
		err = &AlreadyExistsError{Table: id, Key: key}
		return
	}
	t.rows.Set(Row{Key: key, Value: value})
	return
}

func (b *Builder) Put(id TableID, key Key, value interface{}) (err error) {
	t, err := b.writable(id)
	if err != nil {
		return
	}
	t.rows.Set(Row{Key: key, Value: value})
	return
}

func (b *Builder) Delete(id TableID, key Key) (deleted bool, err error) {
	t, err := b.writable(id)
	if err != nil {
		return
	}
	_, deleted = t.rows.Delete(Row{Key: key})
	return
}

func (b *Builder) DeleteAll(id TableID) (err error) {
	t, has := b.tables[id]
	if !has {
		err = &TableNotFoundError{Table: id}
		return
	}
	b.tables[id] = newTable(id, t.schema)
	b.owned[id] = true
	return
}

// Update replaces every value of the table with the result of fn.
func (b *Builder) Update(id TableID, fn func(key Key, value interface{}) (interface{}, error)) (err error) {
	t, err := b.writable(id)
	if err != nil {
		return
	}
	rows := make([]Row, 0, t.rows.Len())
	t.rows.Scan(func(row Row) bool {
		rows = append(rows, row)
		return true
	})
	for _, row := range rows {
		next, fnErr := fn(row.Key, row.Value)
		if fnErr != nil {
			err = fnErr
			return
		}
		t.rows.Set(Row{Key: row.Key, Value: next})
	}
	return
}

// Build returns the successor snapshot. The builder must not be used again.
func (b *Builder) Build() *Snapshot {
	return &Snapshot{version: b.base.version + 1, tables: b.tables}
}

func (b *Builder) writable(id TableID) (t *table, err error) {
	t, has := b.tables[id]
	if !has {
		err = &TableNotFoundError{Table: id}
		return
	}
	if b.owned[id] {
		return
	}
	t = &table{id: t.id, schema: t.schema, rows: t.rows.Copy()}
	b.tables[id] = t
	b.owned[id] = true
	return
}
