package txstore

import "fmt"

// Table is a typed view of one table inside a transaction. Values stored
// through it must be of type T; keys come from the table schema.
type Table[T any] struct {
	tx    *Tx
	table TableID
}

func Open[T any](tx *Tx, table TableID) *Table[T] {
	return &Table[T]{tx: tx, table: table}
}

func (t *Table[T]) ID() TableID {
	return t.table
}

func (t *Table[T]) Find(key Key) (v T, found bool, err error) {
	raw, found, err := t.tx.Read(t.table, key)
	if err != nil || !found {
		return
	}
	v, err = t.cast(raw)
	return
}

func (t *Table[T]) FindRange(r Range) (values []T, err error) {
	rows, err := t.tx.ReadRange(t.table, r)
	if err != nil {
		return
	}
	values = make([]T, 0, len(rows))
	for _, row := range rows {
		v, castErr := t.cast(row.Value)
		if castErr != nil {
			err = castErr
			values = nil
			return
		}
		values = append(values, v)
	}
	return
}

// FindAll reads the whole table; any concurrent change to it fails the commit.
func (t *Table[T]) FindAll() (values []T, err error) {
	return t.FindRange(FullRange())
}

func (t *Table[T]) Insert(v T) error {
	return t.tx.Write(Insert(t.table, nil, v))
}

// Save inserts v or replaces the value stored under its key.
func (t *Table[T]) Save(v T) error {
	return t.tx.Write(Upsert(t.table, nil, v))
}

func (t *Table[T]) Delete(key Key) error {
	return t.tx.Write(Delete(t.table, key))
}

func (t *Table[T]) DeleteAll() error {
	return t.tx.Write(DeleteAll(t.table))
}

// UpdateAll rewrites every value of the table with fn. query and args are
// what SQL executors run for the same update; they may be empty for a
// store without an executor. fn is required.
func (t *Table[T]) UpdateAll(fn func(v T) (T, error), query string, args ...interface{}) error {
	if fn == nil {
		return illegalState("update of %s without an apply function", t.table)
	}
	patch := Patch{Query: query, Args: args}
	patch.Apply = func(_ Key, value interface{}) (out interface{}, err error) {
		v, err := t.cast(value)
		if err != nil {
			return
		}
		out, err = fn(v)
		return
	}
	return t.tx.Write(BlindUpdate(t.table, patch))
}

func (t *Table[T]) cast(raw interface{}) (v T, err error) {
	v, ok := raw.(T)
	if !ok {
		err = fmt.Errorf("txstore table %s holds %T, not %T", t.table, raw, v)
	}
	return
}
