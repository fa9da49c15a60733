package txstore

import (
	"bytes"
	"fmt"
)

// Schema is the per-table capability the engine needs from the mapping
// layer: key extraction and structural version equality. Everything else
// about a record is opaque here.
type Schema interface {
	KeyFields() []string
	KeyOf(value interface{}) (Key, error)
	Equal(a, b interface{}) bool
}

// NewSchema describes a table holding values of type T. Equality is
// decided on the canonical msgpack encoding of the values.
func NewSchema[T any](keyFields []string, keyOf func(v T) Key) Schema {
	return &typedSchema[T]{fields: keyFields, keyOf: keyOf}
}

type typedSchema[T any] struct {
	fields []string
	keyOf  func(v T) Key
}

func (s *typedSchema[T]) KeyFields() []string {
	return s.fields
}

func (s *typedSchema[T]) KeyOf(value interface{}) (key Key, err error) {
	v, ok := value.(T)
	if !ok {
		err = fmt.Errorf("txstore schema key failed, value of type %T is not %T", value, *new(T))
		return
	}
	key, err = NewKey(s.keyOf(v)...)
	return
}

func (s *typedSchema[T]) Equal(a, b interface{}) bool {
	return versionsEqual(a, b)
}

// NewMapSchema describes a table of map[string]interface{} records whose
// key is made of the named fields, in order.
func NewMapSchema(keyFields ...string) Schema {
	return &mapSchema{fields: keyFields}
}

type mapSchema struct {
	fields []string
}

func (s *mapSchema) KeyFields() []string {
	return s.fields
}

func (s *mapSchema) KeyOf(value interface{}) (key Key, err error) {
	m, ok := value.(map[string]interface{})
	if !ok {
		err = fmt.Errorf("txstore schema key failed, value of type %T is not a map", value)
		return
	}
	parts := make([]interface{}, len(s.fields))
	for i, f := range s.fields {
		p, has := m[f]
		if !has {
			err = fmt.Errorf("txstore schema key failed, field %s is missing", f)
			return
		}
		parts[i] = p
	}
	key, err = NewKey(parts...)
	return
}

func (s *mapSchema) Equal(a, b interface{}) bool {
	return versionsEqual(a, b)
}

// versionsEqual compares canonical encodings. Values that cannot be encoded
// never compare equal, which errs on the side of reporting a conflict.
func versionsEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	pa, err := encodeVersion(a)
	if err != nil {
		return false
	}
	pb, err := encodeVersion(b)
	if err != nil {
		return false
	}
	return bytes.Equal(pa, pb)
}
