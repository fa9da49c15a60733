package txstore

import "fmt"

// Op tags a staged statement.
type Op int

const (
	OpInsert Op = iota + 1
	OpUpsert
	OpDelete
	OpDeleteAll
	OpBlindUpdate
	OpOpaque
)

func (op Op) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	case OpDeleteAll:
		return "delete_all"
	case OpBlindUpdate:
		return "blind_update"
	case OpOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

func (op Op) perRecord() bool {
	return op == OpInsert || op == OpUpsert || op == OpDelete
}

// Patch is the payload of a BlindUpdate. Apply rewrites one value for the
// in-memory store and is required; Query and Args are what SQL executors run
// verbatim, so both must describe the same update.
type Patch struct {
	Query string
	Args  []interface{}
	Apply func(key Key, value interface{}) (interface{}, error)
}

// Raw is the payload of an opaque statement. It never takes part in merging.
type Raw struct {
	Name  string
	Query string
	Args  []interface{}
	Apply func(b *Builder) error
}

// Statement is a write intent. Which fields are set depends on Op.
type Statement struct {
	Op    Op
	Table TableID
	Key   Key
	Value interface{}
	Patch *Patch
	Raw   *Raw
}

func Insert(table TableID, key Key, value interface{}) Statement {
	return Statement{Op: OpInsert, Table: table, Key: key, Value: value}
}

func Upsert(table TableID, key Key, value interface{}) Statement {
	return Statement{Op: OpUpsert, Table: table, Key: key, Value: value}
}

func Delete(table TableID, key Key) Statement {
	return Statement{Op: OpDelete, Table: table, Key: key}
}

func DeleteAll(table TableID) Statement {
	return Statement{Op: OpDeleteAll, Table: table}
}

func BlindUpdate(table TableID, patch Patch) Statement {
	return Statement{Op: OpBlindUpdate, Table: table, Patch: &patch}
}

func Opaque(table TableID, raw Raw) Statement {
	return Statement{Op: OpOpaque, Table: table, Raw: &raw}
}

func (s Statement) String() string {
	switch s.Op {
	case OpInsert, OpUpsert, OpDelete:
		return fmt.Sprintf("%s(%s %s)", s.Op, s.Table, s.Key)
	case OpOpaque:
		if s.Raw != nil && s.Raw.Name != "" {
			return fmt.Sprintf("%s(%s %s)", s.Op, s.Table, s.Raw.Name)
		}
	}
	return fmt.Sprintf("%s(%s)", s.Op, s.Table)
}

func (s Statement) validate() (err error) {
	switch s.Op {
	case OpInsert, OpUpsert:
		if s.Value == nil {
			err = illegalState("%s without a value", s)
			return
		}
		fallthrough
	case OpDelete:
		if len(s.Key) == 0 {
			err = illegalState("%s without a key", s)
		}
	case OpDeleteAll:
	case OpBlindUpdate:
		if s.Patch == nil {
			err = illegalState("%s without a patch", s)
			return
		}
		if s.Patch.Apply == nil {
			err = illegalState("%s without an apply function", s)
		}
	case OpOpaque:
		if s.Raw == nil {
			err = illegalState("%s without a payload", s)
		}
	default:
		err = illegalState("unknown statement op %d", int(s.Op))
	}
	return
}

// applyStatements replays ops on a builder the way a backend would.
func applyStatements(b *Builder, ops []Statement) (err error) {
	for _, op := range ops {
		switch op.Op {
		case OpInsert:
			err = b.Insert(op.Table, op.Key, op.Value)
		case OpUpsert:
			err = b.Put(op.Table, op.Key, op.Value)
		case OpDelete:
			_, err = b.Delete(op.Table, op.Key)
		case OpDeleteAll:
			err = b.DeleteAll(op.Table)
		case OpBlindUpdate:
			err = b.Update(op.Table, op.Patch.Apply)
		case OpOpaque:
			if op.Raw.Apply != nil {
				err = op.Raw.Apply(b)
			}
		default:
			panic(fmt.Sprintf("txstore apply: unknown statement op %d", int(op.Op)))
		}
		if err != nil {
			return
		}
	}
	return
}
