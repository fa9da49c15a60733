package txstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Executor runs a merged statement list against a backend, all or nothing.
type Executor interface {
	Execute(ctx context.Context, ops []Statement) error
}

type ExecutorFunc func(ctx context.Context, ops []Statement) error

func (f ExecutorFunc) Execute(ctx context.Context, ops []Statement) error {
	return f(ctx, ops)
}

// Decoder turns a stored VALUE column back into a value of the table.
type Decoder func(key Key, raw []byte) (interface{}, error)

// MsgpackDecoder decodes VALUE columns written by the SQL executors into T.
func MsgpackDecoder[T any]() Decoder {
	return func(_ Key, raw []byte) (value interface{}, err error) {
		var v T
		if err = decodeVersion(raw, &v); err != nil {
			return
		}
		value = v
		return
	}
}

/* table ddl

CREATE TABLE "RECORDS"
(
    "TABLE_ID" character varying(256) NOT NULL,
    "KEY" text NOT NULL,
    "VALUE" bytea NOT NULL,
    CONSTRAINT "RECORDS_pkey" PRIMARY KEY ("TABLE_ID", "KEY")
);

*/

const (
	sqlRecordInsert    = `INSERT INTO "RECORDS" ("TABLE_ID", "KEY", "VALUE") VALUES ($1, $2, $3)`
	sqlRecordUpsert    = `INSERT INTO "RECORDS" ("TABLE_ID", "KEY", "VALUE") VALUES ($1, $2, $3) ON CONFLICT ("TABLE_ID", "KEY") DO UPDATE SET "VALUE" = EXCLUDED."VALUE"`
	sqlRecordDelete    = `DELETE FROM "RECORDS" WHERE "TABLE_ID" = $1 AND "KEY" = $2`
	sqlRecordDeleteAll = `DELETE FROM "RECORDS" WHERE "TABLE_ID" = $1`
	sqlRecordList      = `SELECT "KEY", "VALUE" FROM "RECORDS" WHERE "TABLE_ID" = $1`
)

// sqlStatement is one merged statement rendered for a SQL backend.
type sqlStatement struct {
	source Statement
	query  string
	args   []interface{}
}

// renderStatements maps merged statements to SQL with $n placeholders.
// Table-wide updates and opaque statements are passed through only when
// they carry query text.
func renderStatements(ops []Statement) (stmts []sqlStatement, err error) {
	stmts = make([]sqlStatement, 0, len(ops))
	for _, op := range ops {
		s := sqlStatement{source: op}
		switch op.Op {
		case OpInsert, OpUpsert:
			key, keyErr := encodeKey(op.Key)
			if keyErr != nil {
				err = fmt.Errorf("txstore render %s failed, %w", op, keyErr)
				return
			}
			value, valueErr := encodeVersion(op.Value)
			if valueErr != nil {
				err = fmt.Errorf("txstore render %s failed, %w", op, valueErr)
				return
			}
			s.query = sqlRecordInsert
			if op.Op == OpUpsert {
				s.query = sqlRecordUpsert
			}
			s.args = []interface{}{string(op.Table), key, value}
		case OpDelete:
			key, keyErr := encodeKey(op.Key)
			if keyErr != nil {
				err = fmt.Errorf("txstore render %s failed, %w", op, keyErr)
				return
			}
			s.query = sqlRecordDelete
			s.args = []interface{}{string(op.Table), key}
		case OpDeleteAll:
			s.query = sqlRecordDeleteAll
			s.args = []interface{}{string(op.Table)}
		case OpBlindUpdate:
			if op.Patch == nil || op.Patch.Query == "" {
				err = illegalState("%s has no query for a SQL backend", op)
				return
			}
			s.query = op.Patch.Query
			s.args = op.Patch.Args
		case OpOpaque:
			if op.Raw == nil || op.Raw.Query == "" {
				err = illegalState("%s has no query for a SQL backend", op)
				return
			}
			s.query = op.Raw.Query
			s.args = op.Raw.Args
		default:
			err = illegalState("unknown statement op %d", int(op.Op))
			return
		}
		stmts = append(stmts, s)
	}
	return
}

// rebindQuestion rewrites $n placeholders to ?.
func rebindQuestion(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			b.WriteByte('?')
			i = j - 1
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func decodeRecord(table TableID, rawKey string, rawValue []byte, decode Decoder) (row Row, err error) {
	key, err := decodeKey(rawKey)
	if err != nil {
		err = fmt.Errorf("txstore load %s failed, %w", table, err)
		return
	}
	value, err := decode(key, rawValue)
	if err != nil {
		err = fmt.Errorf("txstore load %s failed, %w", table, err)
		return
	}
	row = Row{Key: key, Value: value}
	return
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		return rowLess(rows[i], rows[j])
	})
}

// Load publishes rows read from a backend into a table without running the
// executor.
func (s *Store) Load(id TableID, rows []Row) (err error) {
	_, err = s.Commit(func(current *Snapshot) (*Snapshot, error) {
		b := current.Edit()
		for _, row := range rows {
			key, keyErr := normalized(id, row.Key)
			if keyErr != nil {
				return nil, keyErr
			}
			if putErr := b.Put(id, key, row.Value); putErr != nil {
				return nil, putErr
			}
		}
		return b.Build(), nil
	})
	if err != nil {
		err = fmt.Errorf("txstore load failed, %w", err)
	}
	return
}
