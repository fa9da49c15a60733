package txstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects placeholder syntax, DDL and duplicate-key detection of a
// database/sql backend.
type Dialect int

const (
	Postgres Dialect = iota + 1
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

func (d Dialect) driverName() string {
	return d.String()
}

func (d Dialect) bind(query string) string {
	if d == SQLite {
		return rebindQuestion(query)
	}
	return query
}

func (d Dialect) ddl() string {
	if d == SQLite {
		return `CREATE TABLE IF NOT EXISTS "RECORDS" (
    "TABLE_ID" TEXT NOT NULL,
    "KEY" TEXT NOT NULL,
    "VALUE" BLOB NOT NULL,
    PRIMARY KEY ("TABLE_ID", "KEY")
)`
	}
	return `CREATE TABLE IF NOT EXISTS "RECORDS" (
    "TABLE_ID" character varying(256) NOT NULL,
    "KEY" text NOT NULL,
    "VALUE" bytea NOT NULL,
    CONSTRAINT "RECORDS_pkey" PRIMARY KEY ("TABLE_ID", "KEY")
)`
}

func (d Dialect) txOptions() *sql.TxOptions {
	if d == SQLite {
		return nil
	}
	return &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: false}
}

func (d Dialect) isDuplicate(err error) bool {
	switch d {
	case Postgres:
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	case SQLite:
		var liteErr *sqlite.Error
		if !errors.As(err, &liteErr) {
			return false
		}
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}

// SQLExecutor writes merged statements to a RECORDS table through
// database/sql.
type SQLExecutor struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLExecutor(db *sql.DB, dialect Dialect) *SQLExecutor {
	return &SQLExecutor{db: db, dialect: dialect}
}

// OpenSQLExecutor opens and pings a database for dialect.
func OpenSQLExecutor(ctx context.Context, dialect Dialect, dsn string, maxOpenConns int, maxIdleConns int) (executor *SQLExecutor, err error) {
	db, openErr := sql.Open(dialect.driverName(), dsn)
	if openErr != nil {
		err = fmt.Errorf("new %s executor failed, %w", dialect, openErr)
		return
	}
	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		err = fmt.Errorf("new %s executor failed, %w", dialect, pingErr)
		return
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	executor = NewSQLExecutor(db, dialect)
	return
}

func (e *SQLExecutor) DB() *sql.DB {
	return e.db
}

func (e *SQLExecutor) Close() error {
	return e.db.Close()
}

// EnsureSchema creates the RECORDS table when it is missing.
func (e *SQLExecutor) EnsureSchema(ctx context.Context) (err error) {
	if _, execErr := e.db.ExecContext(ctx, e.dialect.ddl()); execErr != nil {
		err = fmt.Errorf("sql executor ensure schema failed, %w", execErr)
	}
	return
}

func (e *SQLExecutor) Execute(ctx context.Context, ops []Statement) (err error) {
	if len(ops) == 0 {
		return
	}
	stmts, err := renderStatements(ops)
	if err != nil {
		return
	}
	tx, txErr := e.db.BeginTx(ctx, e.dialect.txOptions())
	if txErr != nil {
		err = fmt.Errorf("sql executor execute failed, %w", txErr)
		return
	}
	prepared := make(map[string]*sql.Stmt)
	closeAll := func() {
		for _, stmt := range prepared {
			_ = stmt.Close()
		}
	}
	for _, s := range stmts {
		stmt, has := prepared[s.query]
		if !has {
			var stmtErr error
			stmt, stmtErr = tx.PrepareContext(ctx, e.dialect.bind(s.query))
			if stmtErr != nil {
				closeAll()
				_ = tx.Rollback()
				err = fmt.Errorf("sql executor execute failed, %w", stmtErr)
				return
			}
			prepared[s.query] = stmt
		}
		if _, execErr := stmt.ExecContext(ctx, s.args...); execErr != nil {
			closeAll()
			_ = tx.Rollback()
			err = e.execError(s.source, execErr)
			return
		}
	}
	closeAll()
	if commitErr := tx.Commit(); commitErr != nil {
		_ = tx.Rollback()
		err = fmt.Errorf("sql executor execute failed, %w", commitErr)
		return
	}
	return
}

func (e *SQLExecutor) execError(op Statement, cause error) error {
	if op.Op == OpInsert && e.dialect.isDuplicate(cause) {
		return &AlreadyExistsError{Table: op.Table, Key: op.Key}
	}
	return fmt.Errorf("sql executor execute %s failed, %w", op, cause)
}

// Load reads every stored row of a table, ordered by key.
func (e *SQLExecutor) Load(ctx context.Context, table TableID, decode Decoder) (rows []Row, err error) {
	rs, queryErr := e.db.QueryContext(ctx, e.dialect.bind(sqlRecordList), string(table))
	if queryErr != nil {
		err = fmt.Errorf("sql executor load failed, %w", queryErr)
		return
	}
	defer func() { _ = rs.Close() }()
	for rs.Next() {
		var rawKey string
		var rawValue []byte
		if scanErr := rs.Scan(&rawKey, &rawValue); scanErr != nil {
			err = fmt.Errorf("sql executor load failed, %w", scanErr)
			return
		}
		row, rowErr := decodeRecord(table, rawKey, rawValue, decode)
		if rowErr != nil {
			err = rowErr
			return
		}
		rows = append(rows, row)
	}
	if rsErr := rs.Err(); rsErr != nil {
		err = fmt.Errorf("sql executor load failed, %w", rsErr)
		return
	}
	sortRows(rows)
	return
}
