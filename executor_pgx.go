package txstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxConn is what PgxExecutor needs from a pool or a connection.
type PgxConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PgxExecutor writes merged statements to the RECORDS table through pgx.
type PgxExecutor struct {
	db PgxConn
}

func NewPgxExecutor(db PgxConn) *PgxExecutor {
	return &PgxExecutor{db: db}
}

func (e *PgxExecutor) Execute(ctx context.Context, ops []Statement) (err error) {
	if len(ops) == 0 {
		return
	}
	stmts, err := renderStatements(ops)
	if err != nil {
		return
	}
	tx, txErr := e.db.Begin(ctx)
	if txErr != nil {
		err = fmt.Errorf("pgx executor execute failed, %w", txErr)
		return
	}
	for _, s := range stmts {
		if _, execErr := tx.Exec(ctx, s.query, s.args...); execErr != nil {
			_ = tx.Rollback(ctx)
			err = pgxExecError(s.source, execErr)
			return
		}
	}
	if commitErr := tx.Commit(ctx); commitErr != nil {
		_ = tx.Rollback(ctx)
		err = fmt.Errorf("pgx executor execute failed, %w", commitErr)
		return
	}
	return
}

func pgxExecError(op Statement, cause error) error {
	var pgErr *pgconn.PgError
	if op.Op == OpInsert && errors.As(cause, &pgErr) && pgErr.Code == "23505" {
		return &AlreadyExistsError{Table: op.Table, Key: op.Key}
	}
	return fmt.Errorf("pgx executor execute %s failed, %w", op, cause)
}

// Load reads every stored row of a table, ordered by key.
func (e *PgxExecutor) Load(ctx context.Context, table TableID, decode Decoder) (rows []Row, err error) {
	rs, queryErr := e.db.Query(ctx, sqlRecordList, string(table))
	if queryErr != nil {
		err = fmt.Errorf("pgx executor load failed, %w", queryErr)
		return
	}
	defer rs.Close()
	for rs.Next() {
		var rawKey string
		var rawValue []byte
		if scanErr := rs.Scan(&rawKey, &rawValue); scanErr != nil {
			err = fmt.Errorf("pgx executor load failed, %w", scanErr)
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
		err = fmt.Errorf("pgx executor load failed, %w", rsErr)
		return
	}
	sortRows(rows)
	return
}
