package txstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Tx is one optimistic transaction. Reads see the snapshot pinned by the
// first read or write (the baseline); writes are buffered and merged; the
// commit validates every read against the latest snapshot before applying.
//
// A Tx may be abandoned without Rollback; nothing is published before a
// successful Commit.
type Tx struct {
	id        string
	store     *Store
	status    statusSwitch
	closedBy  string
	mu        sync.Mutex
	baseline  *Snapshot
	validator *Validator
	merger    *Merger
	begun     time.Time
	logger    zerolog.Logger
}

// Begin starts a transaction on the store.
func (s *Store) Begin() *Tx {
	tx := &Tx{
		id:        NewTxId(),
		store:     s,
		validator: NewValidator(),
		begun:     time.Now(),
	}
	tx.merger = NewMerger(tx.equal)
	tx.logger = s.logger.With().Str("tx_id", tx.id).Logger()
	s.metrics.txStarted()
	tx.logger.Debug().Msg("transaction begun")
	return tx
}

func (tx *Tx) ID() string {
	return tx.id
}

func (tx *Tx) Status() TxStatus {
	return tx.status.load()
}

// Baseline is the pinned snapshot, nil before the first read or write.
func (tx *Tx) Baseline() *Snapshot {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.baseline
}

// Read returns the baseline value of a key and remembers the read for
// commit-time validation. A missing key is remembered as well.
func (tx *Tx) Read(table TableID, key Key) (value interface{}, found bool, err error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err = tx.active(); err != nil {
		return
	}
	if key, err = normalized(table, key); err != nil {
		return
	}
	schema, err := tx.pin().Schema(table)
	if err != nil {
		return
	}
	if err = checkKey(table, schema, key, false); err != nil {
		return
	}
	value, found, err = tx.baseline.Get(table, key)
	if err != nil {
		return
	}
	tx.validator.TrackKey(table, key)
	tx.merger.ObserveRead(table, key, value, found)
	return
}

// ReadRange returns every baseline row inside r and remembers the range, so
// that a row added to it concurrently fails the commit.
func (tx *Tx) ReadRange(table TableID, r Range) (rows []Row, err error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err = tx.active(); err != nil {
		return
	}
	if r.From, err = normalized(table, r.From); err != nil {
		return
	}
	if r.To, err = normalized(table, r.To); err != nil {
		return
	}
	schema, err := tx.pin().Schema(table)
	if err != nil {
		return
	}
	if err = checkKey(table, schema, r.From, true); err != nil {
		return
	}
	if err = checkKey(table, schema, r.To, true); err != nil {
		return
	}
	err = tx.baseline.Scan(table, r, func(row Row) bool {
		rows = append(rows, row)
		return true
	})
	if err != nil {
		return
	}
	tx.validator.TrackRange(table, r)
	for _, row := range rows {
		tx.merger.ObserveRead(table, row.Key, row.Value, true)
	}
	return
}

// Write stages a statement. For inserts and upserts an empty key is taken
// from the value through the table schema.
func (tx *Tx) Write(st Statement) (err error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err = tx.active(); err != nil {
		return
	}
	if st.Key, err = normalized(st.Table, st.Key); err != nil {
		return
	}
	base := tx.pin()
	if st.Table != "" {
		schema, schemaErr := base.Schema(st.Table)
		if schemaErr != nil {
			err = schemaErr
			return
		}
		if st, err = keyed(st, schema); err != nil {
			return
		}
	}
	if err = tx.merger.Stage(st); err != nil {
		tx.logger.Debug().Err(err).Str("statement", st.String()).Msg("statement rejected")
		return
	}
	return
}

// Operations previews the merged statements Commit would apply.
func (tx *Tx) Operations() (ops []Statement, err error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err = tx.active(); err != nil {
		return
	}
	return tx.merger.Operations()
}

// Commit applies the merged writes if no read has changed since the
// baseline. A transaction with nothing to write commits without touching
// the store. Any failure leaves the store as it was and the transaction
// Failed.
func (tx *Tx) Commit(ctx context.Context) (err error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.status.move(TxActive, TxCommitting) {
		err = tx.closedError()
		return
	}
	tx.closedBy = "commit"
	defer tx.discard()

	if err = ctx.Err(); err != nil {
		tx.fail("canceled", err)
		err = fmt.Errorf("txstore commit failed, %w", err)
		return
	}
	ops, err := tx.merger.Operations()
	if err != nil {
		tx.fail(KindOf(err).String(), err)
		return
	}
	if len(ops) == 0 {
		tx.status.move(TxCommitting, TxCommitted)
		tx.store.metrics.txCommitted(ops)
		tx.logger.Debug().Msg("transaction committed without writes")
		return
	}
	published, err := tx.store.commitOps(ctx, tx, ops)
	if err != nil {
		tx.fail(KindOf(err).String(), err)
		return
	}
	tx.status.move(TxCommitting, TxCommitted)
	tx.store.metrics.txCommitted(ops)
	tx.logger.Debug().
		Int("ops", len(ops)).
		Uint64("version", published.Version()).
		Dur("elapsed", time.Since(tx.begun)).
		Msg("transaction committed")
	tx.store.publish(CommitEvent{
		TxID:       tx.id,
		Version:    published.Version(),
		Operations: ops,
		At:         time.Now(),
	})
	return
}

// Rollback discards everything staged. It fails only when the transaction
// is already closed.
func (tx *Tx) Rollback() (err error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.status.move(TxActive, TxRolledBack) {
		err = tx.closedError()
		return
	}
	tx.closedBy = "rollback"
	tx.discard()
	tx.store.metrics.txRolledBack()
	tx.logger.Debug().Msg("transaction rolled back")
	return
}

func (tx *Tx) fail(reason string, cause error) {
	tx.status.move(TxCommitting, TxFailed)
	tx.store.metrics.txFailed(reason)
	event := tx.logger.Debug()
	if KindOf(cause) == KindConflict {
		event = tx.logger.Info()
	}
	event.Err(cause).Str("reason", reason).Msg("transaction commit failed")
}

func (tx *Tx) discard() {
	tx.baseline = nil
	tx.validator.Reset()
	tx.merger.Reset()
}

func (tx *Tx) active() error {
	if st := tx.status.load(); st != TxActive {
		return illegalState("transaction %s is not active, status is %s", tx.id, st)
	}
	return nil
}

func (tx *Tx) closedError() error {
	return illegalState("transaction %s already closed by %s", tx.id, tx.closedBy)
}

func (tx *Tx) pin() *Snapshot {
	if tx.baseline == nil {
		tx.baseline = tx.store.Current()
	}
	return tx.baseline
}

func (tx *Tx) equal(table TableID, a, b interface{}) bool {
	if tx.baseline != nil {
		if schema, err := tx.baseline.Schema(table); err == nil {
			return schema.Equal(a, b)
		}
	}
	return versionsEqual(a, b)
}

// normalized passes a caller's key through NewKey, so literal keys such as
// Key{1} match the int64 parts stored by the engine.
func normalized(table TableID, key Key) (Key, error) {
	if len(key) == 0 {
		return key, nil
	}
	n, err := NewKey(key...)
	if err != nil {
		return nil, illegalState("key of %s is invalid, %v", table, err)
	}
	return n, nil
}

func checkKey(table TableID, schema Schema, key Key, partial bool) error {
	fields := schema.KeyFields()
	if len(fields) == 0 {
		return nil
	}
	if partial && len(key) <= len(fields) {
		return nil
	}
	if !partial && len(key) == len(fields) {
		return nil
	}
	return illegalState("key %s does not fit %s key fields %v", key, table, fields)
}

func keyed(st Statement, schema Schema) (out Statement, err error) {
	out = st
	if st.Op == OpInsert || st.Op == OpUpsert {
		if st.Value == nil {
			err = illegalState("%s without a value", st)
			return
		}
		k, keyErr := schema.KeyOf(st.Value)
		if keyErr != nil {
			err = illegalState("%s failed, %v", st, keyErr)
			return
		}
		if len(st.Key) == 0 {
			out.Key = k
		} else if !st.Key.Equal(k) {
			err = illegalState("%s does not match the value key %s", st, k)
			return
		}
	}
	if st.Op.perRecord() {
		err = checkKey(st.Table, schema, out.Key, false)
	}
	return
}
