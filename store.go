package txstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Option func(s *Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Store) {
		s.metrics = metrics
	}
}

// WithExecutor makes every commit also run its merged statements on a
// backend. A failing executor aborts the commit before anything is published.
func WithExecutor(executor Executor) Option {
	return func(s *Store) {
		s.executor = executor
	}
}

// Store owns the published snapshot. Reads of the snapshot are lock free
// and commitMu is held only while a successor is validated, applied and
// swapped in. With an executor, writers are also ordered by execMu, held
// across the backend round trip, so the backend sees commits in publish
// order.
type Store struct {
	current   atomic.Pointer[Snapshot]
	commitMu  sync.Mutex
	execMu    sync.Mutex
	executor  Executor
	logger    zerolog.Logger
	metrics   *Metrics
	listeners *sync.Map
}

func NewStore(options ...Option) *Store {
	s := &Store{
		logger:    zerolog.Nop(),
		listeners: new(sync.Map),
	}
	for _, option := range options {
		option(s)
	}
	s.current.Store(emptySnapshot())
	return s
}

// Current returns the latest published snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// CreateTable registers a table and its schema. Creating an existing table
// is a no-op.
func (s *Store) CreateTable(id TableID, schema Schema) (err error) {
	if schema == nil {
		err = illegalState("table %s needs a schema", id)
		return
	}
	_, err = s.Commit(func(current *Snapshot) (*Snapshot, error) {
		b := current.Edit()
		if !b.CreateTable(id, schema) {
			return current, nil
		}
		return b.Build(), nil
	})
	if err == nil {
		s.logger.Debug().Str("table", string(id)).Msg("table created")
	}
	return
}

func (s *Store) DropTable(id TableID) (err error) {
	_, err = s.Commit(func(current *Snapshot) (*Snapshot, error) {
		b := current.Edit()
		if dropErr := b.DropTable(id); dropErr != nil {
			return nil, dropErr
		}
		return b.Build(), nil
	})
	if err != nil {
		err = fmt.Errorf("txstore drop table failed, %w", err)
		return
	}
	s.logger.Debug().Str("table", string(id)).Msg("table dropped")
	return
}

// Commit runs mutator on the current snapshot under the commit lock and
// publishes its result. When mutator fails nothing is published. Returning
// the snapshot it was given publishes nothing either.
func (s *Store) Commit(mutator func(current *Snapshot) (*Snapshot, error)) (published *Snapshot, err error) {
	if s.executor != nil {
		s.execMu.Lock()
		defer s.execMu.Unlock()
	}
	published, err = s.swap(mutator)
	return
}

func (s *Store) swap(mutator func(current *Snapshot) (*Snapshot, error)) (published *Snapshot, err error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	current := s.current.Load()
	next, err := mutator(current)
	if err != nil {
		return
	}
	if next == nil || next == current {
		published = current
		return
	}
	s.current.Store(next)
	published = next
	return
}

// prepare validates the transaction's reads against current and applies ops
// on top of it.
func (s *Store) prepare(tx *Tx, current *Snapshot, ops []Statement) (next *Snapshot, err error) {
	if err = tx.validator.Validate(tx.baseline, current); err != nil {
		return
	}
	b := current.Edit()
	if err = applyStatements(b, ops); err != nil {
		return
	}
	next = b.Build()
	return
}

// commitOps publishes the transaction's ops. Without an executor validation
// and apply run in one critical section. With one, the successor snapshot is
// prepared and the executor run while only execMu is held; the result is
// published if the executor succeeds and the store has not moved since.
func (s *Store) commitOps(ctx context.Context, tx *Tx, ops []Statement) (published *Snapshot, err error) {
	begin := time.Now()
	defer func() {
		s.metrics.observeCommit(time.Since(begin))
	}()
	if s.executor == nil {
		published, err = s.swap(func(current *Snapshot) (*Snapshot, error) {
			return s.prepare(tx, current, ops)
		})
		return
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()
	base := s.current.Load()
	next, err := s.prepare(tx, base, ops)
	if err != nil {
		return
	}
	if err = s.executor.Execute(ctx, ops); err != nil {
		return
	}
	published, err = s.swap(func(current *Snapshot) (*Snapshot, error) {
		if current != base {
			return nil, illegalState("store moved from version %d to %d during commit of %s", base.Version(), current.Version(), tx.id)
		}
		return next, nil
	})
	return
}
