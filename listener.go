package txstore

import (
	"fmt"
	"time"
)

// CommitEvent describes one published commit.
type CommitEvent struct {
	TxID       string
	Version    uint64
	Operations []Statement
	At         time.Time
}

// Tables lists the tables the commit wrote to, in statement order.
func (e CommitEvent) Tables() (tables []TableID) {
	seen := make(map[TableID]bool)
	for _, op := range e.Operations {
		if op.Table == "" || seen[op.Table] {
			continue
		}
		seen[op.Table] = true
		tables = append(tables, op.Table)
	}
	return
}

type Listener func(event CommitEvent)

// Subscribe registers fn under name, replacing any listener with that name.
// Listeners run synchronously on the committing goroutine after the commit
// lock is released.
func (s *Store) Subscribe(name string, fn Listener) {
	if fn == nil {
		return
	}
	s.listeners.Store(name, fn)
}

func (s *Store) Unsubscribe(name string) {
	s.listeners.Delete(name)
}

func (s *Store) publish(event CommitEvent) {
	s.listeners.Range(func(key, value interface{}) bool {
		name := key.(string)
		fn := value.(Listener)
		s.notify(name, fn, event)
		return true
	})
}

func (s *Store) notify(name string, fn Listener, event CommitEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Err(fmt.Errorf("txstore listener %s failed, %v", name, r)).
				Str("tx_id", event.TxID).
				Msg("listener panicked")
		}
	}()
	fn(event)
}
