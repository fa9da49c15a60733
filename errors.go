package txstore

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyExists  = errors.New("entity already exists")
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	ErrIllegalState   = errors.New("illegal transaction state")
	ErrTableNotFound  = errors.New("table not found")
)

// Kind is the tagged outcome of a store operation.
type Kind int

const (
	KindOk Kind = iota
	KindAlreadyExists
	KindConflict
	KindIllegalState
	KindTableNotFound
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindOk:
		return "ok"
	case KindAlreadyExists:
		return "already_exists"
	case KindConflict:
		return "conflict"
	case KindIllegalState:
		return "illegal_state"
	case KindTableNotFound:
		return "table_not_found"
	default:
		return "unknown"
	}
}

// KindOf classifies err. A nil error is KindOk.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOk
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrOptimisticLock):
		return KindConflict
	case errors.Is(err, ErrIllegalState):
		return KindIllegalState
	case errors.Is(err, ErrTableNotFound):
		return KindTableNotFound
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether restarting the whole transaction may succeed.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindAlreadyExists || k == KindConflict
}

type AlreadyExistsError struct {
	Table TableID
	Key   Key
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Table, e.Key)
}

func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// ConflictError reports the first read that no longer holds at commit time.
// Range is set when the key was observed through a range read.
type ConflictError struct {
	Table TableID
	Key   Key
	Range *Range
}

func (e *ConflictError) Error() string {
	if e.Range != nil {
		return fmt.Sprintf("optimistic lock conflict on %s %s in range %s", e.Table, e.Key, e.Range)
	}
	return fmt.Sprintf("optimistic lock conflict on %s %s", e.Table, e.Key)
}

func (e *ConflictError) Unwrap() error {
	return ErrOptimisticLock
}

type IllegalStateError struct {
	Msg string
}

func (e *IllegalStateError) Error() string {
	return e.Msg
}

func (e *IllegalStateError) Unwrap() error {
	return ErrIllegalState
}

func illegalState(format string, args ...interface{}) error {
	return &IllegalStateError{Msg: fmt.Sprintf(format, args...)}
}

type TableNotFoundError struct {
	Table TableID
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %s not found", e.Table)
}

func (e *TableNotFoundError) Unwrap() error {
	return ErrTableNotFound
}
