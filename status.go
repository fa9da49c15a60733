package txstore

import "sync/atomic"

// TxStatus is the lifecycle state of a transaction.
type TxStatus int32

const (
	TxActive TxStatus = iota
	TxCommitting
	TxCommitted
	TxFailed
	TxRolledBack
)

func (s TxStatus) String() string {
	switch s {
	case TxActive:
		return "Active"
	case TxCommitting:
		return "Committing"
	case TxCommitted:
		return "Committed"
	case TxFailed:
		return "Failed"
	case TxRolledBack:
		return "RolledBack"
	default:
		return "Unknown"
	}
}

func (s TxStatus) Terminal() bool {
	return s == TxCommitted || s == TxFailed || s == TxRolledBack
}

// statusSwitch holds a TxStatus that can be read without the owner's lock.
type statusSwitch struct {
	status int32
}

func (s *statusSwitch) load() TxStatus {
	return TxStatus(atomic.LoadInt32(&s.status))
}

// move switches from one status to another and reports false, changing
// nothing, when the current status is not from.
func (s *statusSwitch) move(from, to TxStatus) bool {
	return atomic.CompareAndSwapInt32(&s.status, int32(from), int32(to))
}
