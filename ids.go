package txstore

import "github.com/nats-io/nuid"

// NewTxId returns a unique transaction identifier.
func NewTxId() (id string) {
	id = nuid.Next()
	return
}
