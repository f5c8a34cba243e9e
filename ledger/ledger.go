// Package ledger is the host storage collaborator: atomically applied account
// writes plus an append-only event log. Accounts are never deleted.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrAccountExists   = errors.New("account already in use")
	ErrAccountNotFound = errors.New("account not found")
)

// Entry is one event in the append-only log.
type Entry struct {
	Seq       uint64 `json:"seq"`
	ID        string `json:"id"`
	TxID      string `json:"tx_id"`
	TaskID    string `json:"task_id"`
	Kind      string `json:"kind"`
	Data      []byte `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// EntryFilter controls which entries are returned by Entries. Results are in
// ascending Seq order.
type EntryFilter struct {
	TaskID   string `json:"task_id,omitempty"`
	Kind     string `json:"kind,omitempty"`
	AfterSeq uint64 `json:"after_seq,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Matches reports whether e passes the filter, ignoring Limit.
func (f EntryFilter) Matches(e *Entry) bool {
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return e.Seq > f.AfterSeq
}

// Tx is the write handle passed to Exec. Nothing it does is visible outside
// until Exec returns nil.
type Tx interface {
	// Get returns a copy of an account's data.
	Get(addr Address) ([]byte, error)

	// Allocate creates an account; it fails with ErrAccountExists if the
	// address is taken.
	Allocate(addr Address, data []byte) error

	// Put overwrites an existing account.
	Put(addr Address, data []byte) error

	// Log appends e to the event log and assigns e.Seq.
	Log(e *Entry) error
}

// Ledger stores accounts and the event log.
type Ledger interface {
	// Exec runs fn as one atomic transaction. If fn returns an error every
	// write it made is discarded.
	Exec(ctx context.Context, fn func(tx Tx) error) error

	// Account returns committed account data.
	Account(ctx context.Context, addr Address) ([]byte, error)

	// Entries returns committed log entries matching the filter.
	Entries(ctx context.Context, filter EntryFilter) ([]Entry, error)

	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory  = "memory"
	DriverSQLite  = "sqlite"
	DriverLevelDB = "leveldb"
)

// Open returns the backend named by driver. path is ignored for memory.
func Open(driver, path string) (Ledger, error) {
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return NewSQLite(path)
	case DriverLevelDB:
		return NewLevelDB(path)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", driver)
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
