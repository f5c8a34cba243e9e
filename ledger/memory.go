package ledger

import (
	"context"
	"sync"
)

// Memory is an in-process ledger. Writes are staged per transaction and
// applied under one lock on success.
type Memory struct {
	mu       sync.RWMutex
	accounts map[Address][]byte
	entries  []Entry
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{accounts: make(map[Address][]byte)}
}

type memTx struct {
	m      *Memory
	writes map[Address][]byte
	logs   []Entry
	seq    uint64
}

// Exec runs fn against a staged view and applies it if fn succeeds.
func (m *Memory) Exec(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{m: m, writes: make(map[Address][]byte), seq: uint64(len(m.entries))}
	if err := fn(tx); err != nil {
		return err
	}
	for addr, data := range tx.writes {
		m.accounts[addr] = data
	}
	m.entries = append(m.entries, tx.logs...)
	return nil
}

func (tx *memTx) lookup(addr Address) ([]byte, bool) {
	if d, ok := tx.writes[addr]; ok {
		return d, true
	}
	d, ok := tx.m.accounts[addr]
	return d, ok
}

func (tx *memTx) Get(addr Address) ([]byte, error) {
	d, ok := tx.lookup(addr)
	if !ok {
		return nil, ErrAccountNotFound
	}
	return clone(d), nil
}

func (tx *memTx) Allocate(addr Address, data []byte) error {
	if _, ok := tx.lookup(addr); ok {
		return ErrAccountExists
	}
	tx.writes[addr] = clone(data)
	return nil
}

func (tx *memTx) Put(addr Address, data []byte) error {
	if _, ok := tx.lookup(addr); !ok {
		return ErrAccountNotFound
	}
	tx.writes[addr] = clone(data)
	return nil
}

func (tx *memTx) Log(e *Entry) error {
	tx.seq++
	e.Seq = tx.seq
	c := *e
	c.Data = clone(e.Data)
	tx.logs = append(tx.logs, c)
	return nil
}

// Account returns committed account data.
func (m *Memory) Account(_ context.Context, addr Address) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.accounts[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return clone(d), nil
}

// Entries returns committed entries matching filter.
func (m *Memory) Entries(_ context.Context, filter EntryFilter) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for i := range m.entries {
		e := &m.entries[i]
		if !filter.Matches(e) {
			continue
		}
		c := *e
		c.Data = clone(e.Data)
		out = append(out, c)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
