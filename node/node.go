// Package node hosts the task state machine on a ledger. It authenticates
// signed transactions, applies each one atomically and announces the
// resulting events.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DF-AutoPilot/droneforce-contract/bus"
	"github.com/DF-AutoPilot/droneforce-contract/ledger"
	"github.com/DF-AutoPilot/droneforce-contract/task"
	"github.com/DF-AutoPilot/droneforce-contract/txn"
)

var (
	ErrTaskExists   = errors.New("task already exists")
	ErrTaskNotFound = errors.New("task not found")
)

// addressSeed prefixes every task address derivation.
var addressSeed = []byte("task")

// TaskAddress returns the account address holding taskID's record.
func TaskAddress(taskID string) (ledger.Address, error) {
	if len(taskID) == 0 {
		return ledger.Address{}, fmt.Errorf("%w: empty task id", txn.ErrMalformed)
	}
	addr, err := ledger.DeriveAddress(addressSeed, []byte(taskID))
	if err != nil {
		return ledger.Address{}, fmt.Errorf("%w: %w", txn.ErrMalformed, err)
	}
	return addr, nil
}

// Receipt describes a committed transaction.
type Receipt struct {
	TxID      task.Hash      `json:"tx_id"`
	TaskID    string         `json:"task_id"`
	Address   ledger.Address `json:"address"`
	Status    task.Status    `json:"status"`
	EntryID   string         `json:"entry_id"`
	Kind      string         `json:"kind"`
	Event     task.Event     `json:"event"`
	Seq       uint64         `json:"seq"`
	Timestamp int64          `json:"timestamp"`
}

// Node applies transactions to a ledger one at a time.
type Node struct {
	mu      sync.Mutex
	ledger  ledger.Ledger
	bus     bus.Bus
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Node.
type Option func(*Node)

// WithClock replaces the wall clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *Node) { n.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// WithBus publishes every committed event to b.
func WithBus(b bus.Bus) Option {
	return func(n *Node) { n.bus = b }
}

func WithMetrics(m *Metrics) Option {
	return func(n *Node) { n.metrics = m }
}

// New creates a Node over l.
func New(l ledger.Ledger, opts ...Option) *Node {
	n := &Node{
		ledger: l,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Submit verifies tx and applies it. The record write and the event log entry
// commit together; nothing is written when any check fails. Bus handlers run
// before Submit returns and must not call Submit themselves.
func (n *Node) Submit(ctx context.Context, tx *txn.Transaction) (*Receipt, error) {
	start := time.Now()
	ins := tx.Instruction

	// Held through publishing so subscribers see entries in sequence order.
	n.mu.Lock()
	defer n.mu.Unlock()

	rcpt, from, err := n.apply(ctx, tx)
	n.metrics.observe(ins.Op, err, time.Since(start))
	if err != nil {
		n.logger.Warn("transaction rejected",
			"op", ins.Op.String(), "task_id", ins.TaskID, "signer", tx.Signer.String(), "error", err)
		return nil, err
	}
	n.metrics.transition(ins.Op, from, rcpt.Status)

	n.logger.Info("transaction applied",
		"op", ins.Op.String(), "task_id", rcpt.TaskID, "event", rcpt.Kind,
		"seq", rcpt.Seq, "status", rcpt.Status.String(), "tx_id", rcpt.TxID.String())

	if n.bus != nil {
		msg := &bus.Message{
			Seq:       rcpt.Seq,
			ID:        rcpt.EntryID,
			TxID:      rcpt.TxID.String(),
			TaskID:    rcpt.TaskID,
			Kind:      rcpt.Kind,
			Event:     rcpt.Event,
			Timestamp: rcpt.Timestamp,
		}
		if err := n.bus.Publish(ctx, msg); err != nil {
			n.logger.Warn("event fan-out failed", "task_id", rcpt.TaskID, "seq", rcpt.Seq, "error", err)
		}
	}
	return rcpt, nil
}

func (n *Node) apply(ctx context.Context, tx *txn.Transaction) (*Receipt, task.Status, error) {
	if err := tx.Verify(); err != nil {
		return nil, 0, err
	}
	ins := tx.Instruction
	txID, err := tx.ID()
	if err != nil {
		return nil, 0, err
	}
	addr, err := TaskAddress(ins.TaskID)
	if err != nil {
		return nil, 0, err
	}

	env := task.Env{TaskID: ins.TaskID, Signer: tx.Signer, Now: n.now().Unix()}
	var (
		rec   *task.Record
		from  task.Status
		ev    task.Event
		entry ledger.Entry
	)
	err = n.ledger.Exec(ctx, func(ltx ledger.Tx) error {
		var err error
		if ins.Op == txn.OpCreate {
			if rec, ev, err = task.Create(env, *ins.Create); err != nil {
				return err
			}
			data, err := task.MarshalRecord(rec)
			if err != nil {
				return err
			}
			if err := ltx.Allocate(addr, data); err != nil {
				if errors.Is(err, ledger.ErrAccountExists) {
					return fmt.Errorf("%w: %s: %w", ErrTaskExists, ins.TaskID, err)
				}
				return err
			}
		} else {
			if rec, err = loadRecord(ltx, addr, ins.TaskID); err != nil {
				return err
			}
			from = rec.Status
			switch ins.Op {
			case txn.OpAccept:
				ev, err = task.Accept(env, rec)
			case txn.OpComplete:
				ev, err = task.Complete(env, rec, *ins.Complete)
			case txn.OpRecordVerification:
				ev, err = task.RecordVerification(env, rec, *ins.Verification)
			}
			if err != nil {
				return err
			}
			data, err := task.MarshalRecord(rec)
			if err != nil {
				return err
			}
			if err := ltx.Put(addr, data); err != nil {
				return err
			}
		}

		payload, err := task.MarshalEvent(ev)
		if err != nil {
			return err
		}
		entry = ledger.Entry{
			ID:        uuid.NewString(),
			TxID:      txID.String(),
			TaskID:    ins.TaskID,
			Kind:      ev.EventName(),
			Data:      payload,
			Timestamp: env.Now,
		}
		return ltx.Log(&entry)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", ins.Op, ins.TaskID, err)
	}

	return &Receipt{
		TxID:      txID,
		TaskID:    ins.TaskID,
		Address:   addr,
		Status:    rec.Status,
		EntryID:   entry.ID,
		Kind:      entry.Kind,
		Event:     ev,
		Seq:       entry.Seq,
		Timestamp: env.Now,
	}, from, nil
}

func loadRecord(ltx ledger.Tx, addr ledger.Address, taskID string) (*task.Record, error) {
	data, err := ltx.Get(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s: %w", ErrTaskNotFound, taskID, err)
	}
	if err != nil {
		return nil, err
	}
	return task.UnmarshalRecord(data)
}
