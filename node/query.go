package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/DF-AutoPilot/droneforce-contract/bus"
	"github.com/DF-AutoPilot/droneforce-contract/ledger"
	"github.com/DF-AutoPilot/droneforce-contract/task"
)

// TaskView is a stored record together with the id and address it lives under.
type TaskView struct {
	ID      string         `json:"id"`
	Address ledger.Address `json:"address"`
	Record  *task.Record   `json:"record"`
}

// Filter selects tasks for Tasks. Nil fields match everything; a non-nil
// Operator of task.Unassigned selects tasks nobody has accepted yet.
type Filter struct {
	Status    *task.Status
	Creator   *task.Identity
	Operator  *task.Identity
	Validator *task.Identity
	Limit     int
}

func (f Filter) matches(r *task.Record) bool {
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if f.Creator != nil && r.Creator != *f.Creator {
		return false
	}
	if f.Operator != nil && r.Operator != *f.Operator {
		return false
	}
	if f.Validator != nil && r.Validator != *f.Validator {
		return false
	}
	return true
}

// Task returns the committed record of taskID.
func (n *Node) Task(ctx context.Context, taskID string) (*TaskView, error) {
	addr, err := TaskAddress(taskID)
	if err != nil {
		return nil, err
	}
	data, err := n.ledger.Account(ctx, addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, err
	}
	rec, err := task.UnmarshalRecord(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", taskID, err)
	}
	return &TaskView{ID: taskID, Address: addr, Record: rec}, nil
}

// Tasks lists tasks in creation order. Ids come from the TaskCreated entries
// of the event log, so no separate index is kept.
func (n *Node) Tasks(ctx context.Context, f Filter) ([]*TaskView, error) {
	created, err := n.ledger.Entries(ctx, ledger.EntryFilter{Kind: task.TaskCreated{}.EventName()})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	var out []*TaskView
	for _, e := range created {
		v, err := n.Task(ctx, e.TaskID)
		if err != nil {
			return nil, err
		}
		if !f.matches(v.Record) {
			continue
		}
		out = append(out, v)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Events returns decoded log entries in sequence order.
func (n *Node) Events(ctx context.Context, f ledger.EntryFilter) ([]*bus.Message, error) {
	entries, err := n.ledger.Entries(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]*bus.Message, 0, len(entries))
	for _, e := range entries {
		ev, err := task.UnmarshalEvent(e.Data)
		if err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", e.Seq, err)
		}
		out = append(out, &bus.Message{
			Seq:       e.Seq,
			ID:        e.ID,
			TxID:      e.TxID,
			TaskID:    e.TaskID,
			Kind:      e.Kind,
			Event:     ev,
			Timestamp: e.Timestamp,
		})
	}
	return out, nil
}

// RefreshMetrics recounts tasks by status, for a node started over an
// existing ledger.
func (n *Node) RefreshMetrics(ctx context.Context) error {
	if n.metrics == nil {
		return nil
	}
	all, err := n.Tasks(ctx, Filter{})
	if err != nil {
		return err
	}
	counts := make(map[task.Status]int)
	for _, v := range all {
		counts[v.Record.Status]++
	}
	n.metrics.setCounts(counts)
	return nil
}
