// Package bus fans committed ledger events out to in-process subscribers.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/DF-AutoPilot/droneforce-contract/task"
)

// All is the topic that receives every message regardless of task.
const All = "*"

// DefaultHistory is the number of messages retained when none is configured.
const DefaultHistory = 1000

// Message announces one committed event.
type Message struct {
	Seq       uint64     `json:"seq"`
	ID        string     `json:"id"`
	TxID      string     `json:"tx_id"`
	TaskID    string     `json:"task_id"`
	Kind      string     `json:"kind"`
	Event     task.Event `json:"event"`
	Timestamp int64      `json:"timestamp"`
}

// Handler processes a published message.
type Handler func(ctx context.Context, msg *Message) error

// Bus delivers messages to subscribers of the message's task id and of All.
type Bus interface {
	// Publish delivers msg synchronously to every matching handler.
	Publish(ctx context.Context, msg *Message) error

	// Subscribe registers a handler for topic (a task id or All).
	// Returns an unsubscribe function.
	Subscribe(topic string, handler Handler) (unsubscribe func())

	// History returns recent messages for topic in publish order.
	History(topic string, limit int) ([]*Message, error)
}

// InMemoryBus is a thread-safe in-process bus with bounded history.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]handlerEntry // topic -> handlers
	history  []*Message
	maxHist  int
	nextID   int
}

type handlerEntry struct {
	id      int
	handler Handler
}

// NewInMemoryBus creates a bus retaining up to maxHist messages. A
// non-positive value selects DefaultHistory.
func NewInMemoryBus(maxHist int) *InMemoryBus {
	if maxHist <= 0 {
		maxHist = DefaultHistory
	}
	return &InMemoryBus{
		handlers: make(map[string][]handlerEntry),
		maxHist:  maxHist,
	}
}

// Publish records msg and invokes the handlers of its task and of All.
// Handler errors are collected; every handler still runs.
func (b *InMemoryBus) Publish(ctx context.Context, msg *Message) error {
	b.mu.Lock()
	b.history = append(b.history, msg)
	if len(b.history) > b.maxHist {
		b.history = b.history[len(b.history)-b.maxHist:]
	}

	// Collect handlers to invoke outside the lock
	var targets []Handler
	for _, e := range b.handlers[msg.TaskID] {
		targets = append(targets, e.handler)
	}
	if msg.TaskID != All {
		for _, e := range b.handlers[All] {
			targets = append(targets, e.handler)
		}
	}
	b.mu.Unlock()

	var errs []error
	for _, h := range targets {
		if err := h(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish: %d handler error(s): %w", len(errs), errs[0])
	}
	return nil
}

// Subscribe registers handler for topic. The returned function unsubscribes it.
func (b *InMemoryBus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], handlerEntry{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[topic]
		filtered := entries[:0]
		for _, e := range entries {
			if e.id != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(b.handlers, topic)
		} else {
			b.handlers[topic] = filtered
		}
	}
}

// History returns the most recent limit messages for topic, oldest first.
// All matches every message. A non-positive limit returns everything retained.
func (b *InMemoryBus) History(topic string, limit int) ([]*Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*Message
	for i := len(b.history) - 1; i >= 0; i-- {
		m := b.history[i]
		if topic == All || m.TaskID == topic {
			result = append(result, m)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	// Reverse to chronological order
	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result, nil
}
