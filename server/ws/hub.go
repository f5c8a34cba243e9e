// Package ws implements a Server-Sent Events (SSE) hub for real-time ledger events.
package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// Event is a typed real-time event broadcast to connected clients. ID, when
// set, is the ledger sequence number and is sent as the SSE id field so
// clients can resume with Last-Event-ID.
type Event struct {
	ID      uint64 `json:"-"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type frame struct {
	id   uint64
	data []byte
}

// client represents a single SSE connection.
type client struct {
	ch chan frame
}

// Hub manages SSE client connections and broadcasts events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *slog.Logger
}

// NewHub creates a Hub ready to accept connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) encode(event Event) (frame, bool) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("hub broadcast marshal", slog.Any("err", err))
		return frame{}, false
	}
	return frame{id: event.ID, data: data}, true
}

// Broadcast sends an event to all connected clients.
func (h *Hub) Broadcast(event Event) {
	f, ok := h.encode(event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.ch <- f:
		default:
			// Drop event if client is slow
		}
	}
}

// ServeSSE handles an SSE connection request. When backlog is non-nil it is
// called after the client is registered and its events are written before any
// live event; live events it already covered are skipped.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, backlog func() []Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	c := &client{ch: make(chan frame, 64)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()

	// Send connected event
	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n") //nolint:errcheck
	var last uint64
	if backlog != nil {
		for _, ev := range backlog() {
			if f, ok := h.encode(ev); ok {
				writeFrame(w, f)
				last = max(last, f.id)
			}
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case f := <-c.ch:
			// Already sent as part of the backlog.
			if f.id != 0 && f.id <= last {
				continue
			}
			writeFrame(w, f)
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, f frame) {
	if f.id != 0 {
		fmt.Fprintf(w, "id: %d\n", f.id) //nolint:errcheck
	}
	// Each SSE "data:" line must not contain newlines
	for _, line := range strings.Split(string(f.data), "\n") {
		fmt.Fprintf(w, "data: %s\n", line) //nolint:errcheck
	}
	fmt.Fprintln(w) //nolint:errcheck
}
