package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DF-AutoPilot/droneforce-contract/bus"
	"github.com/DF-AutoPilot/droneforce-contract/internal/version"
	"github.com/DF-AutoPilot/droneforce-contract/ledger"
	"github.com/DF-AutoPilot/droneforce-contract/node"
	"github.com/DF-AutoPilot/droneforce-contract/task"
	"github.com/DF-AutoPilot/droneforce-contract/txn"
)

// maxBodyBytes bounds a transaction request body.
const maxBodyBytes = 64 << 10

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Tasks   TaskService
	Logger  *slog.Logger
	Version string
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/transactions", h.submit)

	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("GET /api/tasks/{id}/events", h.taskEvents)

	mux.HandleFunc("GET /api/events", h.listEvents)

	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorBody is the JSON shape of every API error. Code and Number are set for
// state machine rejections.
type ErrorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Number uint32 `json:"number,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorBody{Error: msg})
}

// StatusFor maps a submission or query error to an HTTP status.
func StatusFor(err error) int {
	if te, ok := task.AsError(err); ok {
		switch te.Kind {
		case task.KindValidation:
			return http.StatusBadRequest
		case task.KindAuthorization:
			return http.StatusForbidden
		case task.KindState:
			return http.StatusConflict
		}
	}
	switch {
	case errors.Is(err, txn.ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, txn.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, node.ErrTaskExists):
		return http.StatusConflict
	case errors.Is(err, node.ErrTaskNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := ErrorBody{Error: err.Error()}
	if te, ok := task.AsError(err); ok {
		body.Code = string(te.Code)
		body.Number = te.Number
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("api request failed", slog.Any("err", err))
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

// --- Transaction handlers ---

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request) {
	var tx txn.Transaction
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	rcpt, err := h.Tasks.Submit(r.Context(), &tx)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
}

// --- Task handlers ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := node.Filter{}

	if s := q.Get("status"); s != "" {
		st, err := task.ParseStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &st
	}
	for _, p := range []struct {
		name string
		dst  **task.Identity
	}{
		{"creator", &filter.Creator},
		{"operator", &filter.Operator},
		{"validator", &filter.Validator},
	} {
		if v := q.Get(p.name); v != "" {
			id, err := task.ParseIdentity(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, p.name+": "+err.Error())
				return
			}
			*p.dst = &id
		}
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}

	tasks, err := h.Tasks.Tasks(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	if tasks == nil {
		tasks = []*node.TaskView{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Task(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) taskEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.Tasks.Task(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	filter, err := entryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.TaskID = id
	h.writeEvents(w, r, filter)
}

// --- Event handlers ---

func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := entryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.TaskID = r.URL.Query().Get("task_id")
	h.writeEvents(w, r, filter)
}

func (h *Handlers) writeEvents(w http.ResponseWriter, r *http.Request, filter ledger.EntryFilter) {
	events, err := h.Tasks.Events(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	if events == nil {
		events = []*bus.Message{}
	}
	writeJSON(w, http.StatusOK, events)
}

func entryFilter(r *http.Request) (ledger.EntryFilter, error) {
	q := r.URL.Query()
	f := ledger.EntryFilter{Limit: 100}
	if k := q.Get("kind"); k != "" {
		if !task.IsEventName(k) {
			return f, fmt.Errorf("unknown event kind %q", k)
		}
		f.Kind = k
	}
	if a := q.Get("after"); a != "" {
		n, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return f, fmt.Errorf("after: %w", err)
		}
		f.AfterSeq = n
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			f.Limit = n
		}
	}
	return f, nil
}

// --- Status / version ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
	})
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    h.Version,
		"commit":     version.Commit,
		"build_date": version.BuildDate,
	})
}
