// Package server implements the droneforce HTTP gateway: REST API, auth,
// metrics and SSE real-time ledger events.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DF-AutoPilot/droneforce-contract/bus"
	"github.com/DF-AutoPilot/droneforce-contract/config"
	"github.com/DF-AutoPilot/droneforce-contract/server/api"
	"github.com/DF-AutoPilot/droneforce-contract/server/ws"
)

// Server is the droneforce HTTP gateway.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	tasks    api.TaskService
	bus      bus.Bus
	gatherer prometheus.Gatherer
	hub      *ws.Hub
	handlers *api.Handlers
	unsub    func()

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	version string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		logger:  logger,
		hub:     ws.NewHub(logger),
		version: ver,
	}
	return s
}

// SetTaskService attaches the ledger node to the server.
func (s *Server) SetTaskService(svc api.TaskService) {
	s.tasks = svc
}

// SetBus attaches the event bus whose messages are streamed over SSE.
func (s *Server) SetBus(b bus.Bus) {
	s.bus = b
}

// SetGatherer exposes g on /metrics.
func (s *Server) SetGatherer(g prometheus.Gatherer) {
	s.gatherer = g
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	s.registerRoutes()

	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":9090"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsub != nil {
		s.unsub()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Tasks:   s.tasks,
		Logger:  s.logger,
		Version: s.version,
	}
	s.handlers = h

	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", h.StatusHandler())
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// SSE - auth handled inline because EventSource can't set headers
	s.mux.HandleFunc("GET /events", s.handleSSE)
	if s.bus != nil {
		s.unsub = s.bus.Subscribe(bus.All, func(_ context.Context, m *bus.Message) error {
			s.hub.Broadcast(ws.Event{ID: m.Seq, Type: m.Kind, Payload: m})
			return nil
		})
	}

	// Protected API - wrapped in auth middleware
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleSSE streams committed ledger events. The token travels as a query
// parameter because EventSource can't set headers. A client resuming with
// Last-Event-ID (or ?since=) first receives retained events after that
// sequence number.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, err := verifyJWT(s.jwtSecret(), r.URL.Query().Get("token")); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	since := r.Header.Get("Last-Event-ID")
	if since == "" {
		since = r.URL.Query().Get("since")
	}
	var backlog func() []ws.Event
	if since != "" && s.bus != nil {
		after, err := strconv.ParseUint(since, 10, 64)
		if err != nil {
			http.Error(w, "invalid event id", http.StatusBadRequest)
			return
		}
		backlog = func() []ws.Event { return s.replay(after) }
	}
	s.hub.ServeSSE(w, r, backlog)
}

func (s *Server) replay(after uint64) []ws.Event {
	msgs, err := s.bus.History(bus.All, 0)
	if err != nil {
		s.logger.Warn("sse replay", slog.Any("err", err))
		return nil
	}
	var out []ws.Event
	for _, m := range msgs {
		if m.Seq > after {
			out = append(out, ws.Event{ID: m.Seq, Type: m.Kind, Payload: m})
		}
	}
	return out
}
