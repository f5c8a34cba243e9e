package server

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/DF-AutoPilot/droneforce-contract/bus"
	"github.com/DF-AutoPilot/droneforce-contract/config"
	"github.com/DF-AutoPilot/droneforce-contract/ledger"
	"github.com/DF-AutoPilot/droneforce-contract/node"
	"github.com/DF-AutoPilot/droneforce-contract/task"
	"github.com/DF-AutoPilot/droneforce-contract/txn"
)

type testEnv struct {
	srv  *Server
	node *node.Node
	bus  *bus.InMemoryBus
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg := config.Config{
		Server: config.ServerConfig{Addr: ":0"},
		Auth: config.AuthConfig{
			AdminUser: "admin",
			AdminPass: string(hash),
			JWTSecret: "test-secret-key-1234567890",
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	b := bus.NewInMemoryBus(0)
	n := node.New(ledger.NewMemory(),
		node.WithBus(b),
		node.WithLogger(logger),
		node.WithMetrics(node.NewMetrics(reg)),
	)

	s := New(cfg, "test", logger)
	s.SetTaskService(n)
	s.SetBus(b)
	s.SetGatherer(reg)
	s.registerRoutes()
	t.Cleanup(func() {
		if s.unsub != nil {
			s.unsub()
		}
	})
	return &testEnv{srv: s, node: n, bus: b}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.mux.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "secret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rr.Code, rr.Body.String())
	}
	var resp LoginResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token
}

func signedCreate(t *testing.T, taskID string) *txn.Transaction {
	t.Helper()
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize))
	tx, err := txn.Sign(txn.NewCreate(taskID, task.CreateArgs{
		Latitude:    37.7749,
		Longitude:   -122.4194,
		AreaSize:    100,
		TaskType:    task.TypeMapping,
		Description: "map the field",
	}), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tx
}
