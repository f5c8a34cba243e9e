// Command droneforced is the droneforce ledger daemon.
// It opens the configured ledger backend, hosts the task state machine on it
// and serves the HTTP gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/DF-AutoPilot/droneforce-contract/bus"
	"github.com/DF-AutoPilot/droneforce-contract/config"
	"github.com/DF-AutoPilot/droneforce-contract/internal/version"
	"github.com/DF-AutoPilot/droneforce-contract/ledger"
	"github.com/DF-AutoPilot/droneforce-contract/node"
	"github.com/DF-AutoPilot/droneforce-contract/server"
)

var (
	configPath   = flag.String("config", "droneforce.yaml", "path to config file")
	hashPassword = flag.String("hash-password", "", "print the bcrypt hash of a password for auth.admin_pass and exit")
)

func main() {
	flag.Parse()

	if *hashPassword != "" {
		h, err := server.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(h)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}
	logger := newLogger(cfg)

	logger.Info("starting droneforced",
		"version", version.Version,
		"commit", version.Commit,
		"ledger", cfg.Ledger.Driver,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}
	l, err := ledger.Open(cfg.Ledger.Driver, cfg.LedgerPath())
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer l.Close() //nolint:errcheck

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	b := bus.NewInMemoryBus(cfg.Events.History)
	n := node.New(l,
		node.WithLogger(logger),
		node.WithBus(b),
		node.WithMetrics(node.NewMetrics(reg)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := n.RefreshMetrics(ctx); err != nil {
		logger.Warn("initial task count failed", "error", err)
	}

	srv := server.New(*cfg, version.Version, logger)
	srv.SetTaskService(n)
	srv.SetBus(b)
	srv.SetGatherer(reg)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Printf("droneforce gateway running on %s\n", cfg.Server.Addr)
	fmt.Printf("Version: %s (%s)\n", version.Version, version.Commit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	fmt.Println("Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	fmt.Println("Shutdown complete")
}

// loadConfig reads path, falling back to defaults when the file is absent.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := config.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
