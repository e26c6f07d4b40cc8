package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stratafin/ledgercore/pkg/budgets"
	"github.com/stratafin/ledgercore/pkg/config"
	"github.com/stratafin/ledgercore/pkg/policy"
	"github.com/stratafin/ledgercore/pkg/replay"
	"github.com/stratafin/ledgercore/pkg/service"
	"github.com/stratafin/ledgercore/pkg/store"
	"github.com/stratafin/ledgercore/pkg/tenants"
)

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openService builds a service over the configured SQLite database for the
// one-shot CLI commands. The returned closer releases the database.
func openService() (*service.Service, func(), error) {
	cfg := config.Load()

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	closer := func() { _ = db.Close() }

	eventStore, err := store.NewSQLiteEventStore(db)
	if err != nil {
		closer()
		return nil, nil, err
	}
	snapStore, err := store.NewSQLiteSnapshotStore(db)
	if err != nil {
		closer()
		return nil, nil, err
	}

	svc, err := service.New(service.Options{
		Store:     eventStore,
		Snapshots: snapStore,
		Logger:    newLogger(cfg.LogLevel),
	})
	if err != nil {
		closer()
		return nil, nil, err
	}
	return svc, closer, nil
}

func runServer() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	eventStore, err := store.NewSQLiteEventStore(db)
	if err != nil {
		logger.Error("init event store", "error", err)
		os.Exit(1)
	}
	snapStore, err := store.NewSQLiteSnapshotStore(db)
	if err != nil {
		logger.Error("init snapshot store", "error", err)
		os.Exit(1)
	}
	logger.Info("sqlite ready", "path", cfg.DatabasePath)

	policies := policy.StandardPolicies()
	if cfg.PolicyPackPath != "" {
		pack, err := policy.LoadPackFile(cfg.PolicyPackPath)
		if err != nil {
			logger.Error("load policy pack", "path", cfg.PolicyPackPath, "error", err)
			os.Exit(1)
		}
		policies = append(policies, pack.Policies...)
		logger.Info("policy pack loaded", "name", pack.Name, "policies", len(pack.Policies))
	}

	registry := tenants.NewRegistry()
	svc, err := service.New(service.Options{
		Store:     eventStore,
		Snapshots: snapStore,
		Registry:  registry,
		Policies:  policies,
		Budgets:   budgets.NewTracker(),
		SnapshotPolicy: replay.SnapshotPolicy{
			EveryN: cfg.SnapshotEveryN,
			MaxAge: cfg.SnapshotMaxAge,
		},
		ReplayChunkSize: cfg.ReplayChunkSize,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("init service", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, svc, registry)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ledger server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
