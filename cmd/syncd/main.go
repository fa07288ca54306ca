package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Guilherme11gr/tasksync/internal/adapter/postgres"
	adapterredis "github.com/Guilherme11gr/tasksync/internal/adapter/redis"
	"github.com/Guilherme11gr/tasksync/internal/cache"
	"github.com/Guilherme11gr/tasksync/internal/config"
	"github.com/Guilherme11gr/tasksync/internal/domain"
	"github.com/Guilherme11gr/tasksync/internal/logging"
	"github.com/Guilherme11gr/tasksync/internal/server"
	"github.com/Guilherme11gr/tasksync/internal/sync"
	"github.com/Guilherme11gr/tasksync/internal/tab"
	"github.com/Guilherme11gr/tasksync/internal/tracker"
	"github.com/Guilherme11gr/tasksync/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	orgID := os.Getenv("SYNC_ORG_ID")
	userID := os.Getenv("SYNC_USER_ID")
	if orgID == "" || userID == "" {
		slog.Error("SYNC_ORG_ID and SYNC_USER_ID are required")
		os.Exit(1)
	}

	rdb, err := adapterredis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create redis client", "error", err)
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	// Entity fetchers are optional: without a database every smart update
	// degrades to invalidation, which is still correct, just less precise.
	var fetchers domain.Fetcher
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			slog.Error("Failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		fetchers = postgres.NewFetchers(pool)
	} else {
		slog.Warn("No DATABASE_URL configured, smart updates will fall back to invalidation")
	}

	tabs, err := tab.NewPersistent(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to initialize tab identity", "error", err)
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	transport := adapterredis.NewTransport(rdb)

	// The memory backend keeps cached state local to this process, for
	// deployments where the dashboard does not read the shared Redis cache.
	var syncCache domain.Cache
	if cfg.CacheBackend == "memory" {
		syncCache = cache.NewMemory()
	} else {
		syncCache = adapterredis.NewCache(rdb)
	}
	muts := tracker.New()

	processor := sync.NewProcessor(syncCache, fetchers, muts, clock, sync.ProcessorConfig{
		DebounceDelay:        cfg.DebounceDelay,
		SmartUpdateTimeout:   cfg.SmartUpdateTimeout,
		MutationWaitInterval: cfg.MutationWaitInterval,
		MutationWaitRetries:  cfg.MutationWaitRetries,
		LedgerTTL:            cfg.LedgerTTL,
		LedgerMaxSize:        cfg.LedgerMaxSize,
	})

	manager := sync.NewManager(transport, tabs, clock, sync.ManagerConfig{
		ConnectionTimeout:    cfg.ConnectionTimeout,
		HeartbeatInterval:    cfg.HeartbeatInterval,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		BackoffBase:          cfg.BackoffBase,
		BackoffCap:           cfg.BackoffCap,
		BackoffFactor:        cfg.BackoffFactor,
		BackoffJitter:        cfg.BackoffJitter,
	}, processor.Process, func(status domain.ConnectionStatus) {
		slog.Info("Connection status changed", "status", string(status))
	})

	manager.Connect(orgID, userID)

	srv := server.NewServer(manager, processor, rdb, orgID)

	go func() {
		if err := srv.Start(":" + cfg.Port); err != nil {
			slog.Info("HTTP server stopped", "error", err)
		}
	}()
	info := version.Get()
	slog.Info("syncd started", "org_id", orgID, "port", cfg.Port, "env", cfg.AppEnv,
		"version", info.Version, "commit", info.Commit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	slog.Info("Shutdown signal received, cleaning up...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	manager.Stop()
	processor.Stop()
	slog.Info("Shutdown complete")
}
