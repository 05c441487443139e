package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentflow/internal/config"
	"agentflow/internal/otel"
	"agentflow/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	shutdownTracing, err := otel.Setup(ctx, "agentflow-worker")
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	engine, err := config.LoadEngine(cfg.BalanceFile)
	if err != nil {
		logger.Error("balance load failed", "err", err)
		os.Exit(1)
	}
	backend, err := store.Open(ctx, cfg.Store)
	if err != nil {
		logger.Error("store open failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer backend.Close()

	if cfg.RunOnce {
		n, err := store.RebuildLeaderboard(ctx, backend, backend, engine, logger)
		if err != nil {
			logger.Error("leaderboard rebuild failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "rows", n)
		return
	}

	ticker := time.NewTicker(cfg.Every)
	defer ticker.Stop()

	logger.Info("worker started", "every", cfg.Every.String(), "store", cfg.Store.Driver)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			started := time.Now()
			n, err := store.RebuildLeaderboard(ctx, backend, backend, engine, logger)
			if err != nil {
				logger.Error("leaderboard rebuild failed", "err", err)
				continue
			}
			logger.Info("leaderboard rebuilt", "rows", n, "took", time.Since(started).String())
		}
	}
}
