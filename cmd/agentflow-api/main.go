package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentflow/internal/api"
	"agentflow/internal/auth"
	"agentflow/internal/config"
	"agentflow/internal/otel"
	"agentflow/internal/platform"
	"agentflow/internal/session"
	"agentflow/internal/store"

	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	shutdownTracing, err := otel.Setup(ctx, "agentflow-api")
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

	if cfg.BotToken == "" {
		logger.Warn("no bot token configured; telegram init data will be rejected", "allow_visitors", cfg.AllowVisitors)
	}
	authn := auth.NewTelegram(cfg.BotToken, cfg.InitDataMaxAge, cfg.AllowVisitors)

	sessions := session.NewManager(engine, backend, func(string) platform.Bridge { return platform.Nop{} }, logger, session.Options{
		TickEvery:   cfg.TickEvery,
		SaveEvery:   cfg.SaveEvery,
		IdleTimeout: cfg.IdleTimeout,
		Leaderboard: backend,
	})
	hub := api.NewHub(logger)
	server := api.New(cfg, logger, authn, engine, sessions, backend, backend, hub)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("agentflow api listening", "addr", cfg.Addr, "store", cfg.Store.Driver, "agents", len(engine.Catalog.Agents))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sessions.Run(gctx)
	})
	// The hub outlives the request context so the shutdown notice still
	// reaches open sockets.
	hubCtx, stopHub := context.WithCancel(context.Background())
	g.Go(func() error {
		hub.Run(hubCtx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		defer stopHub()
		hub.Broadcast("server_shutdown", map[string]any{"at": time.Now().UnixMilli()})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("agentflow api stopped")
}
