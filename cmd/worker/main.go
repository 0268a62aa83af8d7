package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-scout/internal/app"
	"github.com/hugh/go-scout/internal/tasks"
	"github.com/hugh/go-scout/pkg/config"
	"github.com/hugh/go-scout/pkg/queue"
	"github.com/hugh/go-scout/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if !cfg.Redis.Enabled {
		logger.Error("the worker needs Redis; set REDIS_ENABLED=true")
		os.Exit(1)
	}

	logger.Info("starting Go-Scout worker", "concurrency", cfg.Scheduler.WorkerConcurrency)

	components, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	srv := queue.NewServer(&cfg.Redis, cfg.Scheduler.WorkerConcurrency)

	handler := tasks.NewHandler(components.Repo, components.Runner, logger)
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
		cancel()
	}

	<-ctx.Done()

	if err := components.Close(); err != nil {
		logger.Error("closing database", "error", err)
	}

	logger.Info("worker stopped")
}
