package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-scout/internal/api"
	"github.com/hugh/go-scout/internal/app"
	"github.com/hugh/go-scout/internal/queries"
	"github.com/hugh/go-scout/internal/scheduler"
	"github.com/hugh/go-scout/internal/tasks"
	"github.com/hugh/go-scout/internal/web"
	"github.com/hugh/go-scout/pkg/config"
	"github.com/hugh/go-scout/pkg/queue"
	"github.com/hugh/go-scout/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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

	logger.Info("starting Go-Scout server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
		"dispatch", cfg.Scheduler.Dispatch,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	checkConnections(ctx, cfg, components, logger)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("failed to connect to Redis", "error", err)
		}
	}

	var (
		opts        []scheduler.Option
		asynqClient *asynq.Client
		inspector   *asynq.Inspector
	)
	if cfg.Scheduler.UsesQueue() {
		asynqClient = queue.NewClient(&cfg.Redis)
		inspector = queue.NewInspector(&cfg.Redis)
		opts = append(opts, scheduler.WithDispatcher(tasks.NewEnqueuer(asynqClient, logger)))
	}

	sched := scheduler.New(scheduler.NewTrigger(logger), components.Repo, components.Runner, logger, opts...)
	if _, err := sched.LoadActive(ctx); err != nil {
		logger.Error("failed to load scheduled queries", "error", err)
		os.Exit(1)
	}
	sched.Start()

	service := queries.NewService(components.Repo, sched, components.Runner, cfg.Scheduler.FollowupDelayMinutes, logger)

	templates, err := web.LoadTemplates()
	if err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	staticFS, err := web.StaticFS()
	if err != nil {
		logger.Error("failed to get static fs", "error", err)
		os.Exit(1)
	}

	routerCfg := api.RouterConfig{
		DB:             components.DB,
		Redis:          redisClient,
		Logger:         logger,
		Service:        service,
		Scheduler:      sched,
		Templates:      templates,
		StaticFS:       staticFS,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
	}
	if inspector != nil {
		routerCfg.Inspector = inspector
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // manual runs wait for the generation API
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Let in-flight runs finish before the database goes away.
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not drain", "error", err)
	}

	if asynqClient != nil {
		_ = asynqClient.Close()
	}
	if inspector != nil {
		_ = inspector.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := components.Close(); err != nil {
		logger.Error("closing database", "error", err)
	}

	logger.Info("server stopped")
}

// checkConnections probes the external APIs once. Failures are reported but
// never fatal.
func checkConnections(ctx context.Context, cfg *config.Config, c *app.Components, logger *slog.Logger) {
	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := c.Generator.Ping(pingCtx, cfg.Perplexity.Model); err != nil {
		logger.Warn("generation API check failed; check PERPLEXITY_API_KEY", "error", err)
	} else {
		logger.Info("generation API connected", "model", cfg.Perplexity.Model)
	}

	if c.Exporter == nil {
		return
	}
	if err := c.Exporter.Ping(pingCtx); err != nil {
		logger.Warn("document export check failed", "error", err)
	} else {
		logger.Info("document export connected", "folder", cfg.Export.FolderName)
	}
}
