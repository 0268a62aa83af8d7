package api

import (
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hugh/go-scout/internal/api/handlers"
	"github.com/hugh/go-scout/internal/api/middleware"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	Service        handlers.QueryService
	Scheduler      handlers.TriggerCounter // optional
	Inspector      handlers.QueueInspector // optional, queue dispatch only
	Templates      *template.Template
	StaticFS       fs.FS
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis, cfg.Scheduler, cfg.Inspector)
	queryHandler := handlers.NewQueryHandler(cfg.Service, cfg.Logger)
	dashboardHandler := handlers.NewDashboardHandler(cfg.Service, cfg.Templates)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Get("/statistics", queryHandler.Statistics)

		r.Route("/queries", func(r chi.Router) {
			r.Get("/", queryHandler.List)
			r.Post("/", queryHandler.Create)
			r.Delete("/{id}", queryHandler.Delete)
			r.Get("/{id}/results", queryHandler.Results)
			r.Post("/{id}/execute", queryHandler.Execute)
			r.Post("/{id}/followup", queryHandler.CreateFollowup)
			r.Get("/{id}/followups", queryHandler.ListFollowups)
		})
	})

	r.Get("/", dashboardHandler.Index)

	if cfg.StaticFS != nil {
		fileServer := http.FileServer(http.FS(cfg.StaticFS))
		r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	return &Router{r}
}
