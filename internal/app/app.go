// Package app assembles the query pipeline shared by the server and worker
// binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hugh/go-scout/internal/database"
	"github.com/hugh/go-scout/internal/export"
	"github.com/hugh/go-scout/internal/perplexity"
	"github.com/hugh/go-scout/internal/repository"
	"github.com/hugh/go-scout/internal/research"
	"github.com/hugh/go-scout/internal/scheduler"
	"github.com/hugh/go-scout/pkg/config"
	"gorm.io/gorm"
)

type Components struct {
	DB        *gorm.DB
	Repo      *repository.Repository
	Generator *perplexity.Client
	Exporter  *export.GoogleExporter // nil when export is disabled or not authorized
	Runner    *scheduler.Runner
}

// Build connects storage, migrates it and wires the run pipeline. Export
// problems are logged and leave Exporter nil; results are then stored without
// documents.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if err := migrate(db, cfg.Database.AutoMigrate, logger); err != nil {
		_ = database.Close(db)
		return nil, err
	}

	repo := repository.New(db, logger)

	if cfg.Perplexity.APIKey == "" {
		logger.Warn("PERPLEXITY_API_KEY is not set; every run will store the failure placeholder")
	}
	gen := perplexity.NewClient(cfg.Perplexity.APIKey, perplexity.Options{
		BaseURL:    cfg.Perplexity.BaseURL,
		Timeout:    cfg.Perplexity.Timeout(),
		MaxRetries: cfg.Perplexity.MaxRetries,
		Logger:     logger,
	})

	exec := research.NewExecutor(gen, research.ExecutorConfig{
		Model:       cfg.Perplexity.Model,
		MaxTokens:   cfg.Perplexity.MaxTokens,
		Temperature: cfg.Perplexity.Temperature,
		TopP:        cfg.Perplexity.TopP,
	}, logger)

	c := &Components{DB: db, Repo: repo, Generator: gen}

	var exporter scheduler.Exporter
	if cfg.Export.Enabled {
		c.Exporter, err = NewExporter(ctx, &cfg.Export, logger)
		if err != nil {
			logger.Warn("document export disabled", "error", err)
		} else {
			exporter = c.Exporter
		}
	}

	c.Runner = scheduler.NewRunner(repo, research.NewContextAssembler(repo, logger), exec, exporter, logger)
	return c, nil
}

// NewExporter loads the stored OAuth token and builds the Drive/Docs exporter.
func NewExporter(ctx context.Context, cfg *config.ExportConfig, logger *slog.Logger) (*export.GoogleExporter, error) {
	oauthCfg, err := export.LoadOAuthConfig(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	store, err := export.NewTokenStore(cfg.TokenFile, cfg.TokenKey)
	if err != nil {
		return nil, err
	}

	client, err := export.HTTPClient(ctx, oauthCfg, store, logger)
	if err != nil {
		return nil, fmt.Errorf("%w (run cmd/authorize first)", err)
	}

	return export.NewGoogleExporter(ctx, client, cfg.FolderName, logger)
}

func migrate(db *gorm.DB, auto bool, logger *slog.Logger) error {
	if auto {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		return nil
	}

	// Only make sure the base tables exist; an existing schema is left as is.
	if err := database.MigrateTo(db, 1); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	if v, err := database.SchemaVersion(db); err == nil && v < database.LatestVersion {
		logger.Warn("schema is behind; follow-ups will be stored without parent links",
			"version", v,
			"latest", database.LatestVersion,
		)
	}
	return nil
}

// Close releases the database.
func (c *Components) Close() error {
	return database.Close(c.DB)
}
