//go:build ignore

// Seeds a sample query and a follow-up so the dashboard has something to show.
// Usage: go run scripts/seed.go
package main

import (
	"context"
	"log"

	"github.com/hugh/go-scout/internal/database"
	"github.com/hugh/go-scout/internal/database/models"
	"github.com/hugh/go-scout/internal/repository"
	"github.com/hugh/go-scout/pkg/config"
	"github.com/hugh/go-scout/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	ctx := context.Background()
	repo := repository.New(db, logger)

	filters := "site:reuters.com OR site:ft.com OR site:sec.gov"
	parent := &models.ScheduledQuery{
		QueryText:      "Summarize this week's semiconductor earnings and guidance changes",
		CronExpr:       "0 9 * * 1-5",
		WebsiteFilters: &filters,
		Status:         models.QueryStatusActive,
	}
	if _, err := repo.Create(ctx, parent); err != nil {
		log.Fatalf("failed to create query: %v", err)
	}

	expr, err := util.OffsetCronExpr(parent.CronExpr, cfg.Scheduler.FollowupDelayMinutes)
	if err != nil {
		log.Fatalf("failed to derive follow-up schedule: %v", err)
	}
	delay := cfg.Scheduler.FollowupDelayMinutes
	followup := &models.ScheduledQuery{
		QueryText:            "Which of those companies raised capex guidance, and by how much?",
		CronExpr:             expr,
		Status:               models.QueryStatusActive,
		ParentQueryID:        &parent.ID,
		IsFollowup:           true,
		FollowupDelayMinutes: &delay,
	}
	if _, err := repo.Create(ctx, followup); err != nil {
		log.Fatalf("failed to create follow-up: %v", err)
	}

	log.Printf("seeded query %d (%s) and follow-up %d (%s)", parent.ID, parent.CronExpr, followup.ID, followup.CronExpr)
}
