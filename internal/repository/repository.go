// Package repository persists scheduled queries and their execution history.
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hugh/go-scout/internal/database"
	"github.com/hugh/go-scout/internal/database/models"
	"gorm.io/gorm"
)

// Stats backs the dashboard counters.
type Stats struct {
	ScheduledQueries int64 `json:"scheduledQueries"`
	DocumentsCreated int64 `json:"documentsCreated"`
	CompletedToday   int64 `json:"completedToday"`
}

type Repository struct {
	db           *gorm.DB
	logger       *slog.Logger
	relations    bool
	resultFollow bool
}

// New probes the schema once. Against a store without the follow-up columns the
// repository still accepts every write but drops parent linkage.
func New(db *gorm.DB, logger *slog.Logger) *Repository {
	r := &Repository{
		db:           db,
		logger:       logger,
		relations:    database.HasFollowupColumns(db),
		resultFollow: database.HasResultFollowupColumn(db),
	}
	if !r.relations {
		logger.Warn("scheduled_queries has no follow-up columns; follow-ups will be stored without parent links")
	}
	if !r.resultFollow {
		logger.Warn("query_results has no follow_up_scheduled column; results will be stored without it")
	}
	return r
}

// SupportsFollowups reports whether parent linkage is persisted.
func (r *Repository) SupportsFollowups() bool {
	return r.relations
}

// Create inserts q and sets q.ID.
func (r *Repository) Create(ctx context.Context, q *models.ScheduledQuery) (uint, error) {
	if q.Status == "" {
		q.Status = models.QueryStatusActive
	}
	q.IsFollowup = q.ParentQueryID != nil

	tx := r.db.WithContext(ctx)
	if !r.relations {
		if q.IsFollowup {
			r.logger.Warn("storing follow-up without parent link",
				"parent_query_id", *q.ParentQueryID,
				"query_text", q.QueryText,
			)
		}
		q.ParentQueryID = nil
		q.IsFollowup = false
		q.FollowupDelayMinutes = nil
		q.AutoTriggered = false
		tx = tx.Omit("ParentQueryID", "IsFollowup", "FollowupDelayMinutes", "AutoTriggered")
	}

	if err := tx.Create(q).Error; err != nil {
		return 0, storageErr("create query", err)
	}
	return q.ID, nil
}

// ListActive returns every active query in storage order.
func (r *Repository) ListActive(ctx context.Context) ([]models.ScheduledQuery, error) {
	var queries []models.ScheduledQuery
	err := r.db.WithContext(ctx).
		Where("status = ?", models.QueryStatusActive).
		Order("id").
		Find(&queries).Error
	if err != nil {
		return nil, storageErr("list active queries", err)
	}
	return queries, nil
}

func (r *Repository) GetByID(ctx context.Context, id uint) (*models.ScheduledQuery, error) {
	var q models.ScheduledQuery
	err := r.db.WithContext(ctx).First(&q, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get query", err)
	}
	return &q, nil
}

// Delete hard-deletes the query and returns the number of rows removed. Its
// execution results are kept.
func (r *Repository) Delete(ctx context.Context, id uint) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.ScheduledQuery{}, id)
	if res.Error != nil {
		return 0, storageErr("delete query", res.Error)
	}
	return res.RowsAffected, nil
}

// CreateResult appends an execution result and sets result.ID.
func (r *Repository) CreateResult(ctx context.Context, result *models.ExecutionResult) (uint, error) {
	if !result.ExecutedAt.IsZero() {
		result.ExecutedAt = result.ExecutedAt.UTC()
	}

	tx := r.db.WithContext(ctx)
	if !r.resultFollow {
		tx = tx.Omit("FollowUpScheduled")
	}
	if err := tx.Create(result).Error; err != nil {
		return 0, storageErr("create result", err)
	}
	return result.ID, nil
}

// ListResultsByQuery returns results newest first.
func (r *Repository) ListResultsByQuery(ctx context.Context, queryID uint) ([]models.ExecutionResult, error) {
	var results []models.ExecutionResult
	err := r.db.WithContext(ctx).
		Where("query_id = ?", queryID).
		Order("execution_timestamp DESC").
		Order("id DESC").
		Find(&results).Error
	if err != nil {
		return nil, storageErr("list results", err)
	}
	return results, nil
}

// ListFollowups returns the follow-up children of parentID.
func (r *Repository) ListFollowups(ctx context.Context, parentID uint) ([]models.ScheduledQuery, error) {
	if !r.relations {
		return []models.ScheduledQuery{}, nil
	}
	var children []models.ScheduledQuery
	err := r.db.WithContext(ctx).
		Where("parent_query_id = ? AND is_followup = ?", parentID, true).
		Order("id").
		Find(&children).Error
	if err != nil {
		return nil, storageErr("list followups", err)
	}
	return children, nil
}

// MarkAutoTriggered flags a follow-up whose first run used its parent's answer.
func (r *Repository) MarkAutoTriggered(ctx context.Context, id uint) (int64, error) {
	if !r.relations {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.ScheduledQuery{}).
		Where("id = ?", id).
		Update("auto_triggered", true)
	if res.Error != nil {
		return 0, storageErr("mark auto-triggered", res.Error)
	}
	return res.RowsAffected, nil
}

// Stats counts active queries, exported documents and results executed on the
// UTC day containing now.
func (r *Repository) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	var stats Stats
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.ScheduledQuery{}).
		Where("status = ?", models.QueryStatusActive).
		Count(&stats.ScheduledQueries).Error; err != nil {
		return nil, storageErr("count queries", err)
	}

	if err := db.Model(&models.ExecutionResult{}).
		Where("google_doc_id IS NOT NULL").
		Count(&stats.DocumentsCreated).Error; err != nil {
		return nil, storageErr("count documents", err)
	}

	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if err := db.Model(&models.ExecutionResult{}).
		Where("execution_timestamp >= ? AND execution_timestamp < ?", dayStart, dayStart.AddDate(0, 0, 1)).
		Count(&stats.CompletedToday).Error; err != nil {
		return nil, storageErr("count today's results", err)
	}

	return &stats, nil
}
