package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-scout/internal/database/models"
	"github.com/hugh/go-scout/internal/repository"
)

type QueryLoader interface {
	GetByID(ctx context.Context, id uint) (*models.ScheduledQuery, error)
}

type Runner interface {
	Run(ctx context.Context, q *models.ScheduledQuery) (*models.ExecutionResult, error)
}

type Handler struct {
	queries QueryLoader
	runner  Runner
	logger  *slog.Logger
}

func NewHandler(queries QueryLoader, runner Runner, logger *slog.Logger) *Handler {
	return &Handler{
		queries: queries,
		runner:  runner,
		logger:  logger,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeQueryExecute, h.HandleQueryExecute)
}

// HandleQueryExecute runs a queued fire. Deleted or inactive queries are
// skipped; a failed save is returned so asynq retries the task.
func (h *Handler) HandleQueryExecute(ctx context.Context, t *asynq.Task) error {
	var payload QueryExecutePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	q, err := h.queries.GetByID(ctx, payload.QueryID)
	if errors.Is(err, repository.ErrNotFound) {
		h.logger.Info("skipping queued run of deleted query", "query_id", payload.QueryID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading query %d: %w", payload.QueryID, err)
	}
	if !q.IsActive() {
		h.logger.Info("skipping queued run of inactive query", "query_id", q.ID, "status", q.Status)
		return nil
	}

	h.logger.Info("starting queued query run",
		"query_id", q.ID,
		"fired_at", payload.FiredAt,
		"is_followup", q.IsFollowup,
	)

	if _, err := h.runner.Run(ctx, q); err != nil {
		h.logger.Error("queued query run failed", "query_id", q.ID, "error", err)
		return err
	}
	return nil
}
