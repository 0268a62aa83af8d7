package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hugh/go-scout/internal/database/models"
	"github.com/hugh/go-scout/internal/export"
	"github.com/hugh/go-scout/internal/research"
)

type ContextBuilder interface {
	BuildContext(ctx context.Context, q *models.ScheduledQuery) *research.PriorExchange
}

type QueryExecutor interface {
	Execute(ctx context.Context, q *models.ScheduledQuery, prior *research.PriorExchange) *models.ExecutionResult
}

// Exporter publishes a result as an external document.
type Exporter interface {
	Export(ctx context.Context, q *models.ScheduledQuery, p *models.ResultPayload) (*export.Document, error)
}

type ResultSaver interface {
	CreateResult(ctx context.Context, result *models.ExecutionResult) (uint, error)
	MarkAutoTriggered(ctx context.Context, id uint) (int64, error)
}

// Runner performs one execution of a query: context, generation, export,
// persistence. It is shared by cron fires, queued tasks and manual runs.
type Runner struct {
	results   ResultSaver
	assembler ContextBuilder
	executor  QueryExecutor
	exporter  Exporter
	logger    *slog.Logger
}

// NewRunner creates a runner. exporter may be nil when export is disabled.
func NewRunner(results ResultSaver, cb ContextBuilder, exec QueryExecutor, exporter Exporter, logger *slog.Logger) *Runner {
	return &Runner{
		results:   results,
		assembler: cb,
		executor:  exec,
		exporter:  exporter,
		logger:    logger,
	}
}

// Run executes q and saves the result. Only a storage failure is returned;
// generation and export failures are folded into the saved result or logged.
func (r *Runner) Run(ctx context.Context, q *models.ScheduledQuery) (*models.ExecutionResult, error) {
	prior := r.assembler.BuildContext(ctx, q)
	result := r.executor.Execute(ctx, q, prior)

	if r.exporter != nil && result.Status == models.ResultStatusCompleted {
		doc, err := r.exporter.Export(ctx, q, &result.Payload)
		if err != nil {
			r.logger.Error("export failed, saving result without document", "query_id", q.ID, "error", err)
		} else {
			result.ExportedDocumentID = &doc.ID
		}
	}

	if _, err := r.results.CreateResult(ctx, result); err != nil {
		return result, fmt.Errorf("saving result for query %d: %w", q.ID, err)
	}

	if prior != nil && !q.AutoTriggered && result.Status == models.ResultStatusCompleted {
		if _, err := r.results.MarkAutoTriggered(ctx, q.ID); err != nil {
			r.logger.Warn("failed to flag follow-up as triggered", "query_id", q.ID, "error", err)
		} else {
			q.AutoTriggered = true
		}
	}

	r.logger.Info("query run finished",
		"query_id", q.ID,
		"result_id", result.ID,
		"status", result.Status,
		"is_followup", result.Payload.Metadata.IsFollowup,
		"exported", result.ExportedDocumentID != nil,
	)
	return result, nil
}
