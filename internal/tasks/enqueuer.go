package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskEnqueuer is the part of *asynq.Client the enqueuer uses.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer turns scheduler fires into queued tasks for cmd/worker.
type Enqueuer struct {
	client TaskEnqueuer
	logger *slog.Logger
}

func NewEnqueuer(client TaskEnqueuer, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{client: client, logger: logger}
}

// Dispatch enqueues one fire. A fire already queued for the same minute is
// not an error.
func (e *Enqueuer) Dispatch(ctx context.Context, queryID uint, firedAt time.Time) error {
	task, err := NewQueryExecuteTask(QueryExecutePayload{QueryID: queryID, FiredAt: firedAt})
	if err != nil {
		return fmt.Errorf("building task: %w", err)
	}

	info, err := e.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		e.logger.Debug("fire already queued", "query_id", queryID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueueing query %d: %w", queryID, err)
	}

	e.logger.Info("query run enqueued", "query_id", queryID, "task_id", info.ID, "queue", info.Queue)
	return nil
}
