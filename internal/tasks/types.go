package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-scout/pkg/queue"
)

// Task type names
const (
	TypeQueryExecute = "query:execute"
)

// QueryExecutePayload asks a worker to run one scheduled fire of a query.
type QueryExecutePayload struct {
	QueryID uint      `json:"query_id"`
	FiredAt time.Time `json:"fired_at"`
}

// TaskID is stable per query and minute, so a duplicate fire of the same
// occurrence is rejected by the queue.
func (p QueryExecutePayload) TaskID() string {
	return fmt.Sprintf("query:%d:%d", p.QueryID, p.FiredAt.UTC().Truncate(time.Minute).Unix())
}

func NewQueryExecuteTask(payload QueryExecutePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeQueryExecute, data,
		asynq.TaskID(payload.TaskID()),
		asynq.Queue(queue.QueueScheduled),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(24*time.Hour),
	), nil
}
