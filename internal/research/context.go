package research

import (
	"context"
	"log/slog"

	"github.com/hugh/go-scout/internal/database/models"
)

// PriorExchange is the parent's last question and answer, replayed into a
// follow-up's conversation.
type PriorExchange struct {
	Question string
	Answer   string
}

// ResultLister is the slice of the repository the assembler needs.
type ResultLister interface {
	ListResultsByQuery(ctx context.Context, queryID uint) ([]models.ExecutionResult, error)
}

type ContextAssembler struct {
	results ResultLister
	logger  *slog.Logger
}

func NewContextAssembler(results ResultLister, logger *slog.Logger) *ContextAssembler {
	return &ContextAssembler{results: results, logger: logger}
}

// BuildContext returns the question and answer of the parent's most recent
// result, or nil. It never fails: lookup errors and missing history both mean
// "run without context".
func (a *ContextAssembler) BuildContext(ctx context.Context, q *models.ScheduledQuery) *PriorExchange {
	if q.ParentQueryID == nil {
		return nil
	}
	parentID := *q.ParentQueryID

	results, err := a.results.ListResultsByQuery(ctx, parentID)
	if err != nil {
		a.logger.Error("failed to load parent results", "query_id", q.ID, "parent_query_id", parentID, "error", err)
		return nil
	}

	if len(results) == 0 {
		a.logger.Warn("follow-up has no parent results, running without context",
			"query_id", q.ID,
			"parent_query_id", parentID,
		)
		return nil
	}

	// Newest first. A failed parent run is replayed as is.
	latest := results[0]
	a.logger.Debug("using parent context",
		"query_id", q.ID,
		"parent_query_id", parentID,
		"parent_result_id", latest.ID,
		"parent_status", latest.Status,
		"content_length", len(latest.Payload.Content),
	)
	return &PriorExchange{Question: latest.Payload.Query, Answer: latest.Payload.Content}
}

