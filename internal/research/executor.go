// Package research turns a scheduled query into an answer from the generation
// API, threading a parent's last answer into follow-ups.
package research

import (
	"context"
	"log/slog"
	"time"

	"github.com/hugh/go-scout/internal/database/models"
	"github.com/hugh/go-scout/internal/perplexity"
)

// Generator is the answer-generation API.
type Generator interface {
	Complete(ctx context.Context, req perplexity.ChatRequest) (*perplexity.ChatResponse, error)
}

type ExecutorConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

type Executor struct {
	gen    Generator
	cfg    ExecutorConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewExecutor(gen Generator, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	return &Executor{
		gen:    gen,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs q once and returns an unsaved result. It never fails: a
// generation error yields a result with status failed and placeholder content.
func (e *Executor) Execute(ctx context.Context, q *models.ScheduledQuery, prior *PriorExchange) *models.ExecutionResult {
	now := e.now()
	start, end := deref(q.DateRangeStart), deref(q.DateRangeEnd)
	filters := models.ResultFilters{
		DateRange: FormatDateRange(start, end),
		Websites:  deref(q.WebsiteFilters),
	}

	searchQuery := BuildSearchQuery(q)
	req := perplexity.ChatRequest{
		Model:               e.cfg.Model,
		Messages:            BuildMessages(searchQuery, prior),
		MaxTokens:           e.cfg.MaxTokens,
		Temperature:         e.cfg.Temperature,
		TopP:                e.cfg.TopP,
		SearchDomainFilter:  SearchDomains(filters.Websites),
		SearchRecencyFilter: RecencyFilter(start, end, now),
	}

	e.logger.Info("executing query",
		"query_id", q.ID,
		"with_context", prior != nil,
		"messages", len(req.Messages),
		"recency", req.SearchRecencyFilter,
	)

	resp, err := e.gen.Complete(ctx, req)
	if err != nil {
		e.logger.Error("generation request failed", "query_id", q.ID, "error", err)
		return &models.ExecutionResult{
			QueryID:    q.ID,
			ExecutedAt: now,
			Status:     models.ResultStatusFailed,
			Payload: models.ResultPayload{
				Query:     q.QueryText,
				Timestamp: now,
				Content:   FailureContent,
				Filters:   filters,
				Error:     err.Error(),
				Metadata:  e.metadata(q, prior, now),
			},
		}
	}

	payload := models.ResultPayload{
		Query:     q.QueryText,
		Timestamp: now,
		Model:     resp.Model,
		Content:   resp.Content(),
		Citations: resp.Citations,
		Filters:   filters,
		Metadata:  e.metadata(q, prior, now),
	}
	if resp.Usage != nil {
		payload.Usage = &models.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return &models.ExecutionResult{
		QueryID:    q.ID,
		ExecutedAt: now,
		Status:     models.ResultStatusCompleted,
		Payload:    payload,
	}
}

func (e *Executor) metadata(q *models.ScheduledQuery, prior *PriorExchange, now time.Time) models.ResultMetadata {
	md := models.ResultMetadata{
		ExecutionTime: now,
		QueryID:       q.ID,
		Schedule:      q.CronExpr,
		IsFollowup:    prior != nil,
	}
	if prior != nil {
		md.ParentQuestion = prior.Question
	}
	return md
}
