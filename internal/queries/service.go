// Package queries is the lifecycle of scheduled queries: creation, follow-up
// chaining, deletion and manual runs.
package queries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hugh/go-scout/internal/database/models"
	"github.com/hugh/go-scout/internal/repository"
	"github.com/hugh/go-scout/pkg/util"
)

// DefaultFollowupDelay is how many minutes a follow-up fires after its parent.
const DefaultFollowupDelay = 5

var ErrValidation = errors.New("validation failed")

// Store is the persistence the service needs. *repository.Repository satisfies it.
type Store interface {
	Create(ctx context.Context, q *models.ScheduledQuery) (uint, error)
	GetByID(ctx context.Context, id uint) (*models.ScheduledQuery, error)
	ListActive(ctx context.Context) ([]models.ScheduledQuery, error)
	Delete(ctx context.Context, id uint) (int64, error)
	ListResultsByQuery(ctx context.Context, queryID uint) ([]models.ExecutionResult, error)
	ListFollowups(ctx context.Context, parentID uint) ([]models.ScheduledQuery, error)
	Stats(ctx context.Context, now time.Time) (*repository.Stats, error)
}

type Registrar interface {
	Register(q *models.ScheduledQuery) bool
	Deregister(id uint) bool
}

type Runner interface {
	Run(ctx context.Context, q *models.ScheduledQuery) (*models.ExecutionResult, error)
}

// QueryInput is the user-supplied part of a query. Empty optional strings are
// stored as NULL.
type QueryInput struct {
	QueryText      string
	CronExpr       string
	DateRangeStart string
	DateRangeEnd   string
	WebsiteFilters string
}

type Service struct {
	store     Store
	scheduler Registrar
	runner    Runner
	delay     int
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the service. A non-positive delay uses DefaultFollowupDelay.
func NewService(store Store, scheduler Registrar, runner Runner, delay int, logger *slog.Logger) *Service {
	if delay <= 0 {
		delay = DefaultFollowupDelay
	}
	return &Service{
		store:     store,
		scheduler: scheduler,
		runner:    runner,
		delay:     delay,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateQuery stores a new top-level query and schedules it.
func (s *Service) CreateQuery(ctx context.Context, in QueryInput) (*models.ScheduledQuery, error) {
	text := strings.TrimSpace(in.QueryText)
	if text == "" {
		return nil, fmt.Errorf("%w: query_text is required", ErrValidation)
	}
	expr := strings.TrimSpace(in.CronExpr)
	if err := util.ValidateCronExpr(expr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	q := &models.ScheduledQuery{
		QueryText:      text,
		CronExpr:       expr,
		DateRangeStart: optional(in.DateRangeStart),
		DateRangeEnd:   optional(in.DateRangeEnd),
		WebsiteFilters: optional(in.WebsiteFilters),
		Status:         models.QueryStatusActive,
	}
	if _, err := s.store.Create(ctx, q); err != nil {
		return nil, err
	}

	s.scheduler.Register(q)
	s.logger.Info("query created", "query_id", q.ID, "schedule", q.CronExpr)
	return q, nil
}

// CreateFollowup stores a follow-up of parentID scheduled a fixed delay after
// the parent, then schedules the stored record. in.CronExpr is ignored.
func (s *Service) CreateFollowup(ctx context.Context, parentID uint, in QueryInput) (uint, error) {
	parent, err := s.store.GetByID(ctx, parentID)
	if err != nil {
		return 0, err
	}

	text := strings.TrimSpace(in.QueryText)
	if text == "" {
		return 0, fmt.Errorf("%w: query_text is required", ErrValidation)
	}

	expr, err := util.OffsetCronExpr(parent.CronExpr, s.delay)
	if err != nil {
		return 0, fmt.Errorf("%w: parent schedule %q: %w", ErrValidation, parent.CronExpr, err)
	}

	delay := s.delay
	child := &models.ScheduledQuery{
		QueryText:            text,
		CronExpr:             expr,
		DateRangeStart:       optional(in.DateRangeStart),
		DateRangeEnd:         optional(in.DateRangeEnd),
		WebsiteFilters:       optional(in.WebsiteFilters),
		Status:               models.QueryStatusActive,
		ParentQueryID:        &parent.ID,
		IsFollowup:           true,
		FollowupDelayMinutes: &delay,
	}
	id, err := s.store.Create(ctx, child)
	if err != nil {
		return 0, err
	}

	// Register what was actually stored; a legacy schema drops the parent link.
	stored, err := s.store.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	s.scheduler.Register(stored)

	s.logger.Info("follow-up created",
		"query_id", id,
		"parent_query_id", parent.ID,
		"parent_schedule", parent.CronExpr,
		"schedule", expr,
		"linked", stored.ParentQueryID != nil,
	)
	return id, nil
}

// DeleteQuery removes the query and its trigger. Results are kept.
func (s *Service) DeleteQuery(ctx context.Context, id uint) error {
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	s.scheduler.Deregister(id)
	s.logger.Info("query deleted", "query_id", id)
	return nil
}

// Execute runs the query now, outside its schedule.
func (s *Service) Execute(ctx context.Context, id uint) (*models.ExecutionResult, error) {
	q, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("manual run", "query_id", id)
	return s.runner.Run(ctx, q)
}

// FollowupDelay is the offset in minutes applied to follow-up schedules.
func (s *Service) FollowupDelay() int {
	return s.delay
}

func (s *Service) Get(ctx context.Context, id uint) (*models.ScheduledQuery, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) ListActive(ctx context.Context) ([]models.ScheduledQuery, error) {
	return s.store.ListActive(ctx)
}

func (s *Service) ListFollowups(ctx context.Context, parentID uint) ([]models.ScheduledQuery, error) {
	if _, err := s.store.GetByID(ctx, parentID); err != nil {
		return nil, err
	}
	return s.store.ListFollowups(ctx, parentID)
}

// Results returns the query's history, newest first. A deleted query's
// history is still returned.
func (s *Service) Results(ctx context.Context, id uint) ([]models.ExecutionResult, error) {
	return s.store.ListResultsByQuery(ctx, id)
}

func (s *Service) Stats(ctx context.Context) (*repository.Stats, error) {
	return s.store.Stats(ctx, s.now())
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
