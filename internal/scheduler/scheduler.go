// Package scheduler fires scheduled queries on their recurrence expressions.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hugh/go-scout/internal/database/models"
	"github.com/hugh/go-scout/internal/repository"
	"github.com/hugh/go-scout/pkg/util"
	"github.com/robfig/cron/v3"
)

// Trigger is the recurrence facility. *cron.Cron satisfies it.
type Trigger interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
	Remove(id cron.EntryID)
	Start()
	Stop() context.Context
}

type QueryStore interface {
	GetByID(ctx context.Context, id uint) (*models.ScheduledQuery, error)
	ListActive(ctx context.Context) ([]models.ScheduledQuery, error)
}

// Dispatcher hands a fire to a worker process instead of running it here.
type Dispatcher interface {
	Dispatch(ctx context.Context, queryID uint, firedAt time.Time) error
}

type Option func(*Scheduler)

// WithDispatcher switches fires from inline execution to dispatch.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Scheduler) { s.dispatcher = d }
}

type Scheduler struct {
	trigger    Trigger
	store      QueryStore
	runner     *Runner
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	entries  map[uint]cron.EntryID
	inFlight map[uint]struct{}
}

func New(trigger Trigger, store QueryStore, runner *Runner, logger *slog.Logger, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		trigger:  trigger,
		store:    store,
		runner:   runner,
		logger:   logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[uint]cron.EntryID),
		inFlight: make(map[uint]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewTrigger returns a cron instance that parses exactly the five-field
// expressions Register accepts and survives panicking jobs.
func NewTrigger(logger *slog.Logger) *cron.Cron {
	l := cronLogger{logger: logger}
	return cron.New(
		cron.WithParser(util.CronParser()),
		cron.WithChain(cron.Recover(l)),
		cron.WithLogger(l),
	)
}

// Register schedules q, replacing any earlier registration of the same id. An
// unusable expression is logged and reported as false; it never panics or
// errors, and the query stays stored but unscheduled.
func (s *Scheduler) Register(q *models.ScheduledQuery) bool {
	if err := util.ValidateCronExpr(q.CronExpr); err != nil {
		s.logger.Warn("not scheduling query with invalid schedule",
			"query_id", q.ID,
			"schedule", q.CronExpr,
			"error", err,
		)
		return false
	}

	id := q.ID
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[id]; ok {
		s.trigger.Remove(old)
		delete(s.entries, id)
	}

	entryID, err := s.trigger.AddFunc(q.CronExpr, func() { s.fire(id) })
	if err != nil {
		s.logger.Error("failed to register trigger", "query_id", id, "schedule", q.CronExpr, "error", err)
		return false
	}
	s.entries[id] = entryID

	attrs := []any{"query_id", id, "schedule", q.CronExpr, "is_followup", q.IsFollowup}
	if next, err := util.NextCronTime(q.CronExpr, s.now()); err == nil {
		attrs = append(attrs, "next_run", next.Format(time.RFC3339))
	}
	s.logger.Info("query scheduled", attrs...)
	return true
}

// Deregister removes the live trigger for id, if any.
func (s *Scheduler) Deregister(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[id]
	if !ok {
		return false
	}
	s.trigger.Remove(entryID)
	delete(s.entries, id)
	s.logger.Info("query unscheduled", "query_id", id)
	return true
}

func (s *Scheduler) IsRegistered(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Len is the number of live registrations.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// LoadActive registers every active query and returns how many were scheduled.
func (s *Scheduler) LoadActive(ctx context.Context) (int, error) {
	queries, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for i := range queries {
		if s.Register(&queries[i]) {
			n++
		}
	}
	s.logger.Info("loaded scheduled queries", "active", len(queries), "scheduled", n)
	return n, nil
}

func (s *Scheduler) Start() {
	s.trigger.Start()
}

// Stop halts the trigger and waits for in-flight runs until ctx expires, then
// cancels them.
func (s *Scheduler) Stop(ctx context.Context) error {
	defer s.cancel()

	select {
	case <-s.trigger.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fire runs on the trigger's goroutine. The query is re-read so edits,
// deletion and deactivation after registration are honoured.
func (s *Scheduler) fire(id uint) {
	firedAt := s.now()

	if !s.acquire(id) {
		s.logger.Warn("previous run still in flight, dropping fire", "query_id", id)
		return
	}
	defer s.release(id)

	q, err := s.store.GetByID(s.ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info("scheduled query no longer exists", "query_id", id)
		s.Deregister(id)
		return
	}
	if err != nil {
		s.logger.Error("failed to load scheduled query", "query_id", id, "error", err)
		return
	}
	if !q.IsActive() {
		s.logger.Info("scheduled query is inactive", "query_id", id, "status", q.Status)
		s.Deregister(id)
		return
	}

	s.logger.Info("running scheduled query", "query_id", id, "schedule", q.CronExpr, "fired_at", firedAt.Format(time.RFC3339))

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(s.ctx, id, firedAt); err != nil {
			s.logger.Error("failed to dispatch scheduled query", "query_id", id, "error", err)
		}
		return
	}

	if _, err := s.runner.Run(s.ctx, q); err != nil {
		s.logger.Error("scheduled run not saved", "query_id", id, "error", err)
	}
}

func (s *Scheduler) acquire(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id uint) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
