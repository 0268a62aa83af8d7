package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/go-scout/internal/api/dto"
	"github.com/hugh/go-scout/internal/api/handlers"
	"github.com/hugh/go-scout/internal/database/models"
	"github.com/hugh/go-scout/internal/perplexity"
	"github.com/hugh/go-scout/internal/queries"
	"github.com/hugh/go-scout/internal/repository"
	"github.com/hugh/go-scout/internal/research"
	"github.com/hugh/go-scout/internal/scheduler"
	"github.com/hugh/go-scout/internal/testutil"
	"github.com/hugh/go-scout/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type echoGenerator struct {
	err error
}

func (g *echoGenerator) Complete(_ context.Context, req perplexity.ChatRequest) (*perplexity.ChatResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	last := req.Messages[len(req.Messages)-1].Content
	return &perplexity.ChatResponse{
		Model:   req.Model,
		Choices: []perplexity.Choice{{Message: perplexity.Message{Role: perplexity.RoleAssistant, Content: "answer to: " + last}}},
	}, nil
}

type testSetup struct {
	db    *gorm.DB
	gen   *echoGenerator
	sched *scheduler.Scheduler
	svc   *queries.Service
}

func setupQueryTestRouter(t *testing.T) (*chi.Mux, *testSetup) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	log := util.NopLogger()
	repo := repository.New(db, log)
	gen := &echoGenerator{}
	exec := research.NewExecutor(gen, research.ExecutorConfig{Model: "sonar-pro", MaxTokens: 1000}, log)
	runner := scheduler.NewRunner(repo, research.NewContextAssembler(repo, log), exec, nil, log)
	sched := scheduler.New(testutil.NewFakeTrigger(), repo, runner, log)
	svc := queries.NewService(repo, sched, runner, queries.DefaultFollowupDelay, log)

	return newQueryRouter(svc), &testSetup{db: db, gen: gen, sched: sched, svc: svc}
}

func newQueryRouter(svc handlers.QueryService) *chi.Mux {
	handler := handlers.NewQueryHandler(svc, util.NopLogger())

	r := chi.NewRouter()
	r.Get("/api/statistics", handler.Statistics)
	r.Route("/api/queries", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Post("/", handler.Create)
		r.Delete("/{id}", handler.Delete)
		r.Get("/{id}/results", handler.Results)
		r.Post("/{id}/execute", handler.Execute)
		r.Post("/{id}/followup", handler.CreateFollowup)
		r.Get("/{id}/followups", handler.ListFollowups)
	})
	return r
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestQueryHandler_Create(t *testing.T) {
	tests := []struct {
		name        string
		body        interface{}
		wantStatus  int
		wantDetails []string
	}{
		{
			name: "valid query",
			body: map[string]interface{}{
				"query_text":       "NVDA earnings outlook",
				"schedule_cron":    "0 9 * * 1-5",
				"date_range_start": "2026-10-01",
				"website_filters":  "site:reuters.com OR site:ft.com",
			},
			wantStatus: http.StatusOK,
		},
		{
			name:        "missing text",
			body:        map[string]interface{}{"schedule_cron": "0 9 * * *"},
			wantStatus:  http.StatusBadRequest,
			wantDetails: []string{"query_text"},
		},
		{
			name:        "bad schedule",
			body:        map[string]interface{}{"query_text": "x", "schedule_cron": "0 9 * *"},
			wantStatus:  http.StatusBadRequest,
			wantDetails: []string{"schedule_cron"},
		},
		{
			name: "bad date and filters",
			body: map[string]interface{}{
				"query_text":      "x",
				"schedule_cron":   "0 9 * * *",
				"date_range_end":  "10/01/2026",
				"website_filters": "site:nope",
			},
			wantStatus:  http.StatusBadRequest,
			wantDetails: []string{"date_range_end", "website_filters"},
		},
		{
			name:       "malformed json",
			body:       "{",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, ts := setupQueryTestRouter(t)

			var req *http.Request
			if s, ok := tt.body.(string); ok {
				req = httptest.NewRequest(http.MethodPost, "/api/queries", strings.NewReader(s))
			} else {
				req = testutil.JSONRequest(t, http.MethodPost, "/api/queries", tt.body)
			}

			rr := serve(router, req)
			testutil.AssertStatus(t, rr, tt.wantStatus)

			if tt.wantStatus == http.StatusOK {
				var resp dto.CreateQueryResponse
				testutil.ParseJSONResponse(t, rr, &resp)
				assert.True(t, resp.Success)
				assert.NotZero(t, resp.QueryID)
				assert.True(t, ts.sched.IsRegistered(resp.QueryID))
				return
			}

			var resp dto.ErrorResponse
			testutil.ParseJSONResponse(t, rr, &resp)
			for _, field := range tt.wantDetails {
				assert.Contains(t, resp.Details, field)
			}
		})
	}
}

func TestQueryHandler_List(t *testing.T) {
	router, ts := setupQueryTestRouter(t)
	active := testutil.CreateTestQuery(t, ts.db, "active", "0 9 * * *")
	inactive := testutil.CreateTestQuery(t, ts.db, "inactive", "0 9 * * *")
	require.NoError(t, ts.db.Model(inactive).Update("status", models.QueryStatusInactive).Error)

	rr := serve(router, httptest.NewRequest(http.MethodGet, "/api/queries", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp []dto.QueryResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, active.ID, resp[0].ID)
	assert.Equal(t, "0 9 * * *", resp[0].CronExpr)
	require.NotNil(t, resp[0].NextRunAt)
	assert.Greater(t, *resp[0].NextRunAt, time.Now().Unix())
}

func TestQueryHandler_ListEmptyIsArray(t *testing.T) {
	router, _ := setupQueryTestRouter(t)

	rr := serve(router, httptest.NewRequest(http.MethodGet, "/api/queries", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestQueryHandler_Delete(t *testing.T) {
	router, ts := setupQueryTestRouter(t)
	q, err := ts.svc.CreateQuery(context.Background(), queries.QueryInput{QueryText: "x", CronExpr: "0 9 * * *"})
	require.NoError(t, err)
	testutil.CreateTestResult(t, ts.db, q.ID, "x", "kept", time.Now())

	path := "/api/queries/" + strconv.FormatUint(uint64(q.ID), 10)

	rr := serve(router, httptest.NewRequest(http.MethodDelete, path, nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var resp dto.SuccessResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "Query deleted successfully", resp.Message)
	assert.False(t, ts.sched.IsRegistered(q.ID))

	// Results outlive the query.
	rr = serve(router, httptest.NewRequest(http.MethodGet, path+"/results", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var results []models.ExecutionResult
	testutil.ParseJSONResponse(t, rr, &results)
	assert.Len(t, results, 1)

	rr = serve(router, httptest.NewRequest(http.MethodDelete, path, nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestQueryHandler_InvalidID(t *testing.T) {
	router, _ := setupQueryTestRouter(t)

	for _, path := range []string{"/api/queries/abc", "/api/queries/0"} {
		rr := serve(router, httptest.NewRequest(http.MethodDelete, path, nil))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	}
}

func TestQueryHandler_Results(t *testing.T) {
	router, ts := setupQueryTestRouter(t)
	q := testutil.CreateTestQuery(t, ts.db, "AAPL", "0 9 * * *")
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	testutil.CreateTestResult(t, ts.db, q.ID, "AAPL", "older", base)
	testutil.CreateTestResult(t, ts.db, q.ID, "AAPL", "newer", base.Add(24*time.Hour))

	rr := serve(router, httptest.NewRequest(http.MethodGet, "/api/queries/"+strconv.FormatUint(uint64(q.ID), 10)+"/results", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var results []models.ExecutionResult
	testutil.ParseJSONResponse(t, rr, &results)
	require.Len(t, results, 2)
	assert.Equal(t, "newer", results[0].Payload.Content)
	assert.Equal(t, "older", results[1].Payload.Content)

	rr = serve(router, httptest.NewRequest(http.MethodGet, "/api/queries/999/results", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestQueryHandler_Execute(t *testing.T) {
	router, ts := setupQueryTestRouter(t)
	q := testutil.CreateTestQuery(t, ts.db, "TSMC capacity", "0 9 * * *")

	rr := serve(router, httptest.NewRequest(http.MethodPost, "/api/queries/"+strconv.FormatUint(uint64(q.ID), 10)+"/execute", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp dto.ExecuteResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "TSMC capacity", resp.Results.Query)
	assert.Contains(t, resp.Results.Content, "answer to:")

	var count int64
	require.NoError(t, ts.db.Model(&models.ExecutionResult{}).Where("query_id = ?", q.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	rr = serve(router, httptest.NewRequest(http.MethodPost, "/api/queries/999/execute", nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestQueryHandler_ExecuteGenerationFailure(t *testing.T) {
	router, ts := setupQueryTestRouter(t)
	ts.gen.err = errors.New("401 unauthorized")
	q := testutil.CreateTestQuery(t, ts.db, "x", "0 9 * * *")

	rr := serve(router, httptest.NewRequest(http.MethodPost, "/api/queries/"+strconv.FormatUint(uint64(q.ID), 10)+"/execute", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp dto.ExecuteResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, research.FailureContent, resp.Results.Content)
}

// disconnectingGenerator cancels the caller's request mid-generation.
type disconnectingGenerator struct {
	echoGenerator
	cancel context.CancelFunc
}

func (g *disconnectingGenerator) Complete(ctx context.Context, req perplexity.ChatRequest) (*perplexity.ChatResponse, error) {
	g.cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.echoGenerator.Complete(ctx, req)
}

func TestQueryHandler_ExecuteSurvivesClientDisconnect(t *testing.T) {
	db := testutil.SetupTestDB(t)
	log := util.NopLogger()
	repo := repository.New(db, log)

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &disconnectingGenerator{cancel: cancel}
	exec := research.NewExecutor(gen, research.ExecutorConfig{Model: "sonar-pro", MaxTokens: 1000}, log)
	runner := scheduler.NewRunner(repo, research.NewContextAssembler(repo, log), exec, nil, log)
	sched := scheduler.New(testutil.NewFakeTrigger(), repo, runner, log)
	router := newQueryRouter(queries.NewService(repo, sched, runner, queries.DefaultFollowupDelay, log))

	q := testutil.CreateTestQuery(t, db, "ASML backlog", "0 9 * * *")
	req := httptest.NewRequest(http.MethodPost, "/api/queries/"+strconv.FormatUint(uint64(q.ID), 10)+"/execute", nil)
	rr := serve(router, req.WithContext(reqCtx))
	testutil.AssertStatus(t, rr, http.StatusOK)

	require.Error(t, reqCtx.Err())

	var results []models.ExecutionResult
	require.NoError(t, db.Where("query_id = ?", q.ID).Find(&results).Error)
	require.Len(t, results, 1)
	assert.Equal(t, models.ResultStatusCompleted, results[0].Status)
}

func TestQueryHandler_CreateFollowup(t *testing.T) {
	router, ts := setupQueryTestRouter(t)
	parent, err := ts.svc.CreateQuery(context.Background(), queries.QueryInput{QueryText: "parent", CronExpr: "55 10 * * *"})
	require.NoError(t, err)
	parentPath := "/api/queries/" + strconv.FormatUint(uint64(parent.ID), 10)

	rr := serve(router, testutil.JSONRequest(t, http.MethodPost, parentPath+"/followup", map[string]string{
		"query_text":    "What changed since?",
		"schedule_cron": "ignored",
	}))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp dto.CreateFollowupResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Message, "5 minutes")
	assert.True(t, ts.sched.IsRegistered(resp.FollowupID))

	rr = serve(router, httptest.NewRequest(http.MethodGet, parentPath+"/followups", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var followups []dto.QueryResponse
	testutil.ParseJSONResponse(t, rr, &followups)
	require.Len(t, followups, 1)
	assert.Equal(t, resp.FollowupID, followups[0].ID)
	assert.Equal(t, "0 11 * * *", followups[0].CronExpr)
	assert.True(t, followups[0].IsFollowup)
	require.NotNil(t, followups[0].ParentQueryID)
	assert.Equal(t, parent.ID, *followups[0].ParentQueryID)
}

func TestQueryHandler_CreateFollowupErrors(t *testing.T) {
	router, ts := setupQueryTestRouter(t)
	stepped := testutil.CreateTestQuery(t, ts.db, "stepped", "*/15 9 * * *")

	tests := []struct {
		name       string
		path       string
		body       map[string]string
		wantStatus int
		wantError  string
	}{
		{"unknown parent", "/api/queries/999/followup", map[string]string{"query_text": "x"}, http.StatusNotFound, "Parent query not found"},
		{"missing text", "/api/queries/999/followup", map[string]string{}, http.StatusBadRequest, "Validation failed"},
		{"parent schedule not offsettable", "/api/queries/" + strconv.FormatUint(uint64(stepped.ID), 10) + "/followup", map[string]string{"query_text": "x"}, http.StatusBadRequest, "validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(router, testutil.JSONRequest(t, http.MethodPost, tt.path, tt.body))
			testutil.AssertStatus(t, rr, tt.wantStatus)

			var resp dto.ErrorResponse
			testutil.ParseJSONResponse(t, rr, &resp)
			assert.Contains(t, resp.Error, tt.wantError)
		})
	}
}

func TestQueryHandler_ListFollowupsUnknownParent(t *testing.T) {
	router, _ := setupQueryTestRouter(t)

	rr := serve(router, httptest.NewRequest(http.MethodGet, "/api/queries/999/followups", nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestQueryHandler_Statistics(t *testing.T) {
	router, ts := setupQueryTestRouter(t)
	q := testutil.CreateTestQuery(t, ts.db, "x", "0 9 * * *")
	r := testutil.CreateTestResult(t, ts.db, q.ID, "x", "y", time.Now())
	require.NoError(t, ts.db.Model(r).Update("google_doc_id", "doc-1").Error)

	rr := serve(router, httptest.NewRequest(http.MethodGet, "/api/statistics", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var stats repository.Stats
	testutil.ParseJSONResponse(t, rr, &stats)
	assert.EqualValues(t, 1, stats.ScheduledQueries)
	assert.EqualValues(t, 1, stats.DocumentsCreated)
	assert.EqualValues(t, 1, stats.CompletedToday)
}

// brokenService fails every storage call.
type brokenService struct {
	handlers.QueryService
}

func (brokenService) ListActive(context.Context) ([]models.ScheduledQuery, error) {
	return nil, &repository.StorageError{Op: "list active queries", Err: errors.New("disk full")}
}

func (brokenService) Stats(context.Context) (*repository.Stats, error) {
	return nil, &repository.StorageError{Op: "count queries", Err: errors.New("disk full")}
}

func TestQueryHandler_StorageErrors(t *testing.T) {
	router := newQueryRouter(brokenService{})

	tests := []struct {
		path      string
		wantError string
	}{
		{"/api/queries", "Failed to get queries"},
		{"/api/statistics", "Failed to get statistics"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := serve(router, httptest.NewRequest(http.MethodGet, tt.path, nil))
			testutil.AssertStatus(t, rr, http.StatusInternalServerError)

			var resp dto.ErrorResponse
			testutil.ParseJSONResponse(t, rr, &resp)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.NotContains(t, rr.Body.String(), "disk full")
		})
	}
}
