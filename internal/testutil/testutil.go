package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hugh/go-scout/internal/database"
	"github.com/hugh/go-scout/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database at the latest schema version.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return setupDB(t, database.LatestVersion)
}

// SetupLegacyTestDB creates an in-memory SQLite database without the follow-up
// relationship columns.
func SetupLegacyTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return setupDB(t, 1)
}

func setupDB(t *testing.T, version int) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Every pooled connection to ":memory:" would be a separate database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.MigrateTo(db, version); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { CleanupTestDB(t, db) })
	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := database.Close(db); err != nil {
		t.Logf("warning: failed to close test database: %v", err)
	}
}

// CreateTestQuery inserts an active query with the given schedule.
func CreateTestQuery(t *testing.T, db *gorm.DB, text, cronExpr string) *models.ScheduledQuery {
	t.Helper()

	q := &models.ScheduledQuery{
		QueryText: text,
		CronExpr:  cronExpr,
		Status:    models.QueryStatusActive,
	}
	if err := db.Create(q).Error; err != nil {
		t.Fatalf("failed to create test query: %v", err)
	}
	return q
}

// CreateTestFollowup inserts a follow-up of parent, bypassing the workflow.
func CreateTestFollowup(t *testing.T, db *gorm.DB, parent *models.ScheduledQuery, text, cronExpr string) *models.ScheduledQuery {
	t.Helper()

	delay := 5
	q := &models.ScheduledQuery{
		QueryText:            text,
		CronExpr:             cronExpr,
		Status:               models.QueryStatusActive,
		ParentQueryID:        &parent.ID,
		IsFollowup:           true,
		FollowupDelayMinutes: &delay,
	}
	if err := db.Create(q).Error; err != nil {
		t.Fatalf("failed to create test follow-up: %v", err)
	}
	return q
}

// CreateTestResult inserts a completed result for queryID executed at executedAt.
func CreateTestResult(t *testing.T, db *gorm.DB, queryID uint, question, content string, executedAt time.Time) *models.ExecutionResult {
	t.Helper()

	r := &models.ExecutionResult{
		QueryID:    queryID,
		ExecutedAt: executedAt.UTC(),
		Status:     models.ResultStatusCompleted,
		Payload: models.ResultPayload{
			Query:     question,
			Timestamp: executedAt.UTC(),
			Content:   content,
		},
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("failed to create test result: %v", err)
	}
	return r
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// JSONRequest creates an HTTP request with a JSON body
func JSONRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
