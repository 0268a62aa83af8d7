package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hugh/go-scout/internal/database/models"
	"github.com/hugh/go-scout/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeGoogle serves the handful of Drive and Docs endpoints the exporter uses.
type fakeGoogle struct {
	mu            sync.Mutex
	folders       []string
	created       []string
	batches       int
	moved         map[string]string
	failDocCreate bool
	lastListQuery string
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/drive/v3/files":
		f.lastListQuery = r.URL.Query().Get("q")
		files := []map[string]string{}
		if strings.Contains(f.lastListQuery, "in parents") {
			files = append(files, map[string]string{"id": "doc-old", "name": "Old - 2026-10-14", "modifiedTime": "2026-10-14T09:00:00Z", "webViewLink": "https://docs.google.com/document/d/doc-old/edit"})
		} else {
			for _, id := range f.folders {
				files = append(files, map[string]string{"id": id, "name": "Results"})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": files})

	case r.Method == http.MethodPost && r.URL.Path == "/drive/v3/files":
		id := fmt.Sprintf("folder-%d", len(f.folders)+1)
		f.folders = append(f.folders, id)
		fmt.Fprintf(w, `{"id":%q}`, id)

	case r.Method == http.MethodPost && r.URL.Path == "/v1/documents":
		if f.failDocCreate {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"code":403,"message":"insufficient scopes"}}`)
			return
		}
		var doc struct {
			Title string `json:"title"`
		}
		_ = json.NewDecoder(r.Body).Decode(&doc)
		f.created = append(f.created, doc.Title)
		fmt.Fprintf(w, `{"documentId":"doc-%d","title":%q}`, len(f.created), doc.Title)

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":batchUpdate"):
		f.batches++
		fmt.Fprint(w, `{"documentId":"doc-1"}`)

	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/drive/v3/files/"):
		if f.moved == nil {
			f.moved = map[string]string{}
		}
		f.moved[strings.TrimPrefix(r.URL.Path, "/drive/v3/files/")] = r.URL.Query().Get("addParents")
		fmt.Fprint(w, `{"id":"doc-1"}`)

	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

func newTestExporter(t *testing.T, fake *fakeGoogle) *GoogleExporter {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	e, err := newGoogleExporter(context.Background(), "Query Scheduler Results", util.NopLogger(),
		[]option.ClientOption{option.WithEndpoint(srv.URL + "/drive/v3/"), option.WithHTTPClient(srv.Client())},
		[]option.ClientOption{option.WithEndpoint(srv.URL + "/"), option.WithHTTPClient(srv.Client())},
	)
	require.NoError(t, err)
	e.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	return e
}

func TestEnsureFolder_CreatesOnceThenCaches(t *testing.T) {
	fake := &fakeGoogle{}
	e := newTestExporter(t, fake)

	id, err := e.EnsureFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "folder-1", id)
	assert.Contains(t, fake.lastListQuery, "name='Query Scheduler Results'")

	id, err = e.EnsureFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "folder-1", id)
	assert.Len(t, fake.folders, 1)
}

func TestEnsureFolder_ReusesExisting(t *testing.T) {
	fake := &fakeGoogle{folders: []string{"existing"}}
	e := newTestExporter(t, fake)

	id, err := e.EnsureFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "existing", id)
	assert.Len(t, fake.folders, 1)
}

func TestExport(t *testing.T) {
	fake := &fakeGoogle{}
	e := newTestExporter(t, fake)

	q := &models.ScheduledQuery{Base: models.Base{ID: 4}, QueryText: "AMD outlook"}
	doc, err := e.Export(context.Background(), q, &models.ResultPayload{Query: "AMD outlook", Content: "## Summary\nok"})
	require.NoError(t, err)

	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "AMD outlook - 2026-10-15", doc.Title)
	assert.Equal(t, "https://docs.google.com/document/d/doc-1/edit", doc.URL)
	assert.Equal(t, []string{"AMD outlook - 2026-10-15"}, fake.created)
	assert.Equal(t, 1, fake.batches)
	assert.Equal(t, "folder-1", fake.moved["doc-1"])
}

func TestExport_APIFailure(t *testing.T) {
	fake := &fakeGoogle{failDocCreate: true}
	e := newTestExporter(t, fake)

	_, err := e.Export(context.Background(), &models.ScheduledQuery{QueryText: "x"}, &models.ResultPayload{Content: "y"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExport))
	assert.Empty(t, fake.moved)
}

func TestListRecentAndPing(t *testing.T) {
	fake := &fakeGoogle{folders: []string{"f1"}}
	e := newTestExporter(t, fake)

	docs, err := e.ListRecent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-old", docs[0].ID)
	assert.Contains(t, fake.lastListQuery, "'f1' in parents")

	assert.NoError(t, e.Ping(context.Background()))
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `Bob\'s \\ folder`, escapeQuery(`Bob's \ folder`))
}
