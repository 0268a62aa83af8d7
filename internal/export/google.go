// Package export writes execution results to Google Docs inside a Drive folder.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hugh/go-scout/internal/database/models"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// ErrExport wraps every failure talking to the export API.
var ErrExport = errors.New("export failed")

const (
	folderMimeType   = "application/vnd.google-apps.folder"
	documentMimeType = "application/vnd.google-apps.document"
)

// Document identifies an exported result.
type Document struct {
	ID    string `json:"documentId"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type RecentDocument struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modifiedTime"`
	WebViewLink  string `json:"webViewLink"`
}

type GoogleExporter struct {
	drive      *drive.Service
	docs       *docs.Service
	folderName string
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	folderID string
}

// NewGoogleExporter builds Drive and Docs clients on top of an authorized
// HTTP client (see HTTPClient).
func NewGoogleExporter(ctx context.Context, client *http.Client, folderName string, logger *slog.Logger) (*GoogleExporter, error) {
	return newGoogleExporter(ctx, folderName, logger,
		[]option.ClientOption{option.WithHTTPClient(client)},
		[]option.ClientOption{option.WithHTTPClient(client)},
	)
}

func newGoogleExporter(ctx context.Context, folderName string, logger *slog.Logger, driveOpts, docsOpts []option.ClientOption) (*GoogleExporter, error) {
	driveSvc, err := drive.NewService(ctx, driveOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive client: %w", err)
	}
	docsSvc, err := docs.NewService(ctx, docsOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating docs client: %w", err)
	}

	return &GoogleExporter{
		drive:      driveSvc,
		docs:       docsSvc,
		folderName: folderName,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// EnsureFolder finds the results folder by name or creates it. The id is
// cached after the first success.
func (e *GoogleExporter) EnsureFolder(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.folderID != "" {
		return e.folderID, nil
	}

	q := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(e.folderName), folderMimeType)
	list, err := e.drive.Files.List().Q(q).Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: listing folders: %w", ErrExport, err)
	}

	if len(list.Files) > 0 {
		e.folderID = list.Files[0].Id
		e.logger.Debug("using existing export folder", "folder_id", e.folderID)
		return e.folderID, nil
	}

	folder, err := e.drive.Files.Create(&drive.File{Name: e.folderName, MimeType: folderMimeType}).
		Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: creating folder: %w", ErrExport, err)
	}
	e.folderID = folder.Id
	e.logger.Info("created export folder", "folder_id", e.folderID, "name", e.folderName)
	return e.folderID, nil
}

// Export creates "<query> - YYYY-MM-DD", fills it with the formatted result and
// files it in the results folder.
func (e *GoogleExporter) Export(ctx context.Context, q *models.ScheduledQuery, p *models.ResultPayload) (*Document, error) {
	folderID, err := e.EnsureFolder(ctx)
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("%s - %s", q.QueryText, e.now().UTC().Format("2006-01-02"))
	doc, err := e.docs.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: creating document: %w", ErrExport, err)
	}

	reqs := BuildRequests(p, time.Local)
	if len(reqs) > 0 {
		_, err = e.docs.Documents.BatchUpdate(doc.DocumentId, &docs.BatchUpdateDocumentRequest{Requests: reqs}).
			Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("%w: writing document %s: %w", ErrExport, doc.DocumentId, err)
		}
	}

	_, err = e.drive.Files.Update(doc.DocumentId, &drive.File{}).
		AddParents(folderID).
		Fields("id, parents").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: moving document %s: %w", ErrExport, doc.DocumentId, err)
	}

	e.logger.Info("exported result", "query_id", q.ID, "document_id", doc.DocumentId, "title", title)
	return &Document{
		ID:    doc.DocumentId,
		Title: title,
		URL:   fmt.Sprintf("https://docs.google.com/document/d/%s/edit", doc.DocumentId),
	}, nil
}

// ListRecent returns the most recently modified documents in the results folder.
func (e *GoogleExporter) ListRecent(ctx context.Context, limit int64) ([]RecentDocument, error) {
	folderID, err := e.EnsureFolder(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	q := fmt.Sprintf("'%s' in parents and mimeType='%s' and trashed=false", folderID, documentMimeType)
	list, err := e.drive.Files.List().
		Q(q).
		OrderBy("modifiedTime desc").
		PageSize(limit).
		Fields("files(id, name, modifiedTime, webViewLink)").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: listing documents: %w", ErrExport, err)
	}

	out := make([]RecentDocument, 0, len(list.Files))
	for _, f := range list.Files {
		out = append(out, RecentDocument{
			ID:           f.Id,
			Name:         f.Name,
			ModifiedTime: f.ModifiedTime,
			WebViewLink:  f.WebViewLink,
		})
	}
	return out, nil
}

func (e *GoogleExporter) Ping(ctx context.Context) error {
	if _, err := e.drive.Files.List().PageSize(1).Fields("files(id, name)").Context(ctx).Do(); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	return nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
