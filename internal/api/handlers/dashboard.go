package handlers

import (
	"html/template"
	"net/http"
	"time"

	"github.com/hugh/go-scout/internal/api/validation"
	"github.com/hugh/go-scout/pkg/util"
)

const previewLength = 120

type DashboardHandler struct {
	service   QueryService
	templates *template.Template
	now       func() time.Time
}

func NewDashboardHandler(service QueryService, templates *template.Template) *DashboardHandler {
	return &DashboardHandler{
		service:   service,
		templates: templates,
		now:       time.Now,
	}
}

type dashboardQuery struct {
	ID         uint
	Preview    string
	Schedule   string
	NextRun    string
	IsFollowup bool
	ParentID   uint
}

func (h *DashboardHandler) Index(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		http.Error(w, "Failed to load statistics", http.StatusInternalServerError)
		return
	}

	list, err := h.service.ListActive(r.Context())
	if err != nil {
		http.Error(w, "Failed to load queries", http.StatusInternalServerError)
		return
	}

	now := h.now()
	rows := make([]dashboardQuery, 0, len(list))
	for _, q := range list {
		row := dashboardQuery{
			ID:         q.ID,
			Preview:    validation.TruncateString(q.QueryText, previewLength),
			Schedule:   q.CronExpr,
			IsFollowup: q.IsFollowup,
		}
		if q.ParentQueryID != nil {
			row.ParentID = *q.ParentQueryID
		}
		if next, err := util.NextCronTime(q.CronExpr, now); err == nil {
			row.NextRun = next.Format("2006-01-02 15:04")
		}
		rows = append(rows, row)
	}

	data := map[string]interface{}{
		"Stats":         stats,
		"Queries":       rows,
		"FollowupDelay": h.service.FollowupDelay(),
	}

	h.render(w, "index.html", data)
}

func (h *DashboardHandler) render(w http.ResponseWriter, name string, data interface{}) {
	if h.templates == nil {
		http.Error(w, "Templates not loaded", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
