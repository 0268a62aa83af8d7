package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/go-scout/internal/api/dto"
	"github.com/hugh/go-scout/internal/api/middleware"
	"github.com/hugh/go-scout/internal/api/validation"
	"github.com/hugh/go-scout/internal/database/models"
	"github.com/hugh/go-scout/internal/queries"
	"github.com/hugh/go-scout/internal/repository"
)

// QueryService is the slice of *queries.Service the HTTP layer drives.
type QueryService interface {
	CreateQuery(ctx context.Context, in queries.QueryInput) (*models.ScheduledQuery, error)
	CreateFollowup(ctx context.Context, parentID uint, in queries.QueryInput) (uint, error)
	DeleteQuery(ctx context.Context, id uint) error
	Execute(ctx context.Context, id uint) (*models.ExecutionResult, error)
	ListActive(ctx context.Context) ([]models.ScheduledQuery, error)
	ListFollowups(ctx context.Context, parentID uint) ([]models.ScheduledQuery, error)
	Results(ctx context.Context, id uint) ([]models.ExecutionResult, error)
	Stats(ctx context.Context) (*repository.Stats, error)
	FollowupDelay() int
}

type QueryHandler struct {
	service QueryService
	logger  *slog.Logger
	now     func() time.Time
}

func NewQueryHandler(service QueryService, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{service: service, logger: logger, now: time.Now}
}

// List returns the active queries.
func (h *QueryHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListActive(r.Context())
	if err != nil {
		h.serverError(w, r, "Failed to get queries", err)
		return
	}

	now := h.now()
	resp := make([]dto.QueryResponse, 0, len(list))
	for _, q := range list {
		resp = append(resp, dto.ToQueryResponse(q, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *QueryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(true); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	q, err := h.service.CreateQuery(r.Context(), req.Input())
	if err != nil {
		if errors.Is(err, queries.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		h.serverError(w, r, "Failed to add query", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CreateQueryResponse{Success: true, QueryID: q.ID})
}

func (h *QueryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteQuery(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Query not found"})
			return
		}
		h.serverError(w, r, "Failed to delete query", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true, Message: "Query deleted successfully"})
}

// Results returns the execution history, newest first. History of a deleted
// query is still served.
func (h *QueryHandler) Results(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	results, err := h.service.Results(r.Context(), id)
	if err != nil {
		h.serverError(w, r, "Failed to get results", err)
		return
	}
	if results == nil {
		results = []models.ExecutionResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// Execute runs the query immediately. A failed generation still answers 200
// with the failure placeholder, as the stored result does. The run outlives a
// client disconnect so its result is always saved.
func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Execute(context.WithoutCancel(r.Context()), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Query not found"})
			return
		}
		h.serverError(w, r, "Failed to execute query", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ExecuteResponse{Success: true, Results: result.Payload})
}

func (h *QueryHandler) CreateFollowup(w http.ResponseWriter, r *http.Request) {
	parentID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req dto.CreateQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(false); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	id, err := h.service.CreateFollowup(r.Context(), parentID, req.Input())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Parent query not found"})
		case errors.Is(err, queries.ErrValidation):
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		default:
			h.serverError(w, r, "Failed to add follow-up query", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.CreateFollowupResponse{
		Success:    true,
		FollowupID: id,
		Message:    fmt.Sprintf("Follow-up query scheduled for %d minutes after its parent", h.service.FollowupDelay()),
	})
}

func (h *QueryHandler) ListFollowups(w http.ResponseWriter, r *http.Request) {
	parentID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListFollowups(r.Context(), parentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Query not found"})
			return
		}
		h.serverError(w, r, "Failed to get follow-up queries", err)
		return
	}

	now := h.now()
	resp := make([]dto.QueryResponse, 0, len(list))
	for _, q := range list {
		resp = append(resp, dto.ToQueryResponse(q, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *QueryHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.serverError(w, r, "Failed to get statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *QueryHandler) pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, ok := validation.ParseID(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query ID"})
	}
	return id, ok
}

func (h *QueryHandler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		"error", err,
		"path", r.URL.Path,
		"request_id", middleware.GetRequestID(r.Context()),
	)
	writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: msg})
}
