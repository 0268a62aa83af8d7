package dto

import (
	"strings"
	"time"

	"github.com/hugh/go-scout/internal/api/validation"
	"github.com/hugh/go-scout/internal/database/models"
	"github.com/hugh/go-scout/internal/queries"
	"github.com/hugh/go-scout/pkg/util"
)

const maxQueryTextLength = 4000

// CreateQueryRequest is the body of POST /api/queries and, without
// schedule_cron, of POST /api/queries/{id}/followup.
type CreateQueryRequest struct {
	QueryText      string `json:"query_text"`
	ScheduleCron   string `json:"schedule_cron"`
	DateRangeStart string `json:"date_range_start"`
	DateRangeEnd   string `json:"date_range_end"`
	WebsiteFilters string `json:"website_filters"`
}

// Validate returns field errors keyed by JSON name. requireSchedule is false
// for follow-ups, whose schedule is derived from the parent.
func (r *CreateQueryRequest) Validate(requireSchedule bool) map[string]string {
	errs := make(map[string]string)

	text := strings.TrimSpace(r.QueryText)
	switch {
	case text == "":
		errs["query_text"] = "query_text is required"
	case len(text) > maxQueryTextLength:
		errs["query_text"] = "query_text is too long"
	}

	if requireSchedule {
		if err := util.ValidateCronExpr(strings.TrimSpace(r.ScheduleCron)); err != nil {
			errs["schedule_cron"] = err.Error()
		}
	}

	if s := strings.TrimSpace(r.DateRangeStart); s != "" && !validation.IsValidDate(s) {
		errs["date_range_start"] = "expected YYYY-MM-DD"
	}
	if s := strings.TrimSpace(r.DateRangeEnd); s != "" && !validation.IsValidDate(s) {
		errs["date_range_end"] = "expected YYYY-MM-DD"
	}

	if err := validation.ValidateWebsiteFilters(r.WebsiteFilters); err != nil {
		errs["website_filters"] = err.Error()
	}

	return errs
}

func (r *CreateQueryRequest) Input() queries.QueryInput {
	return queries.QueryInput{
		QueryText:      validation.SanitizeString(r.QueryText),
		CronExpr:       r.ScheduleCron,
		DateRangeStart: r.DateRangeStart,
		DateRangeEnd:   r.DateRangeEnd,
		WebsiteFilters: r.WebsiteFilters,
	}
}

type CreateQueryResponse struct {
	Success bool `json:"success"`
	QueryID uint `json:"queryId"`
}

type CreateFollowupResponse struct {
	Success    bool   `json:"success"`
	FollowupID uint   `json:"followupId"`
	Message    string `json:"message"`
}

type ExecuteResponse struct {
	Success bool                 `json:"success"`
	Results models.ResultPayload `json:"results"`
}

// QueryResponse is a scheduled query as listed by the API. NextRunAt is a
// unix timestamp, omitted when the schedule cannot be evaluated.
type QueryResponse struct {
	models.ScheduledQuery
	NextRunAt *int64 `json:"next_run_at,omitempty"`
}

func ToQueryResponse(q models.ScheduledQuery, now time.Time) QueryResponse {
	resp := QueryResponse{ScheduledQuery: q}
	if next, err := util.NextCronTime(q.CronExpr, now); err == nil {
		unix := next.Unix()
		resp.NextRunAt = &unix
	}
	return resp
}
