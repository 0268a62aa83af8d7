package models

import (
	"time"

	"gorm.io/gorm"
)

type ResultStatus string

const (
	ResultStatusCompleted ResultStatus = "completed"
	ResultStatusFailed    ResultStatus = "failed"
)

// ExecutionResult is one run of a ScheduledQuery. Rows are append-only.
type ExecutionResult struct {
	ID                 uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	QueryID            uint          `gorm:"index;not null" json:"query_id"`
	ExecutedAt         time.Time     `gorm:"column:execution_timestamp;index" json:"execution_timestamp"`
	Payload            ResultPayload `gorm:"column:results;type:text;serializer:json" json:"results"`
	ExportedDocumentID *string       `gorm:"column:google_doc_id" json:"google_doc_id"`
	FollowUpScheduled  bool          `gorm:"default:false" json:"follow_up_scheduled"`
	Status             ResultStatus  `gorm:"size:20;default:'completed'" json:"status"`
}

func (ExecutionResult) TableName() string {
	return "query_results"
}

func (r *ExecutionResult) BeforeCreate(tx *gorm.DB) error {
	if r.ExecutedAt.IsZero() {
		r.ExecutedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = ResultStatusCompleted
	}
	return nil
}

// ResultPayload is the normalized answer stored with every execution.
type ResultPayload struct {
	Query     string         `json:"query"`
	Timestamp time.Time      `json:"timestamp"`
	Model     string         `json:"model,omitempty"`
	Content   string         `json:"content"`
	Usage     *Usage         `json:"usage,omitempty"`
	Citations []string       `json:"citations,omitempty"`
	Filters   ResultFilters  `json:"filters"`
	Metadata  ResultMetadata `json:"metadata"`
	Error     string         `json:"error,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ResultFilters struct {
	DateRange string `json:"date_range"`
	Websites  string `json:"websites"`
}

type ResultMetadata struct {
	ExecutionTime  time.Time `json:"execution_time"`
	QueryID        uint      `json:"query_id"`
	Schedule       string    `json:"schedule"`
	IsFollowup     bool      `json:"is_followup"`
	ParentQuestion string    `json:"parent_query,omitempty"`
}
