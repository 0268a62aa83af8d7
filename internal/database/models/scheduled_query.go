package models

// QueryStatus controls whether a query participates in listing and scheduling.
type QueryStatus string

const (
	QueryStatusActive   QueryStatus = "active"
	QueryStatusInactive QueryStatus = "inactive"
)

// ScheduledQuery is a recurring research prompt.
type ScheduledQuery struct {
	Base
	QueryText      string      `gorm:"type:text;not null" json:"query_text"`
	CronExpr       string      `gorm:"column:schedule_cron;size:100;not null" json:"schedule_cron"` // e.g. "0 9 * * *"
	DateRangeStart *string     `json:"date_range_start"`
	DateRangeEnd   *string     `json:"date_range_end"`
	WebsiteFilters *string     `json:"website_filters"` // e.g. "site:reuters.com OR site:ft.com"
	ExportFolderID *string     `gorm:"column:google_folder_id" json:"google_folder_id,omitempty"`
	Status         QueryStatus `gorm:"size:20;default:'active';index" json:"status"`

	// Follow-up linkage. Added by schema version 2; see database.Migrate.
	ParentQueryID        *uint `gorm:"index" json:"parent_query_id"`
	IsFollowup           bool  `gorm:"default:false" json:"is_followup"`
	FollowupDelayMinutes *int  `json:"followup_delay_minutes,omitempty"`
	AutoTriggered        bool  `gorm:"default:false" json:"auto_triggered"`
}

func (ScheduledQuery) TableName() string {
	return "scheduled_queries"
}

// IsActive reports whether the query should be listed and scheduled.
func (q *ScheduledQuery) IsActive() bool {
	return q.Status == "" || q.Status == QueryStatusActive
}
