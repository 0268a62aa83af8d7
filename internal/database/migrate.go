package database

import (
	"fmt"
	"time"

	"github.com/hugh/go-scout/internal/database/models"
	"gorm.io/gorm"
)

// LatestVersion is the schema version the application code expects.
const LatestVersion = 2

type migration struct {
	version int
	name    string
	up      func(tx *gorm.DB) error
}

var migrations = []migration{
	{version: 1, name: "create_queries_and_results", up: createBaseTables},
	{version: 2, name: "add_followup_relationships", up: addFollowupColumns},
}

// Migrate brings the schema to LatestVersion.
func Migrate(db *gorm.DB) error {
	return MigrateTo(db, LatestVersion)
}

// MigrateTo applies every pending migration up to and including target. Each step
// is idempotent so databases created before versioning (where the tables already
// exist, possibly with some columns) are adopted without errors.
func MigrateTo(db *gorm.DB, target int) error {
	if err := db.AutoMigrate(&models.SchemaMigration{}); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	var applied []models.SchemaMigration
	if err := db.Find(&applied).Error; err != nil {
		return fmt.Errorf("reading schema_migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	for _, m := range migrations {
		if m.version > target || done[m.version] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.up(tx); err != nil {
				return err
			}
			return tx.Create(&models.SchemaMigration{
				Version:   m.version,
				Name:      m.name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration, 0 for an empty database.
func SchemaVersion(db *gorm.DB) (int, error) {
	if !db.Migrator().HasTable(&models.SchemaMigration{}) {
		return 0, nil
	}
	var version int
	err := db.Model(&models.SchemaMigration{}).Select("COALESCE(MAX(version), 0)").Scan(&version).Error
	return version, err
}

// HasFollowupColumns reports whether scheduled_queries carries the relationship
// columns introduced by version 2.
func HasFollowupColumns(db *gorm.DB) bool {
	m := db.Migrator()
	for _, field := range followupFields {
		if !m.HasColumn(&models.ScheduledQuery{}, field) {
			return false
		}
	}
	return true
}

// HasResultFollowupColumn reports whether query_results carries
// follow_up_scheduled. Adopted stores may have upgraded one table but not the
// other.
func HasResultFollowupColumn(db *gorm.DB) bool {
	return db.Migrator().HasColumn(&models.ExecutionResult{}, "FollowUpScheduled")
}

var followupFields = []string{"ParentQueryID", "IsFollowup", "FollowupDelayMinutes", "AutoTriggered"}

// Version 1 tables, frozen as they were before follow-ups existed.
type scheduledQueryV1 struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	QueryText      string `gorm:"type:text;not null"`
	ScheduleCron   string `gorm:"column:schedule_cron;size:100;not null"`
	DateRangeStart *string
	DateRangeEnd   *string
	WebsiteFilters *string
	GoogleFolderID *string `gorm:"column:google_folder_id"`
	Status         string  `gorm:"size:20;default:'active';index"`
	CreatedAt      time.Time
}

func (scheduledQueryV1) TableName() string { return "scheduled_queries" }

type queryResultV1 struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement"`
	QueryID            uint      `gorm:"index;not null"`
	ExecutionTimestamp time.Time `gorm:"index"`
	Results            string    `gorm:"type:text"`
	GoogleDocID        *string
	Status             string `gorm:"size:20;default:'completed'"`
}

func (queryResultV1) TableName() string { return "query_results" }

func createBaseTables(tx *gorm.DB) error {
	m := tx.Migrator()
	for _, table := range []interface{}{&scheduledQueryV1{}, &queryResultV1{}} {
		if m.HasTable(table) {
			continue
		}
		if err := m.CreateTable(table); err != nil {
			return err
		}
	}
	return nil
}

func addFollowupColumns(tx *gorm.DB) error {
	m := tx.Migrator()
	for _, field := range followupFields {
		if m.HasColumn(&models.ScheduledQuery{}, field) {
			continue
		}
		if err := m.AddColumn(&models.ScheduledQuery{}, field); err != nil {
			return fmt.Errorf("adding %s: %w", field, err)
		}
	}
	if !m.HasIndex(&models.ScheduledQuery{}, "ParentQueryID") {
		if err := m.CreateIndex(&models.ScheduledQuery{}, "ParentQueryID"); err != nil {
			return fmt.Errorf("indexing parent_query_id: %w", err)
		}
	}
	if !m.HasColumn(&models.ExecutionResult{}, "FollowUpScheduled") {
		if err := m.AddColumn(&models.ExecutionResult{}, "FollowUpScheduled"); err != nil {
			return fmt.Errorf("adding follow_up_scheduled: %w", err)
		}
	}
	return nil
}
