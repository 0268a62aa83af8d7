package models

import "time"

// Base model with an auto-incrementing primary key. Rows are hard-deleted, so
// there is no soft-delete column.
type Base struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
}
