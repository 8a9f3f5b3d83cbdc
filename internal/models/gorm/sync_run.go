package gorm

import (
	"time"

	"github.com/google/uuid"
	gormlib "gorm.io/gorm"
)

// SyncRun is one ledger row per bulk import or scheduled push batch.
type SyncRun struct {
	ID             string         `gorm:"column:id;primaryKey;type:varchar(36)"`
	Kind           string         `gorm:"column:kind;type:varchar(50);not null;index"`
	Status         string         `gorm:"column:status;type:varchar(20);not null;index"`
	StartedAt      time.Time      `gorm:"column:started_at;not null"`
	CompletedAt    *time.Time     `gorm:"column:completed_at"`
	Pages          int            `gorm:"column:pages;not null;default:0"`
	RecordsFetched int            `gorm:"column:records_fetched;not null;default:0"`
	RecordsCreated int            `gorm:"column:records_created;not null;default:0"`
	RecordsUpdated int            `gorm:"column:records_updated;not null;default:0"`
	RecordsFailed  int            `gorm:"column:records_failed;not null;default:0"`
	RecordsSkipped int            `gorm:"column:records_skipped;not null;default:0"`
	Counts         map[string]int `gorm:"column:counts;type:text;serializer:json"`
	ErrorText      *string        `gorm:"column:error_text;type:text"`
	DurationMs     int64          `gorm:"column:duration_ms;not null;default:0"`
}

// TableName specifies the table name for GORM
func (SyncRun) TableName() string {
	return "sync_runs"
}

func (r *SyncRun) BeforeCreate(tx *gormlib.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
