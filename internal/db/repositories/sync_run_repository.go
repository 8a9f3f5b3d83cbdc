package repositories

import (
	"context"

	"tripbuilder/crmsync/internal/models/gorm"

	gormlib "gorm.io/gorm"
)

// SyncRunRepo handles the sync_runs ledger
type SyncRunRepo struct {
	db *gormlib.DB
}

// NewSyncRunRepo creates a new sync run repository
func NewSyncRunRepo(db *gormlib.DB) *SyncRunRepo {
	return &SyncRunRepo{db: db}
}

// Create inserts a new run and assigns its id.
func (r *SyncRunRepo) Create(ctx context.Context, run *gorm.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Save overwrites an existing run.
func (r *SyncRunRepo) Save(ctx context.Context, run *gorm.SyncRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// FindByID returns nil, nil when the run does not exist.
func (r *SyncRunRepo) FindByID(ctx context.Context, id string) (*gorm.SyncRun, error) {
	var run gorm.SyncRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if err == gormlib.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// GetRecent returns the newest runs, optionally filtered by kind.
func (r *SyncRunRepo) GetRecent(ctx context.Context, kind string, limit int) ([]gorm.SyncRun, error) {
	var out []gorm.SyncRun
	q := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	err := q.Find(&out).Error
	return out, err
}

// GetLastWithStatus returns the newest run of kind in status, or nil, nil.
func (r *SyncRunRepo) GetLastWithStatus(ctx context.Context, kind, status string) (*gorm.SyncRun, error) {
	var run gorm.SyncRun
	err := r.db.WithContext(ctx).
		Where("kind = ? AND status = ?", kind, status).
		Order("started_at DESC").
		First(&run).Error
	if err != nil {
		if err == gormlib.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}
