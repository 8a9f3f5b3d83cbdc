package repositories

import (
	"context"
	"time"

	"tripbuilder/crmsync/internal/models/gorm"

	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookingRepo handles bookings table operations
type BookingRepo struct {
	db *gormlib.DB
}

// BookingName is the slice of a booking the link pass needs.
type BookingName struct {
	ID   uint   `gorm:"column:id"`
	Name string `gorm:"column:name"`
}

// NewBookingRepo creates a new booking repository
func NewBookingRepo(db *gormlib.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

// WithTx returns a repository bound to tx.
func (r *BookingRepo) WithTx(tx *gormlib.DB) *BookingRepo {
	return &BookingRepo{db: tx}
}

// Create inserts a booking and assigns its primary key.
func (r *BookingRepo) Create(ctx context.Context, b *gorm.Booking) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// Save writes every column of an existing booking.
func (r *BookingRepo) Save(ctx context.Context, b *gorm.Booking) error {
	return r.db.WithContext(ctx).Save(b).Error
}

// FindByID returns nil, nil when the booking does not exist.
func (r *BookingRepo) FindByID(ctx context.Context, id uint) (*gorm.Booking, error) {
	var b gorm.Booking
	err := r.db.WithContext(ctx).First(&b, id).Error
	if err != nil {
		if err == gormlib.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// FindByRemoteID returns nil, nil when no booking carries the remote id.
func (r *BookingRepo) FindByRemoteID(ctx context.Context, remoteID string) (*gorm.Booking, error) {
	var b gorm.Booking
	err := r.db.WithContext(ctx).Where("remote_record_id = ?", remoteID).First(&b).Error
	if err != nil {
		if err == gormlib.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// ExistingRemoteIDs returns which of the given remote ids already have a row.
func (r *BookingRepo) ExistingRemoteIDs(ctx context.Context, remoteIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(remoteIDs))
	if len(remoteIDs) == 0 {
		return out, nil
	}

	var found []string
	err := r.db.WithContext(ctx).
		Model(&gorm.Booking{}).
		Where("remote_record_id IN ?", remoteIDs).
		Pluck("remote_record_id", &found).Error
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

// UpsertByRemoteID inserts row, or on a remote_record_id conflict overwrites
// only updateColumns of the existing row.
// ON CONFLICT (remote_record_id) DO UPDATE
func (r *BookingRepo) UpsertByRemoteID(ctx context.Context, row map[string]interface{}, updateColumns []string) error {
	return r.db.WithContext(ctx).
		Model(&gorm.Booking{}).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "remote_record_id"}},
			DoUpdates: clause.AssignmentColumns(updateColumns),
		}).
		Create(row).Error
}

// SetRemoteID writes back the id returned by the remote create.
func (r *BookingRepo) SetRemoteID(ctx context.Context, id uint, remoteID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&gorm.Booking{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"remote_record_id": remoteID,
			"last_synced_at":   now,
			"updated_at":       now,
		}).Error
}

// MarkPushed stamps last_synced_at after a successful update push.
func (r *BookingRepo) MarkPushed(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&gorm.Booking{}).
		Where("id = ?", id).
		Update("last_synced_at", time.Now().UTC()).Error
}

// MarkPendingDelete flags a booking whose remote delete has not gone through.
func (r *BookingRepo) MarkPendingDelete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&gorm.Booking{}).
		Where("id = ?", id).
		Update("pending_delete", true).Error
}

// Delete hard-deletes a booking and unlinks its members.
func (r *BookingRepo) Delete(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&gorm.Member{}).Where("booking_id = ?", id).Update("booking_id", nil).Error; err != nil {
		return err
	}
	return db.Delete(&gorm.Booking{}, id).Error
}

// ListUnpushed returns bookings that never received a remote id.
func (r *BookingRepo) ListUnpushed(ctx context.Context, limit int) ([]gorm.Booking, error) {
	var out []gorm.Booking
	err := r.db.WithContext(ctx).
		Where("remote_record_id IS NULL AND pending_delete = ?", false).
		Order("id").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListPendingDelete returns bookings waiting for their remote delete.
func (r *BookingRepo) ListPendingDelete(ctx context.Context, limit int) ([]gorm.Booking, error) {
	var out []gorm.Booking
	err := r.db.WithContext(ctx).
		Where("pending_delete = ?", true).
		Order("id").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListNames returns every booking id and name ordered by id.
func (r *BookingRepo) ListNames(ctx context.Context) ([]BookingName, error) {
	var out []BookingName
	err := r.db.WithContext(ctx).
		Model(&gorm.Booking{}).
		Select("id, name").
		Order("id").
		Scan(&out).Error
	return out, err
}

// Count returns the number of bookings.
func (r *BookingRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&gorm.Booking{}).Count(&n).Error
	return n, err
}
