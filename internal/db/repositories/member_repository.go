package repositories

import (
	"context"
	"strings"
	"time"

	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/models/gorm"

	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemberRepo handles members table operations
type MemberRepo struct {
	db *gormlib.DB
}

// UnlinkedMember is a member without a booking reference.
type UnlinkedMember struct {
	ID          string  `gorm:"column:id"`
	Name        string  `gorm:"column:name"`
	BookingName *string `gorm:"column:booking_name"`
}

// NewMemberRepo creates a new member repository
func NewMemberRepo(db *gormlib.DB) *MemberRepo {
	return &MemberRepo{db: db}
}

// WithTx returns a repository bound to tx.
func (r *MemberRepo) WithTx(tx *gormlib.DB) *MemberRepo {
	return &MemberRepo{db: tx}
}

// Create inserts a member; members without an id get a provisional one.
func (r *MemberRepo) Create(ctx context.Context, m *gorm.Member) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Save writes every column of an existing member except booking_name, which
// is fixed once set. m.BookingName is refreshed from the stored row so what
// gets pushed matches what is stored.
func (r *MemberRepo) Save(ctx context.Context, m *gorm.Member) error {
	var stored gorm.Member
	err := r.db.WithContext(ctx).Select("id", "booking_name").Where("id = ?", m.ID).First(&stored).Error
	if err != nil && err != gormlib.ErrRecordNotFound {
		return err
	}
	if err == nil && stored.BookingName != nil && strings.TrimSpace(*stored.BookingName) != "" {
		m.BookingName = stored.BookingName
		return r.db.WithContext(ctx).Omit("booking_name").Save(m).Error
	}
	return r.db.WithContext(ctx).Save(m).Error
}

// FindByID returns nil, nil when the member does not exist.
func (r *MemberRepo) FindByID(ctx context.Context, id string) (*gorm.Member, error) {
	var m gorm.Member
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if err == gormlib.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ExistingIDs returns which of the given ids already have a row.
func (r *MemberRepo) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var found []string
	err := r.db.WithContext(ctx).
		Model(&gorm.Member{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

// UpsertByID inserts row, or on an id conflict overwrites only updateColumns.
// booking_name is never in updateColumns; an existing row only takes the
// incoming value while its own is NULL or blank.
// ON CONFLICT (id) DO UPDATE
func (r *MemberRepo) UpsertByID(ctx context.Context, row map[string]interface{}, updateColumns []string) error {
	updates := append(clause.AssignmentColumns(updateColumns), clause.Assignment{
		Column: clause.Column{Name: "booking_name"},
		Value:  gormlib.Expr("COALESCE(NULLIF(TRIM(members.booking_name), ''), excluded.booking_name)"),
	})
	return r.db.WithContext(ctx).
		Model(&gorm.Member{}).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: updates,
		}).
		Create(row).Error
}

// ReplaceID swaps a provisional id for the remote id after the first push.
func (r *MemberRepo) ReplaceID(ctx context.Context, oldID, newID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&gorm.Member{}).
		Where("id = ?", oldID).
		Updates(map[string]interface{}{
			"id":             newID,
			"last_synced_at": now,
			"updated_at":     now,
		}).Error
}

// MarkPushed stamps last_synced_at after a successful update push.
func (r *MemberRepo) MarkPushed(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&gorm.Member{}).
		Where("id = ?", id).
		Update("last_synced_at", time.Now().UTC()).Error
}

// MarkPendingDelete flags a member whose remote delete has not gone through.
func (r *MemberRepo) MarkPendingDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&gorm.Member{}).
		Where("id = ?", id).
		Update("pending_delete", true).Error
}

// Delete hard-deletes a member.
func (r *MemberRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&gorm.Member{}).Error
}

// GetUnlinked returns members without a booking reference, ordered by id.
func (r *MemberRepo) GetUnlinked(ctx context.Context) ([]UnlinkedMember, error) {
	var out []UnlinkedMember
	err := r.db.WithContext(ctx).
		Model(&gorm.Member{}).
		Select("id, name, booking_name").
		Where("booking_id IS NULL AND pending_delete = ?", false).
		Order("id").
		Scan(&out).Error
	return out, err
}

// SetBooking links a member to a booking.
func (r *MemberRepo) SetBooking(ctx context.Context, memberID string, bookingID uint) error {
	return r.db.WithContext(ctx).
		Model(&gorm.Member{}).
		Where("id = ?", memberID).
		Update("booking_id", bookingID).Error
}

// ListProvisional returns members that were never pushed.
func (r *MemberRepo) ListProvisional(ctx context.Context, limit int) ([]gorm.Member, error) {
	var out []gorm.Member
	err := r.db.WithContext(ctx).
		Where("id LIKE ? AND pending_delete = ?", constants.ProvisionalMemberPrefix+"%", false).
		Order("created_at").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListPendingDelete returns members waiting for their remote delete.
func (r *MemberRepo) ListPendingDelete(ctx context.Context, limit int) ([]gorm.Member, error) {
	var out []gorm.Member
	err := r.db.WithContext(ctx).
		Where("pending_delete = ?", true).
		Order("id").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Count returns the number of members.
func (r *MemberRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&gorm.Member{}).Count(&n).Error
	return n, err
}

// CountWithoutContact counts members whose contact is not in the local cache.
func (r *MemberRepo) CountWithoutContact(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&gorm.Member{}).
		Where("contact_id IS NOT NULL AND contact_id NOT IN (?)",
			r.db.Model(&gorm.Contact{}).Select("id")).
		Count(&n).Error
	return n, err
}

// ListMissingBookingName returns pushed members whose booking name is NULL or
// blank, ordered by id.
func (r *MemberRepo) ListMissingBookingName(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	q := r.db.WithContext(ctx).
		Model(&gorm.Member{}).
		Where("(booking_name IS NULL OR TRIM(booking_name) = '') AND id NOT LIKE ? AND pending_delete = ?",
			constants.ProvisionalMemberPrefix+"%", false).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Pluck("id", &ids).Error
	return ids, err
}
