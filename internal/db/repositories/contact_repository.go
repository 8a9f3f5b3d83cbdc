package repositories

import (
	"context"
	"strings"

	"tripbuilder/crmsync/internal/models/gorm"

	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactRepo handles the local contact cache
type ContactRepo struct {
	db *gormlib.DB
}

// NewContactRepo creates a new contact repository
func NewContactRepo(db *gormlib.DB) *ContactRepo {
	return &ContactRepo{db: db}
}

// Upsert writes a contact keyed by its remote id.
func (r *ContactRepo) Upsert(ctx context.Context, c *gorm.Contact) error {
	if c.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*c.Email))
		c.Email = &email
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"first_name", "last_name", "email", "phone", "address",
				"city", "state", "postal_code", "country", "tags",
				"last_synced_at", "updated_at",
			}),
		}).
		Create(c).Error
}

// ExistingIDs returns which of the given ids are already cached.
func (r *ContactRepo) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var found []string
	err := r.db.WithContext(ctx).
		Model(&gorm.Contact{}).
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

// FindByID returns nil, nil when the contact is not cached.
func (r *ContactRepo) FindByID(ctx context.Context, id string) (*gorm.Contact, error) {
	var c gorm.Contact
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if err == gormlib.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// FindByEmail matches case-insensitively. Returns nil, nil when not cached.
func (r *ContactRepo) FindByEmail(ctx context.Context, email string) (*gorm.Contact, error) {
	var c gorm.Contact
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&c).Error
	if err != nil {
		if err == gormlib.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Count returns the number of cached contacts.
func (r *ContactRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&gorm.Contact{}).Count(&n).Error
	return n, err
}
