package repositories

import (
	"context"

	"tripbuilder/crmsync/internal/models/gorm"

	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VendorRepo handles vendors table operations
type VendorRepo struct {
	db *gormlib.DB
}

// NewVendorRepo creates a new vendor repository
func NewVendorRepo(db *gormlib.DB) *VendorRepo {
	return &VendorRepo{db: db}
}

// ActiveNames returns active vendor names in alphabetical order.
func (r *VendorRepo) ActiveNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&gorm.Vendor{}).
		Where("is_active = ?", true).
		Order("name").
		Pluck("name", &names).Error
	return names, err
}

// EnsureNames inserts any names not already present and returns how many were added.
func (r *VendorRepo) EnsureNames(ctx context.Context, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}

	vendors := make([]gorm.Vendor, 0, len(names))
	for _, n := range names {
		vendors = append(vendors, gorm.Vendor{Name: n, IsActive: true})
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(&vendors)
	return int(res.RowsAffected), res.Error
}
