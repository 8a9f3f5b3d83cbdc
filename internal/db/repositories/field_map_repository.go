package repositories

import (
	"context"

	"tripbuilder/crmsync/internal/fieldmap"
	"tripbuilder/crmsync/internal/models/gorm"

	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FieldMapRepo persists the remote field to local column mapping
type FieldMapRepo struct {
	db *gormlib.DB
}

// NewFieldMapRepo creates a new field map repository
func NewFieldMapRepo(db *gormlib.DB) *FieldMapRepo {
	return &FieldMapRepo{db: db}
}

// ReplaceAll swaps the stored mapping for entries in one transaction, so the
// unique constraints never see a half-updated table.
func (r *FieldMapRepo) ReplaceAll(ctx context.Context, entries []gorm.FieldMapEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		if err := tx.Session(&gormlib.Session{AllowGlobalUpdate: true}).Delete(&gorm.FieldMapEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
}

// Upsert writes one entry keyed by its local column.
func (r *FieldMapRepo) Upsert(ctx context.Context, e *gorm.FieldMapEntry) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "local_table"}, {Name: "local_column"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"remote_field_id", "remote_field_key", "value_type", "remote_data_type", "updated_at",
			}),
		}).
		Create(e).Error
}

// GetAll returns every stored entry ordered by table and column.
func (r *FieldMapRepo) GetAll(ctx context.Context) ([]gorm.FieldMapEntry, error) {
	var out []gorm.FieldMapEntry
	err := r.db.WithContext(ctx).Order("local_table, local_column").Find(&out).Error
	return out, err
}

// LoadEntries returns the stored mapping as registry entries.
func (r *FieldMapRepo) LoadEntries(ctx context.Context) ([]fieldmap.Entry, error) {
	rows, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]fieldmap.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, fieldmap.Entry{
			RemoteFieldID:  row.RemoteFieldID,
			RemoteFieldKey: row.RemoteFieldKey,
			LocalTable:     row.LocalTable,
			LocalColumn:    row.LocalColumn,
			ValueType:      fieldmap.ValueType(row.ValueType),
		})
	}
	return entries, nil
}
