package gorm

import "time"

// FieldMapEntry persists one remote field to local column mapping. Discovery
// writes these rows; sync only reads them.
type FieldMapEntry struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement"`
	RemoteFieldID  string    `gorm:"column:remote_field_id;type:varchar(100);uniqueIndex;not null"`
	RemoteFieldKey string    `gorm:"column:remote_field_key;type:varchar(255);not null"`
	LocalTable     string    `gorm:"column:local_table;type:varchar(100);not null;uniqueIndex:idx_field_map_local"`
	LocalColumn    string    `gorm:"column:local_column;type:varchar(100);not null;uniqueIndex:idx_field_map_local"`
	ValueType      string    `gorm:"column:value_type;type:varchar(30);not null"`
	RemoteDataType string    `gorm:"column:remote_data_type;type:varchar(50)"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (FieldMapEntry) TableName() string {
	return "field_map_entries"
}
