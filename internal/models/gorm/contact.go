package gorm

import "time"

// Contact caches a remote contact. The remote is authoritative for identity.
type Contact struct {
	ID         string   `gorm:"column:id;primaryKey;type:varchar(100)"`
	FirstName  *string  `gorm:"column:first_name;type:varchar(100)"`
	LastName   *string  `gorm:"column:last_name;type:varchar(100)"`
	Email      *string  `gorm:"column:email;type:varchar(150);uniqueIndex"`
	Phone      *string  `gorm:"column:phone;type:varchar(30)"`
	Address    *string  `gorm:"column:address;type:varchar(255)"`
	City       *string  `gorm:"column:city;type:varchar(100)"`
	State      *string  `gorm:"column:state;type:varchar(100)"`
	PostalCode *string  `gorm:"column:postal_code;type:varchar(20)"`
	Country    *string  `gorm:"column:country;type:varchar(100)"`
	Tags       []string `gorm:"column:tags;type:text;serializer:json"`

	LastSyncedAt *time.Time `gorm:"column:last_synced_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Contact) TableName() string {
	return "contacts"
}
