package gorm

import (
	"time"

	"github.com/google/uuid"
	gormlib "gorm.io/gorm"
)

// Booking is the local copy of a record in the booking pipeline.
type Booking struct {
	ID             uint    `gorm:"column:id;primaryKey;autoIncrement"`
	PublicID       string  `gorm:"column:public_id;type:varchar(36);uniqueIndex;not null"`
	Name           string  `gorm:"column:name;type:varchar(255);not null"`
	StageID        *string `gorm:"column:stage_id;type:varchar(100)"`
	ContactID      *string `gorm:"column:contact_id;type:varchar(100)"`
	RemoteStatus   *string `gorm:"column:remote_status;type:varchar(50)"`
	RemoteRecordID *string `gorm:"column:remote_record_id;type:varchar(100);uniqueIndex"`
	PendingDelete  bool    `gorm:"column:pending_delete;not null;default:false"`

	// Mapped from remote custom fields
	Destination         *string    `gorm:"column:destination;type:varchar(255)"`
	TripDescription     *string    `gorm:"column:trip_description;type:text"`
	ArrivalDate         *time.Time `gorm:"column:arrival_date;type:date"`
	ReturnDate          *time.Time `gorm:"column:return_date;type:date"`
	DepositDate         *time.Time `gorm:"column:deposit_date;type:date"`
	FinalPaymentDate    *time.Time `gorm:"column:final_payment_date;type:date"`
	Capacity            *int64     `gorm:"column:capacity"`
	PassengerCount      *int64     `gorm:"column:passenger_count"`
	NightsTotal         *int64     `gorm:"column:nights_total"`
	TripNumber          *int64     `gorm:"column:trip_number"`
	StandardPrice       *float64   `gorm:"column:standard_price;type:numeric(12,2)"`
	VendorName          *string    `gorm:"column:vendor_name;type:varchar(255)"`
	VendorTerms         *string    `gorm:"column:vendor_terms;type:text"`
	TravelBusinessUsed  *string    `gorm:"column:travel_business_used;type:varchar(255)"`
	TravelCategory      *string    `gorm:"column:travel_category;type:varchar(100)"`
	Lodging             *string    `gorm:"column:lodging;type:varchar(255)"`
	LodgingNotes        *string    `gorm:"column:lodging_notes;type:text"`
	InternalTripDetails *string    `gorm:"column:internal_trip_details;type:text"`

	LastSyncedAt *time.Time `gorm:"column:last_synced_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Booking) TableName() string {
	return "bookings"
}

// BeforeCreate assigns the public id used to trace the row in remote payloads.
func (b *Booking) BeforeCreate(tx *gormlib.DB) error {
	if b.PublicID == "" {
		b.PublicID = uuid.NewString()
	}
	return nil
}
