package gorm

import (
	"strings"
	"time"

	"github.com/google/uuid"
	gormlib "gorm.io/gorm"

	"tripbuilder/crmsync/internal/constants"
)

// Member is one person's enrollment in a booking, mirrored from the member
// pipeline. The primary key is the remote record id; rows created locally carry
// a provisional id until their first successful push.
type Member struct {
	ID          string  `gorm:"column:id;primaryKey;type:varchar(100)"`
	ContactID   *string `gorm:"column:contact_id;type:varchar(100);index"`
	BookingID   *uint   `gorm:"column:booking_id;index"`
	BookingName *string `gorm:"column:booking_name;type:varchar(255)"`
	StageID     *string `gorm:"column:stage_id;type:varchar(100)"`
	Name        string  `gorm:"column:name;type:varchar(255)"`
	FirstName   *string `gorm:"column:first_name;type:varchar(100)"`
	LastName    *string `gorm:"column:last_name;type:varchar(100)"`
	Email       *string `gorm:"column:email;type:varchar(150)"`
	Phone       *string `gorm:"column:phone;type:varchar(30)"`

	RemoteStatus  *string `gorm:"column:remote_status;type:varchar(50)"`
	PendingDelete bool    `gorm:"column:pending_delete;not null;default:false"`

	// Mapped from remote custom fields
	PassengerRef          *string    `gorm:"column:passenger_ref;type:varchar(100)"`
	PassengerNumber       *int64     `gorm:"column:passenger_number"`
	IsChild               *bool      `gorm:"column:is_child"`
	BirthCountry          *string    `gorm:"column:birth_country;type:varchar(100)"`
	Roommate              *string    `gorm:"column:roommate;type:varchar(255)"`
	RoomOccupancy         *string    `gorm:"column:room_occupancy;type:varchar(100)"`
	PassportNumber        *string    `gorm:"column:passport_number;type:varchar(100)"`
	PassportExpire        *time.Time `gorm:"column:passport_expire;type:date"`
	PassportFile          *string    `gorm:"column:passport_file;type:varchar(500)"`
	PassportCountry       *string    `gorm:"column:passport_country;type:varchar(100)"`
	HealthState           *string    `gorm:"column:health_state;type:text"`
	HealthMedicalInfo     *string    `gorm:"column:health_medical_info;type:text"`
	PrimaryPhysician      *string    `gorm:"column:primary_physician;type:varchar(255)"`
	PhysicianPhone        *string    `gorm:"column:physician_phone;type:varchar(50)"`
	MedicationList        *string    `gorm:"column:medication_list;type:text"`
	EmergencyLastName     *string    `gorm:"column:emergency_last_name;type:varchar(255)"`
	EmergencyFirstName    *string    `gorm:"column:emergency_first_name;type:varchar(255)"`
	EmergencyRelationship *string    `gorm:"column:emergency_relationship;type:varchar(255)"`
	EmergencyAddress      *string    `gorm:"column:emergency_address;type:varchar(255)"`
	EmergencyCity         *string    `gorm:"column:emergency_city;type:varchar(255)"`
	EmergencyState        *string    `gorm:"column:emergency_state;type:varchar(255)"`
	EmergencyZip          *string    `gorm:"column:emergency_zip;type:varchar(50)"`
	EmergencyEmail        *string    `gorm:"column:emergency_email;type:varchar(255)"`
	EmergencyPhone        *string    `gorm:"column:emergency_phone;type:varchar(50)"`
	EmergencyMobile       *string    `gorm:"column:emergency_mobile;type:varchar(50)"`
	FormSubmittedDate     *time.Time `gorm:"column:form_submitted_date;type:date"`
	TravelCategoryLicense *string    `gorm:"column:travel_category_license;type:varchar(100)"`
	PassengerSignature    *string    `gorm:"column:passenger_signature;type:varchar(500)"`
	Reservation           *string    `gorm:"column:reservation;type:varchar(500)"`
	MOU                   *string    `gorm:"column:mou;type:varchar(500)"`
	Affidavit             *string    `gorm:"column:affidavit;type:varchar(500)"`

	LastSyncedAt *time.Time `gorm:"column:last_synced_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Member) TableName() string {
	return "members"
}

// BeforeCreate gives locally created members a provisional id.
func (m *Member) BeforeCreate(tx *gormlib.DB) error {
	if m.ID == "" {
		m.ID = NewProvisionalMemberID()
	}
	return nil
}

// NewProvisionalMemberID returns an id for a member not yet pushed.
func NewProvisionalMemberID() string {
	return constants.ProvisionalMemberPrefix + uuid.NewString()
}

// IsProvisional reports whether the member has never been pushed.
func (m *Member) IsProvisional() bool {
	return strings.HasPrefix(m.ID, constants.ProvisionalMemberPrefix)
}

// DisplayName is the remote record name: "first last - booking".
func (m *Member) DisplayName() string {
	var parts []string
	if m.FirstName != nil && *m.FirstName != "" {
		parts = append(parts, *m.FirstName)
	}
	if m.LastName != nil && *m.LastName != "" {
		parts = append(parts, *m.LastName)
	}
	person := strings.Join(parts, " ")
	if person == "" {
		person = m.Name
	}

	booking := "Passenger"
	if m.BookingName != nil && strings.TrimSpace(*m.BookingName) != "" {
		booking = strings.TrimSpace(*m.BookingName)
	}
	return person + " - " + booking
}
