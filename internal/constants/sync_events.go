package constants

// Sync run kinds recorded in the sync_runs table
const (
	SyncKindImportBooking  = "import_booking"
	SyncKindImportMember   = "import_member"
	SyncKindImportContacts = "import_contacts"
	SyncKindPushBatch      = "push_batch"
	SyncKindFullSync       = "full_sync"
)

// Sync run statuses
const (
	SyncStatusInProgress = "in_progress"
	SyncStatusSuccess    = "success"
	SyncStatusPartial    = "partial"
	SyncStatusFailed     = "failed"
)

// ResourceKind names a remote record family. Booking and Member map to
// pipelines, Profile to contacts.
type ResourceKind string

const (
	ResourceBooking ResourceKind = "booking"
	ResourceMember  ResourceKind = "member"
	ResourceProfile ResourceKind = "profile"
)

// Local tables that carry mapped remote fields
const (
	TableBookings = "bookings"
	TableMembers  = "members"
)

// TableFor returns the local table a record kind is mirrored into.
func TableFor(kind ResourceKind) string {
	switch kind {
	case ResourceBooking:
		return TableBookings
	case ResourceMember:
		return TableMembers
	}
	return ""
}

// ContactTagMember is attached to contacts created for members
const ContactTagMember = "trip-passenger"

// ProvisionalMemberPrefix marks member ids assigned locally before the first push
const ProvisionalMemberPrefix = "local:"
