package gorm

import (
	"strconv"

	"tripbuilder/crmsync/internal/constants"
)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (b *Booking) ResourceKind() constants.ResourceKind { return constants.ResourceBooking }
func (b *Booking) LocalID() string                      { return strconv.FormatUint(uint64(b.ID), 10) }
func (b *Booking) RemoteID() string                     { return deref(b.RemoteRecordID) }
func (b *Booking) RecordName() string                   { return b.Name }
func (b *Booking) Stage() string                        { return deref(b.StageID) }
func (b *Booking) Contact() string                      { return deref(b.ContactID) }

func (m *Member) ResourceKind() constants.ResourceKind { return constants.ResourceMember }
func (m *Member) LocalID() string                      { return m.ID }
func (m *Member) RecordName() string                   { return m.DisplayName() }
func (m *Member) Stage() string                        { return deref(m.StageID) }
func (m *Member) Contact() string                      { return deref(m.ContactID) }

// RemoteID is empty while the member still carries a provisional id.
func (m *Member) RemoteID() string {
	if m.IsProvisional() {
		return ""
	}
	return m.ID
}
