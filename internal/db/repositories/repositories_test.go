package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlib "gorm.io/gorm"

	"tripbuilder/crmsync/internal/db"
	"tripbuilder/crmsync/internal/models/gorm"
)

func setupTestDB(t *testing.T) *gormlib.DB {
	t.Helper()
	gdb, err := db.InitSQLiteORM(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func strPtr(s string) *string { return &s }

func bookingRow(remoteID, name string, capacity interface{}) map[string]interface{} {
	now := time.Now().UTC()
	return map[string]interface{}{
		"public_id":        uuid.NewString(),
		"name":             name,
		"remote_record_id": remoteID,
		"capacity":         capacity,
		"created_at":       now,
		"updated_at":       now,
	}
}

func TestBookingRepo_UpsertByRemoteID(t *testing.T) {
	ctx := context.Background()
	repo := NewBookingRepo(setupTestDB(t))
	update := []string{"name", "capacity", "updated_at"}

	require.NoError(t, repo.UpsertByRemoteID(ctx, bookingRow("opp-1", "Iceland Explorer", int64(12)), update))
	first, err := repo.FindByRemoteID(ctx, "opp-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, repo.UpsertByRemoteID(ctx, bookingRow("opp-1", "Iceland Explorer 2025", nil), update))
	second, err := repo.FindByRemoteID(ctx, "opp-1")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.PublicID, second.PublicID, "public id is insert-only")
	assert.Equal(t, "Iceland Explorer 2025", second.Name)
	assert.Nil(t, second.Capacity, "absent field overwrites with NULL")

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	existing, err := repo.ExistingRemoteIDs(ctx, []string{"opp-1", "opp-2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"opp-1": true}, existing)
}

func TestBookingRepo_FindMissingReturnsNil(t *testing.T) {
	repo := NewBookingRepo(setupTestDB(t))

	b, err := repo.FindByRemoteID(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, b)

	b, err = repo.FindByID(context.Background(), 42)
	assert.NoError(t, err)
	assert.Nil(t, b)
}

func TestBookingRepo_DeleteUnlinksMembers(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(t)
	bookings := NewBookingRepo(gdb)
	members := NewMemberRepo(gdb)

	b := &gorm.Booking{Name: "Peru Trek"}
	require.NoError(t, bookings.Create(ctx, b))
	require.NotEmpty(t, b.PublicID)

	m := &gorm.Member{ID: "m-1", Name: "Ana - Peru Trek", BookingID: &b.ID}
	require.NoError(t, members.Create(ctx, m))

	require.NoError(t, bookings.Delete(ctx, b.ID))

	got, err := members.FindByID(ctx, "m-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.BookingID)
}

func TestBookingRepo_PushQueues(t *testing.T) {
	ctx := context.Background()
	repo := NewBookingRepo(setupTestDB(t))

	a := &gorm.Booking{Name: "A"}
	b := &gorm.Booking{Name: "B", RemoteRecordID: strPtr("opp-b")}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	unpushed, err := repo.ListUnpushed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unpushed, 1)
	assert.Equal(t, "A", unpushed[0].Name)

	require.NoError(t, repo.SetRemoteID(ctx, a.ID, "opp-a"))
	unpushed, err = repo.ListUnpushed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unpushed)

	require.NoError(t, repo.MarkPendingDelete(ctx, b.ID))
	pending, err := repo.ListPendingDelete(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)

	names, err := repo.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []BookingName{{ID: a.ID, Name: "A"}, {ID: b.ID, Name: "B"}}, names)
}

func TestMemberRepo_ProvisionalLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemberRepo(setupTestDB(t))

	m := &gorm.Member{Name: "Ana", BookingName: strPtr("Iceland Explorer")}
	require.NoError(t, repo.Create(ctx, m))
	assert.True(t, m.IsProvisional())

	provisional, err := repo.ListProvisional(ctx, 10)
	require.NoError(t, err)
	require.Len(t, provisional, 1)

	require.NoError(t, repo.ReplaceID(ctx, m.ID, "opp-member-1"))

	old, err := repo.FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, old)

	got, err := repo.FindByID(ctx, "opp-member-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, got.LastSyncedAt)

	provisional, err = repo.ListProvisional(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, provisional)
}

func TestMemberRepo_UpsertKeepsBookingLink(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(t)
	repo := NewMemberRepo(gdb)
	update := []string{"name", "passport_number", "updated_at"}

	now := time.Now().UTC()
	row := map[string]interface{}{
		"id": "opp-m", "name": "Ana", "booking_name": "Iceland Explorer",
		"passport_number": "X1", "created_at": now, "updated_at": now,
	}
	require.NoError(t, repo.UpsertByID(ctx, row, update))
	require.NoError(t, repo.SetBooking(ctx, "opp-m", 7))

	row["booking_name"] = "Something Else"
	row["passport_number"] = "X2"
	require.NoError(t, repo.UpsertByID(ctx, row, update))

	got, err := repo.FindByID(ctx, "opp-m")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.BookingID)
	assert.Equal(t, uint(7), *got.BookingID)
	assert.Equal(t, "Iceland Explorer", *got.BookingName)
	assert.Equal(t, "X2", *got.PassportNumber)

	unlinked, err := repo.GetUnlinked(ctx)
	require.NoError(t, err)
	assert.Empty(t, unlinked)
}

func TestContactRepo_EmailIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := NewContactRepo(setupTestDB(t))

	require.NoError(t, repo.Upsert(ctx, &gorm.Contact{ID: "c-1", Email: strPtr("Ana@Example.com"), Tags: []string{"trip-passenger"}}))
	require.NoError(t, repo.Upsert(ctx, &gorm.Contact{ID: "c-1", Email: strPtr("ana@example.com"), FirstName: strPtr("Ana")}))

	c, err := repo.FindByEmail(ctx, "ANA@example.COM")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "c-1", c.ID)
	assert.Equal(t, "Ana", *c.FirstName)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFieldMapRepo_ReplaceAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewFieldMapRepo(setupTestDB(t))

	require.NoError(t, repo.ReplaceAll(ctx, []gorm.FieldMapEntry{
		{RemoteFieldID: "f1", RemoteFieldKey: "opportunity.arrivaldate", LocalTable: "bookings", LocalColumn: "arrival_date", ValueType: "date"},
	}))
	// a field id moving to another column must not trip the unique index
	require.NoError(t, repo.ReplaceAll(ctx, []gorm.FieldMapEntry{
		{RemoteFieldID: "f1", RemoteFieldKey: "opportunity.returndate", LocalTable: "bookings", LocalColumn: "return_date", ValueType: "date"},
		{RemoteFieldID: "f2", RemoteFieldKey: "opportunity.arrivaldate", LocalTable: "bookings", LocalColumn: "arrival_date", ValueType: "date"},
	}))

	entries, err := repo.LoadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "arrival_date", entries[0].LocalColumn)
	assert.Equal(t, "f2", entries[0].RemoteFieldID)

	require.NoError(t, repo.Upsert(ctx, &gorm.FieldMapEntry{
		RemoteFieldID: "f3", RemoteFieldKey: "opportunity.arrivaldate", LocalTable: "bookings", LocalColumn: "arrival_date", ValueType: "date",
	}))
	entries, err = repo.LoadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "f3", entries[0].RemoteFieldID)
}

func TestSyncRunRepo_RecentAndLast(t *testing.T) {
	ctx := context.Background()
	repo := NewSyncRunRepo(setupTestDB(t))

	base := time.Now().UTC().Add(-time.Hour)
	for i, status := range []string{"success", "failed", "success"} {
		run := &gorm.SyncRun{Kind: "import_booking", Status: status, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, repo.Create(ctx, run))
		require.NotEmpty(t, run.ID)
	}
	require.NoError(t, repo.Create(ctx, &gorm.SyncRun{Kind: "import_member", Status: "success", StartedAt: base}))

	recent, err := repo.GetRecent(ctx, "import_booking", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "success", recent[0].Status)
	assert.Equal(t, "failed", recent[1].Status)

	last, err := repo.GetLastWithStatus(ctx, "import_booking", "failed")
	require.NoError(t, err)
	require.NotNil(t, last)

	none, err := repo.GetLastWithStatus(ctx, "push_batch", "success")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestPipelineRepo_FirstStage(t *testing.T) {
	ctx := context.Background()
	repo := NewPipelineRepo(setupTestDB(t))

	require.NoError(t, repo.Upsert(ctx, &gorm.Pipeline{
		ID: "p1", Name: "Trips",
		Stages: []gorm.PipelineStage{
			{ID: "s2", Name: "Confirmed", Position: 1},
			{ID: "s1", Name: "New", Position: 0},
		},
	}))

	id, err := repo.FirstStageID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "s1", id)

	// re-discovery replaces stages
	require.NoError(t, repo.Upsert(ctx, &gorm.Pipeline{
		ID: "p1", Name: "Trips 2026",
		Stages: []gorm.PipelineStage{{ID: "s9", Name: "Lead", Position: 0}},
	}))
	p, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Trips 2026", p.Name)
	require.Len(t, p.Stages, 1)
	assert.Equal(t, "s9", p.Stages[0].ID)

	id, err = repo.FirstStageID(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestVendorRepo_EnsureNames(t *testing.T) {
	ctx := context.Background()
	repo := NewVendorRepo(setupTestDB(t))

	added, err := repo.EnsureNames(ctx, []string{"Nordic Tours", "Andes Co"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = repo.EnsureNames(ctx, []string{"Andes Co", "Sahara Ltd"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	names, err := repo.ActiveNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Andes Co", "Nordic Tours", "Sahara Ltd"}, names)
}

func TestLinkReportRepo_UnlinkedMembers(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(t)
	sx, err := db.SqlxFromGorm(gdb, "sqlite3")
	require.NoError(t, err)

	contacts := NewContactRepo(gdb)
	members := NewMemberRepo(gdb)
	require.NoError(t, contacts.Upsert(ctx, &gorm.Contact{ID: "c-1", Email: strPtr("ana@example.com")}))
	require.NoError(t, members.Create(ctx, &gorm.Member{ID: "m-1", Name: "Ana", ContactID: strPtr("c-1"), BookingName: strPtr("Iceland")}))
	require.NoError(t, members.Create(ctx, &gorm.Member{ID: "m-2", Name: "Ben", ContactID: strPtr("c-missing")}))

	report := NewLinkReportRepo(sx)
	rows, err := report.UnlinkedMembers(ctx, 50)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "m-1", rows[0].ID)
	require.NotNil(t, rows[0].ContactEmail)
	assert.Equal(t, "ana@example.com", *rows[0].ContactEmail)
	assert.Nil(t, rows[1].ContactEmail)

	missing, err := report.MembersWithoutContact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, missing)
}

func TestMemberRepo_CountWithoutContact(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(t)
	members := NewMemberRepo(gdb)

	require.NoError(t, NewContactRepo(gdb).Upsert(ctx, &gorm.Contact{ID: "c1", Email: strPtr("a@x.com")}))
	require.NoError(t, members.Create(ctx, &gorm.Member{ID: "m1", Name: "Known", ContactID: strPtr("c1")}))
	require.NoError(t, members.Create(ctx, &gorm.Member{ID: "m2", Name: "Gap", ContactID: strPtr("c-missing")}))
	require.NoError(t, members.Create(ctx, &gorm.Member{ID: "m3", Name: "No contact"}))

	n, err := members.CountWithoutContact(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func memberRow(id, name string, bookingName interface{}) map[string]interface{} {
	now := time.Now().UTC()
	return map[string]interface{}{
		"id":             id,
		"name":           name,
		"booking_name":   bookingName,
		"pending_delete": false,
		"created_at":     now,
		"updated_at":     now,
	}
}

func TestMemberRepo_UpsertFillsOnlyBlankBookingName(t *testing.T) {
	ctx := context.Background()
	repo := NewMemberRepo(setupTestDB(t))
	update := []string{"name", "updated_at"}

	require.NoError(t, repo.UpsertByID(ctx, memberRow("opp-m1", "Ada", nil), update))
	require.NoError(t, repo.UpsertByID(ctx, memberRow("opp-m2", "Grace", ""), update))
	require.NoError(t, repo.UpsertByID(ctx, memberRow("opp-m3", "Alan", "Iceland"), update))

	require.NoError(t, repo.UpsertByID(ctx, memberRow("opp-m1", "Ada", "Peru"), update))
	require.NoError(t, repo.UpsertByID(ctx, memberRow("opp-m2", "Grace", "Peru"), update))
	require.NoError(t, repo.UpsertByID(ctx, memberRow("opp-m3", "Alan T", "Peru"), update))

	for id, want := range map[string]string{"opp-m1": "Peru", "opp-m2": "Peru", "opp-m3": "Iceland"} {
		m, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, m)
		require.NotNil(t, m.BookingName, id)
		assert.Equal(t, want, *m.BookingName, id)
	}

	m, err := repo.FindByID(ctx, "opp-m3")
	require.NoError(t, err)
	assert.Equal(t, "Alan T", m.Name)

	// an incoming NULL never clears a stored name
	require.NoError(t, repo.UpsertByID(ctx, memberRow("opp-m3", "Alan T", nil), update))
	m, err = repo.FindByID(ctx, "opp-m3")
	require.NoError(t, err)
	require.NotNil(t, m.BookingName)
	assert.Equal(t, "Iceland", *m.BookingName)
}

func TestMemberRepo_SaveKeepsBookingName(t *testing.T) {
	ctx := context.Background()
	repo := NewMemberRepo(setupTestDB(t))

	require.NoError(t, repo.Create(ctx, &gorm.Member{ID: "opp-m1", Name: "Ada", BookingName: strPtr("Iceland")}))
	require.NoError(t, repo.Create(ctx, &gorm.Member{ID: "opp-m2", Name: "Grace"}))

	edit := &gorm.Member{ID: "opp-m1", Name: "Ada L", BookingName: strPtr("Peru")}
	require.NoError(t, repo.Save(ctx, edit))
	assert.Equal(t, "Iceland", *edit.BookingName, "the caller sees the stored value")

	m, err := repo.FindByID(ctx, "opp-m1")
	require.NoError(t, err)
	assert.Equal(t, "Ada L", m.Name)
	assert.Equal(t, "Iceland", *m.BookingName)

	// a blank name can still be filled in
	require.NoError(t, repo.Save(ctx, &gorm.Member{ID: "opp-m2", Name: "Grace", BookingName: strPtr("Peru")}))
	m, err = repo.FindByID(ctx, "opp-m2")
	require.NoError(t, err)
	require.NotNil(t, m.BookingName)
	assert.Equal(t, "Peru", *m.BookingName)
}

func TestMemberRepo_ListMissingBookingName(t *testing.T) {
	ctx := context.Background()
	repo := NewMemberRepo(setupTestDB(t))

	require.NoError(t, repo.Create(ctx, &gorm.Member{ID: "opp-m1", Name: "Named", BookingName: strPtr("Iceland")}))
	require.NoError(t, repo.Create(ctx, &gorm.Member{ID: "opp-m2", Name: "Null"}))
	require.NoError(t, repo.Create(ctx, &gorm.Member{ID: "opp-m3", Name: "Blank", BookingName: strPtr("  ")}))
	require.NoError(t, repo.Create(ctx, &gorm.Member{Name: "Provisional"}))

	ids, err := repo.ListMissingBookingName(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"opp-m2", "opp-m3"}, ids)
}

func TestContactRepo_ExistingIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewContactRepo(setupTestDB(t))
	require.NoError(t, repo.Upsert(ctx, &gorm.Contact{ID: "c1"}))

	got, err := repo.ExistingIDs(ctx, []string{"c1", "c2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"c1": true}, got)
}
