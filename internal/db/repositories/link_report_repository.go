package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// LinkReportRepo runs the read-only reporting queries behind the ops API.
// It goes through sqlx so it can share a connection pool with gorm.
type LinkReportRepo struct {
	db *sqlx.DB
}

// UnlinkedMemberRow is one member without a booking, with its contact email.
type UnlinkedMemberRow struct {
	ID           string  `db:"id" json:"id"`
	Name         string  `db:"name" json:"name"`
	BookingName  *string `db:"booking_name" json:"booking_name"`
	ContactEmail *string `db:"contact_email" json:"contact_email"`
}

// RunStatusCount counts ledger rows per kind and status.
type RunStatusCount struct {
	Kind   string `db:"kind" json:"kind"`
	Status string `db:"status" json:"status"`
	Count  int    `db:"n" json:"count"`
}

func NewLinkReportRepo(db *sqlx.DB) *LinkReportRepo {
	return &LinkReportRepo{db: db}
}

const unlinkedMembersQuery = `
SELECT m.id, m.name, m.booking_name, c.email AS contact_email
FROM members m
LEFT JOIN contacts c ON c.id = m.contact_id
WHERE m.booking_id IS NULL AND m.pending_delete = ?
ORDER BY m.id
LIMIT ?`

// UnlinkedMembers lists members the link pass has not been able to resolve.
func (r *LinkReportRepo) UnlinkedMembers(ctx context.Context, limit int) ([]UnlinkedMemberRow, error) {
	out := []UnlinkedMemberRow{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(unlinkedMembersQuery), false, limit)
	return out, err
}

const membersWithoutContactQuery = `
SELECT COUNT(*)
FROM members m
LEFT JOIN contacts c ON c.id = m.contact_id
WHERE m.contact_id IS NOT NULL AND c.id IS NULL`

// MembersWithoutContact counts members whose contact is not in the local cache.
func (r *LinkReportRepo) MembersWithoutContact(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, membersWithoutContactQuery)
	return n, err
}

const runStatusQuery = `
SELECT kind, status, COUNT(*) AS n
FROM sync_runs
WHERE started_at >= ?
GROUP BY kind, status
ORDER BY kind, status`

// RunStatusSince summarises ledger outcomes since the given time.
func (r *LinkReportRepo) RunStatusSince(ctx context.Context, since time.Time) ([]RunStatusCount, error) {
	out := []RunStatusCount{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(runStatusQuery), since.UTC())
	return out, err
}
