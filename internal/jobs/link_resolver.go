package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	gormlib "gorm.io/gorm"

	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/metrics"
)

const linkBatchSize = 100

// LinkTier is the matching rule that produced a link.
type LinkTier string

const (
	TierExact           LinkTier = "exact"
	TierCaseInsensitive LinkTier = "case_insensitive"
	TierContains        LinkTier = "contains"
)

// LinkAmbiguityWarning records a tier that matched more than one booking.
// The lowest booking id is chosen.
type LinkAmbiguityWarning struct {
	MemberID     string   `json:"member_id"`
	BookingName  string   `json:"booking_name"`
	CandidateIDs []uint   `json:"candidate_ids"`
	ChosenID     uint     `json:"chosen_id"`
	Tier         LinkTier `json:"tier"`
}

// UnmatchedMember has a booking name that matched no booking.
type UnmatchedMember struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	BookingName string `json:"booking_name"`
}

// LinkReport summarises one link pass.
type LinkReport struct {
	Linked      int                    `json:"linked"`
	ByTier      map[LinkTier]int       `json:"by_tier"`
	Unmatched   []UnmatchedMember      `json:"unmatched"`
	Unlinkable  []string               `json:"unlinkable"`
	Ambiguities []LinkAmbiguityWarning `json:"ambiguities"`
	Errors      int                    `json:"errors"`
}

type pendingLink struct {
	memberID  string
	bookingID uint
	tier      LinkTier
}

// bookingIndex holds every booking name for the three matching tiers. Id
// lists keep booking id order.
type bookingIndex struct {
	all   []repositories.BookingName
	exact map[string][]uint
	lower map[string][]uint
}

func newBookingIndex(bookings []repositories.BookingName) *bookingIndex {
	idx := &bookingIndex{
		all:   bookings,
		exact: make(map[string][]uint, len(bookings)),
		lower: make(map[string][]uint, len(bookings)),
	}
	for _, b := range bookings {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			continue
		}
		idx.exact[name] = append(idx.exact[name], b.ID)
		lc := strings.ToLower(name)
		idx.lower[lc] = append(idx.lower[lc], b.ID)
	}
	return idx
}

// match returns the candidates of the first tier that has any.
func (idx *bookingIndex) match(bookingName string) ([]uint, LinkTier) {
	name := strings.TrimSpace(bookingName)
	if ids := idx.exact[name]; len(ids) > 0 {
		return ids, TierExact
	}

	lc := strings.ToLower(name)
	if ids := idx.lower[lc]; len(ids) > 0 {
		return ids, TierCaseInsensitive
	}

	var ids []uint
	for _, b := range idx.all {
		candidate := strings.ToLower(strings.TrimSpace(b.Name))
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, lc) || strings.Contains(lc, candidate) {
			ids = append(ids, b.ID)
		}
	}
	if len(ids) > 0 {
		return ids, TierContains
	}
	return nil, ""
}

// LinkResolver sets members.booking_id from the booking name each member
// carries.
type LinkResolver struct {
	db      *gormlib.DB
	metrics *metrics.MetricsRegistry
}

func NewLinkResolver(db *gormlib.DB, m *metrics.MetricsRegistry) *LinkResolver {
	return &LinkResolver{db: db, metrics: m}
}

// Run links every unlinked member it can. Unmatched members are reported,
// not treated as errors.
func (r *LinkResolver) Run(ctx context.Context) (*LinkReport, error) {
	start := time.Now()
	log := logging.ForJob("LinkResolver")

	bookings, err := repositories.NewBookingRepo(r.db).ListNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	members, err := repositories.NewMemberRepo(r.db).GetUnlinked(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load unlinked members: %w", err)
	}

	idx := newBookingIndex(bookings)
	report := &LinkReport{ByTier: make(map[LinkTier]int)}
	var links []pendingLink

	for _, m := range members {
		if m.BookingName == nil || strings.TrimSpace(*m.BookingName) == "" {
			report.Unlinkable = append(report.Unlinkable, m.ID)
			continue
		}
		bookingName := *m.BookingName

		ids, tier := idx.match(bookingName)
		if len(ids) == 0 {
			report.Unmatched = append(report.Unmatched, UnmatchedMember{ID: m.ID, Name: m.Name, BookingName: bookingName})
			continue
		}

		chosen := ids[0]
		if len(ids) > 1 {
			warning := LinkAmbiguityWarning{
				MemberID:     m.ID,
				BookingName:  bookingName,
				CandidateIDs: ids,
				ChosenID:     chosen,
				Tier:         tier,
			}
			report.Ambiguities = append(report.Ambiguities, warning)
			log.Warnw("Ambiguous booking name",
				"member_id", m.ID,
				"booking_name", bookingName,
				"candidates", ids,
				"chosen", chosen,
				"tier", tier,
			)
		}
		links = append(links, pendingLink{memberID: m.ID, bookingID: chosen, tier: tier})
	}

	for i := 0; i < len(links); i += linkBatchSize {
		end := i + linkBatchSize
		if end > len(links) {
			end = len(links)
		}
		batch := links[i:end]

		err := r.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
			repo := repositories.NewMemberRepo(tx)
			for _, l := range batch {
				if err := repo.SetBooking(ctx, l.memberID, l.bookingID); err != nil {
					return fmt.Errorf("member %s: %w", l.memberID, err)
				}
			}
			return nil
		})
		if err != nil {
			log.Errorw("Link batch failed", "batch_start", i, "size", len(batch), "error", err)
			report.Errors += len(batch)
			continue
		}

		for _, l := range batch {
			report.Linked++
			report.ByTier[l.tier]++
		}
	}

	r.metrics.LinkOutcome("linked", report.Linked)
	r.metrics.LinkOutcome("unmatched", len(report.Unmatched))
	r.metrics.LinkOutcome("unlinkable", len(report.Unlinkable))
	r.metrics.LinkOutcome("ambiguous", len(report.Ambiguities))

	log.Infow("Link pass finished",
		"linked", report.Linked,
		"unmatched", len(report.Unmatched),
		"unlinkable", len(report.Unlinkable),
		"ambiguous", len(report.Ambiguities),
		"errors", report.Errors,
		"duration", time.Since(start).Truncate(time.Millisecond),
	)
	return report, nil
}
