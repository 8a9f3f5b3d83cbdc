package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tripbuilder/crmsync/internal/common"
	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/models/gorm"
	"tripbuilder/crmsync/internal/providers"
)

const contactCacheTTL = 30 * time.Minute

// ErrContactEmailRequired is returned when a contact has no email to match on.
var ErrContactEmailRequired = errors.New("contact email is required")

// ContactInput is the identity used to find or create a remote contact.
type ContactInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// ContactService finds or creates the remote contact behind a member.
type ContactService struct {
	repo   *repositories.ContactRepo
	client providers.RemoteClient
	cache  common.CacheInterface
}

func NewContactService(repo *repositories.ContactRepo, client providers.RemoteClient, cache common.CacheInterface) *ContactService {
	return &ContactService{repo: repo, client: client, cache: cache}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EnsureContact returns the remote contact id for in.Email. Lookups go cache,
// local table, remote search, and finally a remote create tagged as a
// trip passenger.
func (s *ContactService) EnsureContact(ctx context.Context, in ContactInput) (string, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return "", ErrContactEmailRequired
	}

	key := string(constants.CachePrefixContactEmail) + email
	return s.cache.GetOrSet(key, contactCacheTTL, func() (string, error) {
		local, err := s.repo.FindByEmail(ctx, email)
		if err != nil {
			return "", fmt.Errorf("failed to look up contact: %w", err)
		}
		if local != nil {
			return local.ID, nil
		}

		if id, err := s.findRemote(ctx, email); err != nil || id != "" {
			return id, err
		}
		return s.createRemote(ctx, in, email)
	})
}

func (s *ContactService) findRemote(ctx context.Context, email string) (string, error) {
	page, err := s.client.SearchProfiles(ctx, email, nil, 20)
	if err != nil {
		return "", fmt.Errorf("failed to search contacts: %w", err)
	}

	for _, p := range page.Profiles {
		if normalizeEmail(p.Email) != email {
			continue
		}
		if err := s.repo.Upsert(ctx, ContactFromProfile(p)); err != nil {
			logging.Warn("Failed to cache contact", "contact_id", p.ID, "error", err)
		}
		return p.ID, nil
	}
	return "", nil
}

func (s *ContactService) createRemote(ctx context.Context, in ContactInput, email string) (string, error) {
	profile := providers.RemoteProfile{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     email,
		Phone:     strings.TrimSpace(in.Phone),
		Tags:      []string{constants.ContactTagMember},
	}

	id, err := s.client.CreateProfile(ctx, &profile)
	if err != nil {
		return "", fmt.Errorf("failed to create contact: %w", err)
	}
	profile.ID = id

	if err := s.repo.Upsert(ctx, ContactFromProfile(profile)); err != nil {
		logging.Warn("Failed to cache contact", "contact_id", id, "error", err)
	}
	logging.Info("Created remote contact", "contact_id", id)
	return id, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ContactFromProfile converts a remote contact to its cached form.
func ContactFromProfile(p providers.RemoteProfile) *gorm.Contact {
	now := time.Now().UTC()
	return &gorm.Contact{
		ID:           p.ID,
		FirstName:    optional(p.FirstName),
		LastName:     optional(p.LastName),
		Email:        optional(normalizeEmail(p.Email)),
		Phone:        optional(p.Phone),
		Address:      optional(p.Address1),
		City:         optional(p.City),
		State:        optional(p.State),
		PostalCode:   optional(p.PostalCode),
		Country:      optional(p.Country),
		Tags:         p.Tags,
		LastSyncedAt: &now,
	}
}
