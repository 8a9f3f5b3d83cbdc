package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/fieldmap"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/providers"
)

const opportunityModel = "opportunity"

// VendorSyncResult reports one vendor reconciliation.
type VendorSyncResult struct {
	Pulled  int
	Pushed  bool
	Options []string
}

// VendorSyncService keeps the remote vendor dropdown and the vendors table
// holding the same names.
type VendorSyncService struct {
	repo   *repositories.VendorRepo
	client providers.RemoteClient
}

func NewVendorSyncService(repo *repositories.VendorRepo, client providers.RemoteClient) *VendorSyncService {
	return &VendorSyncService{repo: repo, client: client}
}

func (s *VendorSyncService) vendorField(ctx context.Context) (*providers.FieldDefinition, error) {
	defs, err := s.client.GetFieldDefinitions(ctx, opportunityModel)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch field definitions: %w", err)
	}
	for i := range defs {
		if defs[i].FieldKey == fieldmap.VendorFieldKey {
			return &defs[i], nil
		}
	}
	return nil, fmt.Errorf("remote field %s not found", fieldmap.VendorFieldKey)
}

// Pull inserts remote vendor options missing locally.
func (s *VendorSyncService) Pull(ctx context.Context) (int, error) {
	field, err := s.vendorField(ctx)
	if err != nil {
		return 0, err
	}
	return s.repo.EnsureNames(ctx, cleanNames(field.Options))
}

// Push sends the union of remote and local names when the remote list is
// missing any local name. It reports whether an update was sent.
func (s *VendorSyncService) Push(ctx context.Context) (bool, error) {
	field, err := s.vendorField(ctx)
	if err != nil {
		return false, err
	}
	_, pushed, err := s.pushUnion(ctx, field)
	return pushed, err
}

// Sync pulls remote options, then pushes the union back.
func (s *VendorSyncService) Sync(ctx context.Context) (*VendorSyncResult, error) {
	field, err := s.vendorField(ctx)
	if err != nil {
		return nil, err
	}

	added, err := s.repo.EnsureNames(ctx, cleanNames(field.Options))
	if err != nil {
		return nil, fmt.Errorf("failed to store vendors: %w", err)
	}

	union, pushed, err := s.pushUnion(ctx, field)
	if err != nil {
		return nil, err
	}
	return &VendorSyncResult{Pulled: added, Pushed: pushed, Options: union}, nil
}

func (s *VendorSyncService) pushUnion(ctx context.Context, field *providers.FieldDefinition) ([]string, bool, error) {
	remote := cleanNames(field.Options)
	local, err := s.repo.ActiveNames(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list vendors: %w", err)
	}

	union := cleanNames(append(append([]string{}, remote...), local...))
	if len(union) == len(remote) {
		return union, false, nil
	}

	if err := s.client.UpdateFieldOptions(ctx, field.ID, union); err != nil {
		return nil, false, fmt.Errorf("failed to update vendor options: %w", err)
	}
	logging.Info("Vendor options updated", "field_id", field.ID, "options", len(union))
	return union, true, nil
}

// cleanNames trims, drops blanks and duplicates, and sorts.
func cleanNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
