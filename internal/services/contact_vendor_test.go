package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbuilder/crmsync/internal/common"
	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/fieldmap"
	"tripbuilder/crmsync/internal/models/gorm"
	"tripbuilder/crmsync/internal/providers"
	"tripbuilder/crmsync/internal/providers/providerstest"
)

func newContactService(t *testing.T) (*ContactService, *repositories.ContactRepo, *providerstest.StubClient, *common.CacheService) {
	t.Helper()
	gdb := setupTestDB(t)
	repo := repositories.NewContactRepo(gdb)
	client := &providerstest.StubClient{}
	cache := common.NewCacheService(time.Hour, time.Hour, nil)
	return NewContactService(repo, client, cache), repo, client, cache
}

func TestEnsureContact_CacheFirst(t *testing.T) {
	svc, _, client, cache := newContactService(t)
	cache.Set(string(constants.CachePrefixContactEmail)+"ada@example.com", "c-cached", time.Minute)

	id, err := svc.EnsureContact(context.Background(), ContactInput{Email: "Ada@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "c-cached", id)
	assert.Equal(t, 0, client.Calls("SearchProfiles"))
}

func TestEnsureContact_LocalBeforeRemote(t *testing.T) {
	ctx := context.Background()
	svc, repo, client, _ := newContactService(t)
	require.NoError(t, repo.Upsert(ctx, &gorm.Contact{ID: "c-local", Email: strPtr("Ada@Example.com")}))

	id, err := svc.EnsureContact(ctx, ContactInput{Email: " ada@example.com "})
	require.NoError(t, err)
	assert.Equal(t, "c-local", id)
	assert.Equal(t, 0, client.Calls("SearchProfiles"))
	assert.Equal(t, 0, client.Calls("CreateProfile"))
}

func TestEnsureContact_RemoteSearchNeedsExactEmail(t *testing.T) {
	ctx := context.Background()
	svc, repo, client, _ := newContactService(t)
	client.SearchProfilesFn = func(_ context.Context, query string, _ *providers.Cursor, _ int) (*providers.ProfilePage, error) {
		assert.Equal(t, "ada@example.com", query)
		return &providers.ProfilePage{Profiles: []providers.RemoteProfile{
			{ID: "c-near", Email: "ada+trips@example.com"},
			{ID: "c-exact", Email: "ADA@example.com", FirstName: "Ada"},
		}}, nil
	}

	id, err := svc.EnsureContact(ctx, ContactInput{Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "c-exact", id)
	assert.Equal(t, 0, client.Calls("CreateProfile"))

	cached, err := repo.FindByID(ctx, "c-exact")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "ada@example.com", *cached.Email)

	// second lookup is served from cache
	_, err = svc.EnsureContact(ctx, ContactInput{Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, client.Calls("SearchProfiles"))
}

func TestEnsureContact_CreatesTaggedContact(t *testing.T) {
	ctx := context.Background()
	svc, repo, client, _ := newContactService(t)

	var created *providers.RemoteProfile
	client.CreateProfileFn = func(_ context.Context, p *providers.RemoteProfile) (string, error) {
		created = p
		return "c-new", nil
	}

	id, err := svc.EnsureContact(ctx, ContactInput{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "c-new", id)

	require.NotNil(t, created)
	assert.Equal(t, []string{constants.ContactTagMember}, created.Tags)
	assert.Equal(t, "Grace", created.FirstName)

	cached, err := repo.FindByEmail(ctx, "GRACE@example.com")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "c-new", cached.ID)
}

func TestEnsureContact_EmailRequired(t *testing.T) {
	svc, _, _, _ := newContactService(t)
	_, err := svc.EnsureContact(context.Background(), ContactInput{FirstName: "Nobody", Email: "  "})
	assert.ErrorIs(t, err, ErrContactEmailRequired)
}

func TestVendorSync_PushesUnionOnlyWhenRemoteIsMissingNames(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(t)
	repo := repositories.NewVendorRepo(gdb)

	remoteOptions := []string{"Zeta Tours", "Alpha", " "}
	client := &providerstest.StubClient{
		GetFieldDefinitionsFn: func(_ context.Context, model string) ([]providers.FieldDefinition, error) {
			assert.Equal(t, "opportunity", model)
			return []providers.FieldDefinition{
				{ID: "f-other", FieldKey: "opportunity.destination"},
				{ID: "f-vendor", FieldKey: fieldmap.VendorFieldKey, DataType: "SINGLE_OPTIONS", Options: remoteOptions},
			}, nil
		},
	}
	var pushed []string
	client.UpdateFieldOptionsFn = func(_ context.Context, fieldID string, options []string) error {
		assert.Equal(t, "f-vendor", fieldID)
		pushed = options
		remoteOptions = options
		return nil
	}

	_, err := repo.EnsureNames(ctx, []string{"Beta"})
	require.NoError(t, err)

	svc := NewVendorSyncService(repo, client)
	result, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pulled)
	assert.True(t, result.Pushed)
	assert.Equal(t, []string{"Alpha", "Beta", "Zeta Tours"}, pushed)

	names, err := repo.ActiveNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta", "Zeta Tours"}, names)

	result, err = svc.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, result.Pushed)
	assert.Equal(t, 1, client.Calls("UpdateFieldOptions"))
}

func TestVendorSync_MissingField(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewVendorSyncService(repositories.NewVendorRepo(gdb), &providerstest.StubClient{})
	_, err := svc.Pull(context.Background())
	assert.Error(t, err)
}

func TestVendorSync_PushAloneSendsLocalOnlyNames(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(t)
	repo := repositories.NewVendorRepo(gdb)
	_, err := repo.EnsureNames(ctx, []string{"Alpha", "Gamma"})
	require.NoError(t, err)

	var pushed []string
	client := &providerstest.StubClient{
		GetFieldDefinitionsFn: func(context.Context, string) ([]providers.FieldDefinition, error) {
			return []providers.FieldDefinition{{ID: "f-vendor", FieldKey: fieldmap.VendorFieldKey, Options: []string{"Alpha"}}}, nil
		},
		UpdateFieldOptionsFn: func(_ context.Context, _ string, options []string) error {
			pushed = options
			return nil
		},
	}

	ok, err := NewVendorSyncService(repo, client).Push(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"Alpha", "Gamma"}, pushed)
}
