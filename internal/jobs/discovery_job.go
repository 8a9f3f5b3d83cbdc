package jobs

import (
	"context"
	"fmt"
	"time"

	gormlib "gorm.io/gorm"

	"tripbuilder/crmsync/internal/db"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/fieldmap"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/models/gorm"
	"tripbuilder/crmsync/internal/providers"
	"tripbuilder/crmsync/internal/services"
)

const opportunityModel = "opportunity"

// DiscoveryResult summarises one discovery pass.
type DiscoveryResult struct {
	Pipelines     int `json:"pipelines"`
	FieldsMapped  int `json:"fields_mapped"`
	FieldsUnknown int `json:"fields_unknown"`
	TypeConflicts int `json:"type_conflicts"`
	RegistrySize  int `json:"registry_size"`
}

// DiscoveryJob learns remote pipelines and custom field ids, then rebuilds
// the field map registry.
type DiscoveryJob struct {
	db       *gormlib.DB
	client   providers.RemoteClient
	registry *fieldmap.Holder
}

func NewDiscoveryJob(db *gormlib.DB, client providers.RemoteClient, registry *fieldmap.Holder) *DiscoveryJob {
	return &DiscoveryJob{db: db, client: client, registry: registry}
}

// Run discovers pipelines and fields and reloads the registry. A registry
// that fails the consistency check is not installed.
func (j *DiscoveryJob) Run(ctx context.Context) (*DiscoveryResult, error) {
	start := time.Now()
	result := &DiscoveryResult{}

	n, err := j.DiscoverPipelines(ctx)
	if err != nil {
		return result, err
	}
	result.Pipelines = n

	if err := j.DiscoverFields(ctx, result); err != nil {
		return result, err
	}

	registry, err := LoadRegistry(ctx, j.db)
	if err != nil {
		return result, err
	}
	j.registry.Store(registry)
	result.RegistrySize = registry.Len()

	logging.ForJob("DiscoveryJob").Infow("Discovery finished",
		"pipelines", result.Pipelines,
		"fields_mapped", result.FieldsMapped,
		"fields_unknown", result.FieldsUnknown,
		"duration", time.Since(start).Truncate(time.Millisecond),
	)
	return result, nil
}

// DiscoverPipelines stores every remote pipeline with its ordered stages.
func (j *DiscoveryJob) DiscoverPipelines(ctx context.Context) (int, error) {
	remote, err := j.client.GetPipelines(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pipelines: %w", err)
	}

	repo := repositories.NewPipelineRepo(j.db)
	for _, rp := range remote {
		if err := repo.Upsert(ctx, services.PipelineFromRemote(rp)); err != nil {
			return 0, fmt.Errorf("failed to store pipeline %s: %w", rp.ID, err)
		}
	}
	return len(remote), nil
}

// DiscoverFields upserts a field map entry for every catalogued remote field.
// The catalog's value type wins over the remote data type.
func (j *DiscoveryJob) DiscoverFields(ctx context.Context, result *DiscoveryResult) error {
	defs, err := j.client.GetFieldDefinitions(ctx, opportunityModel)
	if err != nil {
		return fmt.Errorf("failed to fetch field definitions: %w", err)
	}

	repo := repositories.NewFieldMapRepo(j.db)
	for _, def := range defs {
		col, ok := fieldmap.Catalog[def.FieldKey]
		if !ok {
			result.FieldsUnknown++
			continue
		}
		if !col.ValueType.Compatible(def.DataType) {
			result.TypeConflicts++
			logging.Warn("Remote field type differs from catalog",
				"field_key", def.FieldKey,
				"remote_type", def.DataType,
				"catalog_type", col.ValueType,
			)
		}

		entry := &gorm.FieldMapEntry{
			RemoteFieldID:  def.ID,
			RemoteFieldKey: def.FieldKey,
			LocalTable:     col.Table,
			LocalColumn:    col.Column,
			ValueType:      string(col.ValueType),
			RemoteDataType: def.DataType,
		}
		if err := repo.Upsert(ctx, entry); err != nil {
			return fmt.Errorf("failed to store mapping for %s: %w", def.FieldKey, err)
		}
		result.FieldsMapped++
	}
	return nil
}

// LoadRegistry builds the registry from the stored field map and checks it
// against the local schema.
func LoadRegistry(ctx context.Context, gdb *gormlib.DB) (*fieldmap.Registry, error) {
	entries, err := repositories.NewFieldMapRepo(gdb).LoadEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load field map: %w", err)
	}

	registry, err := fieldmap.NewRegistry(entries)
	if err != nil {
		return nil, err
	}

	schema, err := db.TableColumns(&gorm.Booking{}, &gorm.Member{})
	if err != nil {
		return nil, err
	}
	if err := registry.CheckConsistency(schema, fieldmap.PushableColumns()); err != nil {
		return nil, err
	}
	return registry, nil
}
