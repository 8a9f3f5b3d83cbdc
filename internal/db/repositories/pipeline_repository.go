package repositories

import (
	"context"

	"tripbuilder/crmsync/internal/models/gorm"

	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PipelineRepo stores discovered pipelines and their stages
type PipelineRepo struct {
	db *gormlib.DB
}

// NewPipelineRepo creates a new pipeline repository
func NewPipelineRepo(db *gormlib.DB) *PipelineRepo {
	return &PipelineRepo{db: db}
}

// Upsert writes a pipeline and replaces its stages.
func (r *PipelineRepo) Upsert(ctx context.Context, p *gorm.Pipeline) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		err := tx.Omit("Stages").
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
			}).
			Create(p).Error
		if err != nil {
			return err
		}

		if err := tx.Where("pipeline_id = ?", p.ID).Delete(&gorm.PipelineStage{}).Error; err != nil {
			return err
		}
		if len(p.Stages) == 0 {
			return nil
		}
		for i := range p.Stages {
			p.Stages[i].PipelineID = p.ID
		}
		return tx.Create(&p.Stages).Error
	})
}

// FindByID returns the pipeline with stages ordered by position, or nil, nil.
func (r *PipelineRepo) FindByID(ctx context.Context, id string) (*gorm.Pipeline, error) {
	var p gorm.Pipeline
	err := r.db.WithContext(ctx).
		Preload("Stages", func(db *gormlib.DB) *gormlib.DB {
			return db.Order("position")
		}).
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		if err == gormlib.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// FirstStageID returns the lowest-position stage of a pipeline, or "" when
// the pipeline has not been discovered.
func (r *PipelineRepo) FirstStageID(ctx context.Context, pipelineID string) (string, error) {
	var stage gorm.PipelineStage
	err := r.db.WithContext(ctx).
		Where("pipeline_id = ?", pipelineID).
		Order("position").
		First(&stage).Error
	if err != nil {
		if err == gormlib.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return stage.ID, nil
}
