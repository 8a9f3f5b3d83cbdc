package gorm

import "time"

// Pipeline is a remote pipeline discovered from the CRM.
type Pipeline struct {
	ID        string          `gorm:"column:id;primaryKey;type:varchar(100)"`
	Name      string          `gorm:"column:name;type:varchar(255);not null"`
	Stages    []PipelineStage `gorm:"foreignKey:PipelineID"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Pipeline) TableName() string {
	return "pipelines"
}

// PipelineStage is one ordered stage of a pipeline.
type PipelineStage struct {
	ID         string    `gorm:"column:id;primaryKey;type:varchar(100)"`
	PipelineID string    `gorm:"column:pipeline_id;type:varchar(100);not null;index"`
	Name       string    `gorm:"column:name;type:varchar(255);not null"`
	Position   int       `gorm:"column:position;not null;default:0"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (PipelineStage) TableName() string {
	return "pipeline_stages"
}
