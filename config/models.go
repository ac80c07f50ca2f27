package config

import (
	"time"

	"gorm.io/gorm"
)

// RegisteredModel is a named model in the registry
type RegisteredModel struct {
	Name        string `gorm:"primaryKey"`
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName overrides the table name
func (RegisteredModel) TableName() string {
	return "registered_models"
}

// ModelVersion is one immutable registered version of a model.
// Rows are only ever inserted; (name, version) is unique.
type ModelVersion struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null;uniqueIndex:idx_model_version,priority:1"`
	Version   int    `gorm:"not null;uniqueIndex:idx_model_version,priority:2"`
	RunID     string `gorm:"index"`
	Source    string `gorm:"not null"` // blob key of the artifact
	Digest    string `gorm:"not null"` // hex sha256 of the artifact bytes
	SizeBytes int64
	Signature string `gorm:"type:text"` // JSON encoded schema.Signature
	Status    string `gorm:"index"`
	CreatedAt time.Time
}

// TableName overrides the table name
func (ModelVersion) TableName() string {
	return "model_versions"
}

// Experiment groups tracked training runs
type Experiment struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time
}

// TableName overrides the table name
func (Experiment) TableName() string {
	return "experiments"
}

// Run is one tracked training run
type Run struct {
	ID           string `gorm:"primaryKey"`
	ExperimentID string `gorm:"index"`
	Name         string
	Status       string `gorm:"index"`
	StartTime    time.Time
	EndTime      *time.Time
	Params       []RunParam  `gorm:"foreignKey:RunID"`
	Metrics      []RunMetric `gorm:"foreignKey:RunID"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName overrides the table name
func (Run) TableName() string {
	return "runs"
}

// RunParam is a logged run parameter; a key is logged once per run
type RunParam struct {
	ID    uint   `gorm:"primaryKey"`
	RunID string `gorm:"not null;uniqueIndex:idx_run_param,priority:1"`
	Key   string `gorm:"not null;uniqueIndex:idx_run_param,priority:2"`
	Value string `gorm:"type:text"`
}

// TableName overrides the table name
func (RunParam) TableName() string {
	return "run_params"
}

// RunMetric is a logged run metric value
type RunMetric struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"not null;index"`
	Key       string `gorm:"not null;index"`
	Value     float64
	Step      int
	Timestamp time.Time
}

// TableName overrides the table name
func (RunMetric) TableName() string {
	return "run_metrics"
}

// TrainingJob is a training run launched as a Kubernetes Job
type TrainingJob struct {
	ID             string `gorm:"primaryKey"`
	JobName        string `gorm:"index"`
	Namespace      string `gorm:"index"`
	ModelName      string `gorm:"index"`
	RequestPayload string `gorm:"type:text"` // Full request as JSON for reconstruction
	Status         string `gorm:"index"`
	Message        string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

// TableName overrides the table name
func (TrainingJob) TableName() string {
	return "training_jobs"
}

// Tables lists every table migrated at startup
func Tables() []interface{} {
	return []interface{}{
		&RegisteredModel{},
		&ModelVersion{},
		&Experiment{},
		&Run{},
		&RunParam{},
		&RunMetric{},
		&TrainingJob{},
	}
}
