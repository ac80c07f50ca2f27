package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/loiht2/getaround-pricing/backend/config"
	"github.com/loiht2/getaround-pricing/backend/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// Job statuses stored for launched training jobs
const (
	StatusPending   = "Pending"
	StatusRunning   = "Running"
	StatusSucceeded = "Succeeded"
	StatusFailed    = "Failed"
)

// Repository handles database operations
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository instance
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// RegisterModelVersion assigns the next version number of mv.Name and inserts
// mv in one transaction. upload is called with the assigned version before the
// row is written and returns the version it actually stored, which may be
// higher; if it fails nothing is inserted.
func (r *Repository) RegisterModelVersion(ctx context.Context, mv *config.ModelVersion, upload func(version int) (int, error)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := config.RegisteredModel{Name: mv.Name}
		if err := tx.Where(config.RegisteredModel{Name: mv.Name}).FirstOrCreate(&model).Error; err != nil {
			return fmt.Errorf("failed to ensure registered model: %w", err)
		}

		var current int
		err := tx.Model(&config.ModelVersion{}).
			Where("name = ?", mv.Name).
			Select("COALESCE(MAX(version), 0)").
			Scan(&current).Error
		if err != nil {
			return fmt.Errorf("failed to read latest version: %w", err)
		}
		stored, err := upload(current + 1)
		if err != nil {
			return err
		}
		if stored <= current {
			return fmt.Errorf("upload stored version %d, latest is %d", stored, current)
		}
		mv.Version = stored
		if err := tx.Create(mv).Error; err != nil {
			return fmt.Errorf("failed to create model version: %w", err)
		}
		return tx.Model(&config.RegisteredModel{}).
			Where("name = ?", mv.Name).
			Update("updated_at", time.Now()).Error
	})
}

// GetModelVersion retrieves one version of a model
func (r *Repository) GetModelVersion(ctx context.Context, name string, version int) (*config.ModelVersion, error) {
	var mv config.ModelVersion
	if err := r.db.WithContext(ctx).Where("name = ? AND version = ?", name, version).First(&mv).Error; err != nil {
		return nil, notFound(err)
	}
	return &mv, nil
}

// GetLatestModelVersion retrieves the highest version of a model
func (r *Repository) GetLatestModelVersion(ctx context.Context, name string) (*config.ModelVersion, error) {
	var mv config.ModelVersion
	if err := r.db.WithContext(ctx).Where("name = ?", name).Order("version DESC").First(&mv).Error; err != nil {
		return nil, notFound(err)
	}
	return &mv, nil
}

// GetModelVersionByRun retrieves the version registered by a training run
func (r *Repository) GetModelVersionByRun(ctx context.Context, runID string) (*config.ModelVersion, error) {
	var mv config.ModelVersion
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("version DESC").First(&mv).Error; err != nil {
		return nil, notFound(err)
	}
	return &mv, nil
}

// ListModelVersions lists every version of a model, newest first
func (r *Repository) ListModelVersions(ctx context.Context, name string) ([]config.ModelVersion, error) {
	var versions []config.ModelVersion
	if err := r.db.WithContext(ctx).Where("name = ?", name).Order("version DESC").Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

// ListRegisteredModels lists all registered models by name
func (r *Repository) ListRegisteredModels(ctx context.Context) ([]config.RegisteredModel, error) {
	var models []config.RegisteredModel
	if err := r.db.WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

// GetOrCreateExperiment returns the experiment with the given name, creating it when missing
func (r *Repository) GetOrCreateExperiment(ctx context.Context, name, newID string) (*config.Experiment, error) {
	var exp config.Experiment
	err := r.db.WithContext(ctx).
		Where(config.Experiment{Name: name}).
		Attrs(config.Experiment{ID: newID}).
		FirstOrCreate(&exp).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get or create experiment: %w", err)
	}
	return &exp, nil
}

// CreateRun creates a tracked run record
func (r *Repository) CreateRun(ctx context.Context, run *config.Run) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// LogParams records run parameters; logging an existing key again is rejected
func (r *Repository) LogParams(ctx context.Context, runID string, params map[string]string) error {
	if len(params) == 0 {
		return nil
	}
	rows := make([]config.RunParam, 0, len(params))
	for k, v := range params {
		rows = append(rows, config.RunParam{RunID: runID, Key: k, Value: v})
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to log params: %w", err)
	}
	return nil
}

// LogMetrics records metric values for a run
func (r *Repository) LogMetrics(ctx context.Context, runID string, metrics map[string]float64, step int, ts time.Time) error {
	if len(metrics) == 0 {
		return nil
	}
	rows := make([]config.RunMetric, 0, len(metrics))
	for k, v := range metrics {
		rows = append(rows, config.RunMetric{RunID: runID, Key: k, Value: v, Step: step, Timestamp: ts})
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to log metrics: %w", err)
	}
	return nil
}

// FinishRun sets the terminal status of a run
func (r *Repository) FinishRun(ctx context.Context, runID, status string, end time.Time) error {
	res := r.db.WithContext(ctx).Model(&config.Run{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":     status,
			"end_time":   end,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to finish run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun retrieves a run with its params and metrics
func (r *Repository) GetRun(ctx context.Context, runID string) (*config.Run, error) {
	var run config.Run
	if err := r.db.WithContext(ctx).Preload(clause.Associations).Where("id = ?", runID).First(&run).Error; err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

// ListRuns lists the runs of an experiment, newest first
func (r *Repository) ListRuns(ctx context.Context, experimentName string) ([]config.Run, error) {
	var exp config.Experiment
	if err := r.db.WithContext(ctx).Where("name = ?", experimentName).First(&exp).Error; err != nil {
		return nil, notFound(err)
	}
	var runs []config.Run
	err := r.db.WithContext(ctx).
		Preload(clause.Associations).
		Where("experiment_id = ?", exp.ID).
		Order("start_time DESC").
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// CreateTrainingJob creates a new training job record
func (r *Repository) CreateTrainingJob(req *models.TrainingRunRequest, id, jobName, namespace string) (*config.TrainingJob, error) {
	// Marshal entire request as JSON
	requestJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	job := &config.TrainingJob{
		ID:             id,
		JobName:        jobName,
		Namespace:      namespace,
		ModelName:      req.ModelName,
		RequestPayload: string(requestJSON),
		Status:         StatusPending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := r.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create training job: %w", err)
	}

	return job, nil
}

// GetTrainingJob retrieves a training job by ID
func (r *Repository) GetTrainingJob(id string) (*config.TrainingJob, error) {
	var job config.TrainingJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

// ListTrainingJobs lists training jobs, newest first. An empty namespace lists all.
func (r *Repository) ListTrainingJobs(namespace string) ([]config.TrainingJob, error) {
	var jobs []config.TrainingJob
	query := r.db.Order("created_at DESC")
	if namespace != "" {
		query = query.Where("namespace = ?", namespace)
	}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateTrainingJobStatus updates the status of a training job
func (r *Repository) UpdateTrainingJobStatus(id, status, message string) error {
	return r.db.Model(&config.TrainingJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"message":    message,
			"updated_at": time.Now(),
		}).Error
}

// DeleteTrainingJob soft deletes a training job
func (r *Repository) DeleteTrainingJob(id string) error {
	return r.db.Where("id = ?", id).Delete(&config.TrainingJob{}).Error
}

// ListActiveJobs lists all jobs that are not in terminal state (Succeeded or Failed)
func (r *Repository) ListActiveJobs() ([]config.TrainingJob, error) {
	var jobs []config.TrainingJob
	err := r.db.Where("status NOT IN (?)", []string{StatusSucceeded, StatusFailed}).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ToResponse converts a database TrainingJob to API response
func (r *Repository) ToResponse(job *config.TrainingJob) (*models.TrainingRunResponse, error) {
	// Reconstruct the original request
	var req models.TrainingRunRequest
	if err := json.Unmarshal([]byte(job.RequestPayload), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request payload: %w", err)
	}

	return &models.TrainingRunResponse{
		ID:        job.ID,
		JobName:   job.JobName,
		Namespace: job.Namespace,
		ModelName: job.ModelName,
		Request:   &req,
		Status:    job.Status,
		Message:   job.Message,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}, nil
}
