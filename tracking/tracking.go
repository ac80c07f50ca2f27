package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loiht2/getaround-pricing/backend/config"
)

// Run statuses
const (
	StatusRunning  = "RUNNING"
	StatusFinished = "FINISHED"
	StatusFailed   = "FAILED"
)

// Tracker records training runs
type Tracker interface {
	StartRun(ctx context.Context, experiment, name string) (string, error)
	LogParams(ctx context.Context, runID string, params map[string]string) error
	LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error
	EndRun(ctx context.Context, runID, status string) error
}

// RunStore is the persistence used by Store. *repository.Repository implements it.
type RunStore interface {
	GetOrCreateExperiment(ctx context.Context, name, newID string) (*config.Experiment, error)
	CreateRun(ctx context.Context, run *config.Run) error
	LogParams(ctx context.Context, runID string, params map[string]string) error
	LogMetrics(ctx context.Context, runID string, metrics map[string]float64, step int, ts time.Time) error
	FinishRun(ctx context.Context, runID, status string, end time.Time) error
}

// Store is a Tracker backed by the metadata database
type Store struct {
	runs RunStore
	now  func() time.Time
}

// NewStore creates a database backed tracker
func NewStore(runs RunStore) *Store {
	return &Store{runs: runs, now: time.Now}
}

// StartRun creates a RUNNING run under experiment, creating the experiment if needed
func (s *Store) StartRun(ctx context.Context, experiment, name string) (string, error) {
	exp, err := s.runs.GetOrCreateExperiment(ctx, experiment, uuid.NewString())
	if err != nil {
		return "", err
	}
	run := &config.Run{
		ID:           uuid.NewString(),
		ExperimentID: exp.ID,
		Name:         name,
		Status:       StatusRunning,
		StartTime:    s.now(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return "", err
	}
	return run.ID, nil
}

func (s *Store) LogParams(ctx context.Context, runID string, params map[string]string) error {
	return s.runs.LogParams(ctx, runID, params)
}

func (s *Store) LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	return s.runs.LogMetrics(ctx, runID, metrics, 0, s.now())
}

// EndRun sets the terminal status of a run
func (s *Store) EndRun(ctx context.Context, runID, status string) error {
	switch status {
	case StatusFinished, StatusFailed:
	default:
		return fmt.Errorf("invalid terminal status %q", status)
	}
	return s.runs.FinishRun(ctx, runID, status, s.now())
}
