package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loiht2/getaround-pricing/backend/config"
	"github.com/loiht2/getaround-pricing/backend/models"
)

// JobStore reads and updates launched training jobs. *repository.Repository implements it.
type JobStore interface {
	ListActiveJobs() ([]config.TrainingJob, error)
	GetTrainingJob(id string) (*config.TrainingJob, error)
	UpdateTrainingJobStatus(id, status, message string) error
}

// StatusGetter reads the status of a cluster job. *k8s.Client implements it.
type StatusGetter interface {
	GetJobStatus(ctx context.Context, name, namespace string) (*models.JobStatus, error)
}

// JobMonitor polls the cluster for active training jobs and records their status
type JobMonitor struct {
	repo     JobStore
	cluster  StatusGetter
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewJobMonitor creates a new job monitor
func NewJobMonitor(repo JobStore, cluster StatusGetter, interval time.Duration, logger *slog.Logger) *JobMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobMonitor{
		repo:     repo,
		cluster:  cluster,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins monitoring job status
func (m *JobMonitor) Start() {
	m.wg.Add(1)
	go m.monitorLoop()
	m.logger.Info("job monitor started", "interval", m.interval)
}

// Stop stops the job monitor gracefully
func (m *JobMonitor) Stop() {
	close(m.stopChan)
	m.wg.Wait()
	m.logger.Info("job monitor stopped")
}

func (m *JobMonitor) monitorLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.checkAllJobs()
		}
	}
}

func (m *JobMonitor) checkAllJobs() {
	jobs, err := m.repo.ListActiveJobs()
	if err != nil {
		m.logger.Error("failed to list active jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	m.logger.Debug("monitoring active jobs", "count", len(jobs))
	for _, job := range jobs {
		m.checkJobStatus(job)
	}
}

func (m *JobMonitor) checkJobStatus(job config.TrainingJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := m.cluster.GetJobStatus(ctx, job.JobName, job.Namespace)
	if err != nil {
		m.logger.Warn("failed to get job status", "job", job.JobName, "namespace", job.Namespace, "error", err)
		return
	}

	if job.Status != st.Phase || job.Message != st.Message {
		m.logger.Info("job status changed", "id", job.ID, "from", job.Status, "to", st.Phase)
		if err := m.repo.UpdateTrainingJobStatus(job.ID, st.Phase, st.Message); err != nil {
			m.logger.Error("failed to update job status", "id", job.ID, "error", err)
		}
	}
}
