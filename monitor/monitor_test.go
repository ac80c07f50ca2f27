package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loiht2/getaround-pricing/backend/config"
	"github.com/loiht2/getaround-pricing/backend/models"
	"github.com/loiht2/getaround-pricing/backend/registry"
)

type memoryJobs struct {
	mu   sync.Mutex
	jobs map[string]*config.TrainingJob
}

func (m *memoryJobs) ListActiveJobs() ([]config.TrainingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []config.TrainingJob
	for _, j := range m.jobs {
		if j.Status != "Succeeded" && j.Status != "Failed" {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memoryJobs) GetTrainingJob(id string) (*config.TrainingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	c := *j
	return &c, nil
}

func (m *memoryJobs) UpdateTrainingJobStatus(id, status, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].Status = status
	m.jobs[id].Message = message
	return nil
}

type fixedStatus map[string]models.JobStatus

func (f fixedStatus) GetJobStatus(_ context.Context, name, _ string) (*models.JobStatus, error) {
	st, ok := f[name]
	if !ok {
		return nil, errors.New("job not found")
	}
	return &st, nil
}

func TestJobMonitorUpdatesStatus(t *testing.T) {
	store := &memoryJobs{jobs: map[string]*config.TrainingJob{
		"a": {ID: "a", JobName: "job-a", Namespace: "default", Status: "Pending"},
		"b": {ID: "b", JobName: "job-b", Namespace: "default", Status: "Running"},
		"c": {ID: "c", JobName: "job-gone", Namespace: "default", Status: "Running"},
	}}
	cluster := fixedStatus{
		"job-a": {Phase: "Running"},
		"job-b": {Phase: "Failed", Message: "BackoffLimitExceeded"},
	}

	m := NewJobMonitor(store, cluster, time.Hour, nil)
	m.checkAllJobs()

	a, _ := store.GetTrainingJob("a")
	assert.Equal(t, "Running", a.Status)
	b, _ := store.GetTrainingJob("b")
	assert.Equal(t, "Failed", b.Status)
	assert.Equal(t, "BackoffLimitExceeded", b.Message)
	c, _ := store.GetTrainingJob("c")
	assert.Equal(t, "Running", c.Status)
}

func TestJobMonitorStartStop(t *testing.T) {
	store := &memoryJobs{jobs: map[string]*config.TrainingJob{
		"a": {ID: "a", JobName: "job-a", Status: "Pending"},
	}}
	m := NewJobMonitor(store, fixedStatus{"job-a": {Phase: "Succeeded"}}, 10*time.Millisecond, nil)
	m.Start()
	require.Eventually(t, func() bool {
		j, _ := store.GetTrainingJob("a")
		return j.Status == "Succeeded"
	}, time.Second, 10*time.Millisecond)
	m.Stop()
}

type countingWarmer struct {
	mu      sync.Mutex
	calls   int
	version int
	err     error
}

func (c *countingWarmer) Warm(context.Context) (registry.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return registry.Entry{}, c.err
	}
	return registry.Entry{Name: "price", Version: c.version}, nil
}

func TestModelWatcher(t *testing.T) {
	warmer := &countingWarmer{version: 1}
	w := NewModelWatcher(warmer, time.Hour, nil)

	w.check()
	assert.Equal(t, 1, w.Version())

	warmer.version = 2
	w.check()
	assert.Equal(t, 2, w.Version())

	warmer.err = errors.New("registry down")
	w.check()
	assert.Equal(t, 2, w.Version())
}

func TestModelWatcherWarmsOnStart(t *testing.T) {
	warmer := &countingWarmer{version: 3}
	w := NewModelWatcher(warmer, time.Hour, nil)
	w.Start()
	require.Eventually(t, func() bool { return w.Version() == 3 }, time.Second, 5*time.Millisecond)
	w.Stop()
}
