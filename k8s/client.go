package k8s

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/loiht2/getaround-pricing/backend/models"
)

// Job phases
const (
	PhasePending   = "Pending"
	PhaseRunning   = "Running"
	PhaseSucceeded = "Succeeded"
	PhaseFailed    = "Failed"
)

// Client handles Kubernetes operations
type Client struct {
	clientset kubernetes.Interface
	logger    *slog.Logger
}

// NewClient creates a new Kubernetes client
func NewClient(clientset kubernetes.Interface, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{clientset: clientset, logger: logger}
}

// CreateJob creates a Kubernetes Job
func (c *Client) CreateJob(ctx context.Context, job *batchv1.Job) (*batchv1.Job, error) {
	createdJob, err := c.clientset.BatchV1().Jobs(job.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	c.logger.Info("created job", "namespace", createdJob.Namespace, "name", createdJob.Name)
	return createdJob, nil
}

// GetJob retrieves a job
func (c *Client) GetJob(ctx context.Context, name, namespace string) (*batchv1.Job, error) {
	job, err := c.clientset.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// GetJobStatus retrieves a job and derives its status
func (c *Client) GetJobStatus(ctx context.Context, name, namespace string) (*models.JobStatus, error) {
	job, err := c.GetJob(ctx, name, namespace)
	if err != nil {
		return nil, err
	}
	return Status(job), nil
}

// DeleteJob deletes a job together with its pods
func (c *Client) DeleteJob(ctx context.Context, name, namespace string) error {
	propagation := metav1.DeletePropagationBackground
	err := c.clientset.BatchV1().Jobs(namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	c.logger.Info("deleted job", "namespace", namespace, "name", name)
	return nil
}

// GetJobLogs returns the last lines logged by each pod of a job
func (c *Client) GetJobLogs(ctx context.Context, name, namespace string, tailLines int64) ([]models.PodLogs, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=%s", name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	logs := make([]models.PodLogs, 0, len(pods.Items))
	for _, pod := range pods.Items {
		opts := &corev1.PodLogOptions{TailLines: &tailLines}
		stream, err := c.clientset.CoreV1().Pods(namespace).GetLogs(pod.Name, opts).Stream(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get logs of pod %s: %w", pod.Name, err)
		}
		data, err := io.ReadAll(stream)
		stream.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read logs of pod %s: %w", pod.Name, err)
		}
		logs = append(logs, models.PodLogs{Pod: pod.Name, Phase: string(pod.Status.Phase), Logs: string(data)})
	}
	return logs, nil
}

// ListNamespaces lists all namespaces
func (c *Client) ListNamespaces(ctx context.Context) ([]corev1.Namespace, error) {
	nsList, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	return nsList.Items, nil
}

// Status derives the phase of a job from its conditions and pod counters
func Status(job *batchv1.Job) *models.JobStatus {
	st := &models.JobStatus{
		Phase:     PhasePending,
		Active:    job.Status.Active,
		Succeeded: job.Status.Succeeded,
		Failed:    job.Status.Failed,
	}
	if job.Status.StartTime != nil {
		t := job.Status.StartTime.Time
		st.StartTime = &t
	}
	if job.Status.CompletionTime != nil {
		t := job.Status.CompletionTime.Time
		st.CompletionTime = &t
	}

	for _, cond := range job.Status.Conditions {
		if cond.Status != corev1.ConditionTrue {
			continue
		}
		switch cond.Type {
		case batchv1.JobComplete:
			st.Phase = PhaseSucceeded
			st.Message = cond.Message
			return st
		case batchv1.JobFailed:
			st.Phase = PhaseFailed
			st.Message = cond.Reason
			if cond.Message != "" {
				st.Message = cond.Reason + ": " + cond.Message
			}
			return st
		}
	}
	switch {
	case job.Status.Succeeded > 0:
		st.Phase = PhaseSucceeded
	case job.Status.Failed > 0 && job.Status.Active == 0:
		st.Phase = PhaseFailed
	case job.Status.Active > 0:
		st.Phase = PhaseRunning
	}
	return st
}
