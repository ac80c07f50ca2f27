package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loiht2/getaround-pricing/backend/middleware"
	"github.com/loiht2/getaround-pricing/backend/models"
	"github.com/loiht2/getaround-pricing/backend/repository"
)

func (h *Handler) requireCluster(c *gin.Context) bool {
	if h.cluster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Kubernetes is not configured"})
		return false
	}
	return true
}

// CreateTrainingRun handles POST /api/v1/training-runs
func (h *Handler) CreateTrainingRun(c *gin.Context) {
	if !h.requireCluster(c) {
		return
	}

	var req models.TrainingRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}
	if req.Namespace == "" {
		req.Namespace = middleware.GetTargetNamespace(c)
	}

	id := uuid.New().String()
	job, err := h.converter.ToTrainingJob(&req, id, req.Namespace)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to build training job",
			"details": err.Error(),
		})
		return
	}

	record, err := h.jobs.CreateTrainingJob(&req, id, job.Name, job.Namespace)
	if err != nil {
		h.logger.Error("failed to save training run", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save training run"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if _, err := h.cluster.CreateJob(ctx, job); err != nil {
		h.logger.Error("failed to create training job", "id", id, "job", job.Name, "error", err)
		if uerr := h.jobs.UpdateTrainingJobStatus(id, repository.StatusFailed, err.Error()); uerr != nil {
			h.logger.Error("failed to mark training run failed", "id", id, "error", uerr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create training job",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.jobs.ToResponse(record)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("training run created", "id", id, "job", job.Name, "namespace", job.Namespace)
	c.JSON(http.StatusCreated, resp)
}

// ListTrainingRuns handles GET /api/v1/training-runs?namespace=
func (h *Handler) ListTrainingRuns(c *gin.Context) {
	namespace := c.Query("namespace")
	jobs, err := h.jobs.ListTrainingJobs(namespace)
	if err != nil {
		h.logger.Error("failed to list training runs", "namespace", namespace, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list training runs"})
		return
	}

	responses := make([]*models.TrainingRunResponse, 0, len(jobs))
	for i := range jobs {
		resp, err := h.jobs.ToResponse(&jobs[i])
		if err != nil {
			h.logger.Warn("skipping unreadable training run", "id", jobs[i].ID, "error", err)
			continue
		}
		responses = append(responses, resp)
	}
	c.JSON(http.StatusOK, responses)
}

// lookupRun writes the error response itself when it returns false
func (h *Handler) lookupRun(c *gin.Context) (*models.TrainingRunResponse, bool) {
	id := c.Param("id")
	job, err := h.jobs.GetTrainingJob(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Training run not found"})
			return nil, false
		}
		h.logger.Error("failed to get training run", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get training run"})
		return nil, false
	}
	resp, err := h.jobs.ToResponse(job)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return resp, true
}

// GetTrainingRun handles GET /api/v1/training-runs/:id
func (h *Handler) GetTrainingRun(c *gin.Context) {
	resp, ok := h.lookupRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetTrainingRunStatus handles GET /api/v1/training-runs/:id/status
func (h *Handler) GetTrainingRunStatus(c *gin.Context) {
	if !h.requireCluster(c) {
		return
	}
	resp, ok := h.lookupRun(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	status, err := h.cluster.GetJobStatus(ctx, resp.JobName, resp.Namespace)
	if err != nil {
		h.logger.Error("failed to get job status", "id", resp.ID, "job", resp.JobName, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Training job not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        resp.ID,
		"jobName":   resp.JobName,
		"namespace": resp.Namespace,
		"status":    status,
	})
}

// DeleteTrainingRun handles DELETE /api/v1/training-runs/:id
func (h *Handler) DeleteTrainingRun(c *gin.Context) {
	if !h.requireCluster(c) {
		return
	}
	resp, ok := h.lookupRun(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := h.cluster.DeleteJob(ctx, resp.JobName, resp.Namespace); err != nil {
		h.logger.Error("failed to delete job", "id", resp.ID, "job", resp.JobName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to delete training job",
			"details": err.Error(),
		})
		return
	}
	if err := h.jobs.DeleteTrainingJob(resp.ID); err != nil {
		h.logger.Error("failed to delete training run", "id", resp.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete training run"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Training run deleted successfully"})
}

// GetTrainingRunLogs handles GET /api/v1/training-runs/:id/logs?tail=
func (h *Handler) GetTrainingRunLogs(c *gin.Context) {
	if !h.requireCluster(c) {
		return
	}
	tail := int64(100)
	if raw := c.Query("tail"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 || n > 5000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tail must be an integer in [1, 5000]"})
			return
		}
		tail = n
	}
	resp, ok := h.lookupRun(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	logs, err := h.cluster.GetJobLogs(ctx, resp.JobName, resp.Namespace, tail)
	if err != nil {
		h.logger.Error("failed to get job logs", "id", resp.ID, "job", resp.JobName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get training job logs",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      resp.ID,
		"jobName": resp.JobName,
		"pods":    logs,
	})
}

// ListNamespaces handles GET /api/v1/namespaces
func (h *Handler) ListNamespaces(c *gin.Context) {
	if !h.requireCluster(c) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	namespaces, err := h.cluster.ListNamespaces(ctx)
	if err != nil {
		h.logger.Error("failed to list namespaces", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list namespaces"})
		return
	}

	names := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		names = append(names, ns.Name)
	}
	sort.Strings(names)
	c.JSON(http.StatusOK, gin.H{"namespaces": names})
}
