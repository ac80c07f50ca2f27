package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loiht2/getaround-pricing/backend/config"
	"github.com/loiht2/getaround-pricing/backend/models"
	"github.com/loiht2/getaround-pricing/backend/registry"
	"github.com/loiht2/getaround-pricing/backend/repository"
)

// ListModels handles GET /api/v1/models
func (h *Handler) ListModels(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	rows, err := h.catalog.ListModels(ctx)
	if err != nil {
		h.logger.Error("failed to list models", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to list models"})
		return
	}

	responses := make([]models.RegisteredModelResponse, 0, len(rows))
	for _, m := range rows {
		resp := models.RegisteredModelResponse{Name: m.Name, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
		if latest, err := h.catalog.Resolve(ctx, registry.Reference{Name: m.Name}); err == nil {
			resp.LatestVersion = latest.Version
		}
		responses = append(responses, resp)
	}
	c.JSON(http.StatusOK, responses)
}

// ListModelVersions handles GET /api/v1/models/:name/versions
func (h *Handler) ListModelVersions(c *gin.Context) {
	name := c.Param("name")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	entries, err := h.catalog.ListVersions(ctx, name)
	if err != nil {
		h.logger.Error("failed to list model versions", "name", name, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to list model versions"})
		return
	}

	responses := make([]models.ModelVersionResponse, 0, len(entries))
	for _, e := range entries {
		responses = append(responses, versionResponse(e, false))
	}
	c.JSON(http.StatusOK, responses)
}

// GetModelVersion handles GET /api/v1/models/:name/versions/:version.
// The version may be a number or "latest".
func (h *Handler) GetModelVersion(c *gin.Context) {
	ref, err := registry.ParseReference("models:/" + c.Param("name") + "/" + c.Param("version"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid model version", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	entry, err := h.catalog.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Model version not found"})
			return
		}
		h.logger.Error("failed to resolve model version", "ref", ref.String(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to get model version"})
		return
	}
	c.JSON(http.StatusOK, versionResponse(entry, true))
}

func versionResponse(e registry.Entry, withSignature bool) models.ModelVersionResponse {
	resp := models.ModelVersionResponse{
		Name:      e.Name,
		Version:   e.Version,
		RunID:     e.RunID,
		Source:    e.Source,
		Digest:    e.Digest,
		SizeBytes: e.SizeBytes,
		Status:    registry.StatusReady,
		CreatedAt: e.CreatedAt,
	}
	if withSignature {
		sig := e.Signature
		resp.Signature = &sig
	}
	return resp
}

// ListRuns handles GET /api/v1/experiments/:name/runs
func (h *Handler) ListRuns(c *gin.Context) {
	experiment := c.Param("name")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	runs, err := h.runs.ListRuns(ctx, experiment)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Experiment not found"})
			return
		}
		h.logger.Error("failed to list runs", "experiment", experiment, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to list runs"})
		return
	}

	responses := make([]models.RunResponse, 0, len(runs))
	for _, r := range runs {
		responses = append(responses, runResponse(experiment, r))
	}
	c.JSON(http.StatusOK, responses)
}

// runResponse keeps the last logged value of each metric
func runResponse(experiment string, r config.Run) models.RunResponse {
	resp := models.RunResponse{
		ID:         r.ID,
		Experiment: experiment,
		Name:       r.Name,
		Status:     r.Status,
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		Params:     make(map[string]string, len(r.Params)),
		Metrics:    make(map[string]float64, len(r.Metrics)),
	}
	for _, p := range r.Params {
		resp.Params[p.Key] = p.Value
	}
	steps := make(map[string]int, len(r.Metrics))
	for _, m := range r.Metrics {
		if step, seen := steps[m.Key]; seen && step > m.Step {
			continue
		}
		steps[m.Key] = m.Step
		resp.Metrics[m.Key] = m.Value
	}
	return resp
}
