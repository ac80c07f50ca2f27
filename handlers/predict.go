package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loiht2/getaround-pricing/backend/artifact"
	"github.com/loiht2/getaround-pricing/backend/middleware"
	"github.com/loiht2/getaround-pricing/backend/models"
	"github.com/loiht2/getaround-pricing/backend/schema"
	"github.com/loiht2/getaround-pricing/backend/serving"
)

const predictTimeout = 5 * time.Second

// Predict handles POST /predict. Every field is required unless the
// request asks for defaults with ?defaults=true.
func (h *Handler) Predict(c *gin.Context) {
	var payload models.PredictionFeatures
	if fill, _ := strconv.ParseBool(c.Query("defaults")); fill {
		payload = models.DefaultPredictionFeatures()
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid prediction payload",
			"details": err.Error(),
		})
		return
	}

	record := payload.Record()
	if err := record.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid prediction payload",
			"details": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), predictTimeout)
	defer cancel()

	prediction, err := h.predictor.Predict(ctx, record)
	if err != nil {
		status := http.StatusInternalServerError
		msg := "Prediction failed"
		switch {
		case errors.Is(err, schema.ErrValidation):
			status, msg = http.StatusBadRequest, "Invalid prediction payload"
		case errors.Is(err, serving.ErrArtifactUnavailable):
			status, msg = http.StatusServiceUnavailable, "Model is unavailable"
		case errors.Is(err, artifact.ErrNonFinite):
			msg = "Model produced a non-finite prediction"
		}
		h.logger.Error("prediction failed", "request_id", middleware.GetRequestID(c), "error", err)
		c.JSON(status, gin.H{"error": msg, "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.PredictionResponse{Prediction: prediction})
}

// FeatureDefaults handles GET /api/v1/features/defaults
func (h *Handler) FeatureDefaults(c *gin.Context) {
	c.JSON(http.StatusOK, models.DefaultPredictionFeatures())
}
