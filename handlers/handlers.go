package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/loiht2/getaround-pricing/backend/config"
	"github.com/loiht2/getaround-pricing/backend/converter"
	"github.com/loiht2/getaround-pricing/backend/models"
	"github.com/loiht2/getaround-pricing/backend/registry"
	"github.com/loiht2/getaround-pricing/backend/schema"
)

// IndexMessage is returned by GET /
const IndexMessage = `This is the API default endpoint. To get a rental price, POST a car description to "/predict".`

// Predictor serves predictions. *serving.Service implements it.
type Predictor interface {
	Predict(ctx context.Context, record schema.FeatureRecord) (float64, error)
	Reference() registry.Reference
	Current() (registry.Entry, bool)
}

// ModelCatalog lists registry contents. *registry.Registry implements it.
type ModelCatalog interface {
	ListModels(ctx context.Context) ([]config.RegisteredModel, error)
	ListVersions(ctx context.Context, name string) ([]registry.Entry, error)
	Resolve(ctx context.Context, ref registry.Reference) (registry.Entry, error)
}

// RunLister lists tracked runs. *repository.Repository implements it.
type RunLister interface {
	ListRuns(ctx context.Context, experiment string) ([]config.Run, error)
}

// TrainingJobStore persists launched training runs. *repository.Repository implements it.
type TrainingJobStore interface {
	CreateTrainingJob(req *models.TrainingRunRequest, id, jobName, namespace string) (*config.TrainingJob, error)
	GetTrainingJob(id string) (*config.TrainingJob, error)
	ListTrainingJobs(namespace string) ([]config.TrainingJob, error)
	UpdateTrainingJobStatus(id, status, message string) error
	DeleteTrainingJob(id string) error
	ToResponse(job *config.TrainingJob) (*models.TrainingRunResponse, error)
}

// JobCluster runs training Jobs. *k8s.Client implements it.
type JobCluster interface {
	CreateJob(ctx context.Context, job *batchv1.Job) (*batchv1.Job, error)
	GetJobStatus(ctx context.Context, name, namespace string) (*models.JobStatus, error)
	DeleteJob(ctx context.Context, name, namespace string) error
	GetJobLogs(ctx context.Context, name, namespace string, tailLines int64) ([]models.PodLogs, error)
	ListNamespaces(ctx context.Context) ([]corev1.Namespace, error)
}

// Dependencies of a Handler. Cluster and Dashboard may be nil.
type Dependencies struct {
	Predictor Predictor
	Catalog   ModelCatalog
	Runs      RunLister
	Jobs      TrainingJobStore
	Cluster   JobCluster
	Converter *converter.Converter
	Dashboard *DashboardLoader
	Metrics   http.Handler
	Logger    *slog.Logger
}

// Handler handles HTTP requests
type Handler struct {
	predictor Predictor
	catalog   ModelCatalog
	runs      RunLister
	jobs      TrainingJobStore
	cluster   JobCluster
	converter *converter.Converter
	dashboard *DashboardLoader
	metrics   http.Handler
	logger    *slog.Logger
}

// NewHandler creates a new handler instance
func NewHandler(d Dependencies) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Converter == nil {
		d.Converter = converter.NewConverter("", "")
	}
	return &Handler{
		predictor: d.Predictor,
		catalog:   d.Catalog,
		runs:      d.Runs,
		jobs:      d.Jobs,
		cluster:   d.Cluster,
		converter: d.Converter,
		dashboard: d.Dashboard,
		metrics:   d.Metrics,
		logger:    d.Logger,
	}
}

// RegisterRoutes mounts every route on router
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/", h.Index)
	router.GET("/health", h.Health)
	router.POST("/predict", h.Predict)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/features/defaults", h.FeatureDefaults)

		modelRoutes := api.Group("/models")
		{
			modelRoutes.GET("", h.ListModels)
			modelRoutes.GET("/:name/versions", h.ListModelVersions)
			modelRoutes.GET("/:name/versions/:version", h.GetModelVersion)
		}

		api.GET("/experiments/:name/runs", h.ListRuns)

		runs := api.Group("/training-runs")
		{
			runs.POST("", h.CreateTrainingRun)
			runs.GET("", h.ListTrainingRuns)
			runs.GET("/:id", h.GetTrainingRun)
			runs.GET("/:id/status", h.GetTrainingRunStatus)
			runs.GET("/:id/logs", h.GetTrainingRunLogs)
			runs.DELETE("/:id", h.DeleteTrainingRun)
		}

		api.GET("/namespaces", h.ListNamespaces)

		dash := api.Group("/dashboard")
		{
			dash.GET("/summary", h.DashboardSummary)
			dash.GET("/shares", h.DashboardShares)
			dash.GET("/delays", h.DashboardDelays)
			dash.GET("/threshold", h.DashboardThreshold)
			dash.GET("/charts/:chart", h.DashboardChart)
		}
	}
}

// Index handles GET /
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, IndexMessage)
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	resp := gin.H{
		"status": "healthy",
		"model":  h.predictor.Reference().String(),
	}
	if entry, ok := h.predictor.Current(); ok {
		resp["servedVersion"] = entry.Version
	}
	c.JSON(http.StatusOK, resp)
}
