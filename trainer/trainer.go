package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/loiht2/getaround-pricing/backend/artifact"
	"github.com/loiht2/getaround-pricing/backend/preprocess"
	"github.com/loiht2/getaround-pricing/backend/registry"
	"github.com/loiht2/getaround-pricing/backend/regression"
	"github.com/loiht2/getaround-pricing/backend/schema"
	"github.com/loiht2/getaround-pricing/backend/tracking"
)

// Defaults of a training run
const (
	DefaultExperiment = "getaround-experiment"
	DefaultModelName  = "Car_Rental_Price_Predictor_LR"
	DefaultRunName    = "linear-regression"
	DefaultTestSize   = 0.2
)

// ErrTrainingFailed wraps every error that aborts a run
var ErrTrainingFailed = errors.New("training failed")

// Registrar stores a fitted artifact as a new model version. *registry.Registry implements it.
type Registrar interface {
	Register(ctx context.Context, name, runID string, art *artifact.Artifact) (registry.Entry, error)
}

// Options configures one run
type Options struct {
	Experiment string
	RunName    string
	ModelName  string
	TestSize   float64
	Seed       int64
}

func (o *Options) applyDefaults() {
	if o.Experiment == "" {
		o.Experiment = DefaultExperiment
	}
	if o.RunName == "" {
		o.RunName = DefaultRunName
	}
	if o.ModelName == "" {
		o.ModelName = DefaultModelName
	}
	if o.TestSize == 0 {
		o.TestSize = DefaultTestSize
	}
}

// Result describes a finished run
type Result struct {
	RunID    string
	Artifact *artifact.Artifact
	Entry    registry.Entry
	Metrics  map[string]float64
}

// Trainer fits the pricing model and registers it
type Trainer struct {
	tracker  tracking.Tracker
	registry Registrar
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a trainer
func New(tracker tracking.Tracker, reg Registrar, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{tracker: tracker, registry: reg, logger: logger, now: time.Now}
}

// Train runs one tracked training run on ds. A failure at any step marks the
// run FAILED and returns an error wrapping ErrTrainingFailed; nothing is
// registered in that case.
func (t *Trainer) Train(ctx context.Context, ds *Dataset, opts Options) (*Result, error) {
	opts.applyDefaults()

	runID, err := t.tracker.StartRun(ctx, opts.Experiment, opts.RunName)
	if err != nil {
		return nil, fmt.Errorf("%w: start run: %v", ErrTrainingFailed, err)
	}
	logger := t.logger.With("run_id", runID, "experiment", opts.Experiment)
	logger.Info("training model", "rows", ds.Len(), "source", ds.Source)

	res, err := t.run(ctx, runID, ds, opts)
	if err != nil {
		if endErr := t.tracker.EndRun(context.WithoutCancel(ctx), runID, tracking.StatusFailed); endErr != nil {
			logger.Error("failed to mark run as failed", "error", endErr)
		}
		logger.Error("training failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrTrainingFailed, err)
	}
	if err := t.tracker.EndRun(ctx, runID, tracking.StatusFinished); err != nil {
		logger.Warn("failed to mark run as finished", "error", err)
	}
	logger.Info("training done", "model", res.Entry.Name, "version", res.Entry.Version, "test_r2", res.Metrics["test_r2"])
	return res, nil
}

func (t *Trainer) run(ctx context.Context, runID string, ds *Dataset, opts Options) (*Result, error) {
	start := t.now()

	trainIdx, testIdx, err := TrainTestSplit(ds.Len(), opts.TestSize, opts.Seed)
	if err != nil {
		return nil, err
	}
	trainX, trainY := ds.Subset(trainIdx)
	testX, testY := ds.Subset(testIdx)

	params := map[string]string{
		"test_size":            strconv.FormatFloat(opts.TestSize, 'g', -1, 64),
		"seed":                 strconv.FormatInt(opts.Seed, 10),
		"fit_intercept":        "true",
		"numeric_features":     strings.Join(schema.NumericFeatures, ","),
		"categorical_features": strings.Join(schema.CategoricalFeatures, ","),
		"training_rows":        strconv.Itoa(len(trainIdx)),
		"test_rows":            strconv.Itoa(len(testIdx)),
		"dataset":              ds.Source,
		"model_name":           opts.ModelName,
	}
	if err := t.tracker.LogParams(ctx, runID, params); err != nil {
		return nil, fmt.Errorf("log params: %w", err)
	}

	pipeline := preprocess.NewPipeline()
	if err := pipeline.Fit(trainX); err != nil {
		return nil, fmt.Errorf("fit pipeline: %w", err)
	}
	Xtrain, err := pipeline.Transform(trainX)
	if err != nil {
		return nil, err
	}
	model, err := regression.Fit(Xtrain, trainY)
	if err != nil {
		return nil, fmt.Errorf("fit estimator: %w", err)
	}

	trainPred, err := model.Predict(Xtrain)
	if err != nil {
		return nil, err
	}
	Xtest, err := pipeline.Transform(testX)
	if err != nil {
		return nil, err
	}
	testPred, err := model.Predict(Xtest)
	if err != nil {
		return nil, err
	}
	trainMetrics, err := regression.Evaluate(trainY, trainPred)
	if err != nil {
		return nil, err
	}
	testMetrics, err := regression.Evaluate(testY, testPred)
	if err != nil {
		return nil, err
	}
	metrics := trainMetrics.Map("train_")
	for k, v := range testMetrics.Map("test_") {
		metrics[k] = v
	}
	metrics["training_time_seconds"] = t.now().Sub(start).Seconds()
	if err := t.tracker.LogMetrics(ctx, runID, metrics); err != nil {
		return nil, fmt.Errorf("log metrics: %w", err)
	}

	sig, err := schema.InferSignature(trainX, trainPred)
	if err != nil {
		return nil, err
	}
	art, err := artifact.New(pipeline, model, sig, artifact.Metadata{
		RunID:        runID,
		TrainedAt:    start.UTC(),
		TrainingRows: len(trainIdx),
		TestRows:     len(testIdx),
		Seed:         opts.Seed,
		Metrics:      metrics,
	})
	if err != nil {
		return nil, err
	}

	entry, err := t.registry.Register(ctx, opts.ModelName, runID, art)
	if err != nil {
		return nil, err
	}
	return &Result{RunID: runID, Artifact: art, Entry: entry, Metrics: metrics}, nil
}
