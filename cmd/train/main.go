// Command train fits the rental pricing model on a dataset, records the run
// and registers the fitted artifact as a new model version.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loiht2/getaround-pricing/backend/config"
	"github.com/loiht2/getaround-pricing/backend/logging"
	"github.com/loiht2/getaround-pricing/backend/registry"
	"github.com/loiht2/getaround-pricing/backend/repository"
	"github.com/loiht2/getaround-pricing/backend/tracking"
	"github.com/loiht2/getaround-pricing/backend/trainer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("training run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML config file (optional)")
	dataset := flag.String("dataset", os.Getenv("DATASET_URI"), "Dataset location: local path, http(s) URL or s3://bucket/key")
	modelName := flag.String("model-name", trainer.DefaultModelName, "Registered model name")
	experiment := flag.String("experiment", trainer.DefaultExperiment, "Experiment name")
	runName := flag.String("run-name", trainer.DefaultRunName, "Run name")
	seed := flag.Int64("seed", 0, "Seed of the train/test split")
	testSize := flag.Float64("test-size", trainer.DefaultTestSize, "Fraction of rows held out for evaluation")
	flag.Parse()

	if *dataset == "" {
		return errors.New("-dataset is required")
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := logging.Init(settings.Log.Level, settings.Log.Format)
	if id := os.Getenv("TRAINING_RUN_ID"); id != "" {
		logger = logger.With("training_run_id", id)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer cfg.Close()

	repo := repository.NewRepository(cfg.DB)
	reg := registry.New(repo, cfg.Blobs, cfg.Publisher, logger)

	ds, err := trainer.LoadDataset(ctx, *dataset, cfg.Objects)
	if err != nil {
		return fmt.Errorf("%w: %w", trainer.ErrTrainingFailed, err)
	}

	t := trainer.New(tracking.NewStore(repo), reg, logger)
	res, err := t.Train(ctx, ds, trainer.Options{
		Experiment: *experiment,
		RunName:    *runName,
		ModelName:  *modelName,
		TestSize:   *testSize,
		Seed:       *seed,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s registered %s\n", res.RunID, res.Entry.Reference())
	fmt.Printf("  test_r2=%.4f test_rmse=%.4f\n", res.Metrics["test_r2"], res.Metrics["test_rmse"])
	return nil
}
