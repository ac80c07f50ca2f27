// Command render-job prints the Kubernetes Job that POST /api/v1/training-runs
// would create, as YAML, for review or kubectl apply.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"github.com/loiht2/getaround-pricing/backend/converter"
	"github.com/loiht2/getaround-pricing/backend/models"
	"github.com/loiht2/getaround-pricing/backend/trainer"
)

func main() {
	var req models.TrainingRunRequest
	flag.StringVar(&req.RunName, "run-name", trainer.DefaultRunName, "Run name")
	flag.StringVar(&req.ModelName, "model-name", trainer.DefaultModelName, "Registered model name")
	flag.StringVar(&req.DatasetURI, "dataset", "", "Dataset location")
	flag.StringVar(&req.Experiment, "experiment", "", "Experiment name")
	flag.Int64Var(&req.Seed, "seed", 0, "Split seed")
	flag.Float64Var(&req.TestSize, "test-size", 0, "Held-out fraction")
	flag.StringVar(&req.Namespace, "namespace", converter.DefaultNamespace, "Target namespace")
	flag.StringVar(&req.Image, "image", "", "Trainer image")
	flag.IntVar(&req.Resources.CPUCores, "cpu", converter.DefaultCPUCores, "CPU cores")
	flag.IntVar(&req.Resources.MemoryGiB, "memory", converter.DefaultMemoryGiB, "Memory in GiB")
	envSecret := flag.String("env-secret", converter.DefaultEnvSecret, "Secret holding trainer environment")
	flag.Parse()

	if req.DatasetURI == "" {
		fmt.Fprintln(os.Stderr, "-dataset is required")
		os.Exit(2)
	}

	job, err := converter.NewConverter("", *envSecret).ToTrainingJob(&req, uuid.New().String(), req.Namespace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error converting request: %v\n", err)
		os.Exit(1)
	}

	// Go through JSON so the output uses the API field names
	data, err := json.Marshal(job)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling job: %v\n", err)
		os.Exit(1)
	}
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(data, &doc); err != nil {
		fmt.Fprintf(os.Stderr, "Error converting to YAML: %v\n", err)
		os.Exit(1)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling to YAML: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(string(out))
}
