package converter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/loiht2/getaround-pricing/backend/models"
)

const (
	DefaultImage      = "loiht2/getaround-pricing-train:latest"
	DefaultNamespace  = "default"
	DefaultCPUCores   = 1
	DefaultMemoryGiB  = 2
	DefaultEnvSecret  = "getaround-pricing-env"
	ContainerName     = "trainer"
	TrainerEntrypoint = "/app/train"

	LabelApp       = "app"
	LabelRunID     = "training-run-id"
	LabelModelName = "model-name"
	AppName        = "getaround-pricing-train"

	ttlAfterFinished = 24 * 60 * 60
)

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)
	repeatedDashes   = regexp.MustCompile(`-{2,}`)
)

// sanitize lowers s to a DNS-1123 label body
func sanitize(s string) string {
	s = invalidNameChars.ReplaceAllString(strings.ToLower(s), "-")
	s = repeatedDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Converter builds Kubernetes Jobs that run the trainer binary
type Converter struct {
	Image     string
	EnvSecret string // secret holding DATABASE_URL and MINIO_* for the trainer
}

// NewConverter creates a new converter instance
func NewConverter(image, envSecret string) *Converter {
	if image == "" {
		image = DefaultImage
	}
	if envSecret == "" {
		envSecret = DefaultEnvSecret
	}
	return &Converter{Image: image, EnvSecret: envSecret}
}

// JobName derives a DNS-1123 job name from the run name and run id
func JobName(runName, id string) string {
	name := sanitize(runName)
	if len(name) > 40 {
		name = strings.TrimRight(name[:40], "-")
	}
	if name == "" {
		name = "train"
	}
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return name + "-" + short
}

// Args returns the trainer command line for req
func Args(req *models.TrainingRunRequest) []string {
	args := []string{
		"-dataset", req.DatasetURI,
		"-model-name", req.ModelName,
		"-run-name", req.RunName,
		"-seed", strconv.FormatInt(req.Seed, 10),
	}
	if req.Experiment != "" {
		args = append(args, "-experiment", req.Experiment)
	}
	if req.TestSize > 0 {
		args = append(args, "-test-size", strconv.FormatFloat(req.TestSize, 'g', -1, 64))
	}
	return args
}

// ToTrainingJob converts a training run request to a batch Job
func (c *Converter) ToTrainingJob(req *models.TrainingRunRequest, id, namespace string) (*batchv1.Job, error) {
	if namespace == "" {
		namespace = req.Namespace
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	image := req.Image
	if image == "" {
		image = c.Image
	}

	resources, err := buildResources(req.Resources)
	if err != nil {
		return nil, err
	}

	labels := map[string]string{
		LabelApp:       AppName,
		LabelRunID:     id,
		LabelModelName: sanitize(req.ModelName),
	}
	backoff := int32(0)
	ttl := int32(ttlAfterFinished)

	job := &batchv1.Job{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "batch/v1",
			Kind:       "Job",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      JobName(req.RunName, id),
			Namespace: namespace,
			Labels:    labels,
			Annotations: map[string]string{
				LabelRunID:   id,
				"model-name": req.ModelName,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoff,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
					Annotations: map[string]string{
						"sidecar.istio.io/inject": "false",
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:      ContainerName,
							Image:     image,
							Command:   []string{TrainerEntrypoint},
							Args:      Args(req),
							Resources: resources,
							EnvFrom: []corev1.EnvFromSource{
								{
									SecretRef: &corev1.SecretEnvSource{
										LocalObjectReference: corev1.LocalObjectReference{Name: c.EnvSecret},
									},
								},
							},
							Env: []corev1.EnvVar{
								{Name: "TRAINING_RUN_ID", Value: id},
								{Name: "LOG_FORMAT", Value: "json"},
							},
						},
					},
				},
			},
		},
	}
	return job, nil
}

func buildResources(r models.Resources) (corev1.ResourceRequirements, error) {
	cpu := r.CPUCores
	if cpu <= 0 {
		cpu = DefaultCPUCores
	}
	mem := r.MemoryGiB
	if mem <= 0 {
		mem = DefaultMemoryGiB
	}
	cpuQty, err := resource.ParseQuantity(strconv.Itoa(cpu))
	if err != nil {
		return corev1.ResourceRequirements{}, fmt.Errorf("invalid cpu: %w", err)
	}
	memQty, err := resource.ParseQuantity(fmt.Sprintf("%dGi", mem))
	if err != nil {
		return corev1.ResourceRequirements{}, fmt.Errorf("invalid memory: %w", err)
	}
	list := corev1.ResourceList{
		corev1.ResourceCPU:    cpuQty,
		corev1.ResourceMemory: memQty,
	}
	return corev1.ResourceRequirements{Limits: list, Requests: list.DeepCopy()}, nil
}
