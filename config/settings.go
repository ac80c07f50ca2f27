package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v2"

	"github.com/loiht2/getaround-pricing/backend/storage"
)

// Storage backends
const (
	StorageMinIO = "minio"
	StorageLocal = "local"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Settings is the process configuration, read from YAML and the environment
type Settings struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"ginMode"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Database struct {
		Driver          string        `yaml:"driver"`
		URL             string        `yaml:"url"`
		MaxIdleConns    int           `yaml:"maxIdleConns"`
		MaxOpenConns    int           `yaml:"maxOpenConns"`
		ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	} `yaml:"database"`

	Model struct {
		URI           string        `yaml:"uri"`
		WatchInterval time.Duration `yaml:"watchInterval"`
	} `yaml:"model"`

	Storage struct {
		Backend     string              `yaml:"backend"`
		ArtifactDir string              `yaml:"artifactDir"`
		MinIO       storage.MinIOConfig `yaml:"minio"`
		// MinIO credentials are read from this secret when set
		SecretName      string `yaml:"secretName"`
		SecretNamespace string `yaml:"secretNamespace"`
	} `yaml:"storage"`

	Kafka struct {
		Brokers string `yaml:"brokers"`
		Topic   string `yaml:"topic"`
	} `yaml:"kafka"`

	Kubernetes struct {
		Enabled         bool          `yaml:"enabled"`
		Kubeconfig      string        `yaml:"kubeconfig"`
		Namespace       string        `yaml:"namespace"`
		TrainerImage    string        `yaml:"trainerImage"`
		EnvSecret       string        `yaml:"envSecret"`
		MonitorInterval time.Duration `yaml:"monitorInterval"`
	} `yaml:"kubernetes"`

	Dashboard struct {
		DataURL string `yaml:"dataUrl"`
	} `yaml:"dashboard"`
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	var s Settings
	s.Port = "8080"
	s.GinMode = "release"
	s.Log.Level = "info"
	s.Log.Format = "text"
	s.Database.Driver = DriverPostgres
	s.Database.MaxIdleConns = 10
	s.Database.MaxOpenConns = 100
	s.Database.ConnMaxLifetime = time.Hour
	s.Model.URI = "models:/Car_Rental_Price_Predictor_LR/latest"
	s.Model.WatchInterval = 30 * time.Second
	s.Storage.Backend = StorageLocal
	s.Storage.ArtifactDir = "./artifacts"
	s.Storage.MinIO.Bucket = "models"
	s.Kafka.Topic = "model-registry-events"
	s.Kubernetes.Namespace = "default"
	s.Kubernetes.MonitorInterval = 5 * time.Second
	s.Dashboard.DataURL = "https://full-stack-assets.s3.eu-west-3.amazonaws.com/Deployment/get_around_delay_analysis.xlsx"
	return s
}

// Load reads path (optional) over the defaults, then applies environment overrides
func Load(path string) (Settings, error) {
	s := DefaultSettings()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := s.applyEnv(); err != nil {
		return s, err
	}
	return s, s.Validate()
}

func (s *Settings) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	var result *multierror.Error
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &s.Port)
	str("GIN_MODE", &s.GinMode)
	str("LOG_LEVEL", &s.Log.Level)
	str("LOG_FORMAT", &s.Log.Format)
	str("DATABASE_DRIVER", &s.Database.Driver)
	str("DATABASE_URL", &s.Database.URL)
	str("MODEL_URI", &s.Model.URI)
	duration("MODEL_WATCH_INTERVAL", &s.Model.WatchInterval)
	str("STORAGE_BACKEND", &s.Storage.Backend)
	str("ARTIFACT_DIR", &s.Storage.ArtifactDir)
	str("MINIO_ENDPOINT", &s.Storage.MinIO.Endpoint)
	str("MINIO_ACCESS_KEY", &s.Storage.MinIO.AccessKey)
	str("MINIO_SECRET_KEY", &s.Storage.MinIO.SecretKey)
	str("MINIO_BUCKET", &s.Storage.MinIO.Bucket)
	boolean("MINIO_USE_SSL", &s.Storage.MinIO.UseSSL)
	str("MINIO_SECRET_NAME", &s.Storage.SecretName)
	str("MINIO_SECRET_NAMESPACE", &s.Storage.SecretNamespace)
	str("KAFKA_BROKERS", &s.Kafka.Brokers)
	str("KAFKA_TOPIC", &s.Kafka.Topic)
	boolean("K8S_ENABLED", &s.Kubernetes.Enabled)
	str("KUBECONFIG", &s.Kubernetes.Kubeconfig)
	str("TRAINING_NAMESPACE", &s.Kubernetes.Namespace)
	str("TRAINER_IMAGE", &s.Kubernetes.TrainerImage)
	str("TRAINER_ENV_SECRET", &s.Kubernetes.EnvSecret)
	duration("JOB_MONITOR_INTERVAL", &s.Kubernetes.MonitorInterval)
	str("DASHBOARD_DATA_URL", &s.Dashboard.DataURL)

	// a MinIO endpoint alone selects the MinIO backend
	if os.Getenv("STORAGE_BACKEND") == "" && os.Getenv("MINIO_ENDPOINT") != "" {
		s.Storage.Backend = StorageMinIO
	}
	return result.ErrorOrNil()
}

// Validate reports every invalid setting
func (s Settings) Validate() error {
	var result *multierror.Error
	if s.Port == "" {
		result = multierror.Append(result, errors.New("port is required"))
	}
	switch s.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown database driver %q", s.Database.Driver))
	}
	if s.Database.URL == "" {
		result = multierror.Append(result, errors.New("database url is required"))
	}
	switch strings.ToLower(s.Storage.Backend) {
	case StorageLocal:
		if s.Storage.ArtifactDir == "" {
			result = multierror.Append(result, errors.New("artifact dir is required for local storage"))
		}
	case StorageMinIO:
		if s.Storage.MinIO.Bucket == "" {
			result = multierror.Append(result, errors.New("minio bucket is required"))
		}
		if s.Storage.SecretName == "" && s.Storage.MinIO.Endpoint == "" {
			result = multierror.Append(result, errors.New("minio endpoint or credentials secret is required"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown storage backend %q", s.Storage.Backend))
	}
	if s.Kafka.Brokers != "" && s.Kafka.Topic == "" {
		result = multierror.Append(result, errors.New("kafka topic is required when brokers are set"))
	}
	return result.ErrorOrNil()
}
