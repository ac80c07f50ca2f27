package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/loiht2/getaround-pricing/backend/events"
	"github.com/loiht2/getaround-pricing/backend/storage"
)

// ObjectStore holds artifact bytes
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Config holds the shared resources of the backend
type Config struct {
	Settings Settings

	// Database
	DB *gorm.DB

	// Artifact storage; Objects is nil unless MinIO is configured
	Blobs   ObjectStore
	Objects storage.ObjectOpener

	// Optional
	Publisher events.Publisher
	K8sClient kubernetes.Interface
}

// New creates the resources described by settings
func New(ctx context.Context, settings Settings, log *slog.Logger) (*Config, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg := &Config{Settings: settings}

	if settings.Kubernetes.Enabled {
		if err := cfg.initK8sClient(); err != nil {
			return nil, fmt.Errorf("failed to initialize Kubernetes client: %w", err)
		}
		log.Info("kubernetes client initialized")
	}

	if err := cfg.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Info("database initialized", "driver", settings.Database.Driver)

	if err := cfg.initStorage(ctx, log); err != nil {
		cfg.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Info("artifact storage initialized", "backend", settings.Storage.Backend)

	if settings.Kafka.Brokers != "" {
		cfg.Publisher = events.NewKafkaPublisher(settings.Kafka.Brokers, settings.Kafka.Topic)
		log.Info("kafka publisher initialized", "topic", settings.Kafka.Topic)
	}

	return cfg, nil
}

// initK8sClient uses the kubeconfig when set, in-cluster config otherwise
func (c *Config) initK8sClient() error {
	var (
		restConfig *rest.Config
		err        error
	)
	if c.Settings.Kubernetes.Kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", c.Settings.Kubernetes.Kubeconfig)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("failed to create clientset: %w", err)
	}
	c.K8sClient = client
	return nil
}

// initDatabase opens the metadata database and migrates its schema
func (c *Config) initDatabase() error {
	s := c.Settings.Database
	var dialector gorm.Dialector
	switch s.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(s.URL)
	default:
		dialector = postgres.Open(s.URL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	if s.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(s.MaxIdleConns)
	}
	if s.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(s.MaxOpenConns)
	}
	if s.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(s.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(Tables()...); err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	c.DB = db
	return nil
}

func (c *Config) initStorage(ctx context.Context, log *slog.Logger) error {
	s := c.Settings.Storage
	if strings.ToLower(s.Backend) != StorageMinIO {
		local, err := storage.NewLocalStore(s.ArtifactDir)
		if err != nil {
			return err
		}
		c.Blobs = local
		return nil
	}

	var (
		client *storage.MinIOClient
		err    error
	)
	if s.SecretName != "" {
		if c.K8sClient == nil {
			return fmt.Errorf("minio secret %q requires kubernetes to be enabled", s.SecretName)
		}
		ns := s.SecretNamespace
		if ns == "" {
			ns = c.Settings.Kubernetes.Namespace
		}
		client, err = storage.NewMinIOClientFromK8s(ctx, c.K8sClient, ns, s.SecretName, s.MinIO.Bucket, log)
	} else {
		client, err = storage.NewMinIOClient(s.MinIO, log)
	}
	if err != nil {
		return err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return err
	}
	c.Blobs = client
	c.Objects = client
	return nil
}

// Close closes all connections
func (c *Config) Close() {
	if c.Publisher != nil {
		c.Publisher.Close()
	}
	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	if closer, ok := c.Blobs.(io.Closer); ok {
		closer.Close()
	}
}
