package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Errors shared by every blob store
var (
	ErrNotFound = errors.New("object not found")
	ErrExists   = errors.New("object already exists")
)

// MinIOClient stores objects in a single MinIO (S3) bucket
type MinIOClient struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// NewMinIOClientFromK8s creates a MinIO client using credentials from a Kubernetes secret
func NewMinIOClientFromK8s(ctx context.Context, k8sClient kubernetes.Interface, namespace, secretName, bucket string, logger *slog.Logger) (*MinIOClient, error) {
	// Get MinIO credentials from secret
	secret, err := k8sClient.CoreV1().Secrets(namespace).Get(ctx, secretName, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", secretName, err)
	}

	cfg := MinIOConfig{
		Endpoint:  string(secret.Data["endpoint"]),
		AccessKey: string(secret.Data["accesskey"]),
		SecretKey: string(secret.Data["secretkey"]),
		Bucket:    bucket,
	}
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%s is missing required fields (endpoint, accesskey, secretkey)", secretName)
	}

	logger.Info("MinIO credentials loaded from secret", "namespace", namespace, "secret", secretName, "endpoint", cfg.Endpoint)
	return NewMinIOClient(cfg, logger)
}

// NewMinIOClient creates a MinIO client with explicit configuration
func NewMinIOClient(cfg MinIOConfig, logger *slog.Logger) (*MinIOClient, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &MinIOClient{
		client: minioClient,
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (m *MinIOClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		m.logger.Info("creating MinIO bucket", "bucket", m.bucket)
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Put uploads data under key. An existing object is never replaced.
func (m *MinIOClient) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := m.EnsureBucket(ctx); err != nil {
		return err
	}

	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err == nil {
		return fmt.Errorf("%s/%s: %w", m.bucket, key, ErrExists)
	} else if !isNoSuchKey(err) {
		return fmt.Errorf("failed to stat object: %w", err)
	}

	info, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}

	m.logger.Info("object uploaded", "bucket", m.bucket, "key", key, "size", info.Size, "etag", info.ETag)
	return nil
}

// Get downloads the object stored under key
func (m *MinIOClient) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := m.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%s/%s: %w", m.bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Open streams the object stored under key
func (m *MinIOClient) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the first read.
	if _, err := object.Stat(); err != nil {
		object.Close()
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%s/%s: %w", m.bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return object, nil
}

// Delete removes the object stored under key
func (m *MinIOClient) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	m.logger.Info("object deleted", "bucket", m.bucket, "key", key)
	return nil
}

// OpenObject streams an object from any bucket, used for s3:// dataset URIs
func (m *MinIOClient) OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	object, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, fmt.Errorf("failed to stat %s/%s: %w", bucket, key, err)
	}
	return object, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
