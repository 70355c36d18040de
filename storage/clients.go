package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Client writes report artifacts to a storage backend.
type Client interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
	// Location returns the externally quotable address of a written key.
	Location(key string) string
	Close() error
}

// Config selects and parameterizes the storage backend.
type Config struct {
	// Type is one of "FS", "GCS", "S3".
	Type       string
	BucketName string
	Region     string
	LocalPath  string
	MaxRetries int
}

// NewClient creates the backend named by cfg.Type, wrapped with retries
// when MaxRetries is positive.
func NewClient(cfg Config) (Client, error) {
	var client Client
	var err error
	switch cfg.Type {
	case "FS":
		client, err = NewLocalFSClient(cfg.LocalPath)
	case "GCS":
		client, err = NewGCSClient(cfg.BucketName)
	case "S3":
		client, err = NewS3Client(cfg.BucketName, cfg.Region)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	if cfg.MaxRetries > 0 {
		client = NewRetryableClient(client, cfg.MaxRetries)
	}
	return client, nil
}

// LocalFSClient implements Client on the local filesystem, mainly for
// development and tests.
type LocalFSClient struct {
	basePath string
}

func NewLocalFSClient(basePath string) (*LocalFSClient, error) {
	if basePath == "~" || len(basePath) > 1 && basePath[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		basePath = filepath.Join(home, basePath[2:])
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalFSClient{basePath: absPath}, nil
}

// Write writes atomically: data goes to a temporary file first, then an
// atomic rename puts it in place.
func (c *LocalFSClient) Write(ctx context.Context, key string, data []byte, contentType string) error {
	cleanKey := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(cleanKey) {
		return fmt.Errorf("absolute paths not allowed in key: %s", key)
	}

	fullPath := filepath.Join(c.basePath, cleanKey)
	rel, err := filepath.Rel(c.basePath, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("invalid key path: %s", key)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(fullPath), err)
	}

	tmpFile := fmt.Sprintf("%s.tmp.%d", fullPath, time.Now().UnixNano())
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if file, err := os.Open(tmpFile); err == nil {
		file.Sync()
		file.Close()
	}
	if err := os.Rename(tmpFile, fullPath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

func (c *LocalFSClient) Location(key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(c.basePath, filepath.FromSlash(key)))
}

func (c *LocalFSClient) Close() error {
	return nil
}

// GCSClient implements Client for Google Cloud Storage.
type GCSClient struct {
	client *gcs.Client
	bucket string
}

// NewGCSClient uses application-default credentials and verifies the
// bucket is reachable before returning.
func NewGCSClient(bucketName string) (*GCSClient, error) {
	ctx := context.Background()
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to access bucket %s: %w", bucketName, err)
	}

	log.Printf("GCSClient initialized for bucket: %s", bucketName)
	return &GCSClient{client: client, bucket: bucketName}, nil
}

func (c *GCSClient) Write(ctx context.Context, key string, data []byte, contentType string) error {
	obj := c.client.Bucket(c.bucket).Object(key)

	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"generator": "dq-check-workflow"}
	w.CacheControl = "no-cache, max-age=0"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write to GCS object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return nil
}

func (c *GCSClient) Location(key string) string {
	return fmt.Sprintf("gs://%s/%s", c.bucket, path.Clean(key))
}

func (c *GCSClient) Close() error {
	return c.client.Close()
}

// S3Client implements Client for Amazon S3.
type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewS3Client loads the default AWS credential chain and verifies the
// bucket is reachable before returning.
func NewS3Client(bucketName, region string) (*S3Client, error) {
	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithRetryMode(aws.RetryModeStandard),
		config.WithRetryMaxAttempts(3),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucketName)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", bucketName, err)
	}

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 3
	})

	log.Printf("S3Client initialized for bucket: %s in region: %s", bucketName, region)
	return &S3Client{client: client, uploader: uploader, bucket: bucketName}, nil
}

func (c *S3Client) Write(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		Metadata:     map[string]string{"generator": "dq-check-workflow"},
		StorageClass: types.StorageClassStandard,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3 %s/%s: %w", c.bucket, key, err)
	}
	return nil
}

func (c *S3Client) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", c.bucket, path.Clean(key))
}

func (c *S3Client) Close() error {
	return nil
}

// RetryableClient wraps a Client with exponential-backoff retries on
// writes. Context cancellation is never retried.
type RetryableClient struct {
	client     Client
	maxRetries int
	retryDelay time.Duration
}

func NewRetryableClient(client Client, maxRetries int) *RetryableClient {
	return &RetryableClient{
		client:     client,
		maxRetries: maxRetries,
		retryDelay: time.Second,
	}
}

func (r *RetryableClient) Write(ctx context.Context, key string, data []byte, contentType string) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.retryDelay * time.Duration(1<<(attempt-1))
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}

			log.Printf("Retrying report write after %v (attempt %d/%d)", delay, attempt, r.maxRetries)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := r.client.Write(ctx, key, data, contentType)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return err
		}
	}

	return fmt.Errorf("failed after %d retries: %w", r.maxRetries, lastErr)
}

func (r *RetryableClient) Location(key string) string {
	return r.client.Location(key)
}

func (r *RetryableClient) Close() error {
	return r.client.Close()
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
