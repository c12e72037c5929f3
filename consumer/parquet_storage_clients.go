package consumer

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// createStorageClient creates the appropriate storage client based on config
func createStorageClient(cfg SaveToParquetConfig) (StorageClient, error) {
	switch cfg.StorageType {
	case "FS":
		return NewLocalFSClient(cfg.LocalPath)
	case "GCS":
		return NewGCSClient(cfg.BucketName)
	case "S3":
		return NewS3Client(cfg.BucketName, cfg.Region)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}

// LocalFSClient implements StorageClient for the local filesystem
type LocalFSClient struct {
	basePath string
}

func NewLocalFSClient(basePath string) (*LocalFSClient, error) {
	// Expand home directory if needed
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

	log.Printf("LocalFSClient initialized with path: %s", absPath)

	return &LocalFSClient{
		basePath: absPath,
	}, nil
}

// Write implements atomic file write for the local filesystem
func (c *LocalFSClient) Write(ctx context.Context, key string, data []byte) error {
	// Sanitize the key to prevent directory traversal
	cleanKey := filepath.Clean(key)
	if filepath.IsAbs(cleanKey) {
		return fmt.Errorf("absolute paths not allowed in key: %s", key)
	}

	fullPath := filepath.Join(c.basePath, cleanKey)

	rel, err := filepath.Rel(c.basePath, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("invalid key path: %s", key)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Write to temporary file first for atomic operation
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

	log.Printf("LocalFSClient: Successfully wrote %d bytes to %s", len(data), fullPath)
	return nil
}

func (c *LocalFSClient) Close() error {
	// Nothing to close for local filesystem
	return nil
}

// GCSClient implements StorageClient for Google Cloud Storage
type GCSClient struct {
	client   *storage.Client
	bucket   string
	metadata map[string]string
}

// NewGCSClient creates a client using application default credentials.
func NewGCSClient(bucketName string) (*GCSClient, error) {
	ctx := context.Background()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	// Verify bucket exists and is accessible
	bucket := client.Bucket(bucketName)
	_, err = bucket.Attrs(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to access bucket %s: %w", bucketName, err)
	}

	log.Printf("GCSClient initialized for bucket: %s", bucketName)

	return &GCSClient{
		client: client,
		bucket: bucketName,
		metadata: map[string]string{
			"format":    "parquet",
			"generator": "batchGPT",
			"version":   "1.0",
		},
	}, nil
}

func (c *GCSClient) Write(ctx context.Context, key string, data []byte) error {
	bucket := c.client.Bucket(c.bucket)
	obj := bucket.Object(key)

	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.Metadata = c.metadata
	w.CacheControl = "no-cache, max-age=0"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write to GCS object %s: %w", key, err)
	}

	// Close writer to finalize upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}

	return nil
}

func (c *GCSClient) Close() error {
	return c.client.Close()
}

// S3Client implements StorageClient for Amazon S3
type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	metadata map[string]string
}

// NewS3Client creates a client using the default AWS credential chain.
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

	// Verify bucket exists and is accessible
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", bucketName, err)
	}

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB per part
		u.Concurrency = 3
	})

	log.Printf("S3Client initialized for bucket: %s in region: %s", bucketName, region)

	return &S3Client{
		client:   client,
		uploader: uploader,
		bucket:   bucketName,
		metadata: map[string]string{
			"format":    "parquet",
			"generator": "batchGPT",
			"version":   "1.0",
		},
	}, nil
}

func (c *S3Client) Write(ctx context.Context, key string, data []byte) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("application/octet-stream"),
		Metadata:     c.metadata,
		StorageClass: types.StorageClassStandard,
	})

	if err != nil {
		return fmt.Errorf("failed to upload to S3 %s/%s: %w", c.bucket, key, err)
	}

	return nil
}

func (c *S3Client) Close() error {
	// S3 client doesn't need explicit closing
	return nil
}

// RetryableStorageClient wraps a StorageClient with retry logic
type RetryableStorageClient struct {
	client     StorageClient
	maxRetries int
	retryDelay time.Duration
}

func NewRetryableStorageClient(client StorageClient, maxRetries int) *RetryableStorageClient {
	return &RetryableStorageClient{
		client:     client,
		maxRetries: maxRetries,
		retryDelay: time.Second,
	}
}

// Write retries transient failures with capped exponential backoff.
func (r *RetryableStorageClient) Write(ctx context.Context, key string, data []byte) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.retryDelay * time.Duration(1<<(attempt-1))
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}

			log.Printf("Retrying write after %v (attempt %d/%d)", delay, attempt, r.maxRetries)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := r.client.Write(ctx, key, data)
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

func (r *RetryableStorageClient) Close() error {
	return r.client.Close()
}

func isRetryableError(err error) bool {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return false
	}
	return true
}
