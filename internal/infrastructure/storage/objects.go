package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/hszk-dev/beatvault/internal/domain/repository"
)

// ClientConfig holds configuration for the hot bucket holding originals and previews.
type ClientConfig struct {
	Credentials
	PublicEndpoint string // Optional: external-facing endpoint for presigned URLs
	Bucket         string
}

// Client implements repository.ObjectStorage on a single MinIO bucket.
type Client struct {
	client          minioClient
	presignedClient minioClient // may use the public endpoint
	bucket          string
}

var _ repository.ObjectStorage = (*Client)(nil)

// NewClient creates a new MinIO client.
// It verifies the bucket exists during initialization to fail fast on misconfiguration.
// If PublicEndpoint is set, a separate client is created for presigned URL generation
// so producers get URLs they can reach from outside the cluster.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	adapter, err := dial(cfg.Credentials, cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	var presigned minioClient = adapter
	if cfg.PublicEndpoint != "" {
		public, err := dial(cfg.Credentials, cfg.PublicEndpoint)
		if err != nil {
			return nil, fmt.Errorf("presigned client: %w", err)
		}
		presigned = public
	}

	return newClientWithMinioClient(ctx, adapter, presigned, cfg.Bucket)
}

// newClientWithMinioClient is used for dependency injection in tests.
func newClientWithMinioClient(ctx context.Context, client, presignedClient minioClient, bucket string) (*Client, error) {
	if err := checkBucket(ctx, client, bucket); err != nil {
		return nil, err
	}
	return &Client{
		client:          client,
		presignedClient: presignedClient,
		bucket:          bucket,
	}, nil
}

func checkBucket(ctx context.Context, client minioClient, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", repository.ErrBucketNotFound, bucket)
	}
	return nil
}

// GeneratePresignedUploadURL returns a PUT URL a producer uploads the original to.
func (c *Client) GeneratePresignedUploadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := c.presignedClient.PresignedPutObject(ctx, c.bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned upload URL: %w", err)
	}
	return u.String(), nil
}

// GeneratePresignedDownloadURL returns a GET URL, used for preview playback.
func (c *Client) GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := c.presignedClient.PresignedGetObject(ctx, c.bucket, key, expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return u.String(), nil
}

// Upload stores an object. Files are sent with their size so MinIO can skip
// multipart buffering; other readers are streamed with an unknown size.
func (c *Client) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	_, err := c.client.PutObject(ctx, c.bucket, key, reader, sizeOf(reader), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return nil
}

// Download retrieves an object. Returns repository.ErrObjectNotFound if the
// key does not exist. Caller is responsible for closing the returned ReadCloser.
func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return openObject(ctx, c.client, c.bucket, key)
}

// Delete removes an object from the storage.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// Stat returns the stored size and content type of key. Returns
// repository.ErrObjectNotFound if the key does not exist.
func (c *Client) Stat(ctx context.Context, key string) (*repository.ObjectInfo, error) {
	info, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	return &repository.ObjectInfo{
		Key:         key,
		Size:        info.Size,
		ContentType: info.ContentType,
	}, nil
}

// Ping verifies the MinIO connection is alive by checking bucket access.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.BucketExists(ctx, c.bucket); err != nil {
		return fmt.Errorf("failed to ping minio: %w", err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

func sizeOf(r io.Reader) int64 {
	f, ok := r.(*os.File)
	if !ok {
		return -1
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return -1
	}
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	return info.Size() - pos
}
