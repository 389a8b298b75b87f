package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/sony/gobreaker"

	"github.com/hszk-dev/beatvault/internal/domain/repository"
	"github.com/hszk-dev/beatvault/internal/infrastructure/metrics"
)

const (
	contentIDPrefix = "sha256:"
	casKeyPrefix    = "sha256/"
)

// ErrInvalidContentID is returned by Get for identifiers not produced by Put.
var ErrInvalidContentID = errors.New("invalid content id")

// BreakerConfig tunes the circuit breaker guarding cold bucket writes.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// HalfOpenRequests is how many probes are let through while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig returns the breaker settings used by the worker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// ColdStoreConfig holds configuration for the content-addressed cold bucket.
type ColdStoreConfig struct {
	Credentials
	Bucket  string
	TempDir string
	Breaker BreakerConfig
}

// ContentStore implements repository.ContentStore on a MinIO bucket.
// Objects are keyed by the SHA-256 of their bytes, so identical ciphertext
// is stored once.
type ContentStore struct {
	client  minioClient
	bucket  string
	tempDir string
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

var _ repository.ContentStore = (*ContentStore)(nil)

// NewContentStore connects to the cold bucket and verifies it exists.
func NewContentStore(ctx context.Context, cfg ColdStoreConfig, logger *slog.Logger) (*ContentStore, error) {
	adapter, err := dial(cfg.Credentials, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return newContentStoreWithClient(ctx, adapter, cfg, logger)
}

func newContentStoreWithClient(ctx context.Context, client minioClient, cfg ColdStoreConfig, logger *slog.Logger) (*ContentStore, error) {
	if err := checkBucket(ctx, client, cfg.Bucket); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	bc := cfg.Breaker
	if bc.MaxFailures == 0 {
		bc = DefaultBreakerConfig()
	}

	s := &ContentStore{
		client:  client,
		bucket:  cfg.Bucket,
		tempDir: cfg.TempDir,
		logger:  logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cold-store",
		MaxRequests: bc.HalfOpenRequests,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// A cancelled caller says nothing about the health of the bucket.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return s, nil
}

// Put spools r to a temporary file while hashing it, then uploads it under
// its digest unless an object with that digest already exists.
func (s *ContentStore) Put(ctx context.Context, r io.Reader) (string, error) {
	f, err := os.CreateTemp(s.tempDir, "cas-*")
	if err != nil {
		return "", fmt.Errorf("failed to create spool file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		return "", fmt.Errorf("failed to spool content: %w", err)
	}
	digest := hex.EncodeToString(h.Sum(nil))
	key := casKeyPrefix + digest

	result, err := s.breaker.Execute(func() (interface{}, error) {
		_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			return metrics.ColdStoreDeduplicated, nil
		}
		if !isNoSuchKey(err) {
			return nil, fmt.Errorf("failed to stat %s: %w", key, err)
		}

		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind spool file: %w", err)
		}
		_, err = s.client.PutObject(ctx, s.bucket, key, f, size, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", key, err)
		}
		return metrics.ColdStoreUploaded, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.ColdStoreUploadsTotal.WithLabelValues(metrics.ColdStoreRejected).Inc()
			return "", fmt.Errorf("cold store unavailable: %w", err)
		}
		metrics.ColdStoreUploadsTotal.WithLabelValues(metrics.ColdStoreError).Inc()
		return "", err
	}

	outcome := result.(string)
	metrics.ColdStoreUploadsTotal.WithLabelValues(outcome).Inc()
	s.logger.DebugContext(ctx, "content stored",
		slog.String("content_id", contentIDPrefix+digest),
		slog.Int64("bytes", size),
		slog.String("result", outcome),
	)
	return contentIDPrefix + digest, nil
}

// Get retrieves content by the identifier Put returned.
// Returns repository.ErrObjectNotFound if nothing is stored under it.
func (s *ContentStore) Get(ctx context.Context, contentID string) (io.ReadCloser, error) {
	key, err := keyFor(contentID)
	if err != nil {
		return nil, err
	}
	return openObject(ctx, s.client, s.bucket, key)
}

// Ping verifies the cold bucket is reachable.
func (s *ContentStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("failed to ping cold store: %w", err)
	}
	return nil
}

func keyFor(contentID string) (string, error) {
	digest, ok := strings.CutPrefix(contentID, contentIDPrefix)
	if !ok || len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidContentID, contentID)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidContentID, contentID)
	}
	return casKeyPrefix + digest, nil
}
