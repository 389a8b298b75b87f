package repository

import (
	"context"
	"io"
	"time"
)

// ObjectStorage is the hot bucket holding raw uploads and previews.
// Keys are bucket-relative paths such as "originals/{asset_id}/beat.wav".
type ObjectStorage interface {
	// GeneratePresignedUploadURL returns a PUT URL the client uploads the
	// original to, bypassing the API.
	GeneratePresignedUploadURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// GeneratePresignedDownloadURL returns a time-limited GET URL, used for
	// preview playback.
	GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Upload is the storage put used by the preview stage.
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Download is the storage get. Returns ErrObjectNotFound for missing keys.
	// Caller closes the returned ReadCloser.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	Delete(ctx context.Context, key string) error

	// Stat returns the metadata of the stored object, or ErrObjectNotFound.
	// The intake checks the uploaded original with it, since a presigned PUT
	// does not bind the size the client declared.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
}

// ObjectInfo is the metadata of a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// ContentStore is the content-addressed cold store for encrypted masters:
// the identifier of stored data is derived from the data itself.
type ContentStore interface {
	// Put stores the content read from r and returns its content identifier
	// ("sha256:<hex>"). Storing identical content twice is a no-op.
	Put(ctx context.Context, r io.Reader) (string, error)

	// Get retrieves content by identifier.
	// Caller closes the returned ReadCloser.
	Get(ctx context.Context, contentID string) (io.ReadCloser, error)
}
