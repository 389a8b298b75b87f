// Package audio derives preview clips and waveform data from raw uploads.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/beatvault/internal/domain/repository"
)

const (
	// DefaultPreviewDuration is the target length of a preview clip.
	DefaultPreviewDuration = 30 * time.Second

	// DefaultWaveformPoints is the number of amplitude samples in a waveform.
	DefaultWaveformPoints = 100
)

// ErrUndecodable is returned when the source cannot be decoded as audio.
// Retrying will not help.
var ErrUndecodable = errors.New("source audio could not be decoded")

// Source identifies the raw upload a stage works on.
type Source struct {
	AssetID    uuid.UUID
	StorageKey string
}

// PreviewKey is the storage key of the preview clip derived for an asset.
// Format: previews/{asset_id}/preview.mp3
func PreviewKey(assetID uuid.UUID) string {
	return path.Join("previews", assetID.String(), "preview.mp3")
}

// fetchToFile downloads the object at key into dir and returns the local path.
func fetchToFile(ctx context.Context, storage repository.ObjectStorage, key, dir string) (string, error) {
	reader, err := storage.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf("storage download: %w", err)
	}
	defer func() { _ = reader.Close() }()

	// Keep the extension so ffmpeg can pick a demuxer; the base name is fixed
	// so it never collides with generated outputs.
	localPath := filepath.Join(dir, "source"+filepath.Ext(key))
	file, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create local file: %w", err)
	}

	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("copy to local file: %w", err)
	}

	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close local file: %w", err)
	}

	return localPath, nil
}

// workDir creates a per-call scratch directory under base.
func workDir(base, pattern string) (string, func(), error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", nil, fmt.Errorf("mkdir: %w", err)
	}
	dir, err := os.MkdirTemp(base, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("mkdir temp: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}
