package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hszk-dev/beatvault/internal/domain/model"
	"github.com/hszk-dev/beatvault/internal/domain/repository"
)

// PreviewGenerator derives a short, publicly streamable clip from a source.
type PreviewGenerator interface {
	GeneratePreview(ctx context.Context, src Source) (*model.PreviewRef, error)
}

// Clipper measures and cuts audio files on local disk.
type Clipper interface {
	Probe(ctx context.Context, inputPath string) (time.Duration, error)
	Clip(ctx context.Context, inputPath, outputPath string, d time.Duration) error
}

// PreviewConfig holds preview generation settings.
type PreviewConfig struct {
	// Duration is the target clip length. Sources shorter than this are
	// clipped to their own length.
	Duration time.Duration

	// TempDir is the directory for scratch files.
	TempDir string
}

// DefaultPreviewConfig returns the default preview settings.
func DefaultPreviewConfig() PreviewConfig {
	return PreviewConfig{
		Duration: DefaultPreviewDuration,
		TempDir:  os.TempDir(),
	}
}

// ClipPreviewGenerator implements PreviewGenerator by downloading the source,
// clipping it locally and uploading the result.
type ClipPreviewGenerator struct {
	storage repository.ObjectStorage
	clipper Clipper
	config  PreviewConfig
}

var _ PreviewGenerator = (*ClipPreviewGenerator)(nil)

// NewPreviewGenerator creates a new ClipPreviewGenerator.
func NewPreviewGenerator(storage repository.ObjectStorage, clipper Clipper, cfg PreviewConfig) *ClipPreviewGenerator {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultPreviewDuration
	}
	return &ClipPreviewGenerator{
		storage: storage,
		clipper: clipper,
		config:  cfg,
	}
}

// GeneratePreview produces the clip [0, min(Duration, source length)) and
// stores it at PreviewKey(src.AssetID).
func (g *ClipPreviewGenerator) GeneratePreview(ctx context.Context, src Source) (*model.PreviewRef, error) {
	dir, cleanup, err := workDir(g.config.TempDir, "preview-"+src.AssetID.String()+"-")
	if err != nil {
		return nil, fmt.Errorf("preview workspace: %w", err)
	}
	defer cleanup()

	inputPath, err := fetchToFile(ctx, g.storage, src.StorageKey, dir)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}

	sourceLen, err := g.clipper.Probe(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("probe source: %w", err)
	}
	if sourceLen <= 0 {
		return nil, fmt.Errorf("%w: source has no audible duration", ErrUndecodable)
	}

	clipLen := min(g.config.Duration, sourceLen)

	outputPath := filepath.Join(dir, "preview.mp3")
	if err := g.clipper.Clip(ctx, inputPath, outputPath, clipLen); err != nil {
		return nil, fmt.Errorf("clip: %w", err)
	}

	key := PreviewKey(src.AssetID)
	if err := uploadFile(ctx, g.storage, outputPath, key, "audio/mpeg"); err != nil {
		return nil, fmt.Errorf("upload preview: %w", err)
	}

	return &model.PreviewRef{
		Key:         key,
		ContentType: "audio/mpeg",
		Duration:    clipLen,
	}, nil
}

// uploadFile uploads a local file to object storage.
func uploadFile(ctx context.Context, storage repository.ObjectStorage, localPath, key, contentType string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return storage.Upload(ctx, key, file, contentType)
}
