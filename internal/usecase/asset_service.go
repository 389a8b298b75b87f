package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/beatvault/internal/domain/model"
	"github.com/hszk-dev/beatvault/internal/domain/repository"
	"github.com/hszk-dev/beatvault/internal/validation"
)

var (
	// ErrAssetAlreadyCompleted is returned when attempting to process an asset that has already reached a terminal status.
	ErrAssetAlreadyCompleted = errors.New("asset processing has already completed")

	// ErrOriginalNotUploaded is returned when processing is triggered before the raw upload landed in storage.
	ErrOriginalNotUploaded = errors.New("original upload not found in storage")

	// ErrInvalidFileName is returned when the file name cannot be used as an object key segment.
	ErrInvalidFileName = errors.New("invalid file name")
)

// CreateAssetInput contains the input parameters for creating an asset.
type CreateAssetInput struct {
	OwnerID     uuid.UUID
	Title       string
	FileName    string
	ContentType string
	ByteSize    int64
	Profile     string
}

// CreateAssetOutput contains the result of creating an asset.
type CreateAssetOutput struct {
	Asset     *model.Asset
	UploadURL string
}

// AssetDetails is an asset together with the links a client needs to use it.
type AssetDetails struct {
	Asset *model.Asset
	// PreviewURL is a presigned download URL for the preview clip.
	// It is empty unless the asset is ready.
	PreviewURL string
}

// AssetService defines the interface for asset intake operations.
type AssetService interface {
	// CreateAsset validates the declared upload, creates a draft asset and
	// returns a presigned upload URL for the original.
	// Validation rejections are returned as *model.ProcessingError and no asset is created.
	CreateAsset(ctx context.Context, input CreateAssetInput) (*CreateAssetOutput, error)

	// TriggerProcess queues an uploaded asset for processing.
	// This operation is idempotent - calling it on an asset that is already processing returns nil.
	TriggerProcess(ctx context.Context, assetID uuid.UUID) error

	// GetAsset retrieves an asset by ID.
	GetAsset(ctx context.Context, assetID uuid.UUID) (*AssetDetails, error)

	// ListAssets returns the assets of a producer, newest first.
	ListAssets(ctx context.Context, ownerID uuid.UUID) ([]*model.Asset, error)

	// AssetEvents returns the audit trail of an asset.
	AssetEvents(ctx context.Context, assetID uuid.UUID) ([]model.AssetEvent, error)
}

// AssetServiceConfig holds configuration for AssetService.
type AssetServiceConfig struct {
	UploadURLExpiry  time.Duration
	PreviewURLExpiry time.Duration
}

// DefaultAssetServiceConfig returns the default configuration.
func DefaultAssetServiceConfig() AssetServiceConfig {
	return AssetServiceConfig{
		UploadURLExpiry:  15 * time.Minute,
		PreviewURLExpiry: time.Hour,
	}
}

type assetService struct {
	repo     repository.AssetRepository
	storage  repository.ObjectStorage
	queue    repository.MessageQueue
	profiles *validation.Profiles

	uploadURLExpiry  time.Duration
	previewURLExpiry time.Duration
}

// NewAssetService creates a new AssetService instance.
func NewAssetService(
	repo repository.AssetRepository,
	storage repository.ObjectStorage,
	queue repository.MessageQueue,
	profiles *validation.Profiles,
	cfg AssetServiceConfig,
) AssetService {
	if profiles == nil {
		profiles = validation.DefaultProfiles()
	}
	return &assetService{
		repo:             repo,
		storage:          storage,
		queue:            queue,
		profiles:         profiles,
		uploadURLExpiry:  cfg.UploadURLExpiry,
		previewURLExpiry: cfg.PreviewURLExpiry,
	}
}

// CreateAsset creates asset metadata and generates a presigned upload URL.
func (s *assetService) CreateAsset(ctx context.Context, input CreateAssetInput) (*CreateAssetOutput, error) {
	profile, err := model.ParseProfile(input.Profile)
	if err != nil {
		return nil, err
	}

	if err := s.profiles.Validate(profile, input.ContentType, input.ByteSize); err != nil {
		return nil, err
	}

	asset, err := model.NewAsset(input.OwnerID, input.Title, profile)
	if err != nil {
		return nil, err
	}

	key, err := originalKey(asset.ID, input.FileName)
	if err != nil {
		return nil, err
	}
	asset.SetOriginal(key, input.ContentType, input.ByteSize)

	uploadURL, err := s.storage.GeneratePresignedUploadURL(ctx, key, s.uploadURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("generate presigned upload URL: %w", err)
	}

	if err := s.repo.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("create asset: %w", err)
	}

	return &CreateAssetOutput{
		Asset:     asset,
		UploadURL: uploadURL,
	}, nil
}

// TriggerProcess publishes a processing task for a draft asset.
// The status change to processing is left to the worker's pipeline run.
func (s *assetService) TriggerProcess(ctx context.Context, assetID uuid.UUID) error {
	asset, err := s.repo.GetByID(ctx, assetID)
	if err != nil {
		return err
	}

	switch asset.Status {
	case model.StatusProcessing:
		return nil
	case model.StatusReady, model.StatusError:
		return ErrAssetAlreadyCompleted
	}

	original, err := s.storage.Stat(ctx, asset.OriginalKey)
	if errors.Is(err, repository.ErrObjectNotFound) {
		return ErrOriginalNotUploaded
	}
	if err != nil {
		return fmt.Errorf("check original upload: %w", err)
	}

	// The presigned PUT does not bind the declared size, so the profile limit
	// is applied again to the stored bytes and the task carries their size.
	if err := s.profiles.Validate(asset.Profile, asset.ContentType, original.Size); err != nil {
		return err
	}

	task := repository.ProcessAssetTask{
		AssetID:     asset.ID,
		StorageKey:  asset.OriginalKey,
		ContentType: asset.ContentType,
		ByteSize:    original.Size,
		OwnerID:     asset.OwnerID,
		Profile:     asset.Profile.String(),
	}

	if err := s.queue.PublishProcessTask(ctx, task); err != nil {
		return fmt.Errorf("publish process task: %w", err)
	}

	return nil
}

// GetAsset retrieves asset information by ID.
func (s *assetService) GetAsset(ctx context.Context, assetID uuid.UUID) (*AssetDetails, error) {
	asset, err := s.repo.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return withPreviewURL(ctx, s.storage, asset, s.previewURLExpiry)
}

func (s *assetService) ListAssets(ctx context.Context, ownerID uuid.UUID) ([]*model.Asset, error) {
	return s.repo.GetByOwnerID(ctx, ownerID)
}

func (s *assetService) AssetEvents(ctx context.Context, assetID uuid.UUID) ([]model.AssetEvent, error) {
	// Events of an unknown asset are reported as not found rather than empty.
	if _, err := s.repo.GetByID(ctx, assetID); err != nil {
		return nil, err
	}
	return s.repo.Events(ctx, assetID)
}

// withPreviewURL presigns the preview clip of a ready asset.
func withPreviewURL(ctx context.Context, storage repository.ObjectStorage, asset *model.Asset, expiry time.Duration) (*AssetDetails, error) {
	details := &AssetDetails{Asset: asset}
	if !asset.IsReady() || asset.PreviewKey == "" {
		return details, nil
	}

	url, err := storage.GeneratePresignedDownloadURL(ctx, asset.PreviewKey, expiry)
	if err != nil {
		return nil, fmt.Errorf("generate preview URL: %w", err)
	}
	details.PreviewURL = url
	return details, nil
}

// originalKey creates the storage key for raw uploads.
// Format: originals/{asset_id}/{filename}
func originalKey(assetID uuid.UUID, filename string) (string, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", ErrInvalidFileName
	}
	return path.Join("originals", assetID.String(), name), nil
}
