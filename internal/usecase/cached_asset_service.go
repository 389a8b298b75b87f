package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/beatvault/internal/domain/model"
	"github.com/hszk-dev/beatvault/internal/domain/repository"
	"github.com/hszk-dev/beatvault/internal/infrastructure/cache"
	"github.com/hszk-dev/beatvault/internal/infrastructure/metrics"
)

// CachedAssetServiceConfig holds configuration for CachedAssetService.
type CachedAssetServiceConfig struct {
	// CacheTTL is the TTL for cached asset metadata.
	CacheTTL time.Duration
	// PreviewURLExpiry is the lifetime of presigned preview URLs.
	PreviewURLExpiry time.Duration
}

// DefaultCachedAssetServiceConfig returns the default configuration.
func DefaultCachedAssetServiceConfig() CachedAssetServiceConfig {
	return CachedAssetServiceConfig{
		CacheTTL:         5 * time.Minute,
		PreviewURLExpiry: time.Hour,
	}
}

// cachedAssetService wraps AssetService with caching capabilities.
// Presigned URLs are never cached; they are minted per request from the
// cached metadata.
type cachedAssetService struct {
	delegate AssetService
	cache    cache.AssetCache
	storage  repository.ObjectStorage
	sfGroup  singleflight.Group
	logger   *slog.Logger

	cacheTTL         time.Duration
	previewURLExpiry time.Duration
}

// NewCachedAssetService creates a new CachedAssetService wrapping the provided AssetService.
func NewCachedAssetService(
	delegate AssetService,
	assetCache cache.AssetCache,
	storage repository.ObjectStorage,
	cfg CachedAssetServiceConfig,
	logger *slog.Logger,
) AssetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &cachedAssetService{
		delegate:         delegate,
		cache:            assetCache,
		storage:          storage,
		logger:           logger,
		cacheTTL:         cfg.CacheTTL,
		previewURLExpiry: cfg.PreviewURLExpiry,
	}
}

// CreateAsset delegates to the underlying service.
func (s *cachedAssetService) CreateAsset(ctx context.Context, input CreateAssetInput) (*CreateAssetOutput, error) {
	return s.delegate.CreateAsset(ctx, input)
}

// TriggerProcess invalidates the cache and delegates to the underlying service.
// The worker invalidates again on every status write, so this only covers
// reads between the trigger and the first write.
func (s *cachedAssetService) TriggerProcess(ctx context.Context, assetID uuid.UUID) error {
	if err := s.cache.Delete(ctx, assetID); err != nil {
		s.logger.Warn("failed to invalidate cache on trigger process",
			slog.String("asset_id", assetID.String()),
			slog.String("error", err.Error()),
		)
	}

	return s.delegate.TriggerProcess(ctx, assetID)
}

// GetAsset retrieves asset information with caching and preview URL enrichment.
// Uses singleflight to prevent cache stampede on concurrent requests for the same asset.
func (s *cachedAssetService) GetAsset(ctx context.Context, assetID uuid.UUID) (*AssetDetails, error) {
	result, err, shared := s.sfGroup.Do(assetID.String(), func() (any, error) {
		return s.getAssetWithCache(ctx, assetID)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}

	// Callers sharing a flight get their own copy so cached data stays untouched.
	asset := *result.(*model.Asset)
	return withPreviewURL(ctx, s.storage, &asset, s.previewURLExpiry)
}

func (s *cachedAssetService) ListAssets(ctx context.Context, ownerID uuid.UUID) ([]*model.Asset, error) {
	return s.delegate.ListAssets(ctx, ownerID)
}

func (s *cachedAssetService) AssetEvents(ctx context.Context, assetID uuid.UUID) ([]model.AssetEvent, error) {
	return s.delegate.AssetEvents(ctx, assetID)
}

// getAssetWithCache implements the cache-aside pattern.
func (s *cachedAssetService) getAssetWithCache(ctx context.Context, assetID uuid.UUID) (*model.Asset, error) {
	asset, err := s.cache.Get(ctx, assetID)
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		s.logger.Warn("cache get failed, falling back to database",
			slog.String("asset_id", assetID.String()),
			slog.String("error", err.Error()),
		)
	}

	if asset != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeRedis).Inc()
		return asset, nil
	}
	if err == nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()
	}

	details, err := s.delegate.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	asset = details.Asset

	if err := s.cache.Set(ctx, asset, s.cacheTTL); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		s.logger.Warn("failed to cache asset",
			slog.String("asset_id", assetID.String()),
			slog.String("error", err.Error()),
		)
	} else {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	}

	return asset, nil
}
