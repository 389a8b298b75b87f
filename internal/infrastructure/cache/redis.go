package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/beatvault/internal/domain/model"
)

const (
	// assetCacheKeyPrefix is the prefix for asset cache keys in Redis.
	assetCacheKeyPrefix = "asset:"
)

// assetJSON is the cached representation of an Asset.
// An explicit struct keeps the domain model free of JSON tags.
type assetJSON struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Profile     string `json:"profile"`
	OriginalKey string `json:"original_key"`
	ContentType string `json:"content_type"`
	ByteSize    int64  `json:"byte_size"`

	PreviewKey         string    `json:"preview_key,omitempty"`
	PreviewDurationMS  int64     `json:"preview_duration_ms,omitempty"`
	Waveform           []float64 `json:"waveform,omitempty"`
	EncryptedContentID string    `json:"encrypted_content_id,omitempty"`
	KeyEnvelope        string    `json:"key_envelope,omitempty"`

	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// RedisAssetCache implements AssetCache using Redis as the backing store.
type RedisAssetCache struct {
	client *redis.Client
}

var _ AssetCache = (*RedisAssetCache)(nil)

// NewRedisAssetCache creates a new Redis-backed asset cache.
func NewRedisAssetCache(client *redis.Client) *RedisAssetCache {
	return &RedisAssetCache{
		client: client,
	}
}

// Get retrieves an asset from Redis cache.
// Returns nil, nil on cache miss.
func (c *RedisAssetCache) Get(ctx context.Context, assetID uuid.UUID) (*model.Asset, error) {
	data, err := c.client.Get(ctx, c.buildKey(assetID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	asset, err := c.deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("deserialize asset: %w", err)
	}

	return asset, nil
}

// Set stores an asset in Redis cache with the specified TTL.
func (c *RedisAssetCache) Set(ctx context.Context, asset *model.Asset, ttl time.Duration) error {
	data, err := c.serialize(asset)
	if err != nil {
		return fmt.Errorf("serialize asset: %w", err)
	}

	if err := c.client.Set(ctx, c.buildKey(asset.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes an asset from Redis cache.
func (c *RedisAssetCache) Delete(ctx context.Context, assetID uuid.UUID) error {
	if err := c.client.Del(ctx, c.buildKey(assetID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

func (c *RedisAssetCache) buildKey(assetID uuid.UUID) string {
	return assetCacheKeyPrefix + assetID.String()
}

func (c *RedisAssetCache) serialize(a *model.Asset) ([]byte, error) {
	return json.Marshal(assetJSON{
		ID:                 a.ID.String(),
		OwnerID:            a.OwnerID.String(),
		Title:              a.Title,
		Status:             string(a.Status),
		Profile:            string(a.Profile),
		OriginalKey:        a.OriginalKey,
		ContentType:        a.ContentType,
		ByteSize:           a.ByteSize,
		PreviewKey:         a.PreviewKey,
		PreviewDurationMS:  a.PreviewDuration.Milliseconds(),
		Waveform:           a.Waveform,
		EncryptedContentID: a.EncryptedContentID,
		KeyEnvelope:        a.KeyEnvelope,
		ErrorKind:          string(a.ErrorKind),
		ErrorMessage:       a.ErrorMessage,
		CreatedAt:          a.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:          a.UpdatedAt.Format(time.RFC3339Nano),
	})
}

func (c *RedisAssetCache) deserialize(data []byte) (*model.Asset, error) {
	var v assetJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(v.ID)
	if err != nil {
		return nil, fmt.Errorf("parse asset ID: %w", err)
	}

	ownerID, err := uuid.Parse(v.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("parse owner ID: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &model.Asset{
		ID:                 id,
		OwnerID:            ownerID,
		Title:              v.Title,
		Status:             model.Status(v.Status),
		Profile:            model.Profile(v.Profile),
		OriginalKey:        v.OriginalKey,
		ContentType:        v.ContentType,
		ByteSize:           v.ByteSize,
		PreviewKey:         v.PreviewKey,
		PreviewDuration:    time.Duration(v.PreviewDurationMS) * time.Millisecond,
		Waveform:           v.Waveform,
		EncryptedContentID: v.EncryptedContentID,
		KeyEnvelope:        v.KeyEnvelope,
		ErrorKind:          model.ErrorKind(v.ErrorKind),
		ErrorMessage:       v.ErrorMessage,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}, nil
}
