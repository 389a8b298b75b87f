package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/beatvault/internal/domain/repository"
)

const lockKeyPrefix = "asset-lock:"

// releaseScript deletes the lock only if it still carries our token, so a
// holder whose lease expired cannot release a lease someone else took over.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisAssetLocker implements repository.AssetLocker with SET NX leases.
type RedisAssetLocker struct {
	client *redis.Client
}

var _ repository.AssetLocker = (*RedisAssetLocker)(nil)

// NewRedisAssetLocker creates a new Redis-backed asset locker.
func NewRedisAssetLocker(client *redis.Client) *RedisAssetLocker {
	return &RedisAssetLocker{client: client}
}

// TryLock acquires the lease on assetID for ttl.
func (l *RedisAssetLocker) TryLock(ctx context.Context, assetID uuid.UUID, ttl time.Duration) (func(context.Context) error, bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}
	key := lockKeyPrefix + assetID.String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis release lock: %w", err)
		}
		return nil
	}
	return unlock, true, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
