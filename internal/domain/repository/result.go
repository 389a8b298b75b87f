package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/beatvault/internal/domain/model"
)

// PendingResultStore keeps pipeline results whose terminal write failed so
// that a redelivered task can replay the write instead of recomputing stages.
type PendingResultStore interface {
	// Save stores the result keyed by its asset ID.
	Save(ctx context.Context, result *model.PipelineResult, ttl time.Duration) error

	// Get returns the pending result for an asset, or nil, nil if none exists.
	Get(ctx context.Context, assetID uuid.UUID) (*model.PipelineResult, error)

	// Delete removes the pending result for an asset.
	Delete(ctx context.Context, assetID uuid.UUID) error
}

// AssetLocker grants short-lived exclusive leases on an asset so that at
// most one pipeline run per asset executes at a time across workers.
type AssetLocker interface {
	// TryLock acquires the lease for ttl. ok is false when another holder
	// owns it. The returned unlock releases the lease only if it is still
	// held by this caller.
	TryLock(ctx context.Context, assetID uuid.UUID, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}
