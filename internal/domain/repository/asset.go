package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hszk-dev/beatvault/internal/domain/model"
)

// StatusUpdate describes a single status transition and the fields written with it.
type StatusUpdate struct {
	To model.Status

	// Artifacts is written only when To is model.StatusReady.
	Artifacts *model.Artifacts

	// ErrorKind and ErrorMessage are written only when To is model.StatusError.
	ErrorKind    model.ErrorKind
	ErrorMessage string
}

// AssetRepository defines the interface for asset persistence operations.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type AssetRepository interface {
	// Create persists a new asset entity.
	// Returns ErrDuplicateAsset if the asset already exists.
	Create(ctx context.Context, asset *model.Asset) error

	// GetByID retrieves an asset by its unique identifier.
	// Returns nil and ErrAssetNotFound if the asset does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Asset, error)

	// GetByOwnerID retrieves all assets uploaded by a producer.
	// Returns empty slice if the owner has no assets.
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*model.Asset, error)

	// UpdateStatus atomically applies a status transition together with its
	// fields and records an audit event for it.
	// Returns ErrAssetNotFound if the asset does not exist and
	// ErrStatusConflict if the current status does not allow the transition.
	UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) error

	// Events returns the audit trail of an asset, oldest first.
	Events(ctx context.Context, id uuid.UUID) ([]model.AssetEvent, error)
}
