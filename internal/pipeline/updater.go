package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/beatvault/internal/domain/model"
	"github.com/hszk-dev/beatvault/internal/domain/repository"
	"github.com/hszk-dev/beatvault/internal/infrastructure/metrics"
)

// StateUpdater applies the asset status writes of a pipeline run.
// Each call is a single atomic write.
type StateUpdater interface {
	MarkProcessing(ctx context.Context, assetID uuid.UUID) error
	MarkReady(ctx context.Context, assetID uuid.UUID, art model.Artifacts) error
	MarkError(ctx context.Context, assetID uuid.UUID, kind model.ErrorKind, message string) error
}

// CacheInvalidator drops cached copies of an asset after it changes.
type CacheInvalidator interface {
	Delete(ctx context.Context, assetID uuid.UUID) error
}

// RetryPolicy bounds the retries of terminal writes.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// InitialBackoff is the wait before the first retry. It doubles after
	// every retry up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns the default terminal write retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       4,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// RepositoryUpdater implements StateUpdater on an AssetRepository.
type RepositoryUpdater struct {
	repo   repository.AssetRepository
	cache  CacheInvalidator
	policy RetryPolicy
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

var _ StateUpdater = (*RepositoryUpdater)(nil)

// NewRepositoryUpdater creates a RepositoryUpdater. cache may be nil.
func NewRepositoryUpdater(repo repository.AssetRepository, cache CacheInvalidator, policy RetryPolicy, logger *slog.Logger) *RepositoryUpdater {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RepositoryUpdater{
		repo:   repo,
		cache:  cache,
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
	}
}

// MarkProcessing moves the asset into processing. It is not retried: a
// failure here happens before any work and the whole task can be redelivered.
func (u *RepositoryUpdater) MarkProcessing(ctx context.Context, assetID uuid.UUID) error {
	err := u.repo.UpdateStatus(ctx, assetID, repository.StatusUpdate{To: model.StatusProcessing})
	if err != nil {
		retryable := !errors.Is(err, repository.ErrStatusConflict) && !errors.Is(err, repository.ErrAssetNotFound)
		return u.persistenceError("mark processing", retryable, err)
	}
	u.invalidate(ctx, assetID)
	return nil
}

// MarkReady moves the asset to ready together with its artifacts.
func (u *RepositoryUpdater) MarkReady(ctx context.Context, assetID uuid.UUID, art model.Artifacts) error {
	return u.terminal(ctx, assetID, repository.StatusUpdate{
		To:        model.StatusReady,
		Artifacts: &art,
	})
}

// MarkError moves the asset to error with the reason the run failed.
func (u *RepositoryUpdater) MarkError(ctx context.Context, assetID uuid.UUID, kind model.ErrorKind, message string) error {
	return u.terminal(ctx, assetID, repository.StatusUpdate{
		To:           model.StatusError,
		ErrorKind:    kind,
		ErrorMessage: message,
	})
}

// terminal applies a terminal write, retrying transient failures with the
// same update. A conflict with an asset already in the requested status
// counts as success so a redelivered result can be replayed safely.
func (u *RepositoryUpdater) terminal(ctx context.Context, assetID uuid.UUID, update repository.StatusUpdate) error {
	backoff := u.policy.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= u.policy.Attempts; attempt++ {
		if attempt > 1 {
			metrics.TerminalWriteRetriesTotal.WithLabelValues(update.To.String()).Inc()
			if err := u.sleep(ctx, backoff); err != nil {
				return u.persistenceError("mark "+update.To.String(), true, errors.Join(lastErr, err))
			}
			backoff = min(backoff*2, u.policy.MaxBackoff)
		}

		err := u.repo.UpdateStatus(ctx, assetID, update)
		if err == nil {
			u.invalidate(ctx, assetID)
			return nil
		}
		lastErr = err

		switch {
		case errors.Is(err, repository.ErrStatusConflict):
			if u.alreadyIn(ctx, assetID, update.To) {
				u.logger.Info("terminal status already applied",
					"asset_id", assetID,
					"status", update.To,
				)
				return nil
			}
			return u.persistenceError("mark "+update.To.String(), false, err)
		case errors.Is(err, repository.ErrAssetNotFound):
			return u.persistenceError("mark "+update.To.String(), false, err)
		}

		u.logger.Warn("terminal status write failed",
			"asset_id", assetID,
			"status", update.To,
			"attempt", attempt,
			"error", err,
		)
	}

	return u.persistenceError("mark "+update.To.String(), true, lastErr)
}

func (u *RepositoryUpdater) alreadyIn(ctx context.Context, assetID uuid.UUID, status model.Status) bool {
	asset, err := u.repo.GetByID(ctx, assetID)
	if err != nil {
		return false
	}
	return asset.Status == status
}

// invalidate drops the cached asset. Cache errors are logged, not returned.
func (u *RepositoryUpdater) invalidate(ctx context.Context, assetID uuid.UUID) {
	if u.cache == nil {
		return
	}
	if err := u.cache.Delete(ctx, assetID); err != nil {
		u.logger.Warn("failed to invalidate asset cache",
			"asset_id", assetID,
			"error", err,
		)
	}
}

func (u *RepositoryUpdater) persistenceError(op string, retryable bool, err error) error {
	pe := model.NewProcessingError(model.KindPersistenceFailed, retryable, err)
	pe.Message = op
	return pe
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
