package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hszk-dev/beatvault/internal/domain/model"
	"github.com/hszk-dev/beatvault/internal/domain/repository"
	"github.com/hszk-dev/beatvault/internal/infrastructure/metrics"
	"github.com/hszk-dev/beatvault/internal/pipeline"
)

const (
	// DefaultMaxRetries is the default maximum number of redeliveries before a task is dropped.
	DefaultMaxRetries = 3
)

// ErrTerminalWritePending is returned when a run finished but its terminal
// status write was stashed for replay on redelivery.
var ErrTerminalWritePending = errors.New("terminal status write pending")

// Pipeline runs the processing stages for one upload.
type Pipeline interface {
	Run(ctx context.Context, req model.UploadRequest) *model.PipelineResult
}

var _ Pipeline = (*pipeline.Orchestrator)(nil)

// ProcessServiceConfig holds configuration for ProcessService.
type ProcessServiceConfig struct {
	// MaxRetries is the maximum number of redeliveries before a task is dropped.
	MaxRetries int
	// PendingTTL bounds how long a stashed terminal write waits for replay.
	PendingTTL time.Duration
	// LeaseTTL is the lifetime of the per-asset lease. It must exceed the
	// longest possible run.
	LeaseTTL time.Duration
}

// DefaultProcessServiceConfig returns the default configuration.
func DefaultProcessServiceConfig() ProcessServiceConfig {
	return ProcessServiceConfig{
		MaxRetries: DefaultMaxRetries,
		PendingTTL: 24 * time.Hour,
		LeaseTTL:   30 * time.Minute,
	}
}

// ProcessService defines the interface for worker side task handling.
type ProcessService interface {
	// ProcessTask handles a processing task from the message queue.
	// Returns nil when the task is finished (successfully or permanently failed)
	// and an error when it should be redelivered.
	ProcessTask(ctx context.Context, task repository.ProcessAssetTask) error
}

type processService struct {
	pipeline Pipeline
	updater  pipeline.StateUpdater
	pending  repository.PendingResultStore
	locker   repository.AssetLocker
	logger   *slog.Logger

	maxRetries int
	pendingTTL time.Duration
	leaseTTL   time.Duration
}

// NewProcessService creates a new ProcessService instance.
func NewProcessService(
	p Pipeline,
	updater pipeline.StateUpdater,
	pending repository.PendingResultStore,
	locker repository.AssetLocker,
	cfg ProcessServiceConfig,
	logger *slog.Logger,
) ProcessService {
	def := DefaultProcessServiceConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = def.PendingTTL
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = def.LeaseTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &processService{
		pipeline:   p,
		updater:    updater,
		pending:    pending,
		locker:     locker,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		pendingTTL: cfg.PendingTTL,
		leaseTTL:   cfg.LeaseTTL,
	}
}

// ProcessTask runs the pipeline for the task's asset while holding its lease.
// A stashed terminal write from an earlier delivery is replayed instead of
// running the stages again.
func (s *processService) ProcessTask(ctx context.Context, task repository.ProcessAssetTask) error {
	log := s.logger.With(
		slog.String("asset_id", task.AssetID.String()),
		slog.Int("retry_count", task.RetryCount),
	)

	unlock, ok, err := s.locker.TryLock(ctx, task.AssetID, s.leaseTTL)
	if err != nil {
		return s.retryOrDrop(log, task, fmt.Errorf("acquire asset lease: %w", err))
	}
	if !ok {
		log.Info("asset is being processed by another worker, dropping duplicate task")
		return nil
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release asset lease", slog.String("error", err.Error()))
		}
	}()

	stashed, err := s.pending.Get(ctx, task.AssetID)
	if err != nil {
		return s.retryOrDrop(log, task, fmt.Errorf("load pending result: %w", err))
	}
	if stashed != nil {
		return s.replay(ctx, log, task, stashed)
	}

	result := s.pipeline.Run(ctx, task.UploadRequest())
	return s.handleResult(ctx, log, task, result)
}

func (s *processService) handleResult(ctx context.Context, log *slog.Logger, task repository.ProcessAssetTask, result *model.PipelineResult) error {
	switch {
	case result.Success:
		return nil

	case result.ErrorKind == model.KindPersistenceFailed && result.Unwritten != nil:
		// A replay cannot fix a write the repository refused outright.
		if !result.Retryable || task.RetryCount >= s.maxRetries {
			s.abandon(ctx, log, result, errors.New(result.ErrorMessage))
			return nil
		}
		if err := s.pending.Save(ctx, result, s.pendingTTL); err != nil {
			// The next delivery recomputes the stages.
			log.Error("failed to stash terminal write",
				slog.String("error", err.Error()),
				slog.Any("orphaned", result.Orphaned),
			)
			return fmt.Errorf("stash terminal write: %w", err)
		}
		metrics.PendingResultsTotal.WithLabelValues(metrics.PendingSaved).Inc()
		log.Warn("terminal write stashed for replay",
			slog.String("status", result.Unwritten.Status.String()),
			slog.String("error", result.ErrorMessage),
		)
		return ErrTerminalWritePending

	case result.ErrorKind == model.KindPersistenceFailed:
		if result.Retryable && task.RetryCount < s.maxRetries {
			return fmt.Errorf("start processing: %s", result.ErrorMessage)
		}
		log.Error("dropping task after persistence failure",
			slog.String("error", result.ErrorMessage),
			slog.Bool("retryable", result.Retryable),
		)
		return nil

	default:
		// The pipeline already recorded the failure on the asset, or left
		// it untouched for a validation rejection.
		log.Info("task finished without success",
			slog.String("error_kind", result.ErrorKind.String()),
			slog.String("error", result.ErrorMessage),
		)
		return nil
	}
}

// replay writes a stashed terminal status without recomputing any stage.
func (s *processService) replay(ctx context.Context, log *slog.Logger, task repository.ProcessAssetTask, stashed *model.PipelineResult) error {
	w := stashed.Unwritten
	if w == nil {
		s.discard(ctx, log, stashed)
		return nil
	}

	var err error
	switch w.Status {
	case model.StatusReady:
		var art model.Artifacts
		if w.Artifacts != nil {
			art = *w.Artifacts
		}
		err = s.updater.MarkReady(ctx, stashed.AssetID, art)
	case model.StatusError:
		err = s.updater.MarkError(ctx, stashed.AssetID, w.ErrorKind, w.ErrorMessage)
	default:
		err = fmt.Errorf("unwritten status %q is not terminal", w.Status)
	}

	if err == nil {
		s.discard(ctx, log, stashed)
		metrics.PendingResultsTotal.WithLabelValues(metrics.PendingReplayed).Inc()
		log.Info("replayed stashed terminal write", slog.String("status", w.Status.String()))
		return nil
	}

	if !model.IsRetryable(err) || task.RetryCount >= s.maxRetries {
		s.abandon(ctx, log, stashed, err)
		return nil
	}
	return fmt.Errorf("replay terminal write: %w", err)
}

// abandon gives up on a terminal write. The asset keeps its current status
// and artifacts written by the run stay unreferenced in storage.
func (s *processService) abandon(ctx context.Context, log *slog.Logger, result *model.PipelineResult, cause error) {
	metrics.PendingResultsTotal.WithLabelValues(metrics.PendingAbandoned).Inc()
	log.Error("abandoning terminal write",
		slog.String("error", cause.Error()),
		slog.Any("orphaned", result.Orphaned),
	)
	s.discard(ctx, log, result)
}

func (s *processService) discard(ctx context.Context, log *slog.Logger, result *model.PipelineResult) {
	if err := s.pending.Delete(ctx, result.AssetID); err != nil {
		log.Warn("failed to delete pending result", slog.String("error", err.Error()))
	}
}

func (s *processService) retryOrDrop(log *slog.Logger, task repository.ProcessAssetTask, err error) error {
	if task.RetryCount >= s.maxRetries {
		log.Error("dropping task after max retries", slog.String("error", err.Error()))
		return nil
	}
	return err
}
