// Package pipeline drives an uploaded asset from raw bytes to a licensable,
// previewable asset.
//
// A run validates the upload, marks the asset processing, then runs the
// preview, waveform and encryption stages strictly in sequence. The first
// failure short-circuits the rest and the asset is marked error with the
// original reason; otherwise it is marked ready with every artifact. Exactly
// one of markReady and markError is attempted per run.
//
// The orchestrator holds no locks. Callers must not run two pipelines for the
// same asset concurrently; the worker gets this from queue delivery.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hszk-dev/beatvault/internal/audio"
	"github.com/hszk-dev/beatvault/internal/domain/model"
	"github.com/hszk-dev/beatvault/internal/domain/repository"
	"github.com/hszk-dev/beatvault/internal/infrastructure/metrics"
	"github.com/hszk-dev/beatvault/internal/validation"
	"github.com/hszk-dev/beatvault/internal/vault"
)

const tracerName = "github.com/hszk-dev/beatvault/internal/pipeline"

// Stage names used in logs, spans and metrics.
const (
	StagePreview  = "preview"
	StageWaveform = "waveform"
	StageEncrypt  = "encrypt"
)

// Config holds per-stage timeouts.
type Config struct {
	PreviewTimeout  time.Duration
	WaveformTimeout time.Duration
	EncryptTimeout  time.Duration

	// PersistTimeout bounds each status write, including its retries.
	// Terminal writes run detached from the run's cancellation so a
	// cancelled run still records its outcome.
	PersistTimeout time.Duration
}

// DefaultConfig returns the default stage timeouts.
func DefaultConfig() Config {
	return Config{
		PreviewTimeout:  5 * time.Minute,
		WaveformTimeout: 5 * time.Minute,
		EncryptTimeout:  10 * time.Minute,
		PersistTimeout:  30 * time.Second,
	}
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Profiles  *validation.Profiles
	Preview   audio.PreviewGenerator
	Waveform  audio.WaveformGenerator
	Encryptor vault.Encryptor
	Updater   StateUpdater
	Logger    *slog.Logger
}

// Orchestrator runs the processing pipeline for one upload at a time per
// call. It is safe for concurrent use across different assets.
type Orchestrator struct {
	profiles  *validation.Profiles
	preview   audio.PreviewGenerator
	waveform  audio.WaveformGenerator
	encryptor vault.Encryptor
	updater   StateUpdater
	config    Config
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates an Orchestrator.
func New(deps Dependencies, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.PreviewTimeout <= 0 {
		cfg.PreviewTimeout = def.PreviewTimeout
	}
	if cfg.WaveformTimeout <= 0 {
		cfg.WaveformTimeout = def.WaveformTimeout
	}
	if cfg.EncryptTimeout <= 0 {
		cfg.EncryptTimeout = def.EncryptTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if deps.Profiles == nil {
		deps.Profiles = validation.DefaultProfiles()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Orchestrator{
		profiles:  deps.Profiles,
		preview:   deps.Preview,
		waveform:  deps.Waveform,
		encryptor: deps.Encryptor,
		updater:   deps.Updater,
		config:    cfg,
		logger:    deps.Logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Run is the record of a single pipeline execution.
type Run struct {
	mu          sync.Mutex
	req         model.UploadRequest
	state       State
	transitions []State
	orphaned    []string
	result      *model.PipelineResult
}

func newRun(req model.UploadRequest) *Run {
	return &Run{req: req}
}

// State returns the current state of the run.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Transitions returns every state the run entered, in order.
func (r *Run) Transitions() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.transitions))
	copy(out, r.transitions)
	return out
}

// Result returns the outcome of a finished run.
func (r *Run) Result() *model.PipelineResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

func (r *Run) advance(next State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !canAdvance(r.state, next) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", r.state, next))
	}
	r.state = next
	r.transitions = append(r.transitions, next)
}

func (r *Run) orphan(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphaned = append(r.orphaned, ref)
}

// adopt clears the orphan list once the asset references every artifact.
func (r *Run) adopt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphaned = nil
}

func (r *Run) finish(result *model.PipelineResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.orphaned) > 0 {
		result.Orphaned = append([]string(nil), r.orphaned...)
	}
	r.result = result
}

// Run executes the pipeline for req and returns its single result.
func (o *Orchestrator) Run(ctx context.Context, req model.UploadRequest) *model.PipelineResult {
	return o.Execute(ctx, req).Result()
}

// Execute runs the pipeline for req and returns the full run record.
func (o *Orchestrator) Execute(ctx context.Context, req model.UploadRequest) *Run {
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("asset.id", req.AssetID.String()),
		attribute.String("asset.content_type", req.ContentType),
		attribute.Int64("asset.byte_size", req.ByteSize),
		attribute.String("asset.profile", req.Profile.String()),
	))
	defer span.End()

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	log := o.logger.With("asset_id", req.AssetID)
	if sc := span.SpanContext(); sc.IsValid() {
		log = log.With("trace_id", sc.TraceID().String())
	}

	run := newRun(req)
	start := time.Now()

	o.execute(ctx, run, log)

	result := run.Result()
	recordOutcome(span, result)
	log.Info("pipeline run finished",
		"success", result.Success,
		"error_kind", result.ErrorKind,
		"state", run.State(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return run
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, log *slog.Logger) {
	req := run.req

	// Validation is pure and runs before the asset is touched, so a rejected
	// upload leaves no trace in the asset's status or audit trail.
	if err := o.profiles.Validate(req.Profile, req.ContentType, req.ByteSize); err != nil {
		run.advance(StateFailed)
		run.finish(model.Failed(req.AssetID, model.KindOf(err), err.Error(), false))
		log.Info("upload rejected", "error_kind", model.KindOf(err), "error", err)
		return
	}

	persistCtx, cancel := o.persistContext(ctx)
	err := o.updater.MarkProcessing(persistCtx, req.AssetID)
	cancel()
	if err != nil {
		run.advance(StateFailed)
		run.finish(model.Failed(req.AssetID, model.KindPersistenceFailed, err.Error(), model.IsRetryable(err)))
		log.Error("failed to mark asset processing", "error", err)
		return
	}
	run.advance(StateStarted)
	run.advance(StateValidated)

	src := audio.Source{AssetID: req.AssetID, StorageKey: req.StorageKey}
	var art model.Artifacts

	stages := []struct {
		name    string
		kind    model.ErrorKind
		timeout time.Duration
		next    State
		fn      func(ctx context.Context) error
	}{
		{
			name:    StagePreview,
			kind:    model.KindPreviewGenerationFailed,
			timeout: o.config.PreviewTimeout,
			next:    StatePreviewReady,
			fn: func(ctx context.Context) error {
				ref, err := o.preview.GeneratePreview(ctx, src)
				if err != nil {
					return err
				}
				art.Preview = ref
				run.orphan(ref.Key)
				return nil
			},
		},
		{
			name:    StageWaveform,
			kind:    model.KindWaveformGenerationFailed,
			timeout: o.config.WaveformTimeout,
			next:    StateWaveformReady,
			fn: func(ctx context.Context) error {
				points, err := o.waveform.GenerateWaveform(ctx, src)
				if err != nil {
					return err
				}
				art.Waveform = points
				return nil
			},
		},
		{
			name:    StageEncrypt,
			kind:    model.KindEncryptionOrUploadFailed,
			timeout: o.config.EncryptTimeout,
			next:    StateEncrypted,
			fn: func(ctx context.Context) error {
				sealed, err := o.encryptor.EncryptAndStore(ctx, src.StorageKey)
				if err != nil {
					return err
				}
				art.EncryptedContentID = sealed.ContentID
				art.KeyEnvelope = sealed.KeyEnvelope
				run.orphan(sealed.ContentID)
				return nil
			},
		},
	}

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			pe := model.NewProcessingError(model.KindCancelled, true, err)
			pe.Message = "cancelled before " + st.name
			o.fail(ctx, run, log, pe)
			return
		}

		if err := o.runStage(ctx, st.name, st.timeout, st.fn); err != nil {
			o.fail(ctx, run, log, classify(ctx, st.name, st.kind, st.timeout, err))
			return
		}
		run.advance(st.next)
	}

	run.advance(StateCompleted)

	persistCtx, cancel = o.persistContext(ctx)
	defer cancel()
	if err := o.updater.MarkReady(persistCtx, req.AssetID, art); err != nil {
		result := model.Failed(req.AssetID, model.KindPersistenceFailed, err.Error(), model.IsRetryable(err))
		result.Artifacts = art
		result.Unwritten = &model.TerminalWrite{Status: model.StatusReady, Artifacts: &art}
		run.finish(result)
		log.Error("failed to mark asset ready", "error", err)
		return
	}

	run.adopt()
	run.finish(model.Succeeded(req.AssetID, art))
}

// runStage runs fn under its own timeout and span.
func (o *Orchestrator) runStage(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	status := metrics.StageStatusSuccess
	if err != nil {
		status = metrics.StageStatusError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.StageDuration.WithLabelValues(name, status).Observe(time.Since(start).Seconds())
	return err
}

// fail moves the run to Failed and issues markError with the original reason.
func (o *Orchestrator) fail(ctx context.Context, run *Run, log *slog.Logger, pe *model.ProcessingError) {
	run.advance(StateFailed)
	assetID := run.req.AssetID
	message := pe.Error()

	log.Error("pipeline stage failed",
		"error_kind", pe.Kind,
		"retryable", pe.Retryable,
		"error", pe,
	)

	persistCtx, cancel := o.persistContext(ctx)
	defer cancel()
	if err := o.updater.MarkError(persistCtx, assetID, pe.Kind, message); err != nil {
		result := model.Failed(assetID, model.KindPersistenceFailed, err.Error(), model.IsRetryable(err))
		result.Unwritten = &model.TerminalWrite{
			Status:       model.StatusError,
			ErrorKind:    pe.Kind,
			ErrorMessage: message,
		}
		run.finish(result)
		log.Error("failed to mark asset error", "error", err)
		return
	}

	run.finish(model.Failed(assetID, pe.Kind, message, pe.Retryable))
}

// persistContext detaches status writes from run cancellation.
func (o *Orchestrator) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.config.PersistTimeout)
}

// classify maps a stage error to a ProcessingError of the stage's kind.
func classify(ctx context.Context, stage string, kind model.ErrorKind, timeout time.Duration, err error) *model.ProcessingError {
	var pe *model.ProcessingError
	if errors.As(err, &pe) {
		return pe
	}

	switch {
	case ctx.Err() != nil:
		pe = model.NewProcessingError(model.KindCancelled, true, err)
		pe.Message = "cancelled during " + stage
		return pe
	case errors.Is(err, context.DeadlineExceeded):
		pe = model.NewProcessingError(kind, true, err)
		pe.Message = fmt.Sprintf("%s timed out after %s", stage, timeout)
		return pe
	}

	pe = model.NewProcessingError(kind, isTransient(err), err)
	pe.Message = stage + " failed"
	return pe
}

// isTransient reports whether retrying the same input could succeed.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, audio.ErrUndecodable),
		errors.Is(err, repository.ErrObjectNotFound),
		errors.Is(err, repository.ErrBucketNotFound):
		return false
	default:
		return true
	}
}

func recordOutcome(span trace.Span, result *model.PipelineResult) {
	outcome := metrics.OutcomeReady
	switch {
	case result.Success:
	case result.ErrorKind == model.KindPersistenceFailed:
		outcome = metrics.OutcomePersistenceFailed
	case result.ErrorKind.IsValidation():
		outcome = metrics.OutcomeRejected
	default:
		outcome = metrics.OutcomeError
	}
	metrics.PipelineRunsTotal.WithLabelValues(outcome, result.ErrorKind.String()).Inc()

	span.SetAttributes(
		attribute.Bool("pipeline.success", result.Success),
		attribute.String("pipeline.outcome", outcome),
	)
	if !result.Success {
		span.SetStatus(codes.Error, result.ErrorMessage)
	}
}
