package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/beatvault/internal/audio"
	"github.com/hszk-dev/beatvault/internal/domain/model"
	"github.com/hszk-dev/beatvault/internal/domain/repository"
	"github.com/hszk-dev/beatvault/internal/vault"
)

// recorder captures the order in which collaborators are called.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

type mockPreview struct {
	rec *recorder
	fn  func(ctx context.Context, src audio.Source) (*model.PreviewRef, error)
}

func (m *mockPreview) GeneratePreview(ctx context.Context, src audio.Source) (*model.PreviewRef, error) {
	m.rec.record("preview")
	if m.fn != nil {
		return m.fn(ctx, src)
	}
	return &model.PreviewRef{
		Key:         audio.PreviewKey(src.AssetID),
		ContentType: "audio/mpeg",
		Duration:    30 * time.Second,
	}, nil
}

type mockWaveform struct {
	rec *recorder
	fn  func(ctx context.Context, src audio.Source) ([]float64, error)
}

func (m *mockWaveform) GenerateWaveform(ctx context.Context, src audio.Source) ([]float64, error) {
	m.rec.record("waveform")
	if m.fn != nil {
		return m.fn(ctx, src)
	}
	points := make([]float64, audio.DefaultWaveformPoints)
	for i := range points {
		points[i] = 0.5
	}
	return points, nil
}

type mockEncryptor struct {
	rec *recorder
	fn  func(ctx context.Context, storageKey string) (*vault.Sealed, error)
}

func (m *mockEncryptor) EncryptAndStore(ctx context.Context, storageKey string) (*vault.Sealed, error) {
	m.rec.record("encrypt")
	if m.fn != nil {
		return m.fn(ctx, storageKey)
	}
	return &vault.Sealed{ContentID: "sha256:c0ffee", KeyEnvelope: "v1.k1.envelope"}, nil
}

type mockUpdater struct {
	rec *recorder

	markProcessingFn func(ctx context.Context, id uuid.UUID) error
	markReadyFn      func(ctx context.Context, id uuid.UUID, art model.Artifacts) error
	markErrorFn      func(ctx context.Context, id uuid.UUID, kind model.ErrorKind, message string) error

	mu        sync.Mutex
	artifacts *model.Artifacts
	errKind   model.ErrorKind
	errMsg    string
	ctxErrs   []error
}

func (m *mockUpdater) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	m.rec.record("markProcessing")
	if m.markProcessingFn != nil {
		return m.markProcessingFn(ctx, id)
	}
	return nil
}

func (m *mockUpdater) MarkReady(ctx context.Context, id uuid.UUID, art model.Artifacts) error {
	m.rec.record("markReady")
	m.mu.Lock()
	m.artifacts = &art
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	m.mu.Unlock()
	if m.markReadyFn != nil {
		return m.markReadyFn(ctx, id, art)
	}
	return nil
}

func (m *mockUpdater) MarkError(ctx context.Context, id uuid.UUID, kind model.ErrorKind, message string) error {
	m.rec.record("markError")
	m.mu.Lock()
	m.errKind = kind
	m.errMsg = message
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	m.mu.Unlock()
	if m.markErrorFn != nil {
		return m.markErrorFn(ctx, id, kind, message)
	}
	return nil
}

// mockAssetRepository provides a configurable mock for AssetRepository.
type mockAssetRepository struct {
	createFn       func(ctx context.Context, asset *model.Asset) error
	getByIDFn      func(ctx context.Context, id uuid.UUID) (*model.Asset, error)
	getByOwnerIDFn func(ctx context.Context, ownerID uuid.UUID) ([]*model.Asset, error)
	updateStatusFn func(ctx context.Context, id uuid.UUID, update repository.StatusUpdate) error
	eventsFn       func(ctx context.Context, id uuid.UUID) ([]model.AssetEvent, error)
}

func (m *mockAssetRepository) Create(ctx context.Context, asset *model.Asset) error {
	if m.createFn != nil {
		return m.createFn(ctx, asset)
	}
	return nil
}

func (m *mockAssetRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrAssetNotFound
}

func (m *mockAssetRepository) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*model.Asset, error) {
	if m.getByOwnerIDFn != nil {
		return m.getByOwnerIDFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockAssetRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update repository.StatusUpdate) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, update)
	}
	return nil
}

func (m *mockAssetRepository) Events(ctx context.Context, id uuid.UUID) ([]model.AssetEvent, error) {
	if m.eventsFn != nil {
		return m.eventsFn(ctx, id)
	}
	return nil, nil
}

// mockCache counts invalidations.
type mockCache struct {
	mu      sync.Mutex
	deleted []uuid.UUID
	err     error
}

func (m *mockCache) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return m.err
}

// harness wires an Orchestrator to recording doubles.
type harness struct {
	rec       *recorder
	preview   *mockPreview
	waveform  *mockWaveform
	encryptor *mockEncryptor
	updater   *mockUpdater
}

func newHarness() *harness {
	rec := &recorder{}
	return &harness{
		rec:       rec,
		preview:   &mockPreview{rec: rec},
		waveform:  &mockWaveform{rec: rec},
		encryptor: &mockEncryptor{rec: rec},
		updater:   &mockUpdater{rec: rec},
	}
}

func (h *harness) orchestrator(cfg Config) *Orchestrator {
	return New(Dependencies{
		Preview:   h.preview,
		Waveform:  h.waveform,
		Encryptor: h.encryptor,
		Updater:   h.updater,
	}, cfg)
}
