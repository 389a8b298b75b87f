package usecase

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/beatvault/internal/domain/model"
	"github.com/hszk-dev/beatvault/internal/domain/repository"
)

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

// mockObjectStorage provides a configurable mock for ObjectStorage.
type mockObjectStorage struct {
	generatePresignedUploadURLFn   func(ctx context.Context, key string, expiry time.Duration) (string, error)
	generatePresignedDownloadURLFn func(ctx context.Context, key string, expiry time.Duration) (string, error)
	statFn                         func(ctx context.Context, key string) (*repository.ObjectInfo, error)
}

func (m *mockObjectStorage) GeneratePresignedUploadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if m.generatePresignedUploadURLFn != nil {
		return m.generatePresignedUploadURLFn(ctx, key, expiry)
	}
	return "http://example.com/upload/" + key, nil
}

func (m *mockObjectStorage) GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if m.generatePresignedDownloadURLFn != nil {
		return m.generatePresignedDownloadURLFn(ctx, key, expiry)
	}
	return "http://example.com/download/" + key, nil
}

func (m *mockObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	return nil
}

func (m *mockObjectStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, repository.ErrObjectNotFound
}

func (m *mockObjectStorage) Delete(ctx context.Context, key string) error {
	return nil
}

// Stat reports a 4 MiB object by default.
func (m *mockObjectStorage) Stat(ctx context.Context, key string) (*repository.ObjectInfo, error) {
	if m.statFn != nil {
		return m.statFn(ctx, key)
	}
	return &repository.ObjectInfo{Key: key, Size: 4 << 20, ContentType: "audio/wav"}, nil
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	publishProcessTaskFn func(ctx context.Context, task repository.ProcessAssetTask) error
}

func (m *mockMessageQueue) PublishProcessTask(ctx context.Context, task repository.ProcessAssetTask) error {
	if m.publishProcessTaskFn != nil {
		return m.publishProcessTaskFn(ctx, task)
	}
	return nil
}

func (m *mockMessageQueue) ConsumeProcessTasks(ctx context.Context, handler func(ctx context.Context, task repository.ProcessAssetTask) error) error {
	return nil
}

func (m *mockMessageQueue) Close() error {
	return nil
}

// mockPipeline provides a configurable mock for Pipeline.
type mockPipeline struct {
	mu    sync.Mutex
	runs  int
	runFn func(ctx context.Context, req model.UploadRequest) *model.PipelineResult
}

func (m *mockPipeline) Run(ctx context.Context, req model.UploadRequest) *model.PipelineResult {
	m.mu.Lock()
	m.runs++
	m.mu.Unlock()
	if m.runFn != nil {
		return m.runFn(ctx, req)
	}
	return model.Succeeded(req.AssetID, model.Artifacts{})
}

func (m *mockPipeline) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs
}

// mockStateUpdater provides a configurable mock for pipeline.StateUpdater.
type mockStateUpdater struct {
	markProcessingFn func(ctx context.Context, assetID uuid.UUID) error
	markReadyFn      func(ctx context.Context, assetID uuid.UUID, art model.Artifacts) error
	markErrorFn      func(ctx context.Context, assetID uuid.UUID, kind model.ErrorKind, message string) error
}

func (m *mockStateUpdater) MarkProcessing(ctx context.Context, assetID uuid.UUID) error {
	if m.markProcessingFn != nil {
		return m.markProcessingFn(ctx, assetID)
	}
	return nil
}

func (m *mockStateUpdater) MarkReady(ctx context.Context, assetID uuid.UUID, art model.Artifacts) error {
	if m.markReadyFn != nil {
		return m.markReadyFn(ctx, assetID, art)
	}
	return nil
}

func (m *mockStateUpdater) MarkError(ctx context.Context, assetID uuid.UUID, kind model.ErrorKind, message string) error {
	if m.markErrorFn != nil {
		return m.markErrorFn(ctx, assetID, kind, message)
	}
	return nil
}

// mockPendingStore is an in-memory PendingResultStore.
type mockPendingStore struct {
	mu      sync.Mutex
	data    map[uuid.UUID]*model.PipelineResult
	ttls    map[uuid.UUID]time.Duration
	getErr  error
	saveErr error
	saves   int
}

func newMockPendingStore() *mockPendingStore {
	return &mockPendingStore{
		data: make(map[uuid.UUID]*model.PipelineResult),
		ttls: make(map[uuid.UUID]time.Duration),
	}
}

func (m *mockPendingStore) Save(ctx context.Context, result *model.PipelineResult, ttl time.Duration) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.data[result.AssetID] = result
	m.ttls[result.AssetID] = ttl
	return nil
}

func (m *mockPendingStore) Get(ctx context.Context, assetID uuid.UUID) (*model.PipelineResult, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[assetID], nil
}

func (m *mockPendingStore) Delete(ctx context.Context, assetID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, assetID)
	return nil
}

func (m *mockPendingStore) has(assetID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[assetID]
	return ok
}

// mockLocker is an in-memory AssetLocker.
type mockLocker struct {
	mu       sync.Mutex
	held     map[uuid.UUID]bool
	err      error
	released int
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[uuid.UUID]bool)}
}

func (m *mockLocker) TryLock(ctx context.Context, assetID uuid.UUID, ttl time.Duration) (func(context.Context) error, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[assetID] {
		return nil, false, nil
	}
	m.held[assetID] = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, assetID)
		m.released++
		return nil
	}, true, nil
}

// mockAssetCache is an in-memory AssetCache.
type mockAssetCache struct {
	mu       sync.RWMutex
	data     map[uuid.UUID]*model.Asset
	getFn    func(ctx context.Context, assetID uuid.UUID) (*model.Asset, error)
	setFn    func(ctx context.Context, asset *model.Asset, ttl time.Duration) error
	deleteFn func(ctx context.Context, assetID uuid.UUID) error
}

func newMockAssetCache() *mockAssetCache {
	return &mockAssetCache{
		data: make(map[uuid.UUID]*model.Asset),
	}
}

func (m *mockAssetCache) Get(ctx context.Context, assetID uuid.UUID) (*model.Asset, error) {
	if m.getFn != nil {
		return m.getFn(ctx, assetID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[assetID], nil
}

func (m *mockAssetCache) Set(ctx context.Context, asset *model.Asset, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, asset, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[asset.ID] = asset
	return nil
}

func (m *mockAssetCache) Delete(ctx context.Context, assetID uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, assetID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, assetID)
	return nil
}
