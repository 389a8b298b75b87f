package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hszk-dev/beatvault/internal/domain/model"
)

// ProcessAssetTask represents an asset processing job message.
type ProcessAssetTask struct {
	AssetID     uuid.UUID `json:"asset_id"`
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
	ByteSize    int64     `json:"byte_size"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Profile     string    `json:"profile"`
	RetryCount  int       `json:"retry_count"`
}

// UploadRequest converts the task into the pipeline's input.
func (t ProcessAssetTask) UploadRequest() model.UploadRequest {
	profile, err := model.ParseProfile(t.Profile)
	if err != nil {
		profile = model.ProfileGeneral
	}
	return model.UploadRequest{
		AssetID:     t.AssetID,
		StorageKey:  t.StorageKey,
		ContentType: t.ContentType,
		ByteSize:    t.ByteSize,
		OwnerID:     t.OwnerID,
		Profile:     profile,
	}
}

// MessageQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type MessageQueue interface {
	// PublishProcessTask sends a processing task to the queue.
	// Used by the API server to hand intake off to the worker.
	PublishProcessTask(ctx context.Context, task ProcessAssetTask) error

	// ConsumeProcessTasks starts consuming processing tasks from the queue.
	// The handler function is called for each received task, possibly from
	// several goroutines at once. Blocks until ctx is done or the delivery
	// channel closes.
	ConsumeProcessTasks(ctx context.Context, handler func(ctx context.Context, task ProcessAssetTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
