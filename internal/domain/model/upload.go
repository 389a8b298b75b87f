package model

import (
	"time"

	"github.com/google/uuid"
)

// UploadRequest describes one already-received raw upload to be processed.
// It is a value type; a request maps to exactly one pipeline run.
type UploadRequest struct {
	AssetID     uuid.UUID
	StorageKey  string
	ContentType string
	ByteSize    int64
	OwnerID     uuid.UUID
	Profile     Profile
}

// PreviewRef locates a derived preview clip in object storage.
type PreviewRef struct {
	Key         string
	ContentType string
	// Duration is the actual clip length, which is shorter than the
	// target when the source itself is shorter.
	Duration time.Duration
}

// Artifacts are the outputs of the processing stages.
type Artifacts struct {
	Preview            *PreviewRef
	Waveform           []float64
	EncryptedContentID string
	KeyEnvelope        string
}

// PipelineResult is the terminal outcome of a single pipeline run.
// Success populates Artifacts; failure populates ErrorKind and ErrorMessage.
type PipelineResult struct {
	AssetID uuid.UUID
	Success bool

	Artifacts Artifacts

	ErrorKind    ErrorKind
	ErrorMessage string
	Retryable    bool

	// Orphaned lists storage keys and content ids written by the run that
	// the asset does not reference.
	Orphaned []string

	// Unwritten is the terminal status write the run computed but could not
	// persist. It is set only for KindPersistenceFailed results raised by
	// markReady or markError, and replaying it must not recompute stages.
	Unwritten *TerminalWrite
}

// TerminalWrite is the final status write of a pipeline run.
type TerminalWrite struct {
	Status       Status
	Artifacts    *Artifacts
	ErrorKind    ErrorKind
	ErrorMessage string
}

// Succeeded builds a success result.
func Succeeded(assetID uuid.UUID, art Artifacts) *PipelineResult {
	return &PipelineResult{
		AssetID:   assetID,
		Success:   true,
		Artifacts: art,
	}
}

// Failed builds a failure result.
func Failed(assetID uuid.UUID, kind ErrorKind, message string, retryable bool) *PipelineResult {
	return &PipelineResult{
		AssetID:      assetID,
		ErrorKind:    kind,
		ErrorMessage: message,
		Retryable:    retryable,
	}
}
