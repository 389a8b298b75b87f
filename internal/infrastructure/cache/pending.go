package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/beatvault/internal/domain/model"
	"github.com/hszk-dev/beatvault/internal/domain/repository"
)

const pendingKeyPrefix = "pending-result:"

type previewJSON struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	DurationMS  int64  `json:"duration_ms"`
}

type artifactsJSON struct {
	Preview            *previewJSON `json:"preview,omitempty"`
	Waveform           []float64    `json:"waveform,omitempty"`
	EncryptedContentID string       `json:"encrypted_content_id,omitempty"`
	KeyEnvelope        string       `json:"key_envelope,omitempty"`
}

type terminalWriteJSON struct {
	Status       string         `json:"status"`
	Artifacts    *artifactsJSON `json:"artifacts,omitempty"`
	ErrorKind    string         `json:"error_kind,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

type resultJSON struct {
	AssetID      string             `json:"asset_id"`
	Success      bool               `json:"success"`
	Artifacts    artifactsJSON      `json:"artifacts"`
	ErrorKind    string             `json:"error_kind,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	Retryable    bool               `json:"retryable"`
	Orphaned     []string           `json:"orphaned,omitempty"`
	Unwritten    *terminalWriteJSON `json:"unwritten,omitempty"`
}

// RedisPendingResultStore implements repository.PendingResultStore.
// Entries expire on their own, so an abandoned result does not linger.
type RedisPendingResultStore struct {
	client *redis.Client
}

var _ repository.PendingResultStore = (*RedisPendingResultStore)(nil)

// NewRedisPendingResultStore creates a new Redis-backed pending result store.
func NewRedisPendingResultStore(client *redis.Client) *RedisPendingResultStore {
	return &RedisPendingResultStore{client: client}
}

// Save stores result keyed by its asset ID, replacing any previous entry.
func (s *RedisPendingResultStore) Save(ctx context.Context, result *model.PipelineResult, ttl time.Duration) error {
	data, err := json.Marshal(encodeResult(result))
	if err != nil {
		return fmt.Errorf("serialize result: %w", err)
	}
	if err := s.client.Set(ctx, pendingKey(result.AssetID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get returns the pending result for assetID, or nil, nil if there is none.
func (s *RedisPendingResultStore) Get(ctx context.Context, assetID uuid.UUID) (*model.PipelineResult, error) {
	data, err := s.client.Get(ctx, pendingKey(assetID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var v resultJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("deserialize result: %w", err)
	}
	return decodeResult(v)
}

// Delete removes the pending result for assetID.
func (s *RedisPendingResultStore) Delete(ctx context.Context, assetID uuid.UUID) error {
	if err := s.client.Del(ctx, pendingKey(assetID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func pendingKey(assetID uuid.UUID) string {
	return pendingKeyPrefix + assetID.String()
}

func encodeArtifacts(a model.Artifacts) artifactsJSON {
	out := artifactsJSON{
		Waveform:           a.Waveform,
		EncryptedContentID: a.EncryptedContentID,
		KeyEnvelope:        a.KeyEnvelope,
	}
	if a.Preview != nil {
		out.Preview = &previewJSON{
			Key:         a.Preview.Key,
			ContentType: a.Preview.ContentType,
			DurationMS:  a.Preview.Duration.Milliseconds(),
		}
	}
	return out
}

func decodeArtifacts(v artifactsJSON) model.Artifacts {
	out := model.Artifacts{
		Waveform:           v.Waveform,
		EncryptedContentID: v.EncryptedContentID,
		KeyEnvelope:        v.KeyEnvelope,
	}
	if v.Preview != nil {
		out.Preview = &model.PreviewRef{
			Key:         v.Preview.Key,
			ContentType: v.Preview.ContentType,
			Duration:    time.Duration(v.Preview.DurationMS) * time.Millisecond,
		}
	}
	return out
}

func encodeResult(r *model.PipelineResult) resultJSON {
	out := resultJSON{
		AssetID:      r.AssetID.String(),
		Success:      r.Success,
		Artifacts:    encodeArtifacts(r.Artifacts),
		ErrorKind:    string(r.ErrorKind),
		ErrorMessage: r.ErrorMessage,
		Retryable:    r.Retryable,
		Orphaned:     r.Orphaned,
	}
	if w := r.Unwritten; w != nil {
		out.Unwritten = &terminalWriteJSON{
			Status:       string(w.Status),
			ErrorKind:    string(w.ErrorKind),
			ErrorMessage: w.ErrorMessage,
		}
		if w.Artifacts != nil {
			art := encodeArtifacts(*w.Artifacts)
			out.Unwritten.Artifacts = &art
		}
	}
	return out
}

func decodeResult(v resultJSON) (*model.PipelineResult, error) {
	id, err := uuid.Parse(v.AssetID)
	if err != nil {
		return nil, fmt.Errorf("parse asset ID: %w", err)
	}

	r := &model.PipelineResult{
		AssetID:      id,
		Success:      v.Success,
		Artifacts:    decodeArtifacts(v.Artifacts),
		ErrorKind:    model.ErrorKind(v.ErrorKind),
		ErrorMessage: v.ErrorMessage,
		Retryable:    v.Retryable,
		Orphaned:     v.Orphaned,
	}
	if w := v.Unwritten; w != nil {
		status := model.Status(w.Status)
		if !status.IsTerminal() {
			return nil, fmt.Errorf("unwritten status %q is not terminal", w.Status)
		}
		r.Unwritten = &model.TerminalWrite{
			Status:       status,
			ErrorKind:    model.ErrorKind(w.ErrorKind),
			ErrorMessage: w.ErrorMessage,
		}
		if w.Artifacts != nil {
			art := decodeArtifacts(*w.Artifacts)
			r.Unwritten.Artifacts = &art
		}
	}
	return r, nil
}
