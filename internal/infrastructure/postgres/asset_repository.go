package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/beatvault/internal/domain/model"
	"github.com/hszk-dev/beatvault/internal/domain/repository"
	"github.com/hszk-dev/beatvault/internal/infrastructure/metrics"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AssetRepository implements repository.AssetRepository using PostgreSQL.
type AssetRepository struct {
	db DBTX
}

// NewAssetRepository creates a new AssetRepository instance.
func NewAssetRepository(db DBTX) *AssetRepository {
	return &AssetRepository{db: db}
}

const assetColumns = `id, owner_id, title, status, profile, original_key, content_type, byte_size,
		preview_key, preview_duration_ms, waveform, encrypted_content_id, key_envelope,
		error_kind, error_message, created_at, updated_at`

// Create persists a new asset entity.
func (r *AssetRepository) Create(ctx context.Context, asset *model.Asset) error {
	const query = `
		INSERT INTO assets (id, owner_id, title, status, profile, original_key, content_type, byte_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableAssets).Inc()

	_, err := r.db.Exec(ctx, query,
		asset.ID,
		asset.OwnerID,
		asset.Title,
		asset.Status.String(),
		asset.Profile.String(),
		nullString(asset.OriginalKey),
		nullString(asset.ContentType),
		asset.ByteSize,
		asset.CreatedAt,
		asset.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicateAsset
		}
		return fmt.Errorf("failed to create asset: %w", err)
	}

	return nil
}

// GetByID retrieves an asset by its unique identifier.
func (r *AssetRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableAssets).Inc()

	asset, err := scanAsset(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to get asset by ID: %w", err)
	}

	return asset, nil
}

// GetByOwnerID retrieves all assets uploaded by a producer, newest first.
func (r *AssetRepository) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*model.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE owner_id = $1 ORDER BY created_at DESC`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableAssets).Inc()

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets by owner ID: %w", err)
	}
	defer rows.Close()

	assets := []*model.Asset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, nil
}

// UpdateStatus applies a status transition and appends the matching audit
// event in one statement. The row is only updated when its current status
// may transition to update.To.
func (r *AssetRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update repository.StatusUpdate) error {
	const query = `
		WITH prev AS (
			SELECT id, status FROM assets WHERE id = $1 FOR UPDATE
		), updated AS (
			UPDATE assets a
			SET status = $2,
				preview_key = COALESCE($3, a.preview_key),
				preview_duration_ms = COALESCE($4, a.preview_duration_ms),
				waveform = COALESCE($5, a.waveform),
				encrypted_content_id = COALESCE($6, a.encrypted_content_id),
				key_envelope = COALESCE($7, a.key_envelope),
				error_kind = $8,
				error_message = $9,
				updated_at = $10
			FROM prev
			WHERE a.id = prev.id AND prev.status = ANY($11)
			RETURNING a.id, prev.status AS from_status
		)
		INSERT INTO asset_events (asset_id, from_status, to_status, error_kind, message, created_at)
		SELECT id, from_status, $2, $8, $9, $10 FROM updated
		RETURNING id
	`

	if !update.To.IsValid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidTransition, update.To)
	}

	var (
		previewKey      *string
		previewDuration *int64
		waveform        []float64
		contentID       *string
		envelope        *string
	)
	if art := update.Artifacts; art != nil && update.To == model.StatusReady {
		if art.Preview != nil {
			previewKey = nullString(art.Preview.Key)
			ms := art.Preview.Duration.Milliseconds()
			previewDuration = &ms
		}
		waveform = art.Waveform
		contentID = nullString(art.EncryptedContentID)
		envelope = nullString(art.KeyEnvelope)
	}

	var errorKind, errorMessage *string
	if update.To == model.StatusError {
		errorKind = nullString(update.ErrorKind.String())
		errorMessage = nullString(update.ErrorMessage)
	}

	from := model.SourceStatuses(update.To)
	fromStrings := make([]string, len(from))
	for i, s := range from {
		fromStrings[i] = s.String()
	}

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableAssets).Inc()
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableAssetEvents).Inc()

	var eventID int64
	err := r.db.QueryRow(ctx, query,
		id,
		update.To.String(),
		previewKey,
		previewDuration,
		waveform,
		contentID,
		envelope,
		errorKind,
		errorMessage,
		time.Now(),
		fromStrings,
	).Scan(&eventID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to update asset status: %w", err)
	}

	// Nothing was written: tell a missing asset apart from a disallowed transition.
	current, err := r.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", repository.ErrStatusConflict, current, update.To)
}

func (r *AssetRepository) currentStatus(ctx context.Context, id uuid.UUID) (model.Status, error) {
	const query = `SELECT status FROM assets WHERE id = $1`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableAssets).Inc()

	var status string
	if err := r.db.QueryRow(ctx, query, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrAssetNotFound
		}
		return "", fmt.Errorf("failed to read asset status: %w", err)
	}
	return model.Status(status), nil
}

// Events returns the audit trail of an asset, oldest first.
func (r *AssetRepository) Events(ctx context.Context, id uuid.UUID) ([]model.AssetEvent, error) {
	const query = `
		SELECT id, asset_id, from_status, to_status, error_kind, message, created_at
		FROM asset_events
		WHERE asset_id = $1
		ORDER BY id
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableAssetEvents).Inc()

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset events: %w", err)
	}
	defer rows.Close()

	var events []model.AssetEvent
	for rows.Next() {
		var (
			ev         model.AssetEvent
			from, to   string
			kind, note *string
		)
		if err := rows.Scan(&ev.ID, &ev.AssetID, &from, &to, &kind, &note, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset event: %w", err)
		}
		ev.FromStatus = model.Status(from)
		ev.ToStatus = model.Status(to)
		if kind != nil {
			ev.ErrorKind = model.ErrorKind(*kind)
		}
		if note != nil {
			ev.Message = *note
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset events: %w", err)
	}

	return events, nil
}

// scanAsset scans a single row into an Asset model.
func scanAsset(row pgx.Row) (*model.Asset, error) {
	var (
		asset           model.Asset
		status, profile string
		originalKey     *string
		contentType     *string
		previewKey      *string
		previewMillis   *int64
		waveform        []float64
		contentID       *string
		envelope        *string
		errorKind       *string
		errorMessage    *string
	)

	err := row.Scan(
		&asset.ID,
		&asset.OwnerID,
		&asset.Title,
		&status,
		&profile,
		&originalKey,
		&contentType,
		&asset.ByteSize,
		&previewKey,
		&previewMillis,
		&waveform,
		&contentID,
		&envelope,
		&errorKind,
		&errorMessage,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	asset.Status = model.Status(status)
	asset.Profile = model.Profile(profile)
	asset.OriginalKey = deref(originalKey)
	asset.ContentType = deref(contentType)
	asset.PreviewKey = deref(previewKey)
	if previewMillis != nil {
		asset.PreviewDuration = time.Duration(*previewMillis) * time.Millisecond
	}
	asset.Waveform = waveform
	asset.EncryptedContentID = deref(contentID)
	asset.KeyEnvelope = deref(envelope)
	asset.ErrorKind = model.ErrorKind(deref(errorKind))
	asset.ErrorMessage = deref(errorMessage)

	return &asset, nil
}

// nullString returns nil for empty strings, otherwise returns a pointer to the string.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Compile-time verification that AssetRepository implements repository.AssetRepository.
var _ repository.AssetRepository = (*AssetRepository)(nil)
