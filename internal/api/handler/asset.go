package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hszk-dev/beatvault/internal/domain/model"
	"github.com/hszk-dev/beatvault/internal/domain/repository"
	"github.com/hszk-dev/beatvault/internal/usecase"
)

// Request/Response types

type CreateAssetRequest struct {
	OwnerID     string `json:"owner_id"`
	Title       string `json:"title"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	ByteSize    int64  `json:"byte_size"`
	Profile     string `json:"profile,omitempty"`
}

type CreateAssetResponse struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Profile   string `json:"profile"`
	UploadURL string `json:"upload_url"`
	CreatedAt string `json:"created_at"`
}

type AssetResponse struct {
	ID                 string    `json:"id"`
	OwnerID            string    `json:"owner_id"`
	Title              string    `json:"title"`
	Status             string    `json:"status"`
	Profile            string    `json:"profile"`
	ContentType        string    `json:"content_type"`
	ByteSize           int64     `json:"byte_size"`
	PreviewURL         string    `json:"preview_url,omitempty"`
	PreviewDurationMS  int64     `json:"preview_duration_ms,omitempty"`
	Waveform           []float64 `json:"waveform,omitempty"`
	EncryptedContentID string    `json:"encrypted_content_id,omitempty"`
	ErrorKind          string    `json:"error_kind,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	CreatedAt          string    `json:"created_at"`
	UpdatedAt          string    `json:"updated_at"`
}

type AssetListResponse struct {
	Assets []AssetResponse `json:"assets"`
}

type AssetEventResponse struct {
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Message    string `json:"message,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type AssetEventsResponse struct {
	Events []AssetEventResponse `json:"events"`
}

// AssetHandler handles asset-related HTTP requests.
type AssetHandler struct {
	svc usecase.AssetService
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(svc usecase.AssetService) *AssetHandler {
	return &AssetHandler{svc: svc}
}

// Routes mounts the asset endpoints on r.
func (h *AssetHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/process", h.TriggerProcess)
	r.Get("/{id}/events", h.Events)
}

// Create handles POST /v1/assets
func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_owner_id", "Owner ID must be a valid UUID")
		return
	}

	if req.Title == "" {
		Error(w, http.StatusBadRequest, "invalid_title", "Title is required")
		return
	}

	if req.FileName == "" {
		Error(w, http.StatusBadRequest, "invalid_file_name", "File name is required")
		return
	}

	output, err := h.svc.CreateAsset(r.Context(), usecase.CreateAssetInput{
		OwnerID:     ownerID,
		Title:       req.Title,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		ByteSize:    req.ByteSize,
		Profile:     req.Profile,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	a := output.Asset
	JSON(w, http.StatusCreated, CreateAssetResponse{
		ID:        a.ID.String(),
		OwnerID:   a.OwnerID.String(),
		Title:     a.Title,
		Status:    a.Status.String(),
		Profile:   a.Profile.String(),
		UploadURL: output.UploadURL,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	})
}

// TriggerProcess handles POST /v1/assets/{id}/process
func (h *AssetHandler) TriggerProcess(w http.ResponseWriter, r *http.Request) {
	assetID, ok := parseAssetID(w, r)
	if !ok {
		return
	}

	if err := h.svc.TriggerProcess(r.Context(), assetID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Get handles GET /v1/assets/{id}
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	assetID, ok := parseAssetID(w, r)
	if !ok {
		return
	}

	details, err := h.svc.GetAsset(r.Context(), assetID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	resp := toAssetResponse(details.Asset)
	resp.PreviewURL = details.PreviewURL
	JSON(w, http.StatusOK, resp)
}

// List handles GET /v1/assets?owner_id={id}
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_owner_id", "owner_id query parameter must be a valid UUID")
		return
	}

	assets, err := h.svc.ListAssets(r.Context(), ownerID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	resp := AssetListResponse{Assets: make([]AssetResponse, 0, len(assets))}
	for _, a := range assets {
		resp.Assets = append(resp.Assets, toAssetResponse(a))
	}
	JSON(w, http.StatusOK, resp)
}

// Events handles GET /v1/assets/{id}/events
func (h *AssetHandler) Events(w http.ResponseWriter, r *http.Request) {
	assetID, ok := parseAssetID(w, r)
	if !ok {
		return
	}

	events, err := h.svc.AssetEvents(r.Context(), assetID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	resp := AssetEventsResponse{Events: make([]AssetEventResponse, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, AssetEventResponse{
			FromStatus: e.FromStatus.String(),
			ToStatus:   e.ToStatus.String(),
			ErrorKind:  e.ErrorKind.String(),
			Message:    e.Message,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		})
	}
	JSON(w, http.StatusOK, resp)
}

func parseAssetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	assetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_asset_id", "Asset ID must be a valid UUID")
		return uuid.Nil, false
	}
	return assetID, true
}

func (h *AssetHandler) handleServiceError(w http.ResponseWriter, err error) {
	var pe *model.ProcessingError
	if errors.As(err, &pe) && pe.Kind.IsValidation() {
		rejection(w, pe)
		return
	}

	switch {
	case errors.Is(err, repository.ErrAssetNotFound):
		Error(w, http.StatusNotFound, "asset_not_found", "Asset not found")
	case errors.Is(err, model.ErrInvalidOwnerID):
		Error(w, http.StatusBadRequest, "invalid_owner_id", "Owner ID cannot be empty")
	case errors.Is(err, model.ErrEmptyTitle):
		Error(w, http.StatusBadRequest, "invalid_title", "Title cannot be empty")
	case errors.Is(err, model.ErrTitleTooLong):
		Error(w, http.StatusBadRequest, "invalid_title", "Title exceeds maximum length")
	case errors.Is(err, model.ErrUnknownProfile):
		Error(w, http.StatusBadRequest, "invalid_profile", "Profile must be general or studio")
	case errors.Is(err, usecase.ErrInvalidFileName):
		Error(w, http.StatusBadRequest, "invalid_file_name", "File name is not usable")
	case errors.Is(err, usecase.ErrAssetAlreadyCompleted):
		Error(w, http.StatusConflict, "asset_already_completed", "Asset processing has already completed")
	case errors.Is(err, usecase.ErrOriginalNotUploaded):
		Error(w, http.StatusConflict, "original_not_uploaded", "Upload the original file before processing")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func toAssetResponse(a *model.Asset) AssetResponse {
	return AssetResponse{
		ID:                 a.ID.String(),
		OwnerID:            a.OwnerID.String(),
		Title:              a.Title,
		Status:             a.Status.String(),
		Profile:            a.Profile.String(),
		ContentType:        a.ContentType,
		ByteSize:           a.ByteSize,
		PreviewDurationMS:  a.PreviewDuration.Milliseconds(),
		Waveform:           a.Waveform,
		EncryptedContentID: a.EncryptedContentID,
		ErrorKind:          a.ErrorKind.String(),
		ErrorMessage:       a.ErrorMessage,
		CreatedAt:          a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          a.UpdatedAt.Format(time.RFC3339),
	}
}
