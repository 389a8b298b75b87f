package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the processing state of an asset.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Valid status transitions:
// draft -> processing -> ready
//
//	\-> error
//
// processing -> processing is allowed so a redelivered task can re-enter a run
// that crashed before reaching a terminal state.
var validTransitions = map[Status][]Status{
	StatusDraft:      {StatusProcessing},
	StatusProcessing: {StatusProcessing, StatusReady, StatusError},
	StatusReady:      {},
	StatusError:      {},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusProcessing, StatusReady, StatusError:
		return true
	default:
		return false
	}
}

func (s Status) CanTransitionTo(next Status) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusError
}

// SourceStatuses returns the statuses from which next can be reached.
func SourceStatuses(next Status) []Status {
	var from []Status
	for _, s := range []Status{StatusDraft, StatusProcessing, StatusReady, StatusError} {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}

func (s Status) String() string {
	return string(s)
}

// Profile selects the upload policy an asset was accepted under.
type Profile string

const (
	ProfileGeneral Profile = "general"
	ProfileStudio  Profile = "studio"
)

func (p Profile) String() string {
	return string(p)
}

// ParseProfile maps a user supplied profile name to a Profile.
// Empty input selects the general profile.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case "", ProfileGeneral:
		return ProfileGeneral, nil
	case ProfileStudio:
		return ProfileStudio, nil
	default:
		return "", ErrUnknownProfile
	}
}

// Asset is a producer's uploaded audio work and its derived artifacts.
type Asset struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Title       string
	Status      Status
	Profile     Profile
	OriginalKey string
	ContentType string
	ByteSize    int64

	PreviewKey         string
	PreviewDuration    time.Duration
	Waveform           []float64
	EncryptedContentID string
	KeyEnvelope        string

	ErrorKind    ErrorKind
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	ErrEmptyTitle        = errors.New("title cannot be empty")
	ErrInvalidOwnerID    = errors.New("owner ID cannot be nil")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTitleTooLong      = errors.New("title exceeds maximum length of 255 characters")
	ErrUnknownProfile    = errors.New("unknown upload profile")
)

const maxTitleLength = 255

// NewAsset creates a new Asset in draft status.
func NewAsset(ownerID uuid.UUID, title string, profile Profile) (*Asset, error) {
	if ownerID == uuid.Nil {
		return nil, ErrInvalidOwnerID
	}
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if len(title) > maxTitleLength {
		return nil, ErrTitleTooLong
	}
	if profile == "" {
		profile = ProfileGeneral
	}

	now := time.Now()
	return &Asset{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		Status:    StatusDraft,
		Profile:   profile,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TransitionTo attempts to change the asset status.
// Returns error if the transition is not allowed.
func (a *Asset) TransitionTo(next Status) error {
	if !next.IsValid() {
		return ErrInvalidTransition
	}
	if !a.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	a.Status = next
	a.UpdatedAt = time.Now()
	return nil
}

// SetOriginal records where the raw upload lives and what the client declared for it.
func (a *Asset) SetOriginal(key, contentType string, byteSize int64) {
	a.OriginalKey = key
	a.ContentType = contentType
	a.ByteSize = byteSize
	a.UpdatedAt = time.Now()
}

// ApplyArtifacts copies the outputs of a successful pipeline run onto the asset.
func (a *Asset) ApplyArtifacts(art Artifacts) {
	if art.Preview != nil {
		a.PreviewKey = art.Preview.Key
		a.PreviewDuration = art.Preview.Duration
	}
	a.Waveform = art.Waveform
	a.EncryptedContentID = art.EncryptedContentID
	a.KeyEnvelope = art.KeyEnvelope
	a.UpdatedAt = time.Now()
}

// IsReady returns true if the asset can be previewed and licensed.
func (a *Asset) IsReady() bool {
	return a.Status == StatusReady
}

// IsFailed returns true if processing ended in error.
func (a *Asset) IsFailed() bool {
	return a.Status == StatusError
}

// AssetEvent is one entry of an asset's audit trail.
type AssetEvent struct {
	ID         int64
	AssetID    uuid.UUID
	FromStatus Status
	ToStatus   Status
	ErrorKind  ErrorKind
	Message    string
	CreatedAt  time.Time
}
