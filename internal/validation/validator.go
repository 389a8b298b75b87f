// Package validation checks declared upload metadata against an upload policy
// before any processing begins.
package validation

import (
	"mime"
	"strings"

	"github.com/hszk-dev/beatvault/internal/domain/model"
)

const (
	mib = 1 << 20

	// DefaultGeneralMaxBytes is the size limit for regular uploads.
	DefaultGeneralMaxBytes int64 = 100 * mib
	// DefaultStudioMaxBytes is the size limit for the higher-trust studio path.
	DefaultStudioMaxBytes int64 = 500 * mib
)

// DefaultAllowedTypes is the audio MIME allow-list used when none is configured.
var DefaultAllowedTypes = []string{
	"audio/mpeg",
	"audio/mp3",
	"audio/wav",
	"audio/x-wav",
	"audio/wave",
	"audio/flac",
	"audio/x-flac",
	"audio/aac",
	"audio/mp4",
	"audio/x-m4a",
	"audio/ogg",
	"audio/webm",
	"audio/aiff",
	"audio/x-aiff",
}

// Policy is one upload validation profile.
type Policy struct {
	Name         model.Profile
	MaxBytes     int64
	AllowedTypes []string
}

// GeneralPolicy returns the default policy for regular uploads.
func GeneralPolicy() Policy {
	return Policy{
		Name:         model.ProfileGeneral,
		MaxBytes:     DefaultGeneralMaxBytes,
		AllowedTypes: DefaultAllowedTypes,
	}
}

// StudioPolicy returns the default policy for studio uploads.
func StudioPolicy() Policy {
	return Policy{
		Name:         model.ProfileStudio,
		MaxBytes:     DefaultStudioMaxBytes,
		AllowedTypes: DefaultAllowedTypes,
	}
}

// Validator checks content type and byte size against a single policy.
// It is immutable after construction and safe for concurrent use.
type Validator struct {
	policy  Policy
	allowed map[string]struct{}
}

// NewValidator builds a Validator for the policy.
func NewValidator(p Policy) *Validator {
	allowed := make(map[string]struct{}, len(p.AllowedTypes))
	for _, t := range p.AllowedTypes {
		allowed[normalizeContentType(t)] = struct{}{}
	}
	return &Validator{policy: p, allowed: allowed}
}

// Policy returns the policy the validator enforces.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Validate returns nil if the upload is acceptable, or a non-retryable
// *model.ProcessingError describing the rejection. The size limit is inclusive.
func (v *Validator) Validate(contentType string, byteSize int64) error {
	normalized := normalizeContentType(contentType)
	if _, ok := v.allowed[normalized]; !ok {
		return model.Rejectf(model.KindUnsupportedContentType,
			"unsupported content type %q: allowed types are %s",
			contentType, strings.Join(v.policy.AllowedTypes, ", "))
	}

	if byteSize <= 0 {
		return model.Rejectf(model.KindInvalidSize, "invalid file size: %d bytes", byteSize)
	}

	if byteSize > v.policy.MaxBytes {
		return model.Rejectf(model.KindFileTooLarge,
			"file too large: %.1f MB exceeds limit of %.1f MB",
			toMB(byteSize), toMB(v.policy.MaxBytes))
	}

	return nil
}

// normalizeContentType lowercases the media type and strips parameters.
// Malformed parameters do not hide an otherwise allowed media type.
func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return mediaType
}

func toMB(n int64) float64 {
	return float64(n) / mib
}
