package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a pipeline run did not complete.
type ErrorKind string

const (
	KindUnsupportedContentType   ErrorKind = "unsupported_content_type"
	KindFileTooLarge             ErrorKind = "file_too_large"
	KindInvalidSize              ErrorKind = "invalid_size"
	KindPreviewGenerationFailed  ErrorKind = "preview_generation_failed"
	KindWaveformGenerationFailed ErrorKind = "waveform_generation_failed"
	KindEncryptionOrUploadFailed ErrorKind = "encryption_or_upload_failed"
	KindPersistenceFailed        ErrorKind = "persistence_failed"
	KindCancelled                ErrorKind = "cancelled"
)

func (k ErrorKind) String() string {
	return string(k)
}

// IsValidation reports whether the kind is raised before any I/O happens.
func (k ErrorKind) IsValidation() bool {
	switch k {
	case KindUnsupportedContentType, KindFileTooLarge, KindInvalidSize:
		return true
	default:
		return false
	}
}

// Sentinels for errors.Is matching against a *ProcessingError of the same kind.
var (
	ErrUnsupportedContentType   = &ProcessingError{Kind: KindUnsupportedContentType}
	ErrFileTooLarge             = &ProcessingError{Kind: KindFileTooLarge}
	ErrInvalidSize              = &ProcessingError{Kind: KindInvalidSize}
	ErrPreviewGenerationFailed  = &ProcessingError{Kind: KindPreviewGenerationFailed}
	ErrWaveformGenerationFailed = &ProcessingError{Kind: KindWaveformGenerationFailed}
	ErrEncryptionOrUploadFailed = &ProcessingError{Kind: KindEncryptionOrUploadFailed}
	ErrPersistenceFailed        = &ProcessingError{Kind: KindPersistenceFailed}
	ErrCancelled                = &ProcessingError{Kind: KindCancelled}
)

// ProcessingError is the error type produced by validation and pipeline stages.
type ProcessingError struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
	Err       error
}

// NewProcessingError wraps err under kind.
func NewProcessingError(kind ErrorKind, retryable bool, err error) *ProcessingError {
	return &ProcessingError{Kind: kind, Retryable: retryable, Err: err}
}

// Rejectf builds a non-retryable validation error with a formatted message.
func Rejectf(kind ErrorKind, format string, args ...any) *ProcessingError {
	return &ProcessingError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *ProcessingError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Is matches any *ProcessingError with the same kind.
func (e *ProcessingError) Is(target error) bool {
	t, ok := target.(*ProcessingError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the ErrorKind of err, or "" if err is not a *ProcessingError.
func KindOf(err error) ErrorKind {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsRetryable reports whether err is a *ProcessingError flagged retryable.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
