package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hszk-dev/beatvault/internal/domain/model"
)

// maxRequestBody bounds JSON request bodies. Audio never passes through the
// API; it is uploaded straight to object storage.
const maxRequestBody = 64 << 10

// JSON writes data as a JSON response. The body is encoded before the status
// line is sent so an encoding failure can still become a 500.
func JSON(w http.ResponseWriter, status int, data any) {
	var body []byte
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
		body = append(b, '\n')
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Error writes an ErrorResponse with the given code and message.
func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// decodeJSON reads a size-limited JSON body into dst and writes the error
// response itself when it returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body is too large")
		return false
	}
	Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
	return false
}

// rejection writes a validation ProcessingError using its kind as the error code.
func rejection(w http.ResponseWriter, pe *model.ProcessingError) {
	status := http.StatusBadRequest
	switch pe.Kind {
	case model.KindUnsupportedContentType:
		status = http.StatusUnsupportedMediaType
	case model.KindFileTooLarge:
		status = http.StatusRequestEntityTooLarge
	}
	Error(w, status, pe.Kind.String(), pe.Error())
}
