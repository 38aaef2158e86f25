package domain

import (
	"encoding/json"
	"net/http"
)

// ErrorCode represents a specific error condition exposed to API callers.
type ErrorCode string

const (
	ErrInvalidAPIKey      ErrorCode = "InvalidAPIKey"       // HTTP 401
	ErrBadRequest         ErrorCode = "BadRequest"          // HTTP 400, malformed snapshot request
	ErrUnsupportedMessage ErrorCode = "UnsupportedMessage"  // HTTP 422, message has nothing to render
	ErrRenderFailed       ErrorCode = "RenderFailed"        // HTTP 502, renderer collaborator failed
	ErrNotFound           ErrorCode = "NotFound"            // HTTP 404, e.g. asset unavailable
	ErrInternal           ErrorCode = "InternalServerError" // HTTP 500
)

// ErrorResponse is the standard error body returned over HTTP and in NATS error replies.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// NewErrorResponse creates a new ErrorResponse struct.
func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort, the status line is already written.
}
