package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeStatusUnknown  = "status_unknown"
	ErrCodeInternal       = "internal_error"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeControlFailed  = "control_failed"
	ErrCodeTimeout        = "controller_timeout"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// legacyResponse is the envelope used by the /turnOn, /turnOff and /status
// routes that the web page and older clients call.
type legacyResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Method    string    `json:"method,omitempty"`
	Status    any       `json:"status,omitempty"`
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeLegacyError writes a failed legacy envelope.
func writeLegacyError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, legacyResponse{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}
