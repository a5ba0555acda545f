package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"billing-console/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONStatus writes a JSON response with an explicit status code.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes the request body into v. On failure it writes the
// error response and returns false: HTTP 413 when the body exceeded the
// limit set by RequestBodyLimit, HTTP 400 otherwise.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, r, "request body too large", "PAYLOAD_TOO_LARGE", http.StatusRequestEntityTooLarge)
		return false
	}
	writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
	return false
}

// serviceError maps an application error to an HTTP response. The core
// services phrase not-found and invalid-state errors; this keeps the mapping
// coarse on purpose.
func serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *core.MissingColumnsError
	if errors.As(err, &missing) {
		writeError(w, r, missing.Error(), "INVALID_UPLOAD", http.StatusUnprocessableEntity)
		return
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"):
		writeError(w, r, msg, "NOT_FOUND", http.StatusNotFound)
	case strings.Contains(msg, "cannot") || strings.Contains(msg, "only") ||
		strings.Contains(msg, "already"):
		writeError(w, r, msg, "CONFLICT", http.StatusConflict)
	default:
		writeError(w, r, msg, "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
