package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/paritas/internal/common"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// StatusForError maps an error kind to its HTTP status code.
func StatusForError(err error) int {
	switch common.KindOf(err) {
	case common.KindInvalidInput:
		return http.StatusBadRequest
	case common.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError writes the standard error response for a service error.
// Client errors carry the service message; anything else gets a generic 500
// so internal detail stays out of responses.
func WriteServiceError(w http.ResponseWriter, err error) error {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		return WriteError(w, status, "Internal server error")
	}
	return WriteError(w, status, err.Error())
}

// PathSegment returns the nth slash-separated segment of the request path,
// or "" when absent. /api/jobs/job_123/run has segments [api jobs job_123 run].
func PathSegment(r *http.Request, index int) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if index < 0 || index >= len(parts) {
		return ""
	}
	return parts[index]
}
