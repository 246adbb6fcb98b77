// responses.go -- JSON response helpers shared by handlers and middleware.
//
// Error bodies are fixed strings; internal error details are logged, never sent.
package auth

import (
	"encoding/json"
	"net/http"
)

type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON writes v as a JSON body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// InternalServerError logs err and returns a generic 500.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "internal server error", "error", err)
	writeJSON(w, http.StatusInternalServerError, messageResponse{"internal server error"})
}

// Forbidden returns a 403 without saying which check failed.
func Forbidden(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, messageResponse{"forbidden"})
}

// ServiceUnavailable returns a 503; used when auth state could not be loaded.
func ServiceUnavailable(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, messageResponse{"service unavailable"})
}
