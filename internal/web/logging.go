// logging.go -- Request-scoped logging helpers for page handlers.
package web

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

func logAt(r *http.Request, level slog.Level, msg string, args []any) {
	attrs := []any{"method", r.Method, "path", r.URL.Path}
	if id := middleware.GetReqID(r.Context()); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	slog.Log(r.Context(), level, msg, append(attrs, args...)...)
}

func logDebug(r *http.Request, msg string, args ...any) { logAt(r, slog.LevelDebug, msg, args) }
func logWarn(r *http.Request, msg string, args ...any)  { logAt(r, slog.LevelWarn, msg, args) }
func logError(r *http.Request, msg string, args ...any) { logAt(r, slog.LevelError, msg, args) }
