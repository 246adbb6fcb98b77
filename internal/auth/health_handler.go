// health_handler.go -- GET /health.
package auth

import (
	"net/http"
)

type healthResponse struct {
	Sessions string `json:"sessions"`
}

// CheckHealth pings the session store: 200 with "ok", or 503 with "error".
func (c *Client) CheckHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.sessions.CheckHealth(r.Context()); err != nil {
		logError(r, "session store health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Sessions: "error"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Sessions: "ok"})
}
