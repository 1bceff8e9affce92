package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/taskengine/internal/taskmeta"
)

// HealthHandler serves the server's liveness and readiness probes.
type HealthHandler struct {
	meta      *taskmeta.Store
	startTime time.Time
}

// NewHealthHandler creates a health handler bound to meta.
func NewHealthHandler(meta *taskmeta.Store) *HealthHandler {
	return &HealthHandler{meta: meta, startTime: time.Now()}
}

// Liveness handles GET /health - always succeeds once the process answers
// HTTP at all.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSONOK(w, map[string]any{
		"status":     "healthy",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime_sec": int64(uptime.Seconds()),
	})
}

// Readiness handles GET /health/ready - returns 503 if the metadata store is
// unreachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.meta.ListTasks(r.Context(), nil, 1); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	WriteJSONOK(w, map[string]any{"status": "healthy"})
}
