package handler

import (
	"net/http"
)

// ReadinessCheck reports whether a dependency is ready to serve.
type ReadinessCheck func() (ok bool, reason string)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	ready ReadinessCheck
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(ready ReadinessCheck) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// Status handles GET /status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "PIDA Backend de Lógica funcionando.",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if ok, reason := h.ready(); !ok {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": reason,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
