package handlers

import (
	"net/http"

	"github.com/pressdeck/engine/internal/api/types"
)

// ReadyChecker reports whether a dependency can serve traffic.
type ReadyChecker func() error

type HealthHandler struct {
	checks []ReadyChecker
}

func NewHealthHandler(checks ...ReadyChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]string{"status": "ok"}})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.checks {
		if err := check(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, types.APIResponse{
				Success: false,
				Error:   &types.APIError{Code: "unavailable", Message: err.Error()},
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]string{"status": "ready"}})
}
