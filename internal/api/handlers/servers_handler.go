package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/api/middleware"
	"github.com/pressdeck/engine/internal/api/types"
	"github.com/pressdeck/engine/internal/api/validators"
	"github.com/pressdeck/engine/internal/services"
)

type ServersHandler struct {
	servers services.ServerService
}

func NewServersHandler(servers services.ServerService) *ServersHandler {
	return &ServersHandler{servers: servers}
}

// Create godoc
// @Summary Provision a new server
// @Tags servers
// @Accept json
// @Produce json
// @Param request body types.ServerCreateRequest true "server"
// @Success 202 {object} types.APIResponse
// @Security BearerAuth
// @Router /api/v1/servers [post]
func (h *ServersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.ServerCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	srv, err := h.servers.CreateServer(r.Context(), middleware.GetUserID(r.Context()), &services.CreateServerInput{
		Name:       req.Name,
		ServerType: req.ServerType,
		Image:      req.Image,
		Location:   req.Location,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	// Provisioning continues in the background.
	writeJSON(w, http.StatusAccepted, types.APIResponse{Success: true, Data: srv})
}

func (h *ServersHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.servers.ListServers(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

func (h *ServersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid server id")
		return
	}
	srv, err := h.servers.GetServer(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: srv})
}

func (h *ServersHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid server id")
		return
	}
	events, err := h.servers.GetServerEvents(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: events})
}

func (h *ServersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid server id")
		return
	}
	if err := h.servers.DeleteServer(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.APIResponse{Success: true})
}

// Retry re-arms reconciliation for a failed server.
func (h *ServersHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid server id")
		return
	}
	srv, err := h.servers.RetryServer(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.APIResponse{Success: true, Data: srv})
}
