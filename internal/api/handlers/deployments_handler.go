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

type DeploymentsHandler struct {
	deployments services.DeploymentService
}

func NewDeploymentsHandler(deployments services.DeploymentService) *DeploymentsHandler {
	return &DeploymentsHandler{deployments: deployments}
}

// Create godoc
// @Summary Deploy a WordPress site onto a managed server
// @Tags deployments
// @Accept json
// @Produce json
// @Param request body types.DeploymentCreateRequest true "deployment"
// @Success 202 {object} types.APIResponse
// @Security BearerAuth
// @Router /api/v1/deployments [post]
func (h *DeploymentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.DeploymentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	serverID, err := uuid.Parse(req.ServerID)
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid server id")
		return
	}

	d, err := h.deployments.CreateDeployment(r.Context(), middleware.GetUserID(r.Context()), &services.CreateDeploymentInput{
		ServerID:   serverID,
		SiteName:   req.SiteName,
		Domain:     req.Domain,
		AdminEmail: req.AdminEmail,
		Config:     req.Config,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.APIResponse{Success: true, Data: d})
}

func (h *DeploymentsHandler) List(w http.ResponseWriter, r *http.Request) {
	serverID := uuid.Nil
	if q := r.URL.Query().Get("server_id"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid server id")
			return
		}
		serverID = id
	}
	items, err := h.deployments.ListDeployments(r.Context(), middleware.GetUserID(r.Context()), serverID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

func (h *DeploymentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid deployment id")
		return
	}
	d, err := h.deployments.GetDeployment(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: d})
}

func (h *DeploymentsHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid deployment id")
		return
	}
	events, err := h.deployments.GetDeploymentEvents(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: events})
}

func (h *DeploymentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid deployment id")
		return
	}
	if err := h.deployments.DeleteDeployment(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.APIResponse{Success: true})
}

// Retry re-arms reconciliation for a failed deployment.
func (h *DeploymentsHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid deployment id")
		return
	}
	d, err := h.deployments.RetryDeployment(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.APIResponse{Success: true, Data: d})
}
