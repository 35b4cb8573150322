package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pressdeck/engine/internal/api/middleware"
	"github.com/pressdeck/engine/internal/api/types"
	"github.com/pressdeck/engine/internal/api/validators"
	"github.com/pressdeck/engine/internal/services"
)

type CredentialsHandler struct {
	creds services.CredentialService
}

func NewCredentialsHandler(creds services.CredentialService) *CredentialsHandler {
	return &CredentialsHandler{creds: creds}
}

// Store godoc
// @Summary Store provider credentials
// @Tags credentials
// @Accept json
// @Produce json
// @Param request body types.CredentialStoreRequest true "credential"
// @Success 201 {object} types.APIResponse
// @Security BearerAuth
// @Router /api/v1/credentials [post]
func (h *CredentialsHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req types.CredentialStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	cred, err := h.creds.Store(r.Context(), middleware.GetUserID(r.Context()), &services.StoreCredentialInput{
		Provider: req.Provider,
		Token:    req.Token,
		BaseURL:  req.BaseURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: cred})
}

func (h *CredentialsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.creds.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

// Validate re-checks the stored credential against the provider.
func (h *CredentialsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	cred, err := h.creds.Validate(r.Context(), middleware.GetUserID(r.Context()), provider)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: cred})
}

func (h *CredentialsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if err := h.creds.Delete(r.Context(), middleware.GetUserID(r.Context()), provider); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}
