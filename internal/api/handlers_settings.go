package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shohag/aptnotify/internal/models"
	"github.com/shohag/aptnotify/internal/storage"
)

type SettingsHandler struct {
	store storage.Storage
}

func NewSettingsHandler(store storage.Storage) *SettingsHandler {
	return &SettingsHandler{store: store}
}

type whatsAppSettingsResponse struct {
	InstanceID string `json:"instance_id"`
	APIToken   string `json:"api_token"`
	Configured bool   `json:"configured"`
}

func whatsAppResponse(creds models.GatewayCredentials) whatsAppSettingsResponse {
	masked := creds.Masked()
	return whatsAppSettingsResponse{
		InstanceID: masked.InstanceID,
		APIToken:   masked.APIToken,
		Configured: !creds.Empty(),
	}
}

// GetWhatsApp returns the stored gateway credentials with the token masked.
func (h *SettingsHandler) GetWhatsApp(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.GetSetting(r.Context(), models.WhatsAppSettingsKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, whatsAppResponse(models.CredentialsFromSetting(st)))
}

// PutWhatsApp merges the given fields into the stored credentials. Omitted
// fields keep their previous value.
func (h *SettingsHandler) PutWhatsApp(w http.ResponseWriter, r *http.Request) {
	var req models.GatewayCredentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := map[string]any{}
	if v := strings.TrimSpace(req.InstanceID); v != "" {
		patch["instance_id"] = v
	}
	if v := strings.TrimSpace(req.APIToken); v != "" {
		patch["api_token"] = v
	}
	if len(patch) == 0 {
		writeError(w, http.StatusBadRequest, "instance_id or api_token is required")
		return
	}

	st, err := h.store.MergeSetting(r.Context(), models.WhatsAppSettingsKey, patch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, whatsAppResponse(models.CredentialsFromSetting(st)))
}
