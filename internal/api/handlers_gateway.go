package api

import (
	"errors"
	"net/http"

	"github.com/shohag/aptnotify/internal/dispatch"
	"github.com/shohag/aptnotify/internal/gateway"
)

type GatewayHandler struct {
	service *dispatch.Service
	client  *gateway.Client
}

func NewGatewayHandler(service *dispatch.Service, client *gateway.Client) *GatewayHandler {
	return &GatewayHandler{service: service, client: client}
}

// State reports whether the configured instance is linked to WhatsApp.
func (h *GatewayHandler) State(w http.ResponseWriter, r *http.Request) {
	creds, err := h.service.Credentials(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load gateway settings")
		return
	}

	state, err := h.client.CheckState(r.Context(), creds)
	if errors.Is(err, gateway.ErrMissingCredentials) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}
