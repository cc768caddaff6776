package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shohag/aptnotify/internal/models"
	"github.com/shohag/aptnotify/internal/phone"
	"github.com/shohag/aptnotify/internal/storage"
)

type ApartmentHandler struct {
	store storage.Storage
}

func NewApartmentHandler(store storage.Storage) *ApartmentHandler {
	return &ApartmentHandler{store: store}
}

type putApartmentRequest struct {
	Block        string `json:"block"`
	ResidentName string `json:"resident_name"`
	PhoneNumber  string `json:"phone_number"`
}

func (h *ApartmentHandler) List(w http.ResponseWriter, r *http.Request) {
	apartments, err := h.store.ListApartments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list apartments")
		return
	}
	if apartments == nil {
		apartments = []models.Apartment{}
	}
	writeJSON(w, http.StatusOK, apartments)
}

func (h *ApartmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	number, err := urlParamInt(r, "number")
	if err != nil {
		writeError(w, http.StatusBadRequest, "apartment number must be an integer")
		return
	}
	a, err := h.store.GetApartment(r.Context(), number)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get apartment")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "apartment not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *ApartmentHandler) Put(w http.ResponseWriter, r *http.Request) {
	number, err := urlParamInt(r, "number")
	if err != nil || number <= 0 {
		writeError(w, http.StatusBadRequest, "apartment number must be a positive integer")
		return
	}

	var req putApartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ResidentName = strings.TrimSpace(req.ResidentName)
	if req.ResidentName == "" {
		writeError(w, http.StatusBadRequest, "resident_name is required")
		return
	}
	if req.PhoneNumber != "" {
		if v := phone.Validate(req.PhoneNumber); !v.Valid {
			writeError(w, http.StatusBadRequest, v.Error)
			return
		}
	}

	a := &models.Apartment{
		Number:       number,
		Block:        req.Block,
		ResidentName: req.ResidentName,
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
	}
	if existing, err := h.store.GetApartment(r.Context(), number); err == nil && existing != nil {
		a.CreatedAt = existing.CreatedAt
	}
	if err := h.store.UpsertApartment(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save apartment")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *ApartmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	number, err := urlParamInt(r, "number")
	if err != nil {
		writeError(w, http.StatusBadRequest, "apartment number must be an integer")
		return
	}
	a, err := h.store.GetApartment(r.Context(), number)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get apartment")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "apartment not found")
		return
	}

	if err := h.store.DeleteApartment(r.Context(), number); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete apartment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
