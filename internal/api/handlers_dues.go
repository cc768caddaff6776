package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shohag/aptnotify/internal/models"
	"github.com/shohag/aptnotify/internal/storage"
)

type DueHandler struct {
	store storage.Storage
}

func NewDueHandler(store storage.Storage) *DueHandler {
	return &DueHandler{store: store}
}

type putDueRequest struct {
	ApartmentNumber int             `json:"apartment_number"`
	Year            int             `json:"year"`
	Month           int             `json:"month"`
	Amount          decimal.Decimal `json:"amount"`
}

type payDueRequest struct {
	Paid *bool `json:"paid"`
}

func (h *DueHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter storage.DueFilter
	var err error
	if filter.Year, err = queryInt(r, "year", 0); err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer")
		return
	}
	if filter.Month, err = queryInt(r, "month", 0); err != nil {
		writeError(w, http.StatusBadRequest, "month must be an integer")
		return
	}
	if filter.ApartmentNumber, err = queryInt(r, "apartment", 0); err != nil {
		writeError(w, http.StatusBadRequest, "apartment must be an integer")
		return
	}
	filter.UnpaidOnly = r.URL.Query().Get("unpaid") == "true"

	dues, err := h.store.ListDues(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list dues")
		return
	}
	if dues == nil {
		dues = []models.Due{}
	}
	writeJSON(w, http.StatusOK, dues)
}

func (h *DueHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req putDueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusBadRequest, "month must be between 1 and 12")
		return
	}
	if req.Year < 2000 {
		writeError(w, http.StatusBadRequest, "year is required")
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	a, err := h.store.GetApartment(r.Context(), req.ApartmentNumber)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get apartment")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "apartment not found")
		return
	}

	d := &models.Due{
		ApartmentNumber: req.ApartmentNumber,
		Year:            req.Year,
		Month:           req.Month,
		Amount:          req.Amount,
	}
	if err := h.store.UpsertDue(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save due")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Pay marks a due paid; send {"paid": false} to undo.
func (h *DueHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.store.GetDue(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get due")
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "due not found")
		return
	}

	var req payDueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	paid := true
	if req.Paid != nil {
		paid = *req.Paid
	}

	if err := h.store.MarkDuePaid(r.Context(), id, paid); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update due")
		return
	}
	d, err = h.store.GetDue(r.Context(), id)
	if err != nil || d == nil {
		writeError(w, http.StatusInternalServerError, "failed to get due")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.store.GetDue(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get due")
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "due not found")
		return
	}

	if err := h.store.DeleteDue(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete due")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
