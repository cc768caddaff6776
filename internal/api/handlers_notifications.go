package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shohag/aptnotify/internal/dispatch"
	"github.com/shohag/aptnotify/internal/gateway"
	"github.com/shohag/aptnotify/internal/history"
	"github.com/shohag/aptnotify/internal/models"
	"github.com/shohag/aptnotify/internal/storage"
	"github.com/shohag/aptnotify/internal/templates"
)

// NotificationHandler starts bulk dispatches and serves the history.
// Dispatches run in the background unless the caller passes ?wait=true; either
// way they are detached from the request context and run to completion.
type NotificationHandler struct {
	service *dispatch.Service
	store   storage.Storage
	cache   *history.Cache
	log     zerolog.Logger
	running sync.WaitGroup
}

func NewNotificationHandler(service *dispatch.Service, store storage.Storage, cache *history.Cache, log zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		store:   store,
		cache:   cache,
		log:     log.With().Str("component", "notifications").Logger(),
	}
}

type bulkRequest struct {
	TemplateType models.TemplateType `json:"template_type"`
	Message      string              `json:"message"`
	SentBy       string              `json:"sent_by"`
	Apartments   []int               `json:"apartments"`
}

type reminderRequest struct {
	Year    int    `json:"year"`
	Month   int    `json:"month"`
	Message string `json:"message"`
	SentBy  string `json:"sent_by"`
}

type acceptedResponse struct {
	Status     string `json:"status"`
	Recipients int    `json:"recipients"`
}

type dispatchResponse struct {
	Outcome dispatch.Outcome       `json:"outcome"`
	Summary string                 `json:"summary"`
	Notice  string                 `json:"notice,omitempty"`
	Record  *models.DispatchRecord `json:"record"`
}

func (h *NotificationHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TemplateType == "" {
		req.TemplateType = models.TemplateGeneral
		if strings.TrimSpace(req.Message) != "" {
			req.TemplateType = models.TemplateCustom
		}
	}
	if err := checkTemplate(req.TemplateType, req.Message); err != nil {
		writeDispatchError(w, err)
		return
	}

	creds, ok := h.preflightCredentials(w, r)
	if !ok {
		return
	}
	recipients, err := h.service.Recipients(r.Context(), req.Apartments)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load recipients")
		return
	}
	if len(recipients) == 0 {
		writeDispatchError(w, dispatch.ErrNoRecipients)
		return
	}
	if h.service.Busy(creds) {
		writeDispatchError(w, dispatch.ErrDispatchInProgress)
		return
	}

	run := func(ctx context.Context) (*dispatch.Result, error) {
		return h.service.Broadcast(ctx, dispatch.BroadcastRequest{
			TemplateType: req.TemplateType,
			Message:      req.Message,
			SentBy:       req.SentBy,
			Apartments:   req.Apartments,
		})
	}
	h.start(w, r, len(recipients), run)
}

func (h *NotificationHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	now := time.Now()
	if req.Year == 0 {
		req.Year = now.Year()
	}
	if req.Month == 0 {
		req.Month = int(now.Month())
	}
	if req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusBadRequest, "month must be between 1 and 12")
		return
	}

	creds, ok := h.preflightCredentials(w, r)
	if !ok {
		return
	}
	recipients, err := h.service.UnpaidRecipients(r.Context(), req.Year, req.Month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load unpaid dues")
		return
	}
	if len(recipients) == 0 {
		writeDispatchError(w, dispatch.ErrNoRecipients)
		return
	}
	if h.service.Busy(creds) {
		writeDispatchError(w, dispatch.ErrDispatchInProgress)
		return
	}

	run := func(ctx context.Context) (*dispatch.Result, error) {
		return h.service.Remind(ctx, dispatch.ReminderRequest{
			Year:    req.Year,
			Month:   req.Month,
			Message: req.Message,
			SentBy:  req.SentBy,
		})
	}
	h.start(w, r, len(recipients), run)
}

func (h *NotificationHandler) preflightCredentials(w http.ResponseWriter, r *http.Request) (models.GatewayCredentials, bool) {
	creds, err := h.service.Credentials(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load gateway settings")
		return creds, false
	}
	if creds.Empty() {
		writeDispatchError(w, gateway.ErrMissingCredentials)
		return creds, false
	}
	return creds, true
}

// start runs the dispatch detached from the request. With ?wait=true the
// response carries the final result; otherwise it returns 202 immediately.
func (h *NotificationHandler) start(w http.ResponseWriter, r *http.Request, recipients int, run func(context.Context) (*dispatch.Result, error)) {
	ctx := context.WithoutCancel(r.Context())

	if r.URL.Query().Get("wait") == "true" {
		res, err := run(ctx)
		if err != nil {
			writeDispatchError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newDispatchResponse(res))
		return
	}

	h.running.Add(1)
	go func() {
		defer h.running.Done()
		res, err := run(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("background dispatch failed to start")
			return
		}
		evt := h.log.Info()
		if res.PersistErr != nil {
			evt = h.log.Warn().Err(res.PersistErr)
		}
		evt.Str("dispatch_id", res.Record.ID).
			Str("outcome", string(res.Outcome)).
			Msg(res.Summary)
	}()

	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", Recipients: recipients})
}

// Wait blocks until background dispatches finish or ctx is done.
func (h *NotificationHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > 100 {
		limit = 100
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	recs, err := h.store.ListNotifications(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if recs == nil {
		recs = []models.DispatchRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// Recent serves the in-memory history, which also holds records that failed to persist.
func (h *NotificationHandler) Recent(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "limit", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	writeJSON(w, http.StatusOK, h.cache.Recent(n))
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if rec, ok := h.cache.Get(id); ok {
		writeJSON(w, http.StatusOK, rec)
		return
	}

	rec, err := h.store.GetNotification(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get notification")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func checkTemplate(tt models.TemplateType, message string) error {
	if _, ok := templates.Resolve(tt, message); ok {
		return nil
	}
	if tt == models.TemplateCustom {
		return dispatch.ErrEmptyMessage
	}
	return dispatch.ErrUnknownTemplate
}

func newDispatchResponse(res *dispatch.Result) dispatchResponse {
	out := dispatchResponse{
		Outcome: res.Outcome,
		Summary: res.Summary,
		Record:  res.Record,
	}
	if res.PersistErr != nil {
		out.Notice = "messages were sent but the history record could not be saved"
	}
	return out
}

func writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrDispatchInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gateway.ErrMissingCredentials),
		errors.Is(err, dispatch.ErrUnknownTemplate),
		errors.Is(err, dispatch.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrNoRecipients):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "dispatch failed")
	}
}
