package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/shohag/aptnotify/internal/config"
	"github.com/shohag/aptnotify/internal/events"
	"github.com/shohag/aptnotify/internal/gateway"
	"github.com/shohag/aptnotify/internal/metrics"
	"github.com/shohag/aptnotify/internal/models"
	"github.com/shohag/aptnotify/internal/phone"
	"github.com/shohag/aptnotify/internal/templates"
)

var (
	ErrDispatchInProgress = errors.New("a bulk dispatch is already running for this gateway instance")
	ErrNoRecipients       = errors.New("no recipients to send to")
	ErrUnknownTemplate    = errors.New("unknown template type")
	ErrEmptyMessage       = errors.New("message is empty")
)

const errMissingPhone = "missing phone number"

// Sender delivers a single message through the gateway.
type Sender interface {
	SendMessage(ctx context.Context, phoneNumber, message string, creds models.GatewayCredentials) *gateway.SendResult
}

// Recorder stores the summary of a finished dispatch.
type Recorder interface {
	Record(ctx context.Context, rec *models.DispatchRecord) error
}

type Publisher interface {
	Publish(ctx context.Context, e events.Event)
}

// ProgressFunc is called after every batch. It is advisory only.
type ProgressFunc func(processed, total int, lastRecipient string)

type Options struct {
	BatchSize     int
	StaggerDelay  time.Duration
	BatchDelay    time.Duration
	DefaultAmount decimal.Decimal
	SentBy        string
}

func OptionsFromConfig(cfg config.DispatchConfig, dues config.DuesConfig) Options {
	return Options{
		BatchSize:     cfg.BatchSize,
		StaggerDelay:  cfg.StaggerDelay,
		BatchDelay:    cfg.BatchDelay,
		DefaultAmount: dues.Amount(),
		SentBy:        cfg.SentBy,
	}
}

type BulkRequest struct {
	Recipients   []models.Recipient
	Message      string
	TemplateType models.TemplateType
	Credentials  models.GatewayCredentials
	SentBy       string
	// Month overrides the {month} placeholder; zero means the current month.
	Month      time.Month
	OnProgress ProgressFunc
}

type Outcome string

const (
	OutcomeAllSent   Outcome = "all_sent"
	OutcomeAllFailed Outcome = "all_failed"
	OutcomePartial   Outcome = "partial"
)

// Result is what SendBulk hands back to the caller. PersistErr is set when the
// record could not be stored; the messages were still sent.
type Result struct {
	Record     *models.DispatchRecord
	Outcome    Outcome
	Summary    string
	PersistErr error
}

type Engine struct {
	sender   Sender
	recorder Recorder
	bus      Publisher
	opts     Options
	sleep    gateway.Sleeper
	now      func() time.Time
	locks    *instanceLocks
	log      zerolog.Logger
}

func NewEngine(sender Sender, recorder Recorder, bus Publisher, opts Options, log zerolog.Logger) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 3
	}
	if opts.SentBy == "" {
		opts.SentBy = "admin"
	}
	return &Engine{
		sender:   sender,
		recorder: recorder,
		bus:      bus,
		opts:     opts,
		sleep:    gateway.Sleep,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    newInstanceLocks(),
		log:      log.With().Str("component", "dispatch").Logger(),
	}
}

// SendBulk sends one message to every recipient in sequential batches and
// records the aggregate outcome. Per-recipient failures never abort the run.
func (e *Engine) SendBulk(ctx context.Context, req BulkRequest) (*Result, error) {
	if len(req.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if req.Credentials.Empty() {
		return nil, gateway.ErrMissingCredentials
	}
	body, ok := templates.Resolve(req.TemplateType, req.Message)
	if !ok {
		if req.TemplateType == models.TemplateCustom {
			return nil, ErrEmptyMessage
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, req.TemplateType)
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyMessage
	}

	if !e.locks.acquire(req.Credentials.InstanceID) {
		return nil, ErrDispatchInProgress
	}
	defer e.locks.release(req.Credentials.InstanceID)

	start := e.now()
	recipients := make([]models.Recipient, len(req.Recipients))
	copy(recipients, req.Recipients)
	for i := range recipients {
		recipients[i].Status = models.DeliveryPending
		recipients[i].SentAt = nil
		recipients[i].Error = ""
	}

	e.log.Info().
		Str("template", string(req.TemplateType)).
		Int("recipients", len(recipients)).
		Int("batch_size", e.opts.BatchSize).
		Msg("bulk dispatch started")

	render := e.renderer(body, req.Month, start)
	batches := partition(len(recipients), e.opts.BatchSize)
	processed := 0
	for i, b := range batches {
		batch := recipients[b.start:b.end]
		e.runBatch(ctx, batch, render, req.Credentials)
		processed += len(batch)

		last := batch[len(batch)-1].ResidentName
		if req.OnProgress != nil {
			req.OnProgress(processed, len(recipients), last)
		}
		e.bus.Publish(ctx, events.Event{
			Type:      events.DispatchProgress,
			Message:   fmt.Sprintf("%d/%d processed", processed, len(recipients)),
			Processed: processed,
			Total:     len(recipients),
		})

		if i < len(batches)-1 {
			if err := e.sleep(ctx, e.opts.BatchDelay); err != nil {
				e.log.Warn().Err(err).Msg("inter-batch delay interrupted")
			}
		}
	}

	sentBy := req.SentBy
	if sentBy == "" {
		sentBy = e.opts.SentBy
	}
	rec := buildRecord(recipients, req.TemplateType, body, sentBy, e.now())
	result := &Result{Record: rec}
	result.Outcome, result.Summary = summarize(rec)

	if err := e.recorder.Record(ctx, rec); err != nil {
		result.PersistErr = err
	}

	metrics.MessagesTotal.WithLabelValues(string(models.DeliverySent)).Add(float64(rec.SuccessCount))
	metrics.MessagesTotal.WithLabelValues(string(models.DeliveryFailed)).Add(float64(rec.FailedCount))
	metrics.DispatchDuration.WithLabelValues(string(req.TemplateType)).Observe(e.now().Sub(start).Seconds())

	completed := events.Event{
		Type:    events.DispatchCompleted,
		Outcome: string(result.Outcome),
		Message: result.Summary,
		Record:  rec,
	}
	if result.PersistErr != nil {
		completed.Notice = "messages were sent but the history record could not be saved"
	}
	e.bus.Publish(ctx, completed)

	e.log.Info().
		Str("dispatch_id", rec.ID).
		Str("outcome", string(result.Outcome)).
		Int("sent", rec.SuccessCount).
		Int("failed", rec.FailedCount).
		Dur("duration", e.now().Sub(start)).
		Msg("bulk dispatch finished")

	return result, nil
}

// Busy reports whether a dispatch is currently running for the instance.
func (e *Engine) Busy(instanceID string) bool {
	return e.locks.held(instanceID)
}

// renderer returns the per-recipient message builder for one dispatch.
func (e *Engine) renderer(body string, month time.Month, now time.Time) func(r *models.Recipient) string {
	return func(r *models.Recipient) string {
		amount := r.Amount
		if amount.IsZero() {
			amount = e.opts.DefaultAmount
		}
		c := templates.NewContext(r.ResidentName, r.ApartmentNumber, amount, now)
		if month != 0 {
			c.Month = templates.MonthName(month)
		}
		return templates.Render(body, c)
	}
}

// deliver moves r from pending to sent or failed.
func (e *Engine) deliver(ctx context.Context, r *models.Recipient, render func(*models.Recipient) string, creds models.GatewayCredentials) {
	if strings.TrimSpace(r.PhoneNumber) == "" {
		markFailed(r, errMissingPhone)
		return
	}
	if v := phone.Validate(r.PhoneNumber); !v.Valid {
		markFailed(r, v.Error)
		return
	}

	res := e.sender.SendMessage(ctx, r.PhoneNumber, render(r), creds)
	if !res.Success {
		markFailed(r, res.Error)
		e.log.Warn().
			Int("apartment", r.ApartmentNumber).
			Bool("retryable", res.Retryable).
			Int("attempts", res.Attempts).
			Str("error", res.Error).
			Msg("message not delivered")
		return
	}

	sentAt := e.now()
	r.Status = models.DeliverySent
	r.SentAt = &sentAt
	e.log.Debug().
		Int("apartment", r.ApartmentNumber).
		Str("message_id", res.MessageID).
		Msg("message delivered")
}

func markFailed(r *models.Recipient, reason string) {
	r.Status = models.DeliveryFailed
	r.Error = reason
}

func buildRecord(recipients []models.Recipient, tt models.TemplateType, body, sentBy string, sentAt time.Time) *models.DispatchRecord {
	rec := &models.DispatchRecord{
		ID:             models.NewID("ntf"),
		TemplateType:   tt,
		MessageBody:    body,
		RecipientCount: len(recipients),
		SentAt:         sentAt,
		SentBy:         sentBy,
		Recipients:     recipients,
	}
	for _, r := range recipients {
		if r.Status == models.DeliverySent {
			rec.SuccessCount++
		} else {
			rec.FailedCount++
		}
	}
	return rec
}

func summarize(rec *models.DispatchRecord) (Outcome, string) {
	switch {
	case rec.FailedCount == 0:
		return OutcomeAllSent, fmt.Sprintf("message sent to all %d recipients", rec.RecipientCount)
	case rec.SuccessCount == 0:
		return OutcomeAllFailed, fmt.Sprintf("message could not be sent to any of the %d recipients", rec.RecipientCount)
	default:
		return OutcomePartial, fmt.Sprintf("%d sent, %d failed", rec.SuccessCount, rec.FailedCount)
	}
}
