package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/aptnotify/internal/models"
	"github.com/shohag/aptnotify/internal/storage"
)

// Service wires the engine to the roster, dues and stored gateway credentials.
// Both the HTTP API and the CLI send through it.
type Service struct {
	engine   *Engine
	store    storage.Storage
	fallback models.GatewayCredentials
	log      zerolog.Logger
}

func NewService(engine *Engine, store storage.Storage, fallback models.GatewayCredentials, log zerolog.Logger) *Service {
	return &Service{
		engine:   engine,
		store:    store,
		fallback: fallback,
		log:      log,
	}
}

// Credentials loads the gateway credentials from settings, falling back to the
// ones from the config file.
func (s *Service) Credentials(ctx context.Context) (models.GatewayCredentials, error) {
	st, err := s.store.GetSetting(ctx, models.WhatsAppSettingsKey)
	if err != nil {
		return models.GatewayCredentials{}, fmt.Errorf("load gateway settings: %w", err)
	}
	creds := models.CredentialsFromSetting(st)
	if creds.Empty() {
		return s.fallback, nil
	}
	return creds, nil
}

// Busy reports whether a dispatch is running for the instance behind creds.
func (s *Service) Busy(creds models.GatewayCredentials) bool {
	return s.engine.Busy(creds.InstanceID)
}

type BroadcastRequest struct {
	TemplateType models.TemplateType
	Message      string
	SentBy       string
	// Apartments limits the broadcast to these numbers; empty means everyone.
	Apartments []int
	OnProgress ProgressFunc
}

// Recipients resolves who a broadcast would go to, without sending.
func (s *Service) Recipients(ctx context.Context, only []int) ([]models.Recipient, error) {
	apartments, err := s.store.ListApartments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list apartments: %w", err)
	}
	if len(only) > 0 {
		want := make(map[int]bool, len(only))
		for _, n := range only {
			want[n] = true
		}
		filtered := apartments[:0]
		for _, a := range apartments {
			if want[a.Number] {
				filtered = append(filtered, a)
			}
		}
		apartments = filtered
	}
	return SelectAll(apartments), nil
}

func (s *Service) Broadcast(ctx context.Context, req BroadcastRequest) (*Result, error) {
	creds, err := s.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	recipients, err := s.Recipients(ctx, req.Apartments)
	if err != nil {
		return nil, err
	}
	return s.engine.SendBulk(ctx, BulkRequest{
		Recipients:   recipients,
		Message:      req.Message,
		TemplateType: req.TemplateType,
		Credentials:  creds,
		SentBy:       req.SentBy,
		OnProgress:   req.OnProgress,
	})
}

type ReminderRequest struct {
	Year       int
	Month      int
	Message    string
	SentBy     string
	OnProgress ProgressFunc
}

// UnpaidRecipients lists residents with an unpaid due for year/month.
func (s *Service) UnpaidRecipients(ctx context.Context, year, month int) ([]models.Recipient, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month %d", month)
	}
	apartments, err := s.store.ListApartments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list apartments: %w", err)
	}
	dues, err := s.store.ListDues(ctx, storage.DueFilter{Year: year, Month: month, UnpaidOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list dues: %w", err)
	}
	return SelectUnpaid(apartments, dues, year, month), nil
}

// Remind sends the dues reminder to every resident with an unpaid due for the period.
func (s *Service) Remind(ctx context.Context, req ReminderRequest) (*Result, error) {
	creds, err := s.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	recipients, err := s.UnpaidRecipients(ctx, req.Year, req.Month)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("year", req.Year).Int("month", req.Month).Int("unpaid", len(recipients)).Msg("sending dues reminders")

	return s.engine.SendBulk(ctx, BulkRequest{
		Recipients:   recipients,
		Message:      req.Message,
		TemplateType: models.TemplateDuesReminder,
		Credentials:  creds,
		SentBy:       req.SentBy,
		Month:        time.Month(req.Month),
		OnProgress:   req.OnProgress,
	})
}
