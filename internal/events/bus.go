// Package events fans dispatch notifications out to in-process subscribers:
// the log, and optionally a signed webhook consumed by the dashboard.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/aptnotify/internal/models"
)

type Type string

const (
	DispatchProgress  Type = "dispatch.progress"
	DispatchCompleted Type = "dispatch.completed"
)

type Event struct {
	Type      Type                   `json:"type"`
	Time      time.Time              `json:"time"`
	Outcome   string                 `json:"outcome,omitempty"`
	Message   string                 `json:"message"`
	Notice    string                 `json:"notice,omitempty"`
	Processed int                    `json:"processed,omitempty"`
	Total     int                    `json:"total,omitempty"`
	Record    *models.DispatchRecord `json:"record,omitempty"`
}

type Handler func(ctx context.Context, e Event)

// Bus delivers each published event to every subscriber, in subscription
// order, on the publisher's goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
}

// LogHandler writes events to log; completion events with failures go out at warn.
func LogHandler(log zerolog.Logger) Handler {
	return func(ctx context.Context, e Event) {
		ev := log.Info()
		if e.Type == DispatchCompleted && e.Outcome != "all_sent" {
			ev = log.Warn()
		}
		if e.Type == DispatchProgress {
			ev = log.Debug()
		}
		ev = ev.Str("event", string(e.Type)).Str("outcome", e.Outcome)
		if e.Total > 0 {
			ev = ev.Int("processed", e.Processed).Int("total", e.Total)
		}
		if e.Record != nil {
			ev = ev.Str("dispatch_id", e.Record.ID).
				Int("recipients", e.Record.RecipientCount).
				Int("sent", e.Record.SuccessCount).
				Int("failed", e.Record.FailedCount)
		}
		if e.Notice != "" {
			ev = ev.Str("notice", e.Notice)
		}
		ev.Msg(e.Message)
	}
}
