package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/aptnotify/internal/signing"
)

// Webhook posts completion events as signed JSON to a fixed URL.
type Webhook struct {
	url    string
	signer *signing.Signer
	client *http.Client
	log    zerolog.Logger
}

func NewWebhook(url, secret string, timeout time.Duration, log zerolog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		signer: signing.NewSigner(secret),
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "webhook").Logger(),
	}
}

// Handle only forwards completion events; progress is too chatty for a webhook.
func (w *Webhook) Handle(ctx context.Context, e Event) {
	if e.Type != DispatchCompleted {
		return
	}
	if err := w.post(ctx, e); err != nil {
		w.log.Error().Err(err).Str("event", string(e.Type)).Msg("failed to deliver event webhook")
	}
}

func (w *Webhook) post(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	signature, timestamp := w.signer.Sign(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "aptnotify/1.0")
	req.Header.Set(signing.HeaderTimestamp, fmt.Sprintf("%d", timestamp))
	req.Header.Set(signing.HeaderSignature, signature)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with HTTP %d", resp.StatusCode)
	}
	return nil
}
