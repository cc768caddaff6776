package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/shohag/aptnotify/internal/models"
)

const (
	StateAuthorized    = "authorized"
	StateNotAuthorized = "notAuthorized"
	StateBlocked       = "blocked"
	StateStarting      = "starting"
	StateOther         = "other"
)

// ConnectionState is the diagnostic result of CheckState.
type ConnectionState struct {
	State      string `json:"state"`
	Raw        string `json:"raw"`
	Authorized bool   `json:"authorized"`
	Message    string `json:"message"`
}

type stateResponse struct {
	StateInstance string `json:"stateInstance"`
}

// CheckState asks the gateway whether the instance is linked to a WhatsApp
// account. It never retries.
func (c *Client) CheckState(ctx context.Context, creds models.GatewayCredentials) (*ConnectionState, error) {
	if creds.Empty() {
		return nil, ErrMissingCredentials
	}

	url := c.endpoint(creds, "getStateInstance")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "aptnotify/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %s", redactURL(err, url))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if !IsSuccess(resp.StatusCode) {
		return nil, errors.New(errorMessage(resp.StatusCode, body))
	}

	var out stateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode state response: %w", err)
	}
	return describeState(out.StateInstance), nil
}

func describeState(raw string) *ConnectionState {
	cs := &ConnectionState{Raw: raw}
	switch raw {
	case StateAuthorized:
		cs.State = StateAuthorized
		cs.Authorized = true
		cs.Message = "WhatsApp connection is active"
	case StateNotAuthorized:
		cs.State = StateNotAuthorized
		cs.Message = "instance is not authorized, scan the QR code in the gateway console"
	case StateBlocked:
		cs.State = StateBlocked
		cs.Message = "WhatsApp account is blocked"
	case StateStarting:
		cs.State = StateStarting
		cs.Message = "instance is starting, try again in a few minutes"
	default:
		cs.State = StateOther
		cs.Message = fmt.Sprintf("unexpected instance state %q", raw)
	}
	return cs
}
