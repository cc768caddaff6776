package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/aptnotify/internal/metrics"
	"github.com/shohag/aptnotify/internal/models"
	"github.com/shohag/aptnotify/internal/phone"
)

var ErrMissingCredentials = errors.New("gateway credentials are not configured")

// SendResult is the outcome of one SendMessage call, after retries.
type SendResult struct {
	Success    bool
	MessageID  string
	StatusCode int
	Error      string
	Retryable  bool
	Attempts   int
	LatencyMs  int64
}

type Client struct {
	baseURL string
	client  *http.Client
	policy  RetryPolicy
	sleep   Sleeper
	log     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		policy: DefaultRetryPolicy,
		sleep:  Sleep,
		log:    log.With().Str("component", "gateway").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// endpoint builds the method URL. It embeds the API token, so never log it.
func (c *Client) endpoint(creds models.GatewayCredentials, method string) string {
	return fmt.Sprintf("%s/waInstance%s/%s/%s", c.baseURL, creds.InstanceID, method, creds.APIToken)
}

type sendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

type sendMessageResponse struct {
	IDMessage string `json:"idMessage"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// SendMessage delivers one text message to phoneNumber. Invalid numbers fail
// without a network call. 429 and 5xx responses are retried within the call
// according to the client's RetryPolicy.
func (c *Client) SendMessage(ctx context.Context, phoneNumber, message string, creds models.GatewayCredentials) *SendResult {
	if v := phone.Validate(phoneNumber); !v.Valid {
		return &SendResult{Error: v.Error}
	}
	if creds.Empty() {
		return &SendResult{Error: ErrMissingCredentials.Error()}
	}

	chatID := phone.Normalize(phoneNumber)
	payload, err := json.Marshal(sendMessageRequest{ChatID: chatID, Message: message})
	if err != nil {
		return &SendResult{Error: fmt.Sprintf("failed to encode request: %v", err)}
	}
	url := c.endpoint(creds, "sendMessage")

	start := time.Now()
	retries := 0
	for attempt := 1; ; attempt++ {
		res := c.post(ctx, url, payload)
		res.Attempts = attempt
		res.LatencyMs = time.Since(start).Milliseconds()

		var delay time.Duration
		switch {
		case res.Error != "" || res.Success:
			return res

		case res.StatusCode == http.StatusTooManyRequests:
			if retries >= c.policy.RateLimitRetries {
				res.Error = "rate limited by gateway, retries exhausted"
				res.Retryable = true
				return res
			}
			delay = c.policy.RateLimitDelay(retries)
			metrics.GatewayRetries.WithLabelValues("rate_limited").Inc()

		case res.StatusCode >= 500:
			if retries >= c.policy.ServerRetries {
				res.Error = fmt.Sprintf("gateway server error (HTTP %d), retries exhausted", res.StatusCode)
				res.Retryable = true
				return res
			}
			delay = c.policy.ServerDelay
			metrics.GatewayRetries.WithLabelValues("server_error").Inc()

		default:
			return res
		}

		retries++
		c.log.Warn().
			Str("chat_id", chatID).
			Int("status_code", res.StatusCode).
			Int("retry", retries).
			Dur("delay", delay).
			Msg("gateway send will be retried")

		if err := c.sleep(ctx, delay); err != nil {
			res.Error = fmt.Sprintf("retry aborted: %v", err)
			res.Retryable = true
			return res
		}
	}
}

// post performs a single sendMessage request. Retryable statuses come back
// with an empty Error so the caller can decide to loop.
func (c *Client) post(ctx context.Context, url string, payload []byte) *SendResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &SendResult{Error: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "aptnotify/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return &SendResult{
			Error:     fmt.Sprintf("request failed: %v", redactURL(err, url)),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	res := &SendResult{StatusCode: resp.StatusCode}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return res
	}
	if !IsSuccess(resp.StatusCode) {
		res.Error = errorMessage(resp.StatusCode, body)
		return res
	}

	var out sendMessageResponse
	if err := json.Unmarshal(body, &out); err != nil || out.IDMessage == "" {
		res.Error = "gateway response did not include a message id"
		return res
	}
	res.Success = true
	res.MessageID = out.IDMessage
	return res
}

func errorMessage(status int, body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return fmt.Sprintf("gateway error (HTTP %d): %s", status, e.Message)
		}
		if e.Error != "" {
			return fmt.Sprintf("gateway error (HTTP %d): %s", status, e.Error)
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return fmt.Sprintf("gateway error (HTTP %d): %s", status, text)
	}
	return fmt.Sprintf("gateway error (HTTP %d)", status)
}

// redactURL strips the request URL (and with it the API token) from transport errors.
func redactURL(err error, url string) string {
	return strings.ReplaceAll(err.Error(), url, "<gateway>")
}
