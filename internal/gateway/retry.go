package gateway

import (
	"context"
	"time"
)

// RetryPolicy bounds the in-call retries of SendMessage. Rate-limit retries
// back off exponentially from RateLimitBase; server errors wait ServerDelay.
// Both share one retry counter per message.
type RetryPolicy struct {
	RateLimitRetries int
	RateLimitBase    time.Duration
	ServerRetries    int
	ServerDelay      time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	RateLimitRetries: 3,
	RateLimitBase:    time.Second,
	ServerRetries:    2,
	ServerDelay:      2 * time.Second,
}

// RateLimitDelay is the wait before retry number retries+1 after a 429.
func (p RetryPolicy) RateLimitDelay(retries int) time.Duration {
	return p.RateLimitBase << retries
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
