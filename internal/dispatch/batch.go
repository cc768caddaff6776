package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/shohag/aptnotify/internal/models"
)

type span struct {
	start, end int
}

// partition splits n items into consecutive spans of at most size.
func partition(n, size int) []span {
	if size <= 0 {
		size = 1
	}
	spans := make([]span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, span{start: start, end: end})
	}
	return spans
}

// runBatch sends to every recipient of batch concurrently. Recipient k waits
// k*StaggerDelay before its request so the gateway never sees a burst.
func (e *Engine) runBatch(ctx context.Context, batch []models.Recipient, render func(*models.Recipient) string, creds models.GatewayCredentials) {
	wg := conc.NewWaitGroup()
	for k := range batch {
		r := &batch[k]
		wg.Go(func() {
			if k > 0 {
				if err := e.sleep(ctx, time.Duration(k)*e.opts.StaggerDelay); err != nil {
					markFailed(r, fmt.Sprintf("dispatch aborted: %v", err))
					return
				}
			}
			e.deliver(ctx, r, render, creds)
		})
	}

	if rec := wg.WaitAndRecover(); rec != nil {
		e.log.Error().Str("panic", rec.String()).Msg("recipient send panicked")
	}
	for k := range batch {
		if batch[k].Status == models.DeliveryPending {
			markFailed(&batch[k], "internal error while sending")
		}
	}
}

// instanceLocks rejects overlapping dispatches for the same gateway instance.
type instanceLocks struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{busy: make(map[string]struct{})}
}

func (l *instanceLocks) acquire(instanceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.busy[instanceID]; ok {
		return false
	}
	l.busy[instanceID] = struct{}{}
	return true
}

func (l *instanceLocks) release(instanceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.busy, instanceID)
}

func (l *instanceLocks) held(instanceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.busy[instanceID]
	return ok
}
