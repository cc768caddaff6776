package events

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/aptnotify/internal/signing"
)

func TestBus_FanOutInOrder(t *testing.T) {
	bus := NewBus()
	var seen []string
	bus.Subscribe(func(ctx context.Context, e Event) { seen = append(seen, "a:"+string(e.Type)) })
	bus.Subscribe(func(ctx context.Context, e Event) {
		assert.False(t, e.Time.IsZero())
		seen = append(seen, "b:"+string(e.Type))
	})
	bus.Subscribe(LogHandler(zerolog.Nop()))

	bus.Publish(context.Background(), Event{Type: DispatchCompleted, Message: "done"})

	assert.Equal(t, []string{"a:dispatch.completed", "b:dispatch.completed"}, seen)
}

func TestWebhook_SignsCompletionEvents(t *testing.T) {
	received := make(chan *http.Request, 2)
	bodies := make(chan []byte, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- r
		bodies <- body
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "whsec", time.Second, zerolog.Nop())
	wh.Handle(context.Background(), Event{Type: DispatchProgress, Message: "skip me"})
	wh.Handle(context.Background(), Event{Type: DispatchCompleted, Outcome: "all_sent", Message: "ok"})

	require.Len(t, received, 1)
	r := <-received
	body := <-bodies
	ts, err := strconv.ParseInt(r.Header.Get(signing.HeaderTimestamp), 10, 64)
	require.NoError(t, err)
	assert.True(t, signing.NewSigner("whsec").Verify(body, ts, r.Header.Get(signing.HeaderSignature), time.Minute))
	assert.Contains(t, string(body), `"outcome":"all_sent"`)
}
