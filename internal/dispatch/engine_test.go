package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/aptnotify/internal/events"
	"github.com/shohag/aptnotify/internal/gateway"
	"github.com/shohag/aptnotify/internal/models"
)

var testCreds = models.GatewayCredentials{InstanceID: "1101", APIToken: "tok"}

type sentMessage struct {
	phone string
	text  string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMessage
	fail  map[string]string
	block chan struct{}
}

func (f *fakeSender) SendMessage(ctx context.Context, phoneNumber, message string, creds models.GatewayCredentials) *gateway.SendResult {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{phone: phoneNumber, text: message})
	if reason, ok := f.fail[phoneNumber]; ok {
		return &gateway.SendResult{Error: reason, Attempts: 1}
	}
	return &gateway.SendResult{Success: true, MessageID: fmt.Sprintf("id-%d", len(f.sent)), Attempts: 1}
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []models.DispatchRecord
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, rec *models.DispatchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *rec)
	return f.err
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *recordingSleeper) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, got := range s.delays {
		if got == d {
			n++
		}
	}
	return n
}

type testEngine struct {
	*Engine
	sender   *fakeSender
	recorder *fakeRecorder
	sleeper  *recordingSleeper
	events   *[]events.Event
}

func newTestEngine(t *testing.T, sender Sender) *testEngine {
	t.Helper()
	recorder := &fakeRecorder{}
	sleeper := &recordingSleeper{}
	bus := events.NewBus()
	var mu sync.Mutex
	var published []events.Event
	bus.Subscribe(func(ctx context.Context, e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, e)
	})

	e := NewEngine(sender, recorder, bus, Options{
		BatchSize:     3,
		StaggerDelay:  200 * time.Millisecond,
		BatchDelay:    500 * time.Millisecond,
		DefaultAmount: decimal.RequireFromString("500"),
	}, zerolog.Nop())
	e.sleep = sleeper.Sleep

	fs, _ := sender.(*fakeSender)
	return &testEngine{Engine: e, sender: fs, recorder: recorder, sleeper: sleeper, events: &published}
}

func recipients(n int) []models.Recipient {
	out := make([]models.Recipient, n)
	for i := range out {
		out[i] = models.Recipient{
			ApartmentNumber: i + 1,
			ResidentName:    fmt.Sprintf("Resident %d", i+1),
			PhoneNumber:     fmt.Sprintf("053212345%02d", i),
		}
	}
	return out
}

func TestSendBulk_BatchesAndDelays(t *testing.T) {
	te := newTestEngine(t, &fakeSender{})

	type progress struct {
		processed, total int
		last             string
	}
	var calls []progress
	res, err := te.SendBulk(context.Background(), BulkRequest{
		Recipients:   recipients(7),
		TemplateType: models.TemplateGeneral,
		Credentials:  testCreds,
		OnProgress: func(processed, total int, last string) {
			calls = append(calls, progress{processed, total, last})
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []progress{
		{3, 7, "Resident 3"},
		{6, 7, "Resident 6"},
		{7, 7, "Resident 7"},
	}, calls)
	assert.Equal(t, 2, te.sleeper.count(500*time.Millisecond))
	assert.Equal(t, 2, te.sleeper.count(200*time.Millisecond))
	assert.Equal(t, 2, te.sleeper.count(400*time.Millisecond))
	assert.Equal(t, 7, te.sender.count())
	assert.Equal(t, 7, res.Record.SuccessCount)
	assert.Equal(t, OutcomeAllSent, res.Outcome)
}

func TestPartition(t *testing.T) {
	spans := partition(7, 3)
	require.Len(t, spans, 3)
	assert.Equal(t, []span{{0, 3}, {3, 6}, {6, 7}}, spans)
	assert.Empty(t, partition(0, 3))
	assert.Len(t, partition(3, 3), 1)
}

func TestSendBulk_InvalidPhonesSkipNetwork(t *testing.T) {
	te := newTestEngine(t, &fakeSender{})

	rs := []models.Recipient{
		{ApartmentNumber: 1, ResidentName: "A", PhoneNumber: "123"},
		{ApartmentNumber: 2, ResidentName: "B", PhoneNumber: "   "},
		{ApartmentNumber: 3, ResidentName: "C", PhoneNumber: "05321234567"},
	}
	res, err := te.SendBulk(context.Background(), BulkRequest{
		Recipients: rs, TemplateType: models.TemplateGeneral, Credentials: testCreds,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, te.sender.count())
	assert.Equal(t, "05321234567", te.sender.sent[0].phone)
	assert.Equal(t, models.DeliveryFailed, res.Record.Recipients[0].Status)
	assert.Equal(t, errMissingPhone, res.Record.Recipients[1].Error)
	assert.Equal(t, models.DeliverySent, res.Record.Recipients[2].Status)
	assert.NotNil(t, res.Record.Recipients[2].SentAt)
	assert.Equal(t, OutcomePartial, res.Outcome)
}

func TestSendBulk_CountsAlwaysAddUp(t *testing.T) {
	rs := recipients(8)
	sender := &fakeSender{fail: map[string]string{
		rs[1].PhoneNumber: "gateway error (HTTP 400)",
		rs[5].PhoneNumber: "rate limited by gateway, retries exhausted",
	}}
	rs[7].PhoneNumber = ""
	te := newTestEngine(t, sender)

	res, err := te.SendBulk(context.Background(), BulkRequest{
		Recipients: rs, TemplateType: models.TemplateMeeting, Credentials: testCreds,
	})
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, 8, rec.RecipientCount)
	assert.Equal(t, 5, rec.SuccessCount)
	assert.Equal(t, 3, rec.FailedCount)
	assert.Equal(t, rec.RecipientCount, rec.SuccessCount+rec.FailedCount)
	for _, r := range rec.Recipients {
		assert.NotEqual(t, models.DeliveryPending, r.Status)
	}
	require.Len(t, te.recorder.records, 1)
	assert.Equal(t, rec.ID, te.recorder.records[0].ID)
}

func TestSendBulk_AllFailed(t *testing.T) {
	te := newTestEngine(t, &fakeSender{})
	rs := []models.Recipient{{ApartmentNumber: 1, ResidentName: "A"}}

	res, err := te.SendBulk(context.Background(), BulkRequest{
		Recipients: rs, TemplateType: models.TemplateGeneral, Credentials: testCreds,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllFailed, res.Outcome)
	assert.Zero(t, te.sender.count())
}

func TestSendBulk_RendersPerRecipient(t *testing.T) {
	te := newTestEngine(t, &fakeSender{})
	rs := recipients(2)
	rs[1].Amount = decimal.RequireFromString("725.5")

	_, err := te.SendBulk(context.Background(), BulkRequest{
		Recipients:   rs,
		TemplateType: models.TemplateCustom,
		Message:      "Sayın {residentName}, daire {apartmentNo}, {month} aidatı {amount} TL {unknown}",
		Credentials:  testCreds,
		Month:        time.January,
	})
	require.NoError(t, err)

	texts := map[string]string{}
	for _, m := range te.sender.sent {
		texts[m.phone] = m.text
	}
	assert.Equal(t, "Sayın Resident 1, daire 1, Ocak aidatı 500.00 TL {unknown}", texts[rs[0].PhoneNumber])
	assert.Equal(t, "Sayın Resident 2, daire 2, Ocak aidatı 725.50 TL {unknown}", texts[rs[1].PhoneNumber])
}

func TestSendBulk_PersistFailureIsNonFatal(t *testing.T) {
	te := newTestEngine(t, &fakeSender{})
	te.recorder.err = errors.New("disk full")

	res, err := te.SendBulk(context.Background(), BulkRequest{
		Recipients: recipients(2), TemplateType: models.TemplateGeneral, Credentials: testCreds,
	})
	require.NoError(t, err)

	assert.EqualError(t, res.PersistErr, "disk full")
	assert.Equal(t, 2, res.Record.SuccessCount)

	last := (*te.events)[len(*te.events)-1]
	assert.Equal(t, events.DispatchCompleted, last.Type)
	assert.NotEmpty(t, last.Notice)
	assert.Equal(t, string(OutcomeAllSent), last.Outcome)
}

func TestSendBulk_PublishesProgressAndCompletion(t *testing.T) {
	te := newTestEngine(t, &fakeSender{})

	_, err := te.SendBulk(context.Background(), BulkRequest{
		Recipients: recipients(4), TemplateType: models.TemplateGeneral, Credentials: testCreds,
	})
	require.NoError(t, err)

	require.Len(t, *te.events, 3)
	assert.Equal(t, events.DispatchProgress, (*te.events)[0].Type)
	assert.Equal(t, 3, (*te.events)[0].Processed)
	assert.Equal(t, events.DispatchCompleted, (*te.events)[2].Type)
	require.NotNil(t, (*te.events)[2].Record)
}

func TestSendBulk_RequestErrors(t *testing.T) {
	te := newTestEngine(t, &fakeSender{})
	ctx := context.Background()

	_, err := te.SendBulk(ctx, BulkRequest{TemplateType: models.TemplateGeneral, Credentials: testCreds})
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = te.SendBulk(ctx, BulkRequest{Recipients: recipients(1), TemplateType: models.TemplateGeneral})
	assert.ErrorIs(t, err, gateway.ErrMissingCredentials)

	_, err = te.SendBulk(ctx, BulkRequest{Recipients: recipients(1), TemplateType: "bogus", Credentials: testCreds})
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	_, err = te.SendBulk(ctx, BulkRequest{Recipients: recipients(1), TemplateType: models.TemplateCustom, Credentials: testCreds})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	assert.Zero(t, te.sender.count())
	assert.Empty(t, te.recorder.records)
}

func TestSendBulk_RejectsOverlappingDispatch(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	te := newTestEngine(t, sender)

	done := make(chan error, 1)
	go func() {
		_, err := te.SendBulk(context.Background(), BulkRequest{
			Recipients: recipients(1), TemplateType: models.TemplateGeneral, Credentials: testCreds,
		})
		done <- err
	}()

	require.Eventually(t, func() bool {
		return te.Busy(testCreds.InstanceID)
	}, time.Second, 5*time.Millisecond)

	_, err := te.SendBulk(context.Background(), BulkRequest{
		Recipients: recipients(1), TemplateType: models.TemplateGeneral, Credentials: testCreds,
	})
	assert.ErrorIs(t, err, ErrDispatchInProgress)

	other := testCreds
	other.InstanceID = "2202"
	close(sender.block)
	require.NoError(t, <-done)
	assert.False(t, te.Busy(testCreds.InstanceID))

	_, err = te.SendBulk(context.Background(), BulkRequest{
		Recipients: recipients(1), TemplateType: models.TemplateGeneral, Credentials: other,
	})
	assert.NoError(t, err)
}

func TestSendBulk_EndToEndWithGateway(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"idMessage":"BAE5F4886F7B1C2A"}`))
	}))
	defer srv.Close()

	client := gateway.NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	te := newTestEngine(t, client)

	res, err := te.SendBulk(context.Background(), BulkRequest{
		Recipients: []models.Recipient{
			{ApartmentNumber: 1, ResidentName: "Ahmet", PhoneNumber: "0532123456"},
			{ApartmentNumber: 2, ResidentName: "Zeynep", PhoneNumber: ""},
		},
		TemplateType: models.TemplateGeneral,
		Credentials:  testCreds,
	})
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, 2, rec.RecipientCount)
	assert.Equal(t, 1, rec.SuccessCount)
	assert.Equal(t, 1, rec.FailedCount)
	assert.Equal(t, errMissingPhone, rec.Recipients[1].Error)
	assert.EqualValues(t, 1, calls.Load())
}
