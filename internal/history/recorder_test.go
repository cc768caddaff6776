package history

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/aptnotify/internal/models"
)

type fakeStore struct {
	saved   []models.DispatchRecord
	err     error
	history []models.DispatchRecord
}

func (f *fakeStore) CreateNotification(ctx context.Context, rec *models.DispatchRecord) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, *rec)
	return nil
}

func (f *fakeStore) ListNotifications(ctx context.Context, limit, offset int) ([]models.DispatchRecord, error) {
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func record(id string) *models.DispatchRecord {
	return &models.DispatchRecord{ID: id, RecipientCount: 2, SuccessCount: 1, FailedCount: 1}
}

func TestRecorder_PersistsAndCaches(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(store, NewCache(10), zerolog.Nop())

	require.NoError(t, rec.Record(context.Background(), record("ntf_1")))
	require.NoError(t, rec.Record(context.Background(), record("ntf_2")))

	assert.Len(t, store.saved, 2)
	recent := rec.Cache().Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "ntf_2", recent[0].ID)
}

func TestRecorder_PersistFailureIsTypedAndCached(t *testing.T) {
	boom := errors.New("disk full")
	rec := NewRecorder(&fakeStore{err: boom}, NewCache(10), zerolog.Nop())

	err := rec.Record(context.Background(), record("ntf_1"))

	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "ntf_1", perr.RecordID)
	assert.ErrorIs(t, err, boom)
	_, ok := rec.Cache().Get("ntf_1")
	assert.True(t, ok)
}

func TestRecorder_RejectsInconsistentCounts(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(store, NewCache(10), zerolog.Nop())

	err := rec.Record(context.Background(), &models.DispatchRecord{ID: "x", RecipientCount: 3, SuccessCount: 1, FailedCount: 1})
	assert.Error(t, err)
	assert.Empty(t, store.saved)
	assert.Zero(t, rec.Cache().Len())
}

func TestRecorder_Warm(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 5; i++ {
		store.history = append(store.history, *record(fmt.Sprintf("ntf_%d", i)))
	}
	rec := NewRecorder(store, NewCache(3), zerolog.Nop())

	require.NoError(t, rec.Warm(context.Background()))
	assert.Equal(t, 3, rec.Cache().Len())
	assert.Equal(t, "ntf_0", rec.Cache().Recent(1)[0].ID)
}

func TestCache_Capacity(t *testing.T) {
	c := NewCache(2)
	c.Add(*record("a"))
	c.Add(*record("b"))
	c.Add(*record("c"))

	recent := c.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)
	_, ok := c.Get("a")
	assert.False(t, ok)
}
