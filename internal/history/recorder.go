package history

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shohag/aptnotify/internal/metrics"
	"github.com/shohag/aptnotify/internal/models"
)

// Store is the slice of storage the recorder needs.
type Store interface {
	CreateNotification(ctx context.Context, rec *models.DispatchRecord) error
	ListNotifications(ctx context.Context, limit, offset int) ([]models.DispatchRecord, error)
}

// PersistError reports that a dispatch record reached the cache but not storage.
// Messages it describes were already sent.
type PersistError struct {
	RecordID string
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist dispatch record %s: %v", e.RecordID, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

type Recorder struct {
	store Store
	cache *Cache
	log   zerolog.Logger
}

func NewRecorder(store Store, cache *Cache, log zerolog.Logger) *Recorder {
	return &Recorder{
		store: store,
		cache: cache,
		log:   log.With().Str("component", "history").Logger(),
	}
}

func (r *Recorder) Cache() *Cache {
	return r.cache
}

// Record writes rec to storage and appends it to the cache. The cache is
// updated even when storage fails; the failure comes back as *PersistError.
func (r *Recorder) Record(ctx context.Context, rec *models.DispatchRecord) error {
	if rec.SuccessCount+rec.FailedCount != rec.RecipientCount {
		return fmt.Errorf("dispatch record %s is inconsistent: %d sent + %d failed != %d recipients",
			rec.ID, rec.SuccessCount, rec.FailedCount, rec.RecipientCount)
	}

	err := r.store.CreateNotification(ctx, rec)
	r.cache.Add(*rec)
	if err != nil {
		metrics.PersistFailures.Inc()
		r.log.Error().Err(err).Str("dispatch_id", rec.ID).Msg("failed to persist dispatch record")
		return &PersistError{RecordID: rec.ID, Err: err}
	}

	r.log.Debug().Str("dispatch_id", rec.ID).Msg("dispatch record saved")
	return nil
}

// Warm loads the newest records from storage into the cache.
func (r *Recorder) Warm(ctx context.Context) error {
	recs, err := r.store.ListNotifications(ctx, r.cache.capacity, 0)
	if err != nil {
		return fmt.Errorf("load notification history: %w", err)
	}
	r.cache.Replace(recs)
	r.log.Info().Int("records", len(recs)).Msg("notification history loaded")
	return nil
}
