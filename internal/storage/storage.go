package storage

import (
	"context"

	"github.com/shohag/aptnotify/internal/models"
)

// Storage is the document store behind the app: apartments, dues, the
// notification history and settings. Getters return (nil, nil) when nothing matches.
type Storage interface {
	// Apartments
	UpsertApartment(ctx context.Context, a *models.Apartment) error
	GetApartment(ctx context.Context, number int) (*models.Apartment, error)
	ListApartments(ctx context.Context) ([]models.Apartment, error)
	DeleteApartment(ctx context.Context, number int) error

	// Dues
	UpsertDue(ctx context.Context, d *models.Due) error
	GetDue(ctx context.Context, id string) (*models.Due, error)
	ListDues(ctx context.Context, filter DueFilter) ([]models.Due, error)
	MarkDuePaid(ctx context.Context, id string, paid bool) error
	DeleteDue(ctx context.Context, id string) error

	// Notification history
	CreateNotification(ctx context.Context, rec *models.DispatchRecord) error
	GetNotification(ctx context.Context, id string) (*models.DispatchRecord, error)
	ListNotifications(ctx context.Context, limit, offset int) ([]models.DispatchRecord, error)

	// Settings
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	MergeSetting(ctx context.Context, key string, value map[string]any) (*models.Setting, error)

	// Stats
	GetStats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// DueFilter narrows ListDues. Zero fields match everything.
type DueFilter struct {
	Year            int
	Month           int
	ApartmentNumber int
	UnpaidOnly      bool
}

type Stats struct {
	Apartments     int64   `json:"apartments"`
	UnpaidDues     int64   `json:"unpaid_dues"`
	Dispatches     int64   `json:"dispatches"`
	MessagesSent   int64   `json:"messages_sent"`
	MessagesFailed int64   `json:"messages_failed"`
	SuccessRate    float64 `json:"success_rate"`
}
