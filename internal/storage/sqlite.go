package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shohag/aptnotify/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS apartments (
			number INTEGER PRIMARY KEY,
			block TEXT NOT NULL DEFAULT '',
			resident_name TEXT NOT NULL,
			phone_number TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS dues (
			id TEXT PRIMARY KEY,
			apartment_number INTEGER NOT NULL REFERENCES apartments(number) ON DELETE CASCADE,
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			amount TEXT NOT NULL,
			paid INTEGER NOT NULL DEFAULT 0,
			paid_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (apartment_number, year, month)
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			template_type TEXT NOT NULL,
			message_body TEXT NOT NULL,
			recipient_count INTEGER NOT NULL,
			success_count INTEGER NOT NULL,
			failed_count INTEGER NOT NULL,
			recipients TEXT NOT NULL DEFAULT '[]',
			sent_at DATETIME NOT NULL,
			sent_by TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT '{}',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dues_period ON dues(year, month)`,
		`CREATE INDEX IF NOT EXISTS idx_dues_unpaid ON dues(year, month) WHERE paid = 0`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_sent_at ON notifications(sent_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Apartments ---

func (s *SQLiteStorage) UpsertApartment(ctx context.Context, a *models.Apartment) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO apartments (number, block, resident_name, phone_number, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(number) DO UPDATE SET
			block = excluded.block,
			resident_name = excluded.resident_name,
			phone_number = excluded.phone_number,
			updated_at = excluded.updated_at`,
		a.Number, a.Block, a.ResidentName, a.PhoneNumber, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

const apartmentColumns = `number, block, resident_name, phone_number, created_at, updated_at`

func scanApartment(row interface{ Scan(...interface{}) error }) (*models.Apartment, error) {
	var a models.Apartment
	if err := row.Scan(&a.Number, &a.Block, &a.ResidentName, &a.PhoneNumber, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteStorage) GetApartment(ctx context.Context, number int) (*models.Apartment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+apartmentColumns+` FROM apartments WHERE number = ?`, number)
	a, err := scanApartment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStorage) ListApartments(ctx context.Context) ([]models.Apartment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+apartmentColumns+` FROM apartments ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apartments []models.Apartment
	for rows.Next() {
		a, err := scanApartment(rows)
		if err != nil {
			return nil, err
		}
		apartments = append(apartments, *a)
	}
	return apartments, rows.Err()
}

func (s *SQLiteStorage) DeleteApartment(ctx context.Context, number int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM apartments WHERE number = ?`, number)
	return err
}

// --- Dues ---

// UpsertDue inserts d or updates the amount of the existing due for the same
// apartment and period. d is refreshed from the stored row.
func (s *SQLiteStorage) UpsertDue(ctx context.Context, d *models.Due) error {
	now := time.Now().UTC()
	if d.ID == "" {
		d.ID = models.NewID("due")
	}
	paid := 0
	if d.Paid {
		paid = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dues (id, apartment_number, year, month, amount, paid, paid_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(apartment_number, year, month) DO UPDATE SET
			amount = excluded.amount,
			updated_at = excluded.updated_at`,
		d.ID, d.ApartmentNumber, d.Year, d.Month, d.Amount, paid, d.PaidAt, now, now,
	)
	if err != nil {
		return err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+dueColumns+` FROM dues WHERE apartment_number = ? AND year = ? AND month = ?`,
		d.ApartmentNumber, d.Year, d.Month)
	stored, err := scanDue(row)
	if err != nil {
		return err
	}
	*d = *stored
	return nil
}

const dueColumns = `id, apartment_number, year, month, amount, paid, paid_at, created_at, updated_at`

func scanDue(row interface{ Scan(...interface{}) error }) (*models.Due, error) {
	var d models.Due
	var paid int
	err := row.Scan(&d.ID, &d.ApartmentNumber, &d.Year, &d.Month, &d.Amount, &paid, &d.PaidAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Paid = paid == 1
	return &d, nil
}

func (s *SQLiteStorage) GetDue(ctx context.Context, id string) (*models.Due, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dueColumns+` FROM dues WHERE id = ?`, id)
	d, err := scanDue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *SQLiteStorage) ListDues(ctx context.Context, filter DueFilter) ([]models.Due, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.Month != 0 {
		where = append(where, "month = ?")
		args = append(args, filter.Month)
	}
	if filter.ApartmentNumber != 0 {
		where = append(where, "apartment_number = ?")
		args = append(args, filter.ApartmentNumber)
	}
	if filter.UnpaidOnly {
		where = append(where, "paid = 0")
	}

	q := `SELECT ` + dueColumns + ` FROM dues`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY year DESC, month DESC, apartment_number`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dues []models.Due
	for rows.Next() {
		d, err := scanDue(rows)
		if err != nil {
			return nil, err
		}
		dues = append(dues, *d)
	}
	return dues, rows.Err()
}

func (s *SQLiteStorage) MarkDuePaid(ctx context.Context, id string, paid bool) error {
	now := time.Now().UTC()
	var paidAt *time.Time
	p := 0
	if paid {
		p = 1
		paidAt = &now
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE dues SET paid = ?, paid_at = ?, updated_at = ? WHERE id = ?`,
		p, paidAt, now, id,
	)
	return err
}

func (s *SQLiteStorage) DeleteDue(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dues WHERE id = ?`, id)
	return err
}

// --- Notification history ---

func (s *SQLiteStorage) CreateNotification(ctx context.Context, rec *models.DispatchRecord) error {
	recipients, err := json.Marshal(rec.Recipients)
	if err != nil {
		return fmt.Errorf("encode recipients: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, template_type, message_body, recipient_count, success_count, failed_count, recipients, sent_at, sent_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TemplateType, rec.MessageBody, rec.RecipientCount, rec.SuccessCount, rec.FailedCount,
		string(recipients), rec.SentAt, rec.SentBy,
	)
	return err
}

const notificationColumns = `id, template_type, message_body, recipient_count, success_count, failed_count, recipients, sent_at, sent_by`

func scanNotification(row interface{ Scan(...interface{}) error }) (*models.DispatchRecord, error) {
	var rec models.DispatchRecord
	var recipients string
	err := row.Scan(&rec.ID, &rec.TemplateType, &rec.MessageBody, &rec.RecipientCount, &rec.SuccessCount,
		&rec.FailedCount, &recipients, &rec.SentAt, &rec.SentBy)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(recipients), &rec.Recipients); err != nil {
		return nil, fmt.Errorf("decode recipients of %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func (s *SQLiteStorage) GetNotification(ctx context.Context, id string) (*models.DispatchRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	rec, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStorage) ListNotifications(ctx context.Context, limit, offset int) ([]models.DispatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications ORDER BY sent_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.DispatchRecord
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// --- Settings ---

func (s *SQLiteStorage) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	var st models.Setting
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM settings WHERE key = ?`, key,
	).Scan(&st.Key, &value, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(value), &st.Value); err != nil {
		return nil, fmt.Errorf("decode setting %s: %w", key, err)
	}
	return &st, nil
}

// MergeSetting shallow-merges value into the stored document for key,
// creating it when missing.
func (s *SQLiteStorage) MergeSetting(ctx context.Context, key string, value map[string]any) (*models.Setting, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	merged := map[string]any{}
	var current string
	err = tx.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal([]byte(current), &merged); err != nil {
			return nil, fmt.Errorf("decode setting %s: %w", key, err)
		}
	}
	for k, v := range value {
		merged[k] = v
	}

	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(encoded), now,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &models.Setting{Key: key, Value: merged, UpdatedAt: now}, nil
}

// --- Stats ---

func (s *SQLiteStorage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM apartments`).Scan(&stats.Apartments); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dues WHERE paid = 0`).Scan(&stats.UnpaidDues); err != nil {
		return nil, err
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(success_count), 0), COALESCE(SUM(failed_count), 0) FROM notifications`,
	).Scan(&stats.Dispatches, &stats.MessagesSent, &stats.MessagesFailed)
	if err != nil {
		return nil, err
	}

	if total := stats.MessagesSent + stats.MessagesFailed; total > 0 {
		stats.SuccessRate = float64(stats.MessagesSent) / float64(total) * 100
	}

	return stats, nil
}
