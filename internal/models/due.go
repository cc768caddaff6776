package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Due is one month's payment obligation for an apartment.
type Due struct {
	ID              string          `json:"id"`
	ApartmentNumber int             `json:"apartment_number"`
	Year            int             `json:"year"`
	Month           int             `json:"month"`
	Amount          decimal.Decimal `json:"amount"`
	Paid            bool            `json:"paid"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
