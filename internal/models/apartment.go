package models

import "time"

type Apartment struct {
	Number       int       `json:"number"`
	Block        string    `json:"block,omitempty"`
	ResidentName string    `json:"resident_name"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
