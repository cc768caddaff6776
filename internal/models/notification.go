package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

type TemplateType string

const (
	TemplateGeneral      TemplateType = "general"
	TemplateDuesReminder TemplateType = "dues_reminder"
	TemplateMeeting      TemplateType = "meeting"
	TemplateMaintenance  TemplateType = "maintenance"
	TemplateCustom       TemplateType = "custom"
)

// Recipient is the per-dispatch delivery state of one resident.
type Recipient struct {
	ApartmentNumber int             `json:"apartment_number"`
	ResidentName    string          `json:"resident_name"`
	PhoneNumber     string          `json:"phone_number"`
	Status          DeliveryStatus  `json:"status"`
	SentAt          *time.Time      `json:"sent_at,omitempty"`
	Error           string          `json:"error,omitempty"`
	Amount          decimal.Decimal `json:"amount,omitzero"`
}

// DispatchRecord summarises one bulk send. SuccessCount+FailedCount always equals RecipientCount.
type DispatchRecord struct {
	ID             string       `json:"id"`
	TemplateType   TemplateType `json:"template_type"`
	MessageBody    string       `json:"message_body"`
	RecipientCount int          `json:"recipient_count"`
	SuccessCount   int          `json:"success_count"`
	FailedCount    int          `json:"failed_count"`
	SentAt         time.Time    `json:"sent_at"`
	SentBy         string       `json:"sent_by"`
	Recipients     []Recipient  `json:"recipients,omitempty"`
}
