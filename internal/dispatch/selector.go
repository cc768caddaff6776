package dispatch

import (
	"strings"

	"github.com/shohag/aptnotify/internal/models"
)

func recipientFor(a models.Apartment) models.Recipient {
	return models.Recipient{
		ApartmentNumber: a.Number,
		ResidentName:    a.ResidentName,
		PhoneNumber:     strings.TrimSpace(a.PhoneNumber),
		Status:          models.DeliveryPending,
	}
}

// SelectAll returns a pending recipient for every apartment with a phone number.
func SelectAll(apartments []models.Apartment) []models.Recipient {
	recipients := make([]models.Recipient, 0, len(apartments))
	for _, a := range apartments {
		if strings.TrimSpace(a.PhoneNumber) == "" {
			continue
		}
		recipients = append(recipients, recipientFor(a))
	}
	return recipients
}

// SelectUnpaid returns recipients with a phone number and an unpaid due for
// year/month. The due amount travels with the recipient for {amount}.
func SelectUnpaid(apartments []models.Apartment, dues []models.Due, year, month int) []models.Recipient {
	unpaid := make(map[int]models.Due)
	for _, d := range dues {
		if d.Paid || d.Year != year || d.Month != month {
			continue
		}
		unpaid[d.ApartmentNumber] = d
	}

	recipients := make([]models.Recipient, 0, len(unpaid))
	for _, a := range apartments {
		d, ok := unpaid[a.Number]
		if !ok || strings.TrimSpace(a.PhoneNumber) == "" {
			continue
		}
		r := recipientFor(a)
		r.Amount = d.Amount
		recipients = append(recipients, r)
	}
	return recipients
}
