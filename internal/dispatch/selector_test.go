package dispatch

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/aptnotify/internal/models"
)

var roster = []models.Apartment{
	{Number: 1, ResidentName: "Ahmet", PhoneNumber: "05321234501"},
	{Number: 2, ResidentName: "Ayşe", PhoneNumber: ""},
	{Number: 3, ResidentName: "Mehmet", PhoneNumber: " 05321234503 "},
	{Number: 4, ResidentName: "Zeynep", PhoneNumber: "05321234504"},
}

func TestSelectAll_SkipsMissingPhones(t *testing.T) {
	rs := SelectAll(roster)
	require.Len(t, rs, 3)
	assert.Equal(t, 1, rs[0].ApartmentNumber)
	assert.Equal(t, "05321234503", rs[1].PhoneNumber)
	assert.Equal(t, models.DeliveryPending, rs[2].Status)
}

func TestSelectUnpaid(t *testing.T) {
	dues := []models.Due{
		{ApartmentNumber: 1, Year: 2026, Month: 1, Amount: decimal.RequireFromString("500")},
		{ApartmentNumber: 2, Year: 2026, Month: 1, Amount: decimal.RequireFromString("500")},
		{ApartmentNumber: 3, Year: 2026, Month: 1, Amount: decimal.RequireFromString("500"), Paid: true},
		{ApartmentNumber: 4, Year: 2026, Month: 2, Amount: decimal.RequireFromString("650")},
		{ApartmentNumber: 4, Year: 2026, Month: 1, Amount: decimal.RequireFromString("600")},
	}

	rs := SelectUnpaid(roster, dues, 2026, 1)

	require.Len(t, rs, 2)
	assert.Equal(t, 1, rs[0].ApartmentNumber)
	assert.Equal(t, 4, rs[1].ApartmentNumber)
	assert.True(t, decimal.RequireFromString("600").Equal(rs[1].Amount))
}
