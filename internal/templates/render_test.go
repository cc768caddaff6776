package templates

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/aptnotify/internal/models"
)

func TestRender_ReplacesKnownPlaceholders(t *testing.T) {
	out := Render("Sayın {residentName}, {month} ayı...", Context{ResidentName: "Ahmet", Month: "Ocak"})
	assert.Equal(t, "Sayın Ahmet, Ocak ayı...", out)
}

func TestRender_LeavesUnknownVerbatim(t *testing.T) {
	out := Render("Sayın {residentName}, {unknown} kaldı", Context{ResidentName: "Ahmet"})
	assert.Equal(t, "Sayın Ahmet, {unknown} kaldı", out)
}

func TestRender_AllOccurrences(t *testing.T) {
	out := Render("{apartmentNo}/{apartmentNo} {amount} {date}", Context{ApartmentNo: "7", Amount: "500.00", Date: "01.02.2026"})
	assert.Equal(t, "7/7 500.00 01.02.2026", out)
}

func TestNewContext(t *testing.T) {
	now := time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC)
	c := NewContext("Ayşe", 12, decimal.RequireFromString("750.5"), now)

	assert.Equal(t, "Ayşe", c.ResidentName)
	assert.Equal(t, "12", c.ApartmentNo)
	assert.Equal(t, "05.03.2026", c.Date)
	assert.Equal(t, "750.50", c.Amount)
	assert.Equal(t, "Mart", c.Month)
}

func TestMonthName(t *testing.T) {
	assert.Equal(t, "Ocak", MonthName(time.January))
	assert.Equal(t, "Aralık", MonthName(time.December))
	assert.Equal(t, "", MonthName(0))
}

func TestResolve(t *testing.T) {
	tpl, ok := Resolve(models.TemplateDuesReminder, "")
	require.True(t, ok)
	assert.Contains(t, tpl, PlaceholderAmount)

	_, ok = Resolve(models.TemplateCustom, "")
	assert.False(t, ok)

	msg, ok := Resolve(models.TemplateCustom, "Su kesintisi")
	assert.True(t, ok)
	assert.Equal(t, "Su kesintisi", msg)

	_, ok = Resolve("bogus", "hello")
	assert.False(t, ok)
}
