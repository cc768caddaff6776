package templates

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PlaceholderResidentName = "{residentName}"
	PlaceholderApartmentNo  = "{apartmentNo}"
	PlaceholderDate         = "{date}"
	PlaceholderAmount       = "{amount}"
	PlaceholderMonth        = "{month}"
)

const DateLayout = "02.01.2006"

var monthNames = [...]string{
	"Ocak", "Şubat", "Mart", "Nisan", "Mayıs", "Haziran",
	"Temmuz", "Ağustos", "Eylül", "Ekim", "Kasım", "Aralık",
}

// Context holds the per-recipient values substituted into a template.
type Context struct {
	ResidentName string
	ApartmentNo  string
	Date         string
	Amount       string
	Month        string
}

// Render replaces every occurrence of the known placeholders. Anything else in
// braces is left untouched.
func Render(template string, c Context) string {
	if template == "" {
		return template
	}
	r := strings.NewReplacer(
		PlaceholderResidentName, c.ResidentName,
		PlaceholderApartmentNo, c.ApartmentNo,
		PlaceholderDate, c.Date,
		PlaceholderAmount, c.Amount,
		PlaceholderMonth, c.Month,
	)
	return r.Replace(template)
}

// NewContext builds a Context for one resident at time now.
func NewContext(residentName string, apartmentNo int, amount decimal.Decimal, now time.Time) Context {
	return Context{
		ResidentName: residentName,
		ApartmentNo:  strconv.Itoa(apartmentNo),
		Date:         now.Format(DateLayout),
		Amount:       FormatAmount(amount),
		Month:        MonthName(now.Month()),
	}
}

// MonthName returns the Turkish name of m, or "" when out of range.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthNames[m-1]
}

func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
