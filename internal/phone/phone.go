// Package phone validates resident phone numbers and converts them into the
// gateway's chat address format.
//
// Normalization assumes every number is Turkish (country code 90). Numbers
// from other countries that do not already carry their own code will be
// rewritten incorrectly; that is a known limitation.
package phone

import (
	"fmt"
	"strings"
)

const (
	CountryCode = "90"
	ChatSuffix  = "@c.us"

	minDigits = 10
	maxDigits = 15
)

type Validation struct {
	Valid bool
	Error string
}

// Digits strips everything but 0-9.
func Digits(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func Validate(phone string) Validation {
	if strings.TrimSpace(phone) == "" {
		return Validation{Error: "phone number is empty"}
	}
	n := len(Digits(phone))
	if n < minDigits {
		return Validation{Error: fmt.Sprintf("phone number too short: %d digits (min %d)", n, minDigits)}
	}
	if n > maxDigits {
		return Validation{Error: fmt.Sprintf("phone number too long: %d digits (max %d)", n, maxDigits)}
	}
	return Validation{Valid: true}
}

// Normalize returns the chat address for phone, e.g. "0532 123 45 67" -> "905321234567@c.us".
func Normalize(phone string) string {
	cleaned := Digits(phone)
	if strings.HasPrefix(cleaned, "0") {
		cleaned = CountryCode + cleaned[1:]
	}
	if !strings.HasPrefix(cleaned, CountryCode) {
		cleaned = CountryCode + cleaned
	}
	return cleaned + ChatSuffix
}
