// Package msisdn normalizes Kenyan mobile numbers to the international form
// expected by M-Pesa (2547XXXXXXXX / 2541XXXXXXXX).
package msisdn

import (
	"strings"

	"github.com/go-faster/errors"
)

// CountryCode is the dialing prefix for Kenya.
const CountryCode = "254"

// ErrInvalid is returned when a number cannot be normalized.
var ErrInvalid = errors.New("invalid phone number")

// Normalize strips formatting characters and rewrites local ("07..") and
// "+254" prefixed numbers to the canonical "254XXXXXXXXX" form.
func Normalize(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	// "+254..." has already lost its plus sign above.
	if strings.HasPrefix(digits, "0") {
		digits = CountryCode + digits[1:]
	}

	if len(digits) != len(CountryCode)+9 || !strings.HasPrefix(digits, CountryCode) {
		return "", errors.Wrapf(ErrInvalid, "%q", phone)
	}
	return digits, nil
}
