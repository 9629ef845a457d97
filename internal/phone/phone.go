// Package phone normalizes Brazilian mobile numbers the way the landing page
// collects them: 11 national digits (two-digit area code plus nine-digit
// mobile), promoted to E.164 with the country prefix.
package phone

import "strings"

const (
	// DefaultCountryCode is prepended when a number carries no prefix.
	DefaultCountryCode = "55"
	// NationalDigits is the full national number length the form requires.
	NationalDigits = 11
	// e164MaxDigits caps any produced number per E.164.
	e164MaxDigits = 15
)

// Digits strips everything but decimal digits.
func Digits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Sanitize strips non-digits and truncates to the national length.
func Sanitize(value string) string {
	d := Digits(value)
	if len(d) > NationalDigits {
		return d[:NationalDigits]
	}
	return d
}

// IsValid reports whether the value sanitizes to a full national number.
func IsValid(value string) bool {
	return len(Sanitize(value)) == NationalDigits
}

// ToE164 converts a raw number to E.164 digits using the default country
// code. Returns "" when the number cannot be interpreted.
func ToE164(value string) string {
	return ToE164Country(value, DefaultCountryCode)
}

// ToE164Country converts a raw number to E.164 digits with the given country
// code. Numbers already carrying the prefix are accepted as-is when their
// length is plausible; bare national numbers get the prefix prepended.
func ToE164Country(value, countryCode string) string {
	digits := Digits(value)
	if digits == "" {
		return ""
	}

	if strings.HasPrefix(digits, countryCode) {
		minLen := len(countryCode) + 10
		if len(digits) >= minLen && len(digits) <= e164MaxDigits {
			return digits
		}
		return ""
	}

	national := Sanitize(digits)
	if national == "" {
		return ""
	}
	if len(national) >= 10 && len(national) <= 13 {
		candidate := countryCode + national
		if len(candidate) <= e164MaxDigits {
			return candidate
		}
	}
	return ""
}

// Format renders the national display mask: (11) 98765-4321.
func Format(value string) string {
	digits := Sanitize(value)
	switch {
	case len(digits) <= 2:
		return digits
	case len(digits) <= 6:
		return "(" + digits[:2] + ") " + digits[2:]
	case len(digits) <= 10:
		return "(" + digits[:2] + ") " + digits[2:6] + "-" + digits[6:]
	default:
		return "(" + digits[:2] + ") " + digits[2:7] + "-" + digits[7:]
	}
}
