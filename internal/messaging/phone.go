package messaging

import (
	"regexp"
	"strings"
)

// SuffixLength is how many trailing digits the fuzzy correlation fallback compares.
const SuffixLength = 8

var digitRunRe = regexp.MustCompile(`\d+`)

// Digits strips everything but 0-9 from a raw phone value.
func Digits(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.Join(digitRunRe.FindAllString(raw, -1), "")
}

// NormalizeDigits returns the dialable digit string for a raw phone number.
// National numbers (10 or 11 digits: area code plus 8 or 9 digit subscriber)
// get the country code prepended; anything else is returned as stripped digits.
func NormalizeDigits(raw, countryCode string) string {
	digits := Digits(raw)
	if n := len(digits); n == 10 || n == 11 {
		return Digits(countryCode) + digits
	}
	return digits
}

// Suffix returns the last n digits, or all of them when shorter.
func Suffix(digits string, n int) string {
	if n <= 0 || len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

// MaskPhone keeps only the last four digits for logs.
func MaskPhone(digits string) string {
	if len(digits) <= 4 {
		return digits
	}
	return "***" + digits[len(digits)-4:]
}
