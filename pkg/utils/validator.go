package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	controlRegex = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	// Spanish NIF/CIF/NIE with an optional EU country prefix
	vatRegex = regexp.MustCompile(`^([A-Z]{2})?[A-Z0-9]\d{7}[A-Z0-9]$`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// NormalizeVAT reduces a tax identifier to its letters and digits, uppercased.
// "b-14.891.592" and "B14891592" normalize to the same key.
func NormalizeVAT(vat string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(vat) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateVAT checks that a tax identifier looks like a Spanish NIF/CIF/NIE
func ValidateVAT(vat string) error {
	n := NormalizeVAT(vat)
	if n == "" {
		return fmt.Errorf("tax ID is empty")
	}
	if !vatRegex.MatchString(n) {
		return fmt.Errorf("tax ID has an unexpected shape: %s", vat)
	}
	return nil
}

// NormalizeSpace trims s and collapses every run of whitespace into one space
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FoldKey returns the case-folded, whitespace-normalized form used as a lookup key
func FoldKey(s string) string {
	return strings.ToLower(NormalizeSpace(s))
}

// SanitizeString removes control characters, keeping tabs and newlines
func SanitizeString(s string) string {
	return controlRegex.ReplaceAllString(s, "")
}
