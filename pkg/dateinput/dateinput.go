// Package dateinput validates and canonicalizes the raw date and usage tokens
// accepted by both ingestion paths.
package dateinput

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidDateFormat is returned when a token is not a zero-padded
// YYYY-MM-DD calendar date.
var ErrInvalidDateFormat = errors.New("invalid date format, expected YYYY-MM-DD")

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// IsValidDateToken reports whether token is a literal zero-padded YYYY-MM-DD
// string naming a real calendar date. Surrounding whitespace, alternative
// separators, and out-of-range day or month values are all rejected.
func IsValidDateToken(token string) bool {
	if !datePattern.MatchString(token) {
		return false
	}
	_, err := time.Parse(time.DateOnly, token)
	return err == nil
}

// ToCanonicalDate converts a valid date token into its canonical instant:
// midnight UTC on that calendar date. No timezone negotiation happens
// anywhere in the system; UTC midnight is the single fixed interpretation.
func ToCanonicalDate(token string) (time.Time, error) {
	if !IsValidDateToken(token) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, token)
	}
	t, err := time.Parse(time.DateOnly, token)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, token)
	}
	return t.UTC(), nil
}

// CanonicalDateString formats a valid date token as the canonical instant
// string stored on UsageRecord.Date.
func CanonicalDateString(token string) (string, error) {
	t, err := ToCanonicalDate(token)
	if err != nil {
		return "", err
	}
	return t.Format(time.RFC3339), nil
}

// ParseUsage parses a raw usage token into a finite, non-negative number.
// Tokens that parse to NaN or an infinity are rejected alongside ones that do
// not parse at all.
func ParseUsage(token string) (float64, error) {
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, fmt.Errorf("usage %q is not a number", token)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("usage %q is not finite", token)
	}
	if v < 0 {
		return 0, fmt.Errorf("usage %q is negative", token)
	}
	return v, nil
}
