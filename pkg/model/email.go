package model

import "regexp"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValidEmail reports whether s looks like a deliverable email address.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// RedactEmail masks the local part of an address for logging. Addresses are
// personal data and must not appear verbatim in logs.
func RedactEmail(s string) string {
	for i, r := range s {
		if r == '@' {
			if i == 0 {
				return "[REDACTED]"
			}
			return s[:1] + "***" + s[i:]
		}
	}
	return "[REDACTED]"
}
