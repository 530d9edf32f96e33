package domain

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// IsNullLike reports whether s is one of the sentinel "no value" strings
// upstream ingestion writes: "", "none" or "null" in any case.
func IsNullLike(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "null":
		return true
	}
	return false
}

// IsValidEmail applies the strict address rule used before any upload.
func IsValidEmail(email string) bool {
	if IsNullLike(email) {
		return false
	}
	return emailPattern.MatchString(email)
}
