package validation

import (
	"regexp"
	"strings"
)

const MaxRatingLen = 10

// Ratings look like agency grades: AAA, BB+, A-1.
var ratingRe = regexp.MustCompile(`^[A-Za-z0-9+\-]{1,10}$`)

// Issuer names: letters, digits, spaces and the punctuation common in company names.
var issuerNameRe = regexp.MustCompile(`^[\p{L}\p{N}\s\-'.&,()]+$`)

func IsValidRating(rating string) bool {
	return ratingRe.MatchString(rating)
}

// IsValidIssuerName rejects blank names and names over 120 characters.
func IsValidIssuerName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > 120 {
		return false
	}
	return issuerNameRe.MatchString(name)
}
