package catalog

import (
	"regexp"
	"strings"

	"github.com/hpungsan/ccpro/internal/keywords"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// emailRegex is deliberately loose: something@something.tld with no spaces.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Normalize trims, lowercases and collapses internal whitespace.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// NormalizeEmail returns the allow-list key for an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailRegex.MatchString(strings.TrimSpace(s))
}

// PromotionKeywords derives the searchable token set of a promotion.
func PromotionKeywords(title, description string) []string {
	return keywords.Index(title, description)
}

// NoteKeywords derives the searchable token set of a note.
func NoteKeywords(title, content string) []string {
	return keywords.Index(title, content)
}
