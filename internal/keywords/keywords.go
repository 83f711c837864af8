// Package keywords derives the token sets used to emulate partial-match search
// on a document store that only supports array membership predicates.
package keywords

import (
	"slices"
	"strings"
)

const (
	// MinWordLen is the shortest word kept as a token. Shorter words are
	// dropped and can never be matched by keyword search.
	MinWordLen = 3

	// MinPrefixLen is the shortest prefix emitted for longer words.
	MinPrefixLen = 3
)

// Index returns the token set for a title/body pair: every whitespace
// separated word of at least MinWordLen runes, plus every prefix of at least
// MinPrefixLen runes of each word longer than MinPrefixLen.
// The result is sorted and free of duplicates.
func Index(title, body string) []string {
	text := strings.ToLower(title + " " + body)
	set := make(map[string]struct{})

	for _, word := range strings.Fields(text) {
		runes := []rune(word)
		if len(runes) < MinWordLen {
			continue
		}
		set[word] = struct{}{}

		if len(runes) <= MinPrefixLen {
			continue
		}
		for i := MinPrefixLen; i <= len(runes); i++ {
			set[string(runes[:i])] = struct{}{}
		}
	}

	tokens := make([]string, 0, len(set))
	for tok := range set {
		tokens = append(tokens, tok)
	}
	slices.Sort(tokens)
	return tokens
}

// Query tokenizes a search phrase with the same rules as Index so that query
// tokens and stored tokens share one vocabulary.
func Query(raw string) []string {
	return Index(raw, "")
}

// Intersects reports whether the two token sets share at least one token.
func Intersects(a, b []string) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
