package search

import "strings"

// Filter returns the items whose title or body contains query as a literal,
// case-insensitive substring. A blank query returns items unchanged.
func Filter[T any](items []T, query string, fields func(T) (title, body string)) []T {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}
	out := []T{}
	for _, item := range items {
		title, body := fields(item)
		if strings.Contains(strings.ToLower(title), q) || strings.Contains(strings.ToLower(body), q) {
			out = append(out, item)
		}
	}
	return out
}
