// Package search combines token-set matching against the document store with
// substring filtering over a cached listing.
package search

// Merge returns every element of a followed by the elements of b whose key
// does not appear in a. Order is preserved. Duplicates inside a are kept;
// duplicates inside b collapse to their first occurrence.
func Merge[T any](a, b []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]T, 0, len(a)+len(b))
	for _, item := range a {
		seen[key(item)] = struct{}{}
		out = append(out, item)
	}
	for _, item := range b {
		k := key(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}
