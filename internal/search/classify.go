package search

// Bucket groups results of one kind.
type Bucket[T any] struct {
	Kind  string `json:"kind"`
	Items []T    `json:"items"`
}

// Classify partitions items by kind. Buckets appear in the order their kind
// was first seen and items keep their encounter order.
func Classify[T any](items []T, kind func(T) string) []Bucket[T] {
	index := make(map[string]int)
	buckets := []Bucket[T]{}
	for _, item := range items {
		k := kind(item)
		i, ok := index[k]
		if !ok {
			i = len(buckets)
			index[k] = i
			buckets = append(buckets, Bucket[T]{Kind: k})
		}
		buckets[i].Items = append(buckets[i].Items, item)
	}
	return buckets
}
