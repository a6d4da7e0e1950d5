// Package sliceutil provides generic slice helpers used for source lists and
// URL sets.
package sliceutil

// Deduplicate keeps the first item for each key, preserving order.
//
// Example:
//
//	chunks := sliceutil.Deduplicate(hits, func(c index.Chunk) string { return c.SourceURL })
func Deduplicate[T any, K comparable](items []T, keyFunc func(T) K) []T {
	if len(items) == 0 {
		return items
	}

	seen := make(map[K]struct{}, len(items))
	result := make([]T, 0, len(items))
	for _, item := range items {
		key := keyFunc(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, item)
	}
	return result
}

// Unique returns the distinct non-zero items in first-seen order, at most
// limit of them. A limit of zero or less means no cap. The result is never
// nil.
func Unique[T comparable](items []T, limit int) []T {
	var zero T
	capacity := len(items)
	if limit > 0 && limit < capacity {
		capacity = limit
	}
	seen := make(map[T]struct{}, len(items))
	out := make([]T, 0, capacity)
	for _, it := range items {
		if it == zero {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
