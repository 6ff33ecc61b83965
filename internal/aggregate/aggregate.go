// Package aggregate holds the grouping, ranking and share primitives every
// chart table is built from. All functions are pure: inputs are never
// modified and an empty input yields an empty result.
package aggregate

import "sort"

// Count is one group and the number of rows in it
type Count struct {
	Key   string `json:"key" csv:"key"`
	Count int    `json:"count" csv:"count"`
}

// Filter returns the rows for which keep reports true, in input order
func Filter[T any](rows []T, keep func(T) bool) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// CountBy groups rows by key and returns the groups in first-seen order.
// Every row lands in exactly one group.
func CountBy[T any](rows []T, key func(T) string) []Count {
	index := make(map[string]int)
	out := []Count{}
	for _, r := range rows {
		k := key(r)
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Count{Key: k})
		}
		out[i].Count++
	}
	return out
}

// Total sums the counts
func Total(counts []Count) int {
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	return total
}

// OrderBy sorts counts by their position in order. Keys missing from order
// follow the known keys, sorted ascending.
func OrderBy(counts []Count, order []string) []Count {
	pos := make(map[string]int, len(order))
	for i, k := range order {
		pos[k] = i
	}
	out := make([]Count, len(counts))
	copy(out, counts)
	sort.SliceStable(out, func(i, j int) bool {
		return less(pos, out[i].Key, out[j].Key)
	})
	return out
}

// SortByCount sorts counts descending by count, ties ascending by key
func SortByCount(counts []Count) []Count {
	out := make([]Count, len(counts))
	copy(out, counts)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func less(pos map[string]int, a, b string) bool {
	pa, okA := pos[a]
	pb, okB := pos[b]
	switch {
	case okA && okB:
		return pa < pb
	case okA:
		return true
	case okB:
		return false
	default:
		return a < b
	}
}
