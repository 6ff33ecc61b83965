package aggregate

import "sort"

// CrossCount is the number of rows for one (year, category) pair
type CrossCount struct {
	Year  int    `json:"year" csv:"year"`
	Key   string `json:"key" csv:"key"`
	Count int    `json:"count" csv:"count"`
}

// CrossTab counts rows per (year, key) for the given years only. Pairs
// with no rows are omitted. Output is ordered by the position of the year
// in years, then by order; keys outside order follow, ascending.
func CrossTab[T any](rows []T, years []int, yearOf func(T) int, key func(T) string, order []string) []CrossCount {
	yearPos := make(map[int]int, len(years))
	for i, y := range years {
		yearPos[y] = i
	}
	keyPos := make(map[string]int, len(order))
	for i, k := range order {
		keyPos[k] = i
	}

	type cell struct {
		year int
		key  string
	}
	counts := make(map[cell]int)
	for _, r := range rows {
		y := yearOf(r)
		if _, ok := yearPos[y]; !ok {
			continue
		}
		counts[cell{y, key(r)}]++
	}

	out := make([]CrossCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, CrossCount{Year: c.year, Key: c.key, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return yearPos[out[i].Year] < yearPos[out[j].Year]
		}
		return less(keyPos, out[i].Key, out[j].Key)
	})
	return out
}
