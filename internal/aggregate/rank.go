package aggregate

// RankedCount is a group with its competition rank (1, 2, 2, 4, ...)
type RankedCount struct {
	Rank  int    `json:"rank" csv:"rank"`
	Key   string `json:"key" csv:"key"`
	Count int    `json:"count" csv:"count"`
}

// TopN ranks groups by count descending, breaking ties by key ascending,
// and returns at most n of them. Groups tied across the cut-off are
// truncated by key.
func TopN(counts []Count, n int) []RankedCount {
	if n <= 0 || len(counts) == 0 {
		return []RankedCount{}
	}

	sorted := SortByCount(counts)
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	out := make([]RankedCount, len(sorted))
	for i, c := range sorted {
		rank := i + 1
		if i > 0 && c.Count == sorted[i-1].Count {
			rank = out[i-1].Rank
		}
		out[i] = RankedCount{Rank: rank, Key: c.Key, Count: c.Count}
	}
	return out
}
