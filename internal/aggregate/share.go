package aggregate

import (
	"fmt"
	"math"
	"sort"
)

// ShareCount is a group with its share of the total
type ShareCount struct {
	Key     string  `json:"key" csv:"key"`
	Count   int     `json:"count" csv:"count"`
	Share   float64 `json:"share" csv:"share"`
	Percent string  `json:"percent" csv:"percent"`
}

// TwoStageShare carries a share of the full total and of the subtotal left
// after exclusion
type TwoStageShare struct {
	Key         string  `json:"key" csv:"key"`
	Count       int     `json:"count" csv:"count"`
	PctAll      float64 `json:"pct_all" csv:"pct_all"`
	PctMinority float64 `json:"pct_minority" csv:"pct_minority"`
	RowText     string  `json:"row_text" csv:"row_text"`
}

// Shares computes each group's share of the summed counts, keeping input order
func Shares(counts []Count) []ShareCount {
	total := Total(counts)
	out := make([]ShareCount, len(counts))
	for i, c := range counts {
		share := ratio(c.Count, total)
		out[i] = ShareCount{
			Key:     c.Key,
			Count:   c.Count,
			Share:   share,
			Percent: FormatPercent(share),
		}
	}
	return out
}

// TwoStageShares computes pct_all against the total of every group, then
// drops the excluded keys and computes pct_minority against what is left.
// Rows are ordered by count descending, ties by key.
func TwoStageShares(counts []Count, exclude ...string) []TwoStageShare {
	// captured before the exclusion filter
	total := Total(counts)

	excluded := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		excluded[k] = true
	}
	kept := Filter(counts, func(c Count) bool { return !excluded[c.Key] })
	subtotal := Total(kept)

	out := make([]TwoStageShare, len(kept))
	for i, c := range kept {
		all := ratio(c.Count, total)
		minority := ratio(c.Count, subtotal)
		out[i] = TwoStageShare{
			Key:         c.Key,
			Count:       c.Count,
			PctAll:      all,
			PctMinority: minority,
			RowText: fmt.Sprintf("%s: %d (%s of all; %s of minority)",
				c.Key, c.Count, FormatPercent(all), FormatPercent(minority)),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// RoundSignificant rounds v to the given number of significant figures
func RoundSignificant(v float64, figures int) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) || figures <= 0 {
		return v
	}
	shift := float64(figures) - math.Ceil(math.Log10(math.Abs(v)))
	if shift < 0 {
		scale := math.Pow(10, -shift)
		return math.Round(v/scale) * scale
	}
	scale := math.Pow(10, shift)
	return math.Round(v*scale) / scale
}

// FormatPercent renders a fraction as a percentage with one decimal place
func FormatPercent(share float64) string {
	return fmt.Sprintf("%.1f%%", share*100)
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return RoundSignificant(float64(n)/float64(total), 4)
}
