package diffexp

import (
	"math"
	"sort"
)

// bhAdjust returns Benjamini-Hochberg adjusted p-values. NaN entries pass
// through as NaN and do not count toward the number of tests. Adjusted
// values are monotone in the input order of p and never exceed 1.
func bhAdjust(p []float64) []float64 {
	out := make([]float64, len(p))
	idx := make([]int, 0, len(p))
	for i, v := range p {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool {
		if p[idx[a]] != p[idx[b]] {
			return p[idx[a]] < p[idx[b]]
		}
		return idx[a] < idx[b]
	})
	n := float64(len(idx))
	minP := math.Inf(1)
	for i := len(idx) - 1; i >= 0; i-- {
		adjusted := p[idx[i]] * n / float64(i+1)
		if adjusted > 1 {
			adjusted = 1
		}
		if adjusted < minP {
			minP = adjusted
		} else {
			adjusted = minP
		}
		out[idx[i]] = adjusted
	}
	return out
}

// applyFDR fills each row's FDR from its p-value, adjusting across the
// whole table.
func applyFDR(rows []Result) {
	p := make([]float64, len(rows))
	for i, r := range rows {
		p[i] = r.PValue
	}
	fdr := bhAdjust(p)
	for i := range rows {
		rows[i].FDR = fdr[i]
	}
}
