package diffexp

import (
	"math"
	"sort"
)

// DefaultFDRThreshold is the significance cutoff used by the command line
// tools when none is given.
const DefaultFDRThreshold = 0.05

// RankEntry is one line of a GSEA-style preranked list.
type RankEntry struct {
	GeneID string
	Score  float64
}

// RankScores converts a result table into a ranked list scored by
// sign(logFC) * -log10(p). Zero p-values are clamped to the smallest
// positive float64 so the score stays finite; genes without a p-value are
// dropped. The list is ordered by descending score, ties broken by gene ID,
// and is a pure function of the table.
func RankScores(t *ResultTable) []RankEntry {
	entries := make([]RankEntry, 0, len(t.Rows))
	for _, r := range t.Rows {
		if math.IsNaN(r.PValue) {
			continue
		}
		p := r.PValue
		if p <= 0 {
			p = math.SmallestNonzeroFloat64
		}
		score := -math.Log10(p)
		switch {
		case r.LogFC < 0:
			score = -score
		case r.LogFC == 0:
			score = 0
		}
		entries = append(entries, RankEntry{GeneID: r.GeneID, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].GeneID < entries[j].GeneID
	})
	return entries
}

// SignificantGenes lists the gene IDs with FDR strictly below the
// threshold, in table order.
func SignificantGenes(t *ResultTable, threshold float64) []string {
	var ids []string
	for _, r := range t.Rows {
		if r.FDR < threshold {
			ids = append(ids, r.GeneID)
		}
	}
	return ids
}

// SignificantGenesByDirection splits the significant genes by the sign of
// their log fold-change. Genes with exactly zero logFC appear in neither
// list.
func SignificantGenesByDirection(t *ResultTable, threshold float64) (up, down []string) {
	for _, r := range t.Rows {
		if !(r.FDR < threshold) {
			continue
		}
		switch {
		case r.LogFC > 0:
			up = append(up, r.GeneID)
		case r.LogFC < 0:
			down = append(down, r.GeneID)
		}
	}
	return up, down
}
