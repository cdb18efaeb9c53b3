package diffexp

import (
	"fmt"
	"math"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// exactWindowMax is the largest gene total for which the exact test sums
// its full conditional distribution. Above it, summation is restricted to a
// window around the conditional mean wide enough that the excluded tails
// are negligible.
const exactWindowMax = 4096

// ExactTest runs the pairwise conditional NB test on every gene of a
// two-class dataset. For each gene the two group totals are compared
// against their conditional distribution given the combined total, at the
// gene's tagwise dispersion. LogFC is the log2 ratio of the second class's
// normalized abundance to the first, classes ordered alphabetically; the
// reported FDR is Benjamini-Hochberg adjusted across the table.
func ExactTest(m *CountMatrix, labels *ClassLabels, factors []float64, disp *DispersionModel, opts Opts, stats *Stats) (*ResultTable, error) {
	if !labels.alignedWith(m) {
		return nil, NewDataError("class labels do not match count matrix samples")
	}
	levels, members := labels.groups()
	if len(levels) < 2 {
		return nil, NewDesignError("insufficient groups: need at least two classes, got %d", len(levels))
	}
	if len(levels) > 2 {
		return nil, NewUsageError("exact test requires two groups, got %d", len(levels))
	}
	if factors != nil && len(factors) != m.NSamples() {
		return nil, NewDataError("got %d normalization factors for %d samples", len(factors), m.NSamples())
	}
	sizes := m.LibSizes()
	var sizeA, sizeB float64
	for s := range sizes {
		if factors != nil {
			sizes[s] *= factors[s]
		}
	}
	for _, s := range members[0] {
		sizeA += sizes[s]
	}
	for _, s := range members[1] {
		sizeB += sizes[s]
	}
	if sizeA <= 0 || sizeB <= 0 {
		return nil, NewDataError("degenerate class: zero effective library size")
	}
	nA := float64(len(members[0]))
	nB := float64(len(members[1]))

	rows := make([]Result, m.NGenes())
	parallelism := opts.parallelism()
	perShard := make([]Stats, parallelism)
	err := traverse.Each(parallelism, func(shard int) error {
		start := (shard * len(rows)) / parallelism
		end := ((shard + 1) * len(rows)) / parallelism
		for g := start; g < end; g++ {
			row := m.Counts[g]
			var yA, yB float64
			for _, s := range members[0] {
				yA += row[s]
			}
			for _, s := range members[1] {
				yB += row[s]
			}
			phi := disp.Tag(g)
			r := Result{GeneID: m.Genes[g]}
			if yA+yB == 0 {
				r.PValue, r.LogFC = 1, 0
			} else {
				r.PValue = exactPValue(yA, yB, sizeA, sizeB, phi/nA, phi/nB)
				r.LogFC = math.Log2(((yB + 0.5) / sizeB) / ((yA + 0.5) / sizeA))
			}
			if math.IsNaN(r.PValue) {
				perShard[shard].NonConvergedFits++
			} else {
				perShard[shard].TestedGenes++
			}
			rows[g] = r
		}
		return nil
	})
	if err != nil {
		log.Panicf("exact test: %v", err)
	}
	for _, s := range perShard {
		*stats = stats.Merge(s)
	}
	applyFDR(rows)
	return &ResultTable{
		Method:   MethodExact,
		Contrast: fmt.Sprintf("%s vs %s", levels[1], levels[0]),
		Rows:     rows,
	}, nil
}

// exactPValue computes the two-sided conditional probability of a split at
// least as extreme as (yA, yB) given the total yA+yB, under NB group sums
// with means proportional to effective class sizes. All accumulation is in
// log space to survive large totals.
func exactPValue(yA, yB, sizeA, sizeB, phiA, phiB float64) float64 {
	total := yA + yB
	lambda := total / (sizeA + sizeB)
	muA := lambda * sizeA
	muB := lambda * sizeB
	term := func(a float64) float64 {
		return nbLogProb(a, muA, phiA) + nbLogProb(total-a, muB, phiB)
	}
	lo, hi := 0.0, total
	if total > exactWindowMax {
		varA := muA + muA*muA*phiA
		varB := muB + muB*muB*phiB
		sd := math.Sqrt(1 / (1/varA + 1/varB))
		h := 10*sd + 20
		lo = math.Max(0, math.Floor(muA-h))
		hi = math.Min(total, math.Ceil(muA+h))
		if yA < lo {
			lo = math.Floor(yA)
		}
		if yA > hi {
			hi = math.Ceil(yA)
		}
	}
	obs := term(yA)
	terms := make([]float64, 0, int(hi-lo)+1)
	maxLog := obs
	for a := lo; a <= hi; a++ {
		t := term(a)
		terms = append(terms, t)
		if t > maxLog {
			maxLog = t
		}
	}
	var num, den float64
	for _, t := range terms {
		e := math.Exp(t - maxLog)
		den += e
		if t <= obs+1e-7 {
			num += e
		}
	}
	if den == 0 || math.IsNaN(den) {
		return math.NaN()
	}
	p := num / den
	if p > 1 {
		p = 1
	}
	return p
}
