package diffexp

import (
	"math"
	"sort"

	"github.com/grailbio/base/log"
	mstats "github.com/montanaflynn/stats"
)

// aCutoff is the minimum average log2 intensity a gene may have and still
// enter the TMM trimmed mean.
const aCutoff = -1e10

// NormFactors computes one library-size scaling factor per sample so that
// effective library sizes (column sum times factor) are comparable across
// samples. Factors are strictly positive, have geometric mean 1, and are
// deterministic given identical input. The method is selected by
// opts.NormMethod; a sample with zero total counts is a DataError.
func NormFactors(m *CountMatrix, opts Opts, stats *Stats) ([]float64, error) {
	sizes := m.LibSizes()
	for s, size := range sizes {
		if size == 0 {
			return nil, NewDataError("degenerate sample %s: zero total count", m.Samples[s])
		}
	}
	if m.NSamples() == 1 {
		return []float64{1}, nil
	}
	cols := m.columns()
	var f []float64
	switch opts.NormMethod {
	case NormTMM, "":
		f = tmmFactors(cols, sizes, refColumn(cols, sizes), opts, stats)
	case NormRLE:
		f = rleFactors(cols, sizes, stats)
	case NormUpperQuartile:
		f = upperQuartileFactors(cols, sizes, stats)
	case NormNone:
		f = make([]float64, len(cols))
		for i := range f {
			f[i] = 1
		}
		return f, nil
	default:
		return nil, NewUsageError("unknown normalization method %q", opts.NormMethod)
	}
	return scaleToUnitGeomean(f), nil
}

// refColumn picks the reference sample for TMM: the one whose 75th
// count-percentile (scaled by library size) is closest to the mean of those
// percentiles across samples.
func refColumn(cols [][]float64, sizes []float64) int {
	q75 := make([]float64, len(cols))
	for s, col := range cols {
		scaled := make([]float64, len(col))
		for g, v := range col {
			scaled[g] = v / sizes[s]
		}
		q75[s] = percentile(scaled, 75)
	}
	var mean float64
	for _, v := range q75 {
		mean += v
	}
	mean /= float64(len(q75))
	ref, best := 0, math.Abs(q75[0]-mean)
	for s := 1; s < len(q75); s++ {
		if d := math.Abs(q75[s] - mean); d < best {
			ref, best = s, d
		}
	}
	return ref
}

// tmmFactors computes one trimmed-mean-of-M-values factor per sample against
// the reference column. A sample with no genes surviving the trim falls back
// to a factor of 1 and is counted in stats.
func tmmFactors(cols [][]float64, sizes []float64, ref int, opts Opts, stats *Stats) []float64 {
	f := make([]float64, len(cols))
	refCol := cols[ref]
	invSizeRef := 1 / sizes[ref]
	for k, col := range cols {
		if equalCounts(col, refCol) {
			f[k] = 1
			continue
		}
		invSize := 1 / sizes[k]
		var (
			logRat []float64 // M: per-gene log2 fold-change vs the reference
			logInt []float64 // A: per-gene average log2 intensity
			asmVar []float64 // asymptotic variance of each M
		)
		for g := range col {
			m := math.Log2((col[g] * invSize) / (refCol[g] * invSizeRef))
			a := math.Log2(col[g]*invSize*refCol[g]*invSizeRef) / 2
			if a < aCutoff || math.IsInf(m, 0) || math.IsNaN(m) || math.IsInf(a, 0) || math.IsNaN(a) {
				continue
			}
			logRat = append(logRat, m)
			logInt = append(logInt, a)
			if opts.WeightedTMM {
				asmVar = append(asmVar, (sizes[k]-col[g])*invSize/col[g]+(sizes[ref]-refCol[g])*invSizeRef/refCol[g])
			}
		}
		n := float64(len(logRat))
		minRat := math.Floor(n * opts.LogRatioTrim)
		maxRat := n - minRat - 1
		minSum := math.Floor(n * opts.SumTrim)
		maxSum := n - minSum - 1
		ratRank := sampleRanks(logRat)
		intRank := sampleRanks(logInt)

		var num, den float64
		for i := range logRat {
			if ratRank[i] < minRat || ratRank[i] > maxRat || intRank[i] < minSum || intRank[i] > maxSum {
				continue
			}
			if opts.WeightedTMM {
				num += logRat[i] / asmVar[i]
				den += 1 / asmVar[i]
			} else {
				num += logRat[i]
				den++
			}
		}
		if den == 0 {
			f[k] = 1
			stats.DegenerateComparisons++
			continue
		}
		f[k] = math.Pow(2, num/den)
		if math.IsNaN(f[k]) || math.IsInf(f[k], 0) || f[k] <= 0 {
			f[k] = 1
			stats.DegenerateComparisons++
		}
	}
	return f
}

// rleFactors computes relative-log-expression factors: the median ratio of
// each sample's counts to the per-gene geometric means, scaled by library
// size. Genes with a zero count in any sample are excluded.
func rleFactors(cols [][]float64, sizes []float64, stats *Stats) []float64 {
	nGenes := len(cols[0])
	geomean := make([]float64, nGenes)
	for g := 0; g < nGenes; g++ {
		var sumLog float64
		for _, col := range cols {
			sumLog += math.Log(col[g])
		}
		geomean[g] = math.Exp(sumLog / float64(len(cols)))
	}
	f := make([]float64, len(cols))
	ratios := make([]float64, 0, nGenes)
	for k, col := range cols {
		ratios = ratios[:0]
		for g, v := range col {
			if geomean[g] == 0 {
				continue
			}
			ratios = append(ratios, v/geomean[g])
		}
		med, err := mstats.Median(ratios)
		if err != nil || med <= 0 {
			f[k] = 1
			stats.DegenerateComparisons++
			continue
		}
		f[k] = med / sizes[k]
	}
	return f
}

// upperQuartileFactors computes one factor per sample from the 75th
// percentile of its library-size-scaled counts, excluding genes that are
// zero in every sample.
func upperQuartileFactors(cols [][]float64, sizes []float64, stats *Stats) []float64 {
	nGenes := len(cols[0])
	skip := make([]bool, nGenes)
	for g := 0; g < nGenes; g++ {
		skip[g] = true
		for _, col := range cols {
			if col[g] != 0 {
				skip[g] = false
				break
			}
		}
	}
	f := make([]float64, len(cols))
	scaled := make([]float64, 0, nGenes)
	for k, col := range cols {
		scaled = scaled[:0]
		for g, v := range col {
			if skip[g] {
				continue
			}
			scaled = append(scaled, v/sizes[k])
		}
		q := percentile(scaled, 75)
		if q <= 0 {
			f[k] = 1
			stats.DegenerateComparisons++
			continue
		}
		f[k] = q
	}
	return f
}

// percentile wraps the stats package for the degenerate vector lengths it
// rejects: an empty vector yields 0, a too-short one its maximum.
func percentile(v []float64, p float64) float64 {
	if len(v) == 0 {
		return 0
	}
	q, err := mstats.Percentile(v, p)
	if err != nil {
		max := v[0]
		for _, x := range v[1:] {
			if x > max {
				max = x
			}
		}
		return max
	}
	return q
}

// scaleToUnitGeomean rescales factors so their geometric mean is exactly 1.
func scaleToUnitGeomean(f []float64) []float64 {
	gm, err := mstats.GeometricMean(f)
	if err != nil || gm <= 0 || math.IsNaN(gm) {
		log.Panicf("normalization factors %v: bad geometric mean (%v, %v)", f, gm, err)
	}
	for i := range f {
		f[i] /= gm
	}
	return f
}

// sampleRanks returns the 0-based sample ranks of v; ties get the mean rank
// of the tied run.
func sampleRanks(v []float64) []float64 {
	if len(v) == 0 {
		return nil
	}
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return v[idx[i]] < v[idx[j]] })
	ranks := make([]float64, len(v))
	for r, i := range idx {
		ranks[i] = float64(r)
	}
	// Average the ranks of tied runs.
	for lo := 0; lo < len(idx); {
		hi := lo + 1
		for hi < len(idx) && v[idx[hi]] == v[idx[lo]] {
			hi++
		}
		if hi-lo > 1 {
			mean := (ranks[idx[lo]] + ranks[idx[hi-1]]) / 2
			for k := lo; k < hi; k++ {
				ranks[idx[k]] = mean
			}
		}
		lo = hi
	}
	return ranks
}

// equalCounts reports whether two count vectors are identical.
func equalCounts(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
