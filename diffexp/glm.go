package diffexp

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Contrast is a linear combination of class coefficients to test against
// zero. Coefficients must sum to zero; classes absent from Coeffs
// contribute zero.
type Contrast struct {
	Name   string
	Coeffs map[string]float64
}

// vector expands the contrast over the given class levels. Unknown
// classes, an all-zero contrast, and coefficients that do not sum to zero
// are ContrastErrors.
func (c Contrast) vector(levels []string) ([]float64, error) {
	known := make(map[string]int, len(levels))
	for i, l := range levels {
		known[l] = i
	}
	v := make([]float64, len(levels))
	var sum, norm float64
	for class, coeff := range c.Coeffs {
		i, ok := known[class]
		if !ok {
			return nil, NewContrastError("unknown class %q in contrast", class)
		}
		v[i] = coeff
		sum += coeff
		norm += math.Abs(coeff)
	}
	if norm == 0 {
		return nil, NewContrastError("contrast has no nonzero coefficients")
	}
	if math.Abs(sum) > 1e-9 {
		return nil, NewContrastError("unbalanced contrast (coefficients sum to %g)", sum)
	}
	return v, nil
}

// label names the contrast for reporting, falling back to a canonical
// rendering of its coefficients.
func (c Contrast) label() string {
	if c.Name != "" {
		return c.Name
	}
	classes := make([]string, 0, len(c.Coeffs))
	for class, coeff := range c.Coeffs {
		if coeff != 0 {
			classes = append(classes, class)
		}
	}
	sort.Strings(classes)
	var b strings.Builder
	for _, class := range classes {
		coeff := c.Coeffs[class]
		switch {
		case coeff == 1:
			fmt.Fprintf(&b, "+%s", class)
		case coeff == -1:
			fmt.Fprintf(&b, "-%s", class)
		default:
			fmt.Fprintf(&b, "%+g*%s", coeff, class)
		}
	}
	return strings.TrimPrefix(b.String(), "+")
}

// GLMTest fits per-gene one-way NB generalized linear models with a log
// link and log effective library sizes as offsets, and tests the contrast
// by likelihood ratio against the null model constrained to the contrast's
// orthogonal complement. The statistic is referred to a chi-squared
// distribution with the contrast's rank as degrees of freedom. LogFC is
// the contrast applied to the per-class log2 abundances. Genes whose null
// fit does not converge get a NaN p-value and are counted in
// stats.NonConvergedFits.
func GLMTest(m *CountMatrix, labels *ClassLabels, factors []float64, disp *DispersionModel, contrast Contrast, opts Opts, stats *Stats) (*ResultTable, error) {
	if !labels.alignedWith(m) {
		return nil, NewDataError("class labels do not match count matrix samples")
	}
	levels, members := labels.groups()
	if len(levels) < 2 {
		return nil, NewDesignError("insufficient groups: need at least two classes, got %d", len(levels))
	}
	if factors != nil && len(factors) != m.NSamples() {
		return nil, NewDataError("got %d normalization factors for %d samples", len(factors), m.NSamples())
	}
	cvec, err := contrast.vector(levels)
	if err != nil {
		return nil, err
	}
	sizes := m.LibSizes()
	for s := range sizes {
		if factors != nil {
			sizes[s] *= factors[s]
		}
		if sizes[s] <= 0 {
			return nil, NewDataError("degenerate sample %s: zero total count", m.Samples[s])
		}
	}
	classIdx := make([]int, m.NSamples())
	for k, idx := range members {
		for _, s := range idx {
			classIdx[s] = k
		}
	}
	nullSpace, df, err := contrastNullSpace(cvec)
	if err != nil {
		return nil, err
	}
	classSizes := make([]float64, len(levels))
	for k, idx := range members {
		for _, s := range idx {
			classSizes[k] += sizes[s]
		}
	}

	rows := make([]Result, m.NGenes())
	parallelism := opts.parallelism()
	perShard := make([]Stats, parallelism)
	maxIter := opts.maxIter()
	terr := traverse.Each(parallelism, func(shard int) error {
		start := (shard * len(rows)) / parallelism
		end := ((shard + 1) * len(rows)) / parallelism
		chi2 := distuv.ChiSquared{K: float64(df)}
		for g := start; g < end; g++ {
			row := m.Counts[g]
			r := Result{GeneID: m.Genes[g], PValue: math.NaN()}
			phi := disp.Tag(g)

			classSums := make([]float64, len(levels))
			for s, v := range row {
				classSums[classIdx[s]] += v
			}
			for k := range levels {
				r.LogFC += cvec[k] * math.Log2((classSums[k]+0.5)/classSizes[k])
			}

			var rowSum float64
			for _, v := range row {
				rowSum += v
			}
			if rowSum == 0 {
				r.PValue, r.LogFC = 1, 0
				perShard[shard].TestedGenes++
				rows[g] = r
				continue
			}

			llFull, ok := fullModelLogLik(row, sizes, members, phi, maxIter)
			if !ok {
				perShard[shard].NonConvergedFits++
				rows[g] = r
				continue
			}
			llNull, ok := nullModelLogLik(row, sizes, classIdx, nullSpace, phi, maxIter)
			if !ok {
				perShard[shard].NonConvergedFits++
				rows[g] = r
				continue
			}
			lrt := 2 * (llFull - llNull)
			if lrt < 0 {
				lrt = 0
			}
			r.PValue = chi2.Survival(lrt)
			perShard[shard].TestedGenes++
			rows[g] = r
		}
		return nil
	})
	if terr != nil {
		log.Panicf("glm test: %v", terr)
	}
	for _, s := range perShard {
		*stats = stats.Merge(s)
	}
	applyFDR(rows)
	return &ResultTable{Method: MethodGLM, Contrast: contrast.label(), Rows: rows}, nil
}

// contrastNullSpace returns an orthonormal basis (classes x free
// dimensions) for the orthogonal complement of the contrast vector, along
// with the contrast rank used as test degrees of freedom.
func contrastNullSpace(cvec []float64) (mat.Matrix, int, error) {
	k := len(cvec)
	cm := mat.NewDense(1, k, cvec)
	var svd mat.SVD
	if !svd.Factorize(cm, mat.SVDFullV) {
		return nil, 0, NewContrastError("contrast decomposition failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	sv := svd.Values(nil)
	var maxSV float64
	for _, s := range sv {
		if s > maxSV {
			maxSV = s
		}
	}
	rank := 0
	for _, s := range sv {
		if s > 1e-12*maxSV {
			rank++
		}
	}
	if rank == 0 {
		return nil, 0, NewContrastError("contrast has no nonzero coefficients")
	}
	return v.Slice(0, k, rank, k), rank, nil
}

// fullModelLogLik fits an unconstrained rate per class and sums the class
// log-likelihoods.
func fullModelLogLik(row, sizes []float64, members [][]int, phi float64, maxIter int) (float64, bool) {
	var ll float64
	for _, idx := range members {
		y := make([]float64, len(idx))
		n := make([]float64, len(idx))
		for i, s := range idx {
			y[i] = row[s]
			n[i] = sizes[s]
		}
		beta, ok := fitGroupRate(y, n, phi, maxIter)
		if !ok {
			return 0, false
		}
		ll += groupLogLik(y, n, beta, phi)
	}
	return ll, true
}

// nullModelLogLik fits the NB GLM with class coefficients restricted to
// span(nullSpace) by iteratively reweighted least squares and returns the
// maximized log-likelihood.
func nullModelLogLik(row, sizes []float64, classIdx []int, nullSpace mat.Matrix, phi float64, maxIter int) (float64, bool) {
	nS := len(row)
	_, nJ := nullSpace.Dims()
	eta := make([]float64, nS)   // linear predictor per sample, offset excluded
	mu := make([]float64, nS)    // fitted means
	gamma := make([]float64, nJ) // free coefficients

	updateFit := func() float64 {
		var ll float64
		for s := 0; s < nS; s++ {
			eta[s] = 0
			for j := 0; j < nJ; j++ {
				eta[s] += nullSpace.At(classIdx[s], j) * gamma[j]
			}
			if eta[s] > 30 {
				eta[s] = 30
			} else if eta[s] < -30 {
				eta[s] = -30
			}
			mu[s] = sizes[s] * math.Exp(eta[s])
			ll += nbLogProb(row[s], mu[s], phi)
		}
		return ll
	}

	ll := updateFit()
	a := mat.NewDense(nS, nJ, nil)
	b := mat.NewVecDense(nS, nil)
	for iter := 0; iter < maxIter; iter++ {
		for s := 0; s < nS; s++ {
			w := mu[s] / (1 + phi*mu[s])
			if w <= 0 || math.IsNaN(w) {
				return 0, false
			}
			sw := math.Sqrt(w)
			for j := 0; j < nJ; j++ {
				a.Set(s, j, sw*nullSpace.At(classIdx[s], j))
			}
			b.SetVec(s, sw*(eta[s]+(row[s]-mu[s])/mu[s]))
		}
		var sol mat.VecDense
		if err := sol.SolveVec(a, b); err != nil {
			return 0, false
		}
		for j := 0; j < nJ; j++ {
			gamma[j] = sol.AtVec(j)
		}
		next := updateFit()
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return 0, false
		}
		if math.Abs(next-ll) < 1e-10*(math.Abs(next)+1) {
			return next, true
		}
		ll = next
	}
	return 0, false
}
