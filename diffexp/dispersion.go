package diffexp

import (
	"math"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// goldenIters bounds the golden-section search for a dispersion. 40
// halvings shrink the log-dispersion bracket below 1e-8.
const goldenIters = 40

// DispersionModel holds the fitted negative binomial dispersions for one
// dataset: a single common value and one shrunken tagwise value per gene,
// parallel to the filtered matrix rows.
type DispersionModel struct {
	Common  float64
	Tagwise []float64
	PriorDF float64
}

// Tag returns the dispersion to use for gene g: the tagwise estimate when
// present, otherwise the common one.
func (d *DispersionModel) Tag(g int) float64 {
	if g < len(d.Tagwise) {
		return d.Tagwise[g]
	}
	return d.Common
}

type dispEstimator struct {
	rows        [][]float64 // filtered counts, genes x samples
	sizes       []float64   // effective library sizes
	members     [][]int     // sample indices per class
	maxIter     int
	parallelism int
}

// EstimateDispersion fits the common NB dispersion by maximizing the
// profile log-likelihood over all genes, then per-gene tagwise dispersions
// shrunk toward the common value with weight d/(d+priorDF), where d is the
// residual degrees of freedom. Genes whose individual fit fails keep the
// common value and are counted in stats.DispersionFallbacks.
func EstimateDispersion(m *CountMatrix, labels *ClassLabels, factors []float64, opts Opts, stats *Stats) (*DispersionModel, error) {
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
	sizes := m.LibSizes()
	for s := range sizes {
		if factors != nil {
			sizes[s] *= factors[s]
		}
		if sizes[s] <= 0 {
			return nil, NewDataError("degenerate sample %s: zero total count", m.Samples[s])
		}
	}
	e := &dispEstimator{
		rows:        m.Counts,
		sizes:       sizes,
		members:     members,
		maxIter:     opts.maxIter(),
		parallelism: opts.parallelism(),
	}

	common := math.Exp(maximizeOnLogScale(e.totalLogLik))
	residDF := float64(m.NSamples() - len(levels))
	if residDF < 0 {
		residDF = 0
	}
	priorDF := opts.priorDF()
	w := residDF / (residDF + priorDF)

	tagwise := make([]float64, len(e.rows))
	perShard := make([]Stats, e.parallelism)
	err := traverse.Each(e.parallelism, func(shard int) error {
		start := (shard * len(e.rows)) / e.parallelism
		end := ((shard + 1) * len(e.rows)) / e.parallelism
		for g := start; g < end; g++ {
			phi, ok := e.maximizeGene(g)
			if !ok {
				if log.At(log.Debug) {
					log.Debug.Printf("gene %s: tagwise dispersion fit failed, keeping common %g", m.Genes[g], common)
				}
				tagwise[g] = common
				perShard[shard].DispersionFallbacks++
				continue
			}
			tagwise[g] = w*phi + (1-w)*common
		}
		return nil
	})
	if err != nil {
		log.Panicf("tagwise dispersion: %v", err)
	}
	for _, s := range perShard {
		*stats = stats.Merge(s)
	}
	return &DispersionModel{Common: common, Tagwise: tagwise, PriorDF: priorDF}, nil
}

// totalLogLik sums the per-gene profile log-likelihoods at one dispersion,
// sharding genes across workers.
func (e *dispEstimator) totalLogLik(phi float64) float64 {
	parts := make([]float64, e.parallelism)
	err := traverse.Each(e.parallelism, func(shard int) error {
		start := (shard * len(e.rows)) / e.parallelism
		end := ((shard + 1) * len(e.rows)) / e.parallelism
		var sum float64
		for g := start; g < end; g++ {
			if ll, ok := e.geneLogLik(g, phi); ok {
				sum += ll
			}
		}
		parts[shard] = sum
		return nil
	})
	if err != nil {
		log.Panicf("common dispersion: %v", err)
	}
	var total float64
	for _, p := range parts {
		total += p
	}
	return total
}

// geneLogLik refits each class mean at the given dispersion and returns the
// summed log-likelihood for gene g.
func (e *dispEstimator) geneLogLik(g int, phi float64) (float64, bool) {
	row := e.rows[g]
	var total float64
	for _, idx := range e.members {
		y := make([]float64, len(idx))
		n := make([]float64, len(idx))
		for i, s := range idx {
			y[i] = row[s]
			n[i] = e.sizes[s]
		}
		beta, ok := fitGroupRate(y, n, phi, e.maxIter)
		if !ok {
			return 0, false
		}
		total += groupLogLik(y, n, beta, phi)
	}
	return total, true
}

// maximizeGene finds the dispersion maximizing gene g's own profile
// log-likelihood. ok is false for all-zero genes and failed fits.
func (e *dispEstimator) maximizeGene(g int) (float64, bool) {
	var rowSum float64
	for _, v := range e.rows[g] {
		rowSum += v
	}
	if rowSum == 0 {
		return 0, false
	}
	logPhi := maximizeOnLogScale(func(phi float64) float64 {
		ll, ok := e.geneLogLik(g, phi)
		if !ok {
			return math.Inf(-1)
		}
		return ll
	})
	phi := math.Exp(logPhi)
	if _, ok := e.geneLogLik(g, phi); !ok || math.IsNaN(phi) {
		return 0, false
	}
	return phi, true
}

// maximizeOnLogScale runs a golden-section search for the dispersion
// maximizing f, on the log scale over [minDisp, maxDisp], and returns the
// log of the maximizer.
func maximizeOnLogScale(f func(phi float64) float64) float64 {
	const invGolden = 0.6180339887498949
	a, b := math.Log(minDisp), math.Log(maxDisp)
	c := b - invGolden*(b-a)
	d := a + invGolden*(b-a)
	fc, fd := f(math.Exp(c)), f(math.Exp(d))
	for i := 0; i < goldenIters; i++ {
		if fc > fd {
			b, d, fd = d, c, fc
			c = b - invGolden*(b-a)
			fc = f(math.Exp(c))
		} else {
			a, c, fc = c, d, fd
			d = a + invGolden*(b-a)
			fd = f(math.Exp(d))
		}
	}
	return (a + b) / 2
}
