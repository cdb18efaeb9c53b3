package diffexp

import "runtime"

// Normalization methods accepted by Opts.NormMethod.
const (
	// NormTMM is trimmed mean of M-values, the default.
	NormTMM = "tmm"
	// NormRLE is relative log expression (median ratio to the per-gene
	// geometric mean).
	NormRLE = "rle"
	// NormUpperQuartile scales by the 75th percentile of each sample's
	// nonzero counts.
	NormUpperQuartile = "uq"
	// NormNone uses raw library sizes only; every factor is 1.
	NormNone = "none"
)

type Opts struct {
	// CPMThreshold is the counts-per-million value a gene must exceed in a
	// sample for that sample to count toward MinSamples.
	CPMThreshold float64
	// MinSamples is the number of samples in which a gene must exceed
	// CPMThreshold to survive low-expression filtering.
	MinSamples int

	// NormMethod selects the library-size normalization method. One of
	// NormTMM, NormRLE, NormUpperQuartile, NormNone.
	NormMethod string
	// LogRatioTrim is the fraction of extreme M-values (log fold-changes
	// against the reference sample) dropped from each tail during TMM.
	LogRatioTrim float64
	// SumTrim is the fraction of extreme A-values (average log abundances)
	// dropped from each tail during TMM.
	SumTrim float64
	// WeightedTMM enables inverse asymptotic-variance weighting of the
	// trimmed M-values.
	WeightedTMM bool

	// PriorDF is the prior degrees of freedom governing how strongly
	// per-gene dispersion estimates are shrunk toward the common value.
	// Zero selects the default.
	PriorDF float64
	// MaxIter caps the per-gene Newton/IRLS iterations.
	MaxIter int

	// Parallelism caps the number of concurrent per-gene fitting jobs.
	// Zero means one job per CPU.
	Parallelism int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	CPMThreshold: 1.0,   // -cpm-threshold
	MinSamples:   50,    // -min-samples; tuned for cohort-scale inputs
	NormMethod:   NormTMM,
	LogRatioTrim: 0.3,   // edgeR's logratioTrim
	SumTrim:      0.05,  // edgeR's sumTrim
	WeightedTMM:  true,  // -weighted-tmm
	PriorDF:      10,    // -prior-df
	MaxIter:      50,
	Parallelism:  0,     // -parallelism; 0 = NumCPU
}

// priorDF resolves the configured prior degrees of freedom.
func (o Opts) priorDF() float64 {
	if o.PriorDF > 0 {
		return o.PriorDF
	}
	return DefaultOpts.PriorDF
}

// maxIter resolves the configured iteration cap.
func (o Opts) maxIter() int {
	if o.MaxIter > 0 {
		return o.MaxIter
	}
	return DefaultOpts.MaxIter
}

// parallelism resolves the worker count, defaulting to all CPUs.
func (o Opts) parallelism() int {
	if o.Parallelism > 0 {
		return o.Parallelism
	}
	return runtime.NumCPU()
}
