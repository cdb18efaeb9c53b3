package diffexp

// Stats counts what each pipeline stage kept, dropped, or had to fall back
// on. Nothing is dropped or approximated silently; callers should log the
// final merged value.
type Stats struct {
	// TotalGenes is the number of gene rows seen by the low-expression filter.
	TotalGenes int
	// LowExpression is the number of gene rows dropped by the filter.
	LowExpression int
	// Retained is the number of gene rows surviving the filter.
	Retained int
	// DegenerateComparisons is the number of samples whose TMM (or RLE/UQ)
	// comparison against the reference had no usable genes and fell back to
	// a factor of 1.
	DegenerateComparisons int
	// DispersionFallbacks is the number of genes whose tagwise dispersion
	// fit did not converge and fell back to the common dispersion.
	DispersionFallbacks int
	// NonConvergedFits is the number of genes whose per-gene test fit did
	// not converge; their p-values are reported as NaN and excluded from
	// FDR adjustment and rank outputs.
	NonConvergedFits int
	// TestedGenes is the number of genes with a defined p-value in the last
	// testing run.
	TestedGenes int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.TotalGenes += o.TotalGenes
	s.LowExpression += o.LowExpression
	s.Retained += o.Retained
	s.DegenerateComparisons += o.DegenerateComparisons
	s.DispersionFallbacks += o.DispersionFallbacks
	s.NonConvergedFits += o.NonConvergedFits
	s.TestedGenes += o.TestedGenes
	return s
}
