package diffexp

// CPM converts raw counts to counts-per-million. If factors is non-nil it
// must hold one normalization factor per sample, and the per-sample scale
// becomes the effective library size (column sum times factor); a nil
// factors slice scales by raw library size. A sample whose column sums to
// zero makes CPM undefined and yields a DataError rather than Inf or NaN.
func CPM(m *CountMatrix, factors []float64) ([][]float64, error) {
	if factors != nil && len(factors) != m.NSamples() {
		return nil, NewDataError("%d normalization factors for %d samples", len(factors), m.NSamples())
	}
	sizes := m.LibSizes()
	scale := make([]float64, len(sizes))
	for s, size := range sizes {
		if size == 0 {
			return nil, NewDataError("degenerate sample %s: zero total count", m.Samples[s])
		}
		if factors != nil {
			size *= factors[s]
		}
		scale[s] = size / 1e6
	}
	cpm := make([][]float64, m.NGenes())
	for g, row := range m.Counts {
		out := make([]float64, len(row))
		for s, v := range row {
			out[s] = v / scale[s]
		}
		cpm[g] = out
	}
	return cpm, nil
}

// FilterLowExpression drops genes expressed below opts.CPMThreshold CPM in
// fewer than opts.MinSamples samples. The returned matrix preserves the
// original identifiers and the relative order of retained rows; the input
// is not modified. Drop counts are recorded in stats.
func FilterLowExpression(m *CountMatrix, opts Opts, stats *Stats) (*CountMatrix, error) {
	cpm, err := CPM(m, nil)
	if err != nil {
		return nil, err
	}
	kept := &CountMatrix{Samples: m.Samples}
	for g, row := range cpm {
		n := 0
		for _, v := range row {
			if v > opts.CPMThreshold {
				n++
			}
		}
		if n >= opts.MinSamples {
			kept.Genes = append(kept.Genes, m.Genes[g])
			kept.Counts = append(kept.Counts, m.Counts[g])
		}
	}
	stats.TotalGenes += m.NGenes()
	stats.Retained += kept.NGenes()
	stats.LowExpression += m.NGenes() - kept.NGenes()
	if kept.NGenes() == 0 {
		return nil, NewDataError("no genes pass the expression filter (%d input genes)", m.NGenes())
	}
	return kept, nil
}
