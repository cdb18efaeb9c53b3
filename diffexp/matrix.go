package diffexp

import "sort"

// CountMatrix is a genes-by-samples table of raw read counts. Genes and
// Samples carry the row and column identifiers; Counts[g][s] is the read
// count of gene g in sample s. Counts are non-negative integers (stored as
// float64; the loader enforces integrality). Pipeline stages treat a
// CountMatrix as immutable and return fresh matrices.
type CountMatrix struct {
	Genes   []string
	Samples []string
	Counts  [][]float64
}

// NewCountMatrix validates identifiers and shape and wraps them into a
// CountMatrix. Duplicate gene or sample identifiers, empty identifiers,
// ragged or negative counts all yield a DataError.
func NewCountMatrix(genes, samples []string, counts [][]float64) (*CountMatrix, error) {
	if len(genes) == 0 {
		return nil, NewDataError("count matrix has no genes")
	}
	if len(samples) == 0 {
		return nil, NewDataError("count matrix has no samples")
	}
	if len(counts) != len(genes) {
		return nil, NewDataError("count matrix has %d rows for %d genes", len(counts), len(genes))
	}
	seenGene := make(map[string]bool, len(genes))
	for _, g := range genes {
		if g == "" {
			return nil, NewDataError("empty gene identifier")
		}
		if seenGene[g] {
			return nil, NewDataError("duplicate gene identifier %q", g)
		}
		seenGene[g] = true
	}
	seenSample := make(map[string]bool, len(samples))
	for _, s := range samples {
		if s == "" {
			return nil, NewDataError("empty sample identifier")
		}
		if seenSample[s] {
			return nil, NewDataError("duplicate sample identifier %q", s)
		}
		seenSample[s] = true
	}
	for g, row := range counts {
		if len(row) != len(samples) {
			return nil, NewDataError("gene %s has %d counts for %d samples", genes[g], len(row), len(samples))
		}
		for s, v := range row {
			if v < 0 {
				return nil, NewDataError("negative count %g for gene %s, sample %s", v, genes[g], samples[s])
			}
		}
	}
	return &CountMatrix{Genes: genes, Samples: samples, Counts: counts}, nil
}

// NGenes returns the number of gene rows.
func (m *CountMatrix) NGenes() int { return len(m.Genes) }

// NSamples returns the number of sample columns.
func (m *CountMatrix) NSamples() int { return len(m.Samples) }

// LibSizes returns the per-sample column sums (raw library sizes).
func (m *CountMatrix) LibSizes() []float64 {
	sizes := make([]float64, m.NSamples())
	for _, row := range m.Counts {
		for s, v := range row {
			sizes[s] += v
		}
	}
	return sizes
}

// columns returns the matrix transposed into per-sample count vectors.
func (m *CountMatrix) columns() [][]float64 {
	cols := make([][]float64, m.NSamples())
	for s := range cols {
		cols[s] = make([]float64, m.NGenes())
	}
	for g, row := range m.Counts {
		for s, v := range row {
			cols[s][g] = v
		}
	}
	return cols
}

// ClassLabels assigns each sample to a categorical class. Samples[i] and
// Classes[i] describe the same sample; the order must match the CountMatrix
// the labels are used with (see Align).
type ClassLabels struct {
	Samples []string
	Classes []string
}

// NewClassLabels validates and wraps a sample-to-class assignment.
func NewClassLabels(samples, classes []string) (*ClassLabels, error) {
	if len(samples) == 0 {
		return nil, NewDataError("no sample labels")
	}
	if len(samples) != len(classes) {
		return nil, NewDataError("%d samples with %d class labels", len(samples), len(classes))
	}
	seen := make(map[string]bool, len(samples))
	for i, s := range samples {
		if s == "" {
			return nil, NewDataError("empty sample identifier in labels")
		}
		if seen[s] {
			return nil, NewDataError("duplicate sample %q in labels", s)
		}
		seen[s] = true
		if classes[i] == "" {
			return nil, NewDataError("sample %q has an empty class label", s)
		}
	}
	return &ClassLabels{Samples: samples, Classes: classes}, nil
}

// Align returns a copy of l reordered to the given sample order. The sample
// identifier sets must match exactly; any sample missing from either side is
// a DataError.
func (l *ClassLabels) Align(samples []string) (*ClassLabels, error) {
	classOf := make(map[string]string, len(l.Samples))
	for i, s := range l.Samples {
		classOf[s] = l.Classes[i]
	}
	if len(samples) != len(l.Samples) {
		return nil, NewDataError("labels cover %d samples, matrix has %d", len(l.Samples), len(samples))
	}
	aligned := &ClassLabels{
		Samples: make([]string, len(samples)),
		Classes: make([]string, len(samples)),
	}
	for i, s := range samples {
		class, ok := classOf[s]
		if !ok {
			return nil, NewDataError("sample %q has no class label", s)
		}
		aligned.Samples[i] = s
		aligned.Classes[i] = class
	}
	return aligned, nil
}

// Levels returns the distinct class names in sorted order.
func (l *ClassLabels) Levels() []string {
	seen := map[string]bool{}
	var levels []string
	for _, c := range l.Classes {
		if !seen[c] {
			seen[c] = true
			levels = append(levels, c)
		}
	}
	sort.Strings(levels)
	return levels
}

// groups returns the sorted class levels and, per level, the indexes of the
// samples belonging to it.
func (l *ClassLabels) groups() (levels []string, members [][]int) {
	levels = l.Levels()
	rank := make(map[string]int, len(levels))
	for i, lv := range levels {
		rank[lv] = i
	}
	members = make([][]int, len(levels))
	for s, c := range l.Classes {
		k := rank[c]
		members[k] = append(members[k], s)
	}
	return levels, members
}

// alignedWith reports whether l is sample-for-sample aligned with m.
func (l *ClassLabels) alignedWith(m *CountMatrix) bool {
	if len(l.Samples) != len(m.Samples) {
		return false
	}
	for i, s := range l.Samples {
		if m.Samples[i] != s {
			return false
		}
	}
	return true
}
