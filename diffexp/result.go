package diffexp

import "math"

// Test methods reported in ResultTable.Method.
const (
	MethodExact = "exact"
	MethodGLM   = "glm"
)

// Result is the differential expression call for one gene. PValue is NaN
// when the per-gene fit failed and no test was run; such rows keep their
// place in the table but are excluded from FDR adjustment and ranking.
type Result struct {
	GeneID string
	LogFC  float64
	PValue float64
	FDR    float64
}

// ResultTable holds one test run over a filtered count matrix, one row per
// gene in matrix order.
type ResultTable struct {
	Method   string
	Contrast string
	Rows     []Result
}

// NumTested counts the rows with a defined p-value.
func (t *ResultTable) NumTested() int {
	n := 0
	for _, r := range t.Rows {
		if !math.IsNaN(r.PValue) {
			n++
		}
	}
	return n
}
