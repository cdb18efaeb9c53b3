// Package diffexp implements the statistical core of an RNA-seq
// differential-expression pipeline: CPM-based low-expression filtering,
// library-size normalization (TMM and friends), negative-binomial dispersion
// estimation (common and tagwise), exact and GLM likelihood-ratio tests with
// Benjamini-Hochberg correction, and deterministic rank/threshold exports.
//
// The pipeline is a batch computation over immutable artifacts:
//
//	matrix := load counts                       (encoding/counts)
//	kept, _ := FilterLowExpression(matrix, ...)
//	factors, _ := NormFactors(kept, ...)
//	model, _ := EstimateDispersion(kept, labels, factors, ...)
//	table, _ := ExactTest(kept, labels, factors, model, ...)  // or GLMTest
//	ranks := RankScores(table)
//
// Each stage consumes the previous stage's output without mutating it.
// Per-gene fitting is parallelized internally; callers see plain
// slices-in, slices-out semantics.
package diffexp
