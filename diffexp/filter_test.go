package diffexp

import (
	"errors"
	"strings"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestCPM(t *testing.T) {
	// Library sizes are exactly one million, so CPM equals the raw count.
	m, err := NewCountMatrix(
		[]string{"g1", "g2"},
		[]string{"s1", "s2"},
		[][]float64{{750000, 250000}, {250000, 750000}})
	expect.NoError(t, err)
	cpm, err := CPM(m, nil)
	expect.NoError(t, err)
	expect.EQ(t, cpm, [][]float64{{750000, 250000}, {250000, 750000}})

	// Factors double and halve the effective sizes.
	cpm, err = CPM(m, []float64{2, 0.5})
	expect.NoError(t, err)
	expect.EQ(t, cpm, [][]float64{{375000, 500000}, {125000, 1500000}})
}

func TestCPMDegenerateSample(t *testing.T) {
	m, err := NewCountMatrix(
		[]string{"g1", "g2"},
		[]string{"s1", "s2"},
		[][]float64{{100, 0}, {900, 0}})
	expect.NoError(t, err)
	_, err = CPM(m, nil)
	var de *DataError
	expect.True(t, errors.As(err, &de), "got %v", err)
	expect.True(t, strings.Contains(err.Error(), "degenerate sample s2"), "got %v", err)
}

func TestFilterLowExpression(t *testing.T) {
	// With equal library sizes of 1000, CPM = count * 1000.
	m, err := NewCountMatrix(
		[]string{"g1", "g2", "g3"},
		[]string{"s1", "s2", "s3"},
		[][]float64{
			{500, 500, 400},
			{0, 1, 500},
			{500, 499, 100},
		})
	expect.NoError(t, err)
	opts := DefaultOpts
	opts.CPMThreshold = 400000 // retains counts above 400 per thousand
	opts.MinSamples = 2

	var stats Stats
	kept, err := FilterLowExpression(m, opts, &stats)
	expect.NoError(t, err)
	expect.EQ(t, kept.Genes, []string{"g1", "g3"})
	expect.EQ(t, kept.Samples, m.Samples)
	expect.EQ(t, kept.Counts[0], m.Counts[0])
	expect.EQ(t, stats.TotalGenes, 3)
	expect.EQ(t, stats.Retained, 2)
	expect.EQ(t, stats.LowExpression, 1)
}

func TestFilterAllGenesDropped(t *testing.T) {
	m, err := NewCountMatrix(
		[]string{"g1"},
		[]string{"s1", "s2"},
		[][]float64{{1, 1}})
	expect.NoError(t, err)
	opts := DefaultOpts // MinSamples 50 cannot be met by two samples
	var stats Stats
	_, err = FilterLowExpression(m, opts, &stats)
	var de *DataError
	expect.True(t, errors.As(err, &de), "got %v", err)
}
