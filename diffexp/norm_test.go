package diffexp

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMatrix(t *testing.T, genes, samples []string, counts [][]float64) *CountMatrix {
	m, err := NewCountMatrix(genes, samples, counts)
	require.NoError(t, err)
	return m
}

func geomean(f []float64) float64 {
	var sum float64
	for _, v := range f {
		sum += math.Log(v)
	}
	return math.Exp(sum / float64(len(f)))
}

func TestNormFactorsNone(t *testing.T) {
	m := mustMatrix(t,
		[]string{"g1", "g2"},
		[]string{"s1", "s2", "s3"},
		[][]float64{{1, 200, 30}, {400, 5, 60}})
	opts := DefaultOpts
	opts.NormMethod = NormNone
	var stats Stats
	f, err := NormFactors(m, opts, &stats)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, f)
}

func TestNormFactorsIdenticalColumns(t *testing.T) {
	m := mustMatrix(t,
		[]string{"g1", "g2", "g3"},
		[]string{"s1", "s2", "s3"},
		[][]float64{{10, 10, 10}, {200, 200, 200}, {35, 35, 35}})
	for _, method := range []string{NormTMM, NormRLE, NormUpperQuartile} {
		opts := DefaultOpts
		opts.NormMethod = method
		var stats Stats
		f, err := NormFactors(m, opts, &stats)
		require.NoError(t, err, "method %s", method)
		require.Len(t, f, 3)
		for s, v := range f {
			assert.InDelta(t, 1.0, v, 1e-12, "method %s sample %d", method, s)
		}
	}
}

// Doubling every count of a column is a pure depth change; factors stay 1
// for all methods since library size already absorbs it.
func TestNormFactorsDepthChangeOnly(t *testing.T) {
	m := mustMatrix(t,
		[]string{"g1", "g2", "g3", "g4"},
		[]string{"s1", "s2"},
		[][]float64{{10, 20}, {200, 400}, {35, 70}, {400, 800}})
	for _, method := range []string{NormTMM, NormRLE, NormUpperQuartile} {
		opts := DefaultOpts
		opts.NormMethod = method
		var stats Stats
		f, err := NormFactors(m, opts, &stats)
		require.NoError(t, err, "method %s", method)
		for s, v := range f {
			assert.InDelta(t, 1.0, v, 1e-9, "method %s sample %d", method, s)
		}
	}
}

func TestNormFactorsTMMOutlierSample(t *testing.T) {
	// Five samples with identical flat profiles, except s2 where g1 grabs
	// most of the library.
	genes := []string{"g1", "g2", "g3", "g4", "g5", "g6", "g7", "g8", "g9", "g10"}
	counts := make([][]float64, len(genes))
	for g := range counts {
		counts[g] = []float64{100, 100, 100, 100, 100}
		counts[g][1] = 100
	}
	counts[0][1] = 2000
	m := mustMatrix(t, genes, []string{"s1", "s2", "s3", "s4", "s5"}, counts)

	var stats Stats
	f, err := NormFactors(m, DefaultOpts, &stats)
	require.NoError(t, err)
	require.Len(t, f, 5)
	for _, v := range f {
		assert.True(t, v > 0, "factor %v", v)
	}
	assert.InDelta(t, 1.0, geomean(f), 1e-9)
	// The undistorted samples share one factor; the outlier sample is
	// scaled down so effective sizes line up again.
	assert.InDelta(t, f[0], f[2], 1e-12)
	assert.InDelta(t, f[0], f[3], 1e-12)
	assert.InDelta(t, f[0], f[4], 1e-12)
	assert.True(t, f[1] < f[0], "f=%v", f)
	sizes := m.LibSizes()
	assert.InDelta(t, sizes[0]*f[0], sizes[1]*f[1], 1e-6*sizes[0]*f[0])
}

func TestNormFactorsTMMCompositionBias(t *testing.T) {
	m := mustMatrix(t,
		[]string{"g1", "g2", "g3", "g4"},
		[]string{"s1", "s2", "s3", "s4", "s5", "s6"},
		[][]float64{
			{100, 110, 105, 10, 12, 11},
			{50, 50, 50, 50, 50, 50},
			{20, 25, 22, 200, 210, 205},
			{80, 85, 78, 90, 88, 92},
		})
	var stats Stats
	f, err := NormFactors(m, DefaultOpts, &stats)
	require.NoError(t, err)
	require.Len(t, f, 6)
	for _, v := range f {
		assert.True(t, v > 0, "factor %v", v)
	}
	assert.InDelta(t, 1.0, geomean(f), 1e-9)
	// The second half of the samples carries the g3 surge, so their
	// factors shrink relative to the first half.
	for s := 3; s < 6; s++ {
		assert.True(t, f[s] < f[0] && f[s] < f[1] && f[s] < f[2], "f=%v", f)
	}

	again, err := NormFactors(m, DefaultOpts, &stats)
	require.NoError(t, err)
	assert.Equal(t, f, again)
}

func TestNormFactorsErrors(t *testing.T) {
	m := mustMatrix(t,
		[]string{"g1"},
		[]string{"s1", "s2"},
		[][]float64{{5, 5}})
	opts := DefaultOpts
	opts.NormMethod = "quantile"
	var stats Stats
	_, err := NormFactors(m, opts, &stats)
	var ue *UsageError
	assert.True(t, errors.As(err, &ue), "got %v", err)

	zero := mustMatrix(t,
		[]string{"g1"},
		[]string{"s1", "s2"},
		[][]float64{{5, 0}})
	_, err = NormFactors(zero, DefaultOpts, &stats)
	var de *DataError
	assert.True(t, errors.As(err, &de), "got %v", err)
}

func TestSampleRanks(t *testing.T) {
	assert.Equal(t, []float64{2, 0, 1}, sampleRanks([]float64{3, 1, 2}))
	assert.Equal(t, []float64{0.5, 2, 0.5, 3}, sampleRanks([]float64{1, 2, 1, 3}))
	assert.Nil(t, sampleRanks(nil))
}

func TestPercentileFallback(t *testing.T) {
	// A single-element vector is too short for the stats package and falls
	// back to its maximum.
	assert.Equal(t, 7.5, percentile([]float64{7.5}, 75))
	assert.Equal(t, 0.0, percentile(nil, 75))
	// Regular vectors go through the stats package, which takes the value
	// at the whole-numbered index without interpolating.
	assert.InDelta(t, 3.0, percentile([]float64{1, 2, 3, 4}, 75), 1e-12)
}
