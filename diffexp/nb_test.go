package diffexp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNBLogProbNormalizes(t *testing.T) {
	// The log-probabilities must exponentiate to a distribution. The tail
	// above y=400 is negligible for these parameters.
	for _, c := range []struct{ mu, phi float64 }{
		{2.0, 0.5},
		{10.0, 2.0},
		{50.0, 0.01},
	} {
		sum := 0.0
		for y := 0; y <= 400; y++ {
			sum += math.Exp(nbLogProb(float64(y), c.mu, c.phi))
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "mu=%v phi=%v", c.mu, c.phi)
	}
}

func TestNBLogProbPoissonLimit(t *testing.T) {
	// Below poissonDisp the NB collapses to a Poisson.
	mu := 7.5
	for y := 0.0; y <= 30; y++ {
		want := -mu
		if y > 0 {
			want = y*math.Log(mu) - mu - lgamma(y+1)
		}
		assert.InDelta(t, want, nbLogProb(y, mu, 0), 1e-12, "y=%v", y)
	}
}

func TestNBLogProbZeroMean(t *testing.T) {
	assert.Equal(t, 0.0, nbLogProb(0, 0, 0.1))
	assert.True(t, math.IsInf(nbLogProb(3, 0, 0.1), -1))
}

func TestFitGroupRate(t *testing.T) {
	// Counts exactly proportional to the library sizes make the initial
	// estimate the MLE, so the fit converges immediately.
	size := []float64{100, 200, 300}
	y := []float64{300, 600, 900}
	beta, ok := fitGroupRate(y, size, 0.2, 50)
	assert.True(t, ok)
	assert.InDelta(t, math.Log(3.0), beta, 1e-12)

	// A perturbed vector still converges, to a rate between the extremes.
	y = []float64{250, 650, 900}
	beta, ok = fitGroupRate(y, size, 0.2, 50)
	assert.True(t, ok)
	assert.True(t, beta > math.Log(250.0/100.0)-1, "beta=%v", beta)
	assert.True(t, beta < math.Log(900.0/300.0)+1, "beta=%v", beta)

	// The fitted rate maximizes the likelihood among nearby rates.
	ll := groupLogLik(y, size, beta, 0.2)
	assert.True(t, ll >= groupLogLik(y, size, beta+0.01, 0.2))
	assert.True(t, ll >= groupLogLik(y, size, beta-0.01, 0.2))
}

func TestFitGroupRateAllZero(t *testing.T) {
	size := []float64{100, 200}
	beta, ok := fitGroupRate([]float64{0, 0}, size, 0.2, 50)
	assert.True(t, ok)
	assert.True(t, math.IsInf(beta, -1))
	// A -Inf rate means zero mean everywhere, which fits zero counts with
	// probability one.
	assert.Equal(t, 0.0, groupLogLik([]float64{0, 0}, size, beta, 0.2))
}
