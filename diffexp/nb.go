package diffexp

import "math"

// Numeric guard rails for the negative binomial fits. Dispersions are
// searched on a log scale inside [minDisp, maxDisp]; below poissonDisp the
// NB log-probability switches to its Poisson limit.
const (
	minDisp     = 1e-4
	maxDisp     = 20.0
	poissonDisp = 1e-8
)

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// nbLogProb returns the log probability mass of count y under a negative
// binomial with mean mu and dispersion phi (variance mu + phi*mu^2). The
// count is not required to be integral; the expression interpolates the
// pmf through lgamma, which is what the conditional exact test needs.
func nbLogProb(y, mu, phi float64) float64 {
	if mu <= 0 {
		if y == 0 {
			return 0
		}
		return math.Inf(-1)
	}
	if phi < poissonDisp {
		return y*math.Log(mu) - mu - lgamma(y+1)
	}
	r := 1 / phi
	ll := lgamma(y+r) - lgamma(r) - lgamma(y+1) + r*math.Log(r/(r+mu))
	if y > 0 {
		ll += y * math.Log(mu/(r+mu))
	}
	return ll
}

// fitGroupRate fits the single-coefficient NB model mu_s = size_s * e^beta
// to the counts of one group at fixed dispersion and returns beta on the
// natural log scale. All-zero groups fit exactly at beta = -Inf. ok is
// false when the Newton iteration fails to converge.
func fitGroupRate(y, size []float64, phi float64, maxIter int) (beta float64, ok bool) {
	var sumY, sumN float64
	for i := range y {
		sumY += y[i]
		sumN += size[i]
	}
	if sumY == 0 {
		return math.Inf(-1), true
	}
	beta = math.Log(sumY / sumN)
	for iter := 0; iter < maxIter; iter++ {
		var score, info float64
		for i := range y {
			mu := size[i] * math.Exp(beta)
			score += (y[i] - mu) / (1 + phi*mu)
			info += mu / (1 + phi*mu)
		}
		if info <= 0 {
			return beta, false
		}
		step := score / info
		if step > 5 {
			step = 5
		} else if step < -5 {
			step = -5
		}
		beta += step
		if math.Abs(step) < 1e-8 {
			return beta, true
		}
	}
	return beta, false
}

// groupLogLik is the NB log-likelihood of one group's counts at the fitted
// rate beta.
func groupLogLik(y, size []float64, beta, phi float64) float64 {
	var ll float64
	for i := range y {
		ll += nbLogProb(y[i], size[i]*math.Exp(beta), phi)
	}
	return ll
}
