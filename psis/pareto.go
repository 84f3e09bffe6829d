package psis

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// priorObs is the pseudo-observation count of the weakly informative prior
// shrinking the shape estimate towards 0.5.
const priorObs = 10

// FitGPD estimates the shape k and scale sigma of a generalized Pareto
// distribution with location 0 from positive exceedances, using the
// empirical Bayes method of Zhang and Stephens with a weak prior on k.
// The input is not modified.
func FitGPD(x []float64) (k, sigma float64) {
	n := len(x)
	if n == 0 {
		return math.Inf(1), math.NaN()
	}
	xs := slices.Clone(x)
	slices.Sort(xs)

	m := 30 + int(math.Sqrt(float64(n)))
	quartile := xs[max(int(float64(n)/4+0.5)-1, 0)]
	theta := make([]float64, m)
	logLik := make([]float64, m)
	for j := range theta {
		b := 1 - math.Sqrt(float64(m)/(float64(j+1)-0.5))
		theta[j] = b/(3*quartile) + 1/xs[n-1]
		logLik[j] = float64(n) * profile(theta[j], xs)
	}

	// posterior weights of the grid, normalised in log space
	w := make([]float64, m)
	norm := floats.LogSumExp(logLik)
	for j := range w {
		w[j] = math.Exp(logLik[j] - norm)
	}
	thetaHat := floats.Dot(theta, w)

	for _, v := range xs {
		k += math.Log1p(-thetaHat * v)
	}
	k /= float64(n)
	sigma = -k / thetaHat

	k = (float64(n)*k + priorObs*0.5) / float64(n+priorObs)

	return k, sigma
}

// profile is the profile log-likelihood per observation at theta.
func profile(theta float64, x []float64) float64 {
	var k float64
	for _, v := range x {
		k += math.Log1p(-theta * v)
	}
	k /= float64(len(x))

	return math.Log(-theta/k) - k - 1
}

// quantileGPD is the inverse CDF of the generalized Pareto distribution.
func quantileGPD(p, k, sigma float64) float64 {
	if k == 0 {
		return -sigma * math.Log1p(-p)
	}

	return sigma * math.Expm1(-k*math.Log1p(-p)) / k
}
