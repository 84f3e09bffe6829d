package refmodel

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

func randomData(rng *rand.Rand, n, p int) *mat.Dense {
	x := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			x.Set(i, j, rng.NormFloat64())
		}
	}

	return x
}

func randomCoef(rng *rand.Rand, s, p int) *mat.Dense {
	coef := mat.NewDense(s, p+1, nil)
	for i := 0; i < s; i++ {
		for j := 0; j <= p; j++ {
			coef.Set(i, j, rng.NormFloat64())
		}
	}

	return coef
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}

	return out
}
