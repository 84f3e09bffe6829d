// Package simulate generates synthetic reference models for tests, examples
// and benchmarks.
//
// Gaussian draws come from the exact conjugate posterior of a flat-prior
// linear model, so they behave like a fitted reference model. Binomial and
// Poisson draws are the generating coefficients plus independent noise.
package simulate

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/arloliu/projpred/family"
	"github.com/arloliu/projpred/refmodel"
)

// Spec describes a synthetic problem.
type Spec struct {
	N      int     // rows
	P      int     // candidate variables
	Active int     // leading variables with non-zero effects
	Draws  int     // posterior draws
	Effect float64 // magnitude of the active coefficients
	Noise  float64 // Gaussian residual sd, or draw noise for GLMs
	Seed   uint64
}

// Problem is a generated dataset together with its reference model.
type Problem struct {
	X     *mat.Dense
	Y     []float64
	Beta  []float64 // generating coefficients, intercept first
	Model *refmodel.Model
}

func (s Spec) withDefaults() Spec {
	if s.Effect == 0 {
		s.Effect = 1
	}
	if s.Noise == 0 {
		s.Noise = 1
	}
	if s.Draws == 0 {
		s.Draws = 100
	}
	if s.Active > s.P {
		s.Active = s.P
	}

	return s
}

func (s Spec) design(rng *rand.Rand) (*mat.Dense, []float64) {
	x := mat.NewDense(s.N, s.P, nil)
	for i := 0; i < s.N; i++ {
		for j := 0; j < s.P; j++ {
			x.Set(i, j, rng.NormFloat64())
		}
	}
	beta := make([]float64, s.P+1)
	beta[0] = 0.5
	for j := 1; j <= s.Active; j++ {
		beta[j] = s.Effect
	}

	return x, beta
}

func linear(x *mat.Dense, beta []float64, i int) float64 {
	v := beta[0]
	for j, xv := range x.RawRowView(i) {
		v += beta[j+1] * xv
	}

	return v
}

// Gaussian generates y = Xβ + ε and draws from the flat-prior posterior of
// (β, σ).
func Gaussian(spec Spec, opts ...refmodel.Option) (*Problem, error) {
	spec = spec.withDefaults()
	rng := rand.New(rand.NewPCG(spec.Seed, spec.Seed^0xda3e39cb94b95bdb))
	x, beta := spec.design(rng)

	y := make([]float64, spec.N)
	for i := range y {
		y[i] = linear(x, beta, i) + spec.Noise*rng.NormFloat64()
	}

	// OLS on [1, X]
	k := spec.P + 1
	xd := mat.NewDense(spec.N, k, nil)
	for i := 0; i < spec.N; i++ {
		xd.Set(i, 0, 1)
		for j := 0; j < spec.P; j++ {
			xd.Set(i, j+1, x.At(i, j))
		}
	}
	var qr mat.QR
	qr.Factorize(xd)
	var bhat mat.VecDense
	if err := qr.SolveVecTo(&bhat, false, mat.NewVecDense(spec.N, y)); err != nil {
		return nil, err
	}
	var fit mat.VecDense
	fit.MulVec(xd, &bhat)
	var rss float64
	for i := range y {
		r := y[i] - fit.AtVec(i)
		rss += r * r
	}
	dof := float64(spec.N - k)

	var xtx mat.SymDense
	xtx.SymOuterK(1, xd.T())
	var chol mat.Cholesky
	if !chol.Factorize(&xtx) {
		return nil, mat.ErrSingular
	}
	var lower mat.TriDense
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, err
	}
	var invChol mat.Cholesky
	if !invChol.Factorize(&inv) {
		return nil, mat.ErrSingular
	}
	invChol.LTo(&lower)

	chi := distuv.ChiSquared{K: dof, Src: rng}
	coef := mat.NewDense(spec.Draws, k, nil)
	sigma := make([]float64, spec.Draws)
	z := make([]float64, k)
	for s := 0; s < spec.Draws; s++ {
		sd := math.Sqrt(rss / chi.Rand())
		sigma[s] = sd
		for j := range z {
			z[j] = rng.NormFloat64()
		}
		row := coef.RawRowView(s)
		for j := 0; j < k; j++ {
			v := bhat.AtVec(j)
			for l := 0; l <= j; l++ {
				v += sd * lower.At(j, l) * z[l]
			}
			row[j] = v
		}
	}

	draws, err := refmodel.NewDrawSet(coef, sigma)
	if err != nil {
		return nil, err
	}
	ref, err := refmodel.New(family.Gaussian(), x, y, draws, opts...)
	if err != nil {
		return nil, err
	}

	return &Problem{X: x, Y: y, Beta: beta, Model: ref}, nil
}

// Binomial generates Bernoulli responses with logit-linear probabilities.
func Binomial(spec Spec, opts ...refmodel.Option) (*Problem, error) {
	return glm(spec, family.Binomial(), func(rng *rand.Rand, eta float64) float64 {
		if rng.Float64() < 1/(1+math.Exp(-eta)) {
			return 1
		}
		return 0
	}, opts...)
}

// Poisson generates counts with log-linear means.
func Poisson(spec Spec, opts ...refmodel.Option) (*Problem, error) {
	return glm(spec, family.Poisson(), func(rng *rand.Rand, eta float64) float64 {
		return distuv.Poisson{Lambda: math.Exp(eta), Src: rng}.Rand()
	}, opts...)
}

func glm(spec Spec, fam family.Family, sample func(*rand.Rand, float64) float64, opts ...refmodel.Option) (*Problem, error) {
	if spec.Noise == 0 {
		spec.Noise = 0.05
	}
	if spec.Effect == 0 {
		spec.Effect = 0.5
	}
	spec = spec.withDefaults()
	rng := rand.New(rand.NewPCG(spec.Seed, spec.Seed^0x9e3779b97f4a7c15))
	x, beta := spec.design(rng)

	y := make([]float64, spec.N)
	for i := range y {
		y[i] = sample(rng, linear(x, beta, i))
	}

	coef := mat.NewDense(spec.Draws, spec.P+1, nil)
	for s := 0; s < spec.Draws; s++ {
		row := coef.RawRowView(s)
		for j := range row {
			row[j] = beta[j] + spec.Noise*rng.NormFloat64()
		}
	}

	draws, err := refmodel.NewDrawSet(coef, nil)
	if err != nil {
		return nil, err
	}
	ref, err := refmodel.New(fam, x, y, draws, opts...)
	if err != nil {
		return nil, err
	}

	return &Problem{X: x, Y: y, Beta: beta, Model: ref}, nil
}
