package project

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/family"
	"github.com/arloliu/projpred/internal/pool"
)

const (
	// maxHalvings bounds the step-halving retries of one IRLS iteration.
	maxHalvings = 10
	// minWorkingWeight floors the IRLS weights relative to the observation weight.
	minWorkingWeight = 1e-10
)

// drawFit is the projection of a single draw.
type drawFit struct {
	coef       []float64
	eta        []float64
	deviance   float64
	iterations int
	converged  bool
}

// irlsProblem holds the per-projection constants shared by every draw.
type irlsProblem struct {
	fam     family.Family
	xd      *mat.Dense
	weights []float64
	offset  []float64
	lambda  float64
	maxIter int
	tol     float64
}

// deviance returns Σ dev(target, μ(eta)) + λ‖β₁:‖² and the plain deviance.
func (p *irlsProblem) objective(target, eta, beta []float64) (float64, float64) {
	var dev float64
	for i, e := range eta {
		dev += p.fam.Deviance(target[i], p.fam.LinkInv(e), p.weights[i])
	}

	return dev + penalty(beta, p.lambda), dev
}

// fit minimises the deviance between the reference means target and the
// submodel fit, starting from the reference linear predictor start.
//
// The first iteration solves a weighted least squares problem around the
// reference fit; later iterations halve the step while the penalised
// deviance increases. Convergence is declared when the relative change
// |Δ|/(|obj|+0.1) falls below tol. At the iteration cap the last iterate is
// returned with converged = false.
func (p *irlsProblem) fit(target, start []float64) (drawFit, error) {
	n, k := p.xd.Dims()

	eta := append([]float64(nil), start...)
	z, releaseZ := pool.GetFloat64Slice(n)
	defer releaseZ()
	wt, releaseW := pool.GetFloat64Slice(n)
	defer releaseW()
	trial, releaseT := pool.GetFloat64Slice(n)
	defer releaseT()

	var (
		beta    []float64
		prev    []float64
		prevObj = math.Inf(1)
		dev     float64
		out     drawFit
	)

	for iter := 1; iter <= p.maxIter; iter++ {
		for i, e := range eta {
			mu := p.fam.LinkInv(e)
			d := p.fam.MuEta(e)
			v := p.fam.Variance(mu)
			wt[i] = math.Max(p.weights[i]*d*d/v, minWorkingWeight*p.weights[i])
			z[i] = e - p.offset[i] + (target[i]-mu)/d
		}

		ne, err := factorize(p.xd, wt, p.lambda)
		if err != nil {
			return drawFit{}, err
		}
		beta, err = ne.solveVec(p.xd, wt, z)
		if err != nil {
			return drawFit{}, err
		}

		fittedInto(trial, p.xd, beta, p.offset)
		obj, d := p.objective(target, trial, beta)

		for h := 0; prev != nil && obj > prevObj*(1+1e-12) && h < maxHalvings; h++ {
			for j := range beta {
				beta[j] = 0.5 * (beta[j] + prev[j])
			}
			fittedInto(trial, p.xd, beta, p.offset)
			obj, d = p.objective(target, trial, beta)
		}
		copy(eta, trial)
		dev = d
		out.iterations = iter

		if prev != nil && math.Abs(obj-prevObj)/(math.Abs(obj)+0.1) < p.tol {
			out.converged = true
			break
		}
		if prev == nil {
			prev = make([]float64, k)
		}
		copy(prev, beta)
		prevObj = obj
	}

	out.coef = beta
	out.eta = eta
	out.deviance = dev

	return out, nil
}
