package eval

import (
	"fmt"
	"math"

	"github.com/viterin/vek"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/family"
)

// Prediction holds the draw-integrated predictive quantities of a model on a
// dataset: per observation, the log predictive density of the observed
// response and the predictive mean.
type Prediction struct {
	fam     family.Family
	y       []float64
	weights []float64
	lpd     []float64
	mean    []float64
}

// Predict integrates per-draw predictions with fixed draw weights:
// lpd_i = log Σ_s w_s p(y_i | θ_s) and mean_i = Σ_s w_s μ_si.
//
// Parameters:
//   - fam: response family
//   - y, obsWeights: responses and observation weights of the m rows (nil weights mean 1)
//   - eta: S × m linear predictor
//   - dispersion: S dispersions, or nil for families without one
//   - drawWeights: S weights summing to 1
func Predict(fam family.Family, y, obsWeights []float64, eta *mat.Dense, dispersion, drawWeights []float64) (*Prediction, error) {
	s, m := eta.Dims()
	if len(drawWeights) != s {
		return nil, fmt.Errorf("%w: %d draw weights for %d draws", errs.ErrDimensionMismatch, len(drawWeights), s)
	}
	logW := make([]float64, s)
	for r, w := range drawWeights {
		logW[r] = math.Log(w)
	}
	lw := mat.NewDense(s, m, nil)
	for r := 0; r < s; r++ {
		row := lw.RawRowView(r)
		for i := range row {
			row[i] = logW[r]
		}
	}

	return PredictWeighted(fam, y, obsWeights, eta, dispersion, lw)
}

// PredictWeighted integrates per-draw predictions with per-observation draw
// weights, as used by importance-sampling leave-one-out: logWeights is S × m
// and each column holds normalised log weights.
func PredictWeighted(fam family.Family, y, obsWeights []float64, eta *mat.Dense, dispersion []float64, logWeights *mat.Dense) (*Prediction, error) {
	s, m := eta.Dims()
	if len(y) != m {
		return nil, fmt.Errorf("%w: %d responses for %d predicted rows", errs.ErrDimensionMismatch, len(y), m)
	}
	if r, c := logWeights.Dims(); r != s || c != m {
		return nil, fmt.Errorf("%w: %d×%d log weights for %d×%d predictions", errs.ErrDimensionMismatch, r, c, s, m)
	}
	if dispersion != nil && len(dispersion) != s {
		return nil, fmt.Errorf("%w: %d dispersions for %d draws", errs.ErrDimensionMismatch, len(dispersion), s)
	}
	if obsWeights == nil {
		obsWeights = make([]float64, m)
		for i := range obsWeights {
			obsWeights[i] = 1
		}
	} else if len(obsWeights) != m {
		return nil, fmt.Errorf("%w: %d observation weights for %d rows", errs.ErrDimensionMismatch, len(obsWeights), m)
	}

	p := &Prediction{
		fam:     fam,
		y:       append([]float64(nil), y...),
		weights: append([]float64(nil), obsWeights...),
		lpd:     make([]float64, m),
		mean:    make([]float64, m),
	}

	terms := make([]float64, s)
	mus := make([]float64, s)
	ws := make([]float64, s)
	for i := 0; i < m; i++ {
		for r := 0; r < s; r++ {
			disp := 1.0
			if dispersion != nil {
				disp = dispersion[r]
			}
			lwr := logWeights.At(r, i)
			mu := fam.LinkInv(eta.At(r, i))
			mus[r] = mu
			ws[r] = math.Exp(lwr)
			terms[r] = lwr + fam.LogDensity(y[i], mu, disp, obsWeights[i])
		}
		p.lpd[i] = floats.LogSumExp(terms)
		p.mean[i] = vek.Dot(ws, mus)
	}

	return p, nil
}

// Concat pools predictions of disjoint row sets, such as the held-out folds
// of K-fold cross-validation, into one prediction.
func Concat(preds ...*Prediction) *Prediction {
	if len(preds) == 0 {
		return &Prediction{}
	}
	out := &Prediction{fam: preds[0].fam}
	for _, p := range preds {
		out.y = append(out.y, p.y...)
		out.weights = append(out.weights, p.weights...)
		out.lpd = append(out.lpd, p.lpd...)
		out.mean = append(out.mean, p.mean...)
	}

	return out
}

// Family returns the response family.
func (p *Prediction) Family() family.Family { return p.fam }

// Len returns the number of observations.
func (p *Prediction) Len() int { return len(p.lpd) }

// LPD returns the per-observation log predictive densities.
func (p *Prediction) LPD() []float64 { return append([]float64(nil), p.lpd...) }

// Mean returns the per-observation predictive means.
func (p *Prediction) Mean() []float64 { return append([]float64(nil), p.mean...) }

// Y returns the observed responses.
func (p *Prediction) Y() []float64 { return append([]float64(nil), p.y...) }

// Select returns the prediction restricted to the given observations.
func (p *Prediction) Select(rows []int) *Prediction {
	out := &Prediction{
		fam:     p.fam,
		y:       make([]float64, len(rows)),
		weights: make([]float64, len(rows)),
		lpd:     make([]float64, len(rows)),
		mean:    make([]float64, len(rows)),
	}
	for k, i := range rows {
		out.y[k] = p.y[i]
		out.weights[k] = p.weights[i]
		out.lpd[k] = p.lpd[i]
		out.mean[k] = p.mean[i]
	}

	return out
}
