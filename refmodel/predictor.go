package refmodel

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
)

// Predictor maps covariates and draws to linear predictor values.
//
// Implementations must be safe for concurrent use; the reference model shares
// its predictor with every worker.
type Predictor interface {
	// PredictLinear returns an S × rows matrix of linear predictor values (without offset).
	PredictLinear(x mat.Matrix, draws *DrawSet) (*mat.Dense, error)
}

// PredictorFunc adapts a function to the Predictor interface, for reference
// models that are not plain GLMs.
type PredictorFunc func(x mat.Matrix, draws *DrawSet) (*mat.Dense, error)

// PredictLinear calls f(x, draws).
func (f PredictorFunc) PredictLinear(x mat.Matrix, draws *DrawSet) (*mat.Dense, error) {
	return f(x, draws)
}

// GLMPredictor predicts η = β₀ + Xβ from coefficient draws.
type GLMPredictor struct{}

var _ Predictor = GLMPredictor{}

// PredictLinear computes the linear predictor of every draw on x.
func (GLMPredictor) PredictLinear(x mat.Matrix, draws *DrawSet) (*mat.Dense, error) {
	if !draws.HasCoefficients() {
		return nil, errs.ErrNoPredictor
	}

	return LinearPredictor(x, draws.Coefficients())
}

// LinearPredictor computes coef[:, 0] + coef[:, 1:] · xᵀ for an S × (1+k)
// coefficient matrix and a rows × k covariate matrix. A coefficient matrix
// with a single column is treated as intercept-only and x is ignored.
func LinearPredictor(x mat.Matrix, coef *mat.Dense) (*mat.Dense, error) {
	s, c := coef.Dims()
	rows, k := x.Dims()
	if c == 1 {
		out := mat.NewDense(s, rows, nil)
		for i := 0; i < s; i++ {
			b0 := coef.At(i, 0)
			row := out.RawRowView(i)
			for j := range row {
				row[j] = b0
			}
		}

		return out, nil
	}
	if k != c-1 {
		return nil, fmt.Errorf("%w: %d covariate columns for %d coefficients", errs.ErrDimensionMismatch, k, c-1)
	}

	out := mat.NewDense(s, rows, nil)
	out.Mul(coef.Slice(0, s, 1, c), x.T())
	for i := 0; i < s; i++ {
		b0 := coef.At(i, 0)
		row := out.RawRowView(i)
		for j := range row {
			row[j] += b0
		}
	}

	return out, nil
}
