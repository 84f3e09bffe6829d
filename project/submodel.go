package project

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/refmodel"
)

// Submodel is the projection of a set of draws onto a variable subset.
//
// Its draws hold an intercept plus one coefficient per subset variable, in
// subset order, the projected dispersion (Gaussian only) and the weights of
// the projected draws. Submodels are immutable.
type Submodel struct {
	ref        *refmodel.Model
	subset     []int
	draws      *refmodel.DrawSet
	deviance   []float64
	iterations []int
	converged  []bool
	warnings   errs.Warnings
}

func newSubmodel(
	ref *refmodel.Model,
	src *refmodel.DrawSet,
	subset []int,
	coef, eta *mat.Dense,
	disp, deviance []float64,
	iterations []int,
	converged []bool,
) (*Submodel, error) {
	s := src.Len()
	members := make([][]int, s)
	for r := range members {
		members[r] = src.Members(r)
	}

	draws, err := refmodel.NewDrawSet(coef, disp,
		refmodel.WithDrawWeights(src.Weights()),
		refmodel.WithMembers(members),
		refmodel.WithEta(eta),
		refmodel.WithSignature(fmt.Sprintf("%s|proj:%v", src.Signature(), subset)),
	)
	if err != nil {
		return nil, err
	}

	sub := &Submodel{
		ref:        ref,
		subset:     subset,
		draws:      draws,
		deviance:   deviance,
		iterations: iterations,
		converged:  converged,
	}
	for r, ok := range converged {
		if ok {
			continue
		}
		sub.warnings = append(sub.warnings, errs.Warning{
			Kind:        errs.ConvergenceWarning,
			Size:        len(subset),
			Draw:        r,
			Observation: -1,
			Fold:        -1,
			Value:       float64(iterations[r]),
			Detail:      fmt.Sprintf("subset %v reached the iteration cap", subset),
		})
	}

	return sub, nil
}

// Subset returns the projected variables in selection order.
func (m *Submodel) Subset() []int { return append([]int(nil), m.subset...) }

// Size returns the number of projected variables.
func (m *Submodel) Size() int { return len(m.subset) }

// Draws returns the projected draws, with the training linear predictor attached.
func (m *Submodel) Draws() *refmodel.DrawSet { return m.draws }

// Coefficients returns the S' × (1+k) coefficient matrix; column 0 is the intercept.
func (m *Submodel) Coefficients() *mat.Dense { return m.draws.Coefficients() }

// Dispersion returns the projected dispersion per draw, or nil for families without one.
func (m *Submodel) Dispersion() []float64 {
	if !m.draws.HasDispersion() {
		return nil
	}

	return m.draws.Dispersions()
}

// Weights returns the draw weights (identical to the projected draws' input).
func (m *Submodel) Weights() []float64 { return m.draws.Weights() }

// Eta returns the S' × n training linear predictor. It must not be modified.
func (m *Submodel) Eta() *mat.Dense { return m.draws.Eta() }

// Deviance returns the training divergence from the reference fit, per draw.
func (m *Submodel) Deviance() []float64 { return append([]float64(nil), m.deviance...) }

// MeanDeviance returns the draw-weighted mean training divergence.
func (m *Submodel) MeanDeviance() float64 {
	return floats.Dot(m.deviance, m.draws.Weights())
}

// Iterations returns the IRLS iteration count per draw (1 for closed-form projections).
func (m *Submodel) Iterations() []int { return append([]int(nil), m.iterations...) }

// Converged reports whether every draw converged within the iteration cap.
func (m *Submodel) Converged() bool {
	for _, ok := range m.converged {
		if !ok {
			return false
		}
	}

	return true
}

// Warnings returns the convergence warnings of non-converged draws.
func (m *Submodel) Warnings() errs.Warnings { return append(errs.Warnings(nil), m.warnings...) }

// PredictLinear returns the S' × rows linear predictor on new covariates.
//
// x holds all p candidate variables; only the subset columns are used. A nil
// offset means zero.
func (m *Submodel) PredictLinear(x mat.Matrix, offset []float64) (*mat.Dense, error) {
	if _, p := x.Dims(); p != m.ref.P() {
		return nil, fmt.Errorf("%w: %d covariate columns, model has %d", errs.ErrDimensionMismatch, p, m.ref.P())
	}
	eta, err := refmodel.LinearPredictor(selectColumns(x, m.subset), m.draws.Coefficients())
	if err != nil {
		return nil, err
	}
	if offset != nil {
		s, rows := eta.Dims()
		if len(offset) != rows {
			return nil, fmt.Errorf("%w: %d offsets for %d rows", errs.ErrDimensionMismatch, len(offset), rows)
		}
		for r := 0; r < s; r++ {
			floats.Add(eta.RawRowView(r), offset)
		}
	}

	return eta, nil
}

// PredictMu returns the S' × rows response-scale predictions on new covariates.
func (m *Submodel) PredictMu(x mat.Matrix, offset []float64) (*mat.Dense, error) {
	eta, err := m.PredictLinear(x, offset)
	if err != nil {
		return nil, err
	}
	fam := m.ref.Family()
	s, _ := eta.Dims()
	for r := 0; r < s; r++ {
		row := eta.RawRowView(r)
		for i, e := range row {
			row[i] = fam.LinkInv(e)
		}
	}

	return eta, nil
}

// TrainingMu returns the S' × n response-scale fit on the training rows.
func (m *Submodel) TrainingMu() *mat.Dense {
	eta := m.draws.Eta()
	s, n := eta.Dims()
	out := mat.NewDense(s, n, nil)
	fam := m.ref.Family()
	for r := 0; r < s; r++ {
		src := eta.RawRowView(r)
		dst := out.RawRowView(r)
		for i, e := range src {
			dst[i] = fam.LinkInv(e)
		}
	}

	return out
}
