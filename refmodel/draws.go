package refmodel

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/internal/options"
)

// DrawSet is an immutable, weighted set of posterior draws.
//
// Each draw carries an optional coefficient vector (intercept in column 0
// followed by one column per variable), an optional training linear predictor
// row, a dispersion scalar (standard deviation for the gaussian family) and a
// non-negative weight. Weights always sum to 1.
//
// A reduced draw set additionally records, per representative, the indices of
// the source draws it stands for. Ungrouped draws represent themselves.
type DrawSet struct {
	coef       *mat.Dense
	eta        *mat.Dense
	dispersion []float64
	weights    []float64
	members    [][]int
	signature  string
}

// DrawOption configures a DrawSet at construction time.
type DrawOption = options.Option[*DrawSet]

// WithDrawWeights sets non-normalised draw weights. They are normalised to sum to 1.
func WithDrawWeights(weights []float64) DrawOption {
	return options.NoError(func(d *DrawSet) {
		d.weights = append([]float64(nil), weights...)
	})
}

// WithMembers records which source draws each draw represents.
func WithMembers(members [][]int) DrawOption {
	return options.NoError(func(d *DrawSet) {
		d.members = make([][]int, len(members))
		for i, m := range members {
			d.members[i] = append([]int(nil), m...)
		}
	})
}

// WithEta attaches the training linear predictor (S × n) of each draw.
func WithEta(eta mat.Matrix) DrawOption {
	return options.NoError(func(d *DrawSet) {
		if eta != nil {
			d.eta = mat.DenseCopyOf(eta)
		}
	})
}

// WithSignature sets the reduction signature used to key cached projections.
func WithSignature(signature string) DrawOption {
	return options.NoError(func(d *DrawSet) {
		d.signature = signature
	})
}

// NewDrawSet creates a draw set from coefficient draws.
//
// Parameters:
//   - coef: S × (1+p) matrix, intercept in column 0
//   - dispersion: S dispersion draws, or nil for fixed-dispersion families
//   - opts: optional weights, members, training linear predictor, signature
//
// Returns:
//   - *DrawSet: validated draw set (inputs are copied)
//   - error: errs.ErrEmptyDraws, errs.ErrDimensionMismatch or errs.ErrInvalidWeights
func NewDrawSet(coef mat.Matrix, dispersion []float64, opts ...DrawOption) (*DrawSet, error) {
	if coef == nil {
		return nil, fmt.Errorf("coefficient draws: %w", errs.ErrEmptyDraws)
	}
	d := &DrawSet{coef: mat.DenseCopyOf(coef), dispersion: append([]float64(nil), dispersion...)}
	if err := options.Apply(d, opts...); err != nil {
		return nil, err
	}
	if err := d.finalize(); err != nil {
		return nil, err
	}

	return d, nil
}

// NewLinearDrawSet creates a draw set from linear predictor draws over the
// training rows (S × n), for reference models that are not plain GLMs.
// Predicting new data from such draws requires a custom Predictor.
func NewLinearDrawSet(eta mat.Matrix, dispersion []float64, opts ...DrawOption) (*DrawSet, error) {
	if eta == nil {
		return nil, fmt.Errorf("linear predictor draws: %w", errs.ErrEmptyDraws)
	}
	d := &DrawSet{dispersion: append([]float64(nil), dispersion...)}
	if err := options.Apply(d, opts...); err != nil {
		return nil, err
	}
	d.eta = mat.DenseCopyOf(eta)
	if err := d.finalize(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *DrawSet) finalize() error {
	s := 0
	switch {
	case d.coef != nil:
		s, _ = d.coef.Dims()
	case d.eta != nil:
		s, _ = d.eta.Dims()
	}
	if s == 0 {
		return errs.ErrEmptyDraws
	}

	if d.eta != nil {
		if r, _ := d.eta.Dims(); r != s {
			return fmt.Errorf("%w: %d linear predictor rows for %d draws", errs.ErrDimensionMismatch, r, s)
		}
	}

	if len(d.dispersion) == 0 {
		d.dispersion = nil
	} else {
		if len(d.dispersion) != s {
			return fmt.Errorf("%w: %d dispersion draws for %d draws", errs.ErrDimensionMismatch, len(d.dispersion), s)
		}
		for i, v := range d.dispersion {
			if !(v > 0) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: dispersion draw %d is %g", errs.ErrDimensionMismatch, i, v)
			}
		}
	}

	if d.weights == nil {
		d.weights = make([]float64, s)
		for i := range d.weights {
			d.weights[i] = 1 / float64(s)
		}
	} else {
		w, err := normalizeWeights(d.weights, s)
		if err != nil {
			return err
		}
		d.weights = w
	}

	if d.members == nil {
		d.members = make([][]int, s)
		for i := range d.members {
			d.members[i] = []int{i}
		}
	} else if len(d.members) != s {
		return fmt.Errorf("%w: %d member groups for %d draws", errs.ErrDimensionMismatch, len(d.members), s)
	}

	if d.signature == "" {
		d.signature = "draws:" + strconv.Itoa(s)
	}

	return nil
}

func normalizeWeights(w []float64, s int) ([]float64, error) {
	if len(w) != s {
		return nil, fmt.Errorf("%w: %d weights for %d draws", errs.ErrInvalidWeights, len(w), s)
	}
	for i, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: weight %d is %g", errs.ErrInvalidWeights, i, v)
		}
	}
	total := floats.Sum(w)
	if total <= 0 {
		return nil, fmt.Errorf("%w: weights sum to %g", errs.ErrInvalidWeights, total)
	}
	out := append([]float64(nil), w...)
	floats.Scale(1/total, out)

	return out, nil
}

// Len returns the number of draws S.
func (d *DrawSet) Len() int {
	return len(d.weights)
}

// HasCoefficients reports whether the draws carry coefficient vectors.
func (d *DrawSet) HasCoefficients() bool {
	return d.coef != nil
}

// Dim returns the number of variables p of the coefficient draws, or -1 for linear predictor draws.
func (d *DrawSet) Dim() int {
	if d.coef == nil {
		return -1
	}
	_, c := d.coef.Dims()

	return c - 1
}

// Coefficients returns the S × (1+p) coefficient matrix, or nil.
// The returned matrix must not be modified.
func (d *DrawSet) Coefficients() *mat.Dense {
	return d.coef
}

// Coef returns a copy of the coefficient vector of draw s.
func (d *DrawSet) Coef(s int) []float64 {
	if d.coef == nil {
		return nil
	}

	return mat.Row(nil, s, d.coef)
}

// Eta returns the S × n training linear predictor, or nil when not attached.
// The returned matrix must not be modified.
func (d *DrawSet) Eta() *mat.Dense {
	return d.eta
}

// EtaRow returns a read-only view of the training linear predictor of draw s.
func (d *DrawSet) EtaRow(s int) []float64 {
	return d.eta.RawRowView(s)
}

// HasDispersion reports whether per-draw dispersion values are present.
func (d *DrawSet) HasDispersion() bool {
	return d.dispersion != nil
}

// Dispersion returns the dispersion of draw s, or 1 for fixed-dispersion draws.
func (d *DrawSet) Dispersion(s int) float64 {
	if d.dispersion == nil {
		return 1
	}

	return d.dispersion[s]
}

// Dispersions returns a copy of the dispersion draws (nil when absent).
func (d *DrawSet) Dispersions() []float64 {
	if d.dispersion == nil {
		return nil
	}

	return append([]float64(nil), d.dispersion...)
}

// Weight returns the normalised weight of draw s.
func (d *DrawSet) Weight(s int) float64 {
	return d.weights[s]
}

// Weights returns a copy of the normalised draw weights.
func (d *DrawSet) Weights() []float64 {
	return append([]float64(nil), d.weights...)
}

// Members returns a copy of the source draw indices represented by draw s.
func (d *DrawSet) Members(s int) []int {
	return append([]int(nil), d.members[s]...)
}

// Signature identifies how the draw set was produced (e.g. "cluster:20:seed=1").
func (d *DrawSet) Signature() string {
	return d.signature
}

// MeanEta returns the weighted mean training linear predictor over draws.
func (d *DrawSet) MeanEta() []float64 {
	if d.eta == nil {
		return nil
	}
	_, n := d.eta.Dims()
	out := make([]float64, n)
	for s, w := range d.weights {
		floats.AddScaled(out, w, d.eta.RawRowView(s))
	}

	return out
}

// Reweighted returns a draw set sharing the draws but with new weights.
// The signature is extended with the given tag so that cached projections of
// the original and reweighted sets never alias.
func (d *DrawSet) Reweighted(weights []float64, tag string) (*DrawSet, error) {
	w, err := normalizeWeights(weights, d.Len())
	if err != nil {
		return nil, err
	}
	out := d.shallowCopy()
	out.weights = w
	out.signature = d.signature + "|" + tag

	return out, nil
}

// withEta returns a shallow copy with the training linear predictor replaced.
func (d *DrawSet) withEta(eta *mat.Dense) *DrawSet {
	out := d.shallowCopy()
	out.eta = eta

	return out
}

// restrictColumns returns a shallow copy whose training linear predictor only
// keeps the given rows of the data.
func (d *DrawSet) restrictColumns(rows []int) *DrawSet {
	out := d.shallowCopy()
	if d.eta != nil {
		out.eta = selectColumns(d.eta, rows)
	}

	return out
}

func (d *DrawSet) shallowCopy() *DrawSet {
	return &DrawSet{
		coef:       d.coef,
		eta:        d.eta,
		dispersion: d.dispersion,
		weights:    d.weights,
		members:    d.members,
		signature:  d.signature,
	}
}

func selectColumns(m *mat.Dense, cols []int) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, len(cols), nil)
	for i := 0; i < r; i++ {
		src := m.RawRowView(i)
		dst := out.RawRowView(i)
		for j, c := range cols {
			dst[j] = src[c]
		}
	}

	return out
}
