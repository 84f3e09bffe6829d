package refmodel

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/family"
	"github.com/arloliu/projpred/internal/options"
)

// FullScope prefixes the cache scope of a reference model built on all rows.
// Every model gets its own scope so projections of different models sharing
// a cache never collide.
const FullScope = "full"

type modelConfig struct {
	weights   []float64
	offset    []float64
	predictor Predictor
	logger    *zap.Logger
}

// Option configures a reference model.
type Option = options.Option[*modelConfig]

// WithWeights sets observation weights (binomial trials for the binomial family).
func WithWeights(weights []float64) Option {
	return options.NoError(func(c *modelConfig) {
		c.weights = append([]float64(nil), weights...)
	})
}

// WithOffset sets a fixed offset added to every linear predictor.
func WithOffset(offset []float64) Option {
	return options.NoError(func(c *modelConfig) {
		c.offset = append([]float64(nil), offset...)
	})
}

// WithPredictor sets a custom predictor for non-standard reference models.
func WithPredictor(p Predictor) Option {
	return options.New(func(c *modelConfig) error {
		if p == nil {
			return fmt.Errorf("%w: nil predictor", errs.ErrConfiguration)
		}
		c.predictor = p

		return nil
	})
}

// WithLogger sets the logger used by the reference model.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(c *modelConfig) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// Model is the fitted reference model: a family, the training data, the
// posterior draws and a predictor.
//
// A Model is immutable once constructed and safe for concurrent reads. The
// training linear predictor, means and pointwise log predictive densities of
// every draw are computed eagerly at construction.
type Model struct {
	fam       family.Family
	x         *mat.Dense
	y         []float64
	weights   []float64
	offset    []float64
	draws     *DrawSet
	mu        *mat.Dense
	loglik    *mat.Dense
	predictor Predictor
	scope     string
	rows      []int
	logger    *zap.Logger
}

// New validates the inputs and builds a reference model.
//
// Parameters:
//   - fam: response family (see package family)
//   - x: n × p covariate matrix of candidate variables (no intercept column)
//   - y: n responses (proportions for the binomial family)
//   - draws: posterior draws, either coefficient draws with 1+p columns or
//     linear predictor draws over the n training rows
//   - opts: weights, offset, custom predictor, logger
//
// Returns:
//   - *Model: the reference model
//   - error: errs.ErrUnsupportedFamily, errs.ErrDimensionMismatch,
//     errs.ErrInvalidResponse or errs.ErrConfiguration; no partial model is returned
//
// Example:
//
//	draws, _ := refmodel.NewDrawSet(coef, sigma)
//	ref, err := refmodel.New(family.Gaussian(), x, y, draws)
func New(fam family.Family, x mat.Matrix, y []float64, draws *DrawSet, opts ...Option) (*Model, error) {
	if fam == nil {
		return nil, fmt.Errorf("%w: nil family", errs.ErrUnsupportedFamily)
	}
	if _, err := family.New(fam.Kind().String(), fam.Link().String()); err != nil {
		return nil, err
	}
	if x == nil || draws == nil {
		return nil, fmt.Errorf("%w: covariates and draws are required", errs.ErrDimensionMismatch)
	}

	cfg := &modelConfig{logger: zap.NewNop()}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	n, p := x.Dims()
	if len(y) != n {
		return nil, fmt.Errorf("%w: %d responses for %d rows", errs.ErrDimensionMismatch, len(y), n)
	}
	if cfg.weights == nil {
		cfg.weights = make([]float64, n)
		for i := range cfg.weights {
			cfg.weights[i] = 1
		}
	} else if len(cfg.weights) != n {
		return nil, fmt.Errorf("%w: %d weights for %d rows", errs.ErrDimensionMismatch, len(cfg.weights), n)
	}
	if cfg.offset == nil {
		cfg.offset = make([]float64, n)
	} else if len(cfg.offset) != n {
		return nil, fmt.Errorf("%w: %d offsets for %d rows", errs.ErrDimensionMismatch, len(cfg.offset), n)
	}
	for i := range y {
		if err := fam.ValidateResponse(y[i], cfg.weights[i]); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}

	if fam.HasDispersion() && !draws.HasDispersion() {
		return nil, fmt.Errorf("%w: %s reference model needs dispersion draws", errs.ErrConfiguration, family.String(fam))
	}

	predictor := cfg.predictor
	var eta *mat.Dense
	switch {
	case predictor != nil:
		raw, err := predictor.PredictLinear(x, draws)
		if err != nil {
			return nil, fmt.Errorf("predict training data: %w", err)
		}
		eta = raw
	case draws.HasCoefficients():
		if draws.Dim() != p {
			return nil, fmt.Errorf("%w: %d coefficient columns for %d variables", errs.ErrDimensionMismatch, draws.Dim(), p)
		}
		predictor = GLMPredictor{}
		raw, err := predictor.PredictLinear(x, draws)
		if err != nil {
			return nil, err
		}
		eta = raw
	case draws.Eta() != nil:
		// linear predictor draws already include the offset
		eta = mat.DenseCopyOf(draws.Eta())
		cfg.offset = make([]float64, n)
	default:
		return nil, fmt.Errorf("%w: draws carry neither coefficients nor linear predictors", errs.ErrEmptyDraws)
	}

	s := draws.Len()
	if r, c := eta.Dims(); r != s || c != n {
		return nil, fmt.Errorf("%w: predictor returned %d×%d, want %d×%d", errs.ErrDimensionMismatch, r, c, s, n)
	}
	if predictor != nil {
		for i := 0; i < s; i++ {
			floats.Add(eta.RawRowView(i), cfg.offset)
		}
	}

	m := &Model{
		fam:       fam,
		x:         mat.DenseCopyOf(x),
		y:         append([]float64(nil), y...),
		weights:   cfg.weights,
		offset:    cfg.offset,
		draws:     draws.withEta(eta),
		predictor: predictor,
		scope:     FullScope + "/" + uuid.NewString(),
		logger:    cfg.logger,
	}
	m.computeMoments()

	m.logger.Debug("reference model constructed",
		zap.String("family", family.String(fam)),
		zap.Int("rows", n),
		zap.Int("variables", p),
		zap.Int("draws", s),
	)

	return m, nil
}

func (m *Model) computeMoments() {
	s, n := m.draws.eta.Dims()
	m.mu = mat.NewDense(s, n, nil)
	m.loglik = mat.NewDense(s, n, nil)
	for i := 0; i < s; i++ {
		eta := m.draws.eta.RawRowView(i)
		mu := m.mu.RawRowView(i)
		ll := m.loglik.RawRowView(i)
		disp := m.draws.Dispersion(i)
		for j := range eta {
			mu[j] = m.fam.LinkInv(eta[j])
			ll[j] = m.fam.LogDensity(m.y[j], mu[j], disp, m.weights[j])
		}
	}
}

// Family returns the response family.
func (m *Model) Family() family.Family { return m.fam }

// N returns the number of training rows.
func (m *Model) N() int { return len(m.y) }

// P returns the number of candidate variables.
func (m *Model) P() int {
	_, p := m.x.Dims()
	return p
}

// X returns the n × p covariate matrix. It must not be modified.
func (m *Model) X() *mat.Dense { return m.x }

// Y returns a copy of the responses.
func (m *Model) Y() []float64 { return append([]float64(nil), m.y...) }

// Weights returns a copy of the observation weights.
func (m *Model) Weights() []float64 { return append([]float64(nil), m.weights...) }

// Offset returns a copy of the offsets.
func (m *Model) Offset() []float64 { return append([]float64(nil), m.offset...) }

// Draws returns the posterior draws with the training linear predictor attached.
func (m *Model) Draws() *DrawSet { return m.draws }

// Eta returns the S × n training linear predictor (offset included). It must not be modified.
func (m *Model) Eta() *mat.Dense { return m.draws.eta }

// Mu returns the S × n training means. It must not be modified.
func (m *Model) Mu() *mat.Dense { return m.mu }

// LogLik returns the S × n pointwise log predictive densities of the training
// responses under each draw. It must not be modified.
func (m *Model) LogLik() *mat.Dense { return m.loglik }

// Scope identifies the rows the model was built on; it keys the projection cache.
func (m *Model) Scope() string { return m.scope }

// Rows returns the indices of the original rows this model covers (nil for all rows).
func (m *Model) Rows() []int { return append([]int(nil), m.rows...) }

// Logger returns the model logger.
func (m *Model) Logger() *zap.Logger { return m.logger }

// Predictor returns the predictor used for new data.
func (m *Model) Predictor() Predictor { return m.predictor }

// PredictLinear returns the S × rows linear predictor of the given draws on new
// covariates, adding offset when it is non-nil.
func (m *Model) PredictLinear(x mat.Matrix, draws *DrawSet, offset []float64) (*mat.Dense, error) {
	if m.predictor == nil {
		return nil, errs.ErrNoPredictor
	}
	eta, err := m.predictor.PredictLinear(x, draws)
	if err != nil {
		return nil, err
	}
	if offset != nil {
		s, rows := eta.Dims()
		if len(offset) != rows {
			return nil, fmt.Errorf("%w: %d offsets for %d rows", errs.ErrDimensionMismatch, len(offset), rows)
		}
		for i := 0; i < s; i++ {
			floats.Add(eta.RawRowView(i), offset)
		}
	}

	return eta, nil
}

// MeanMu returns the draw-weighted mean of the training means, the reference
// model's posterior predictive mean.
func (m *Model) MeanMu() []float64 {
	s, n := m.mu.Dims()
	out := make([]float64, n)
	for i := 0; i < s; i++ {
		floats.AddScaled(out, m.draws.Weight(i), m.mu.RawRowView(i))
	}

	return out
}

// Restrict returns a reference model over a subset of the training rows.
//
// The draws are unchanged (the reference model is fixed across folds); only
// the data and the per-row quantities are restricted. The scope keys cached
// projections so that results from different folds never mix.
func (m *Model) Restrict(rows []int, scope string) (*Model, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty row restriction", errs.ErrConfiguration)
	}
	n := m.N()
	for _, r := range rows {
		if r < 0 || r >= n {
			return nil, fmt.Errorf("%w: row %d out of range [0,%d)", errs.ErrConfiguration, r, n)
		}
	}

	_, p := m.x.Dims()
	x := mat.NewDense(len(rows), p, nil)
	y := make([]float64, len(rows))
	w := make([]float64, len(rows))
	off := make([]float64, len(rows))
	orig := make([]int, len(rows))
	for i, r := range rows {
		x.SetRow(i, m.x.RawRowView(r))
		y[i] = m.y[r]
		w[i] = m.weights[r]
		off[i] = m.offset[r]
		if m.rows != nil {
			orig[i] = m.rows[r]
		} else {
			orig[i] = r
		}
	}

	return &Model{
		fam:       m.fam,
		x:         x,
		y:         y,
		weights:   w,
		offset:    off,
		draws:     m.draws.restrictColumns(rows),
		mu:        selectColumns(m.mu, rows),
		loglik:    selectColumns(m.loglik, rows),
		predictor: m.predictor,
		scope:     scope,
		rows:      orig,
		logger:    m.logger,
	}, nil
}

// WithDraws returns a model sharing the data but using other draws of the
// same posterior, such as a reweighted set. The training linear predictor
// must already be attached to the draws.
func (m *Model) WithDraws(draws *DrawSet) (*Model, error) {
	if draws.Eta() == nil {
		return nil, fmt.Errorf("%w: draws without training linear predictor", errs.ErrConfiguration)
	}
	if _, n := draws.Eta().Dims(); n != m.N() {
		return nil, fmt.Errorf("%w: draws cover %d rows, model has %d", errs.ErrDimensionMismatch, n, m.N())
	}
	out := *m
	out.draws = draws
	out.computeMoments()

	return &out, nil
}
