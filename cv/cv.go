package cv

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/internal/options"
	"github.com/arloliu/projpred/psis"
	"github.com/arloliu/projpred/refmodel"
	"github.com/arloliu/projpred/search"
	"github.com/arloliu/projpred/selection"
)

// Validation methods.
const (
	MethodKFold = "kfold"
	MethodLOO   = "loo"
)

// Config holds the cross-validation settings.
type Config struct {
	// Method is "loo" (Pareto-smoothed importance sampling) or "kfold".
	Method string
	// K is the number of folds when Folds is not given.
	K int
	// Folds overrides the random partition.
	Folds Folds
	// Seed drives fold assignment and LOO subsampling; 0 falls back to the
	// selector's seed.
	Seed uint64
	// KhatThreshold flags unreliable importance weights.
	KhatThreshold float64
	// ValidateSearch repeats the search for every left-out observation.
	ValidateSearch bool
	// NLoo evaluates a random subsample of observations (0 means all).
	NLoo    int
	Workers int
	Logger  *zap.Logger
}

// Option configures a Validator.
type Option = options.Option[*Config]

// DefaultConfig returns PSIS-LOO with a 0.7 k-hat threshold.
func DefaultConfig() *Config {
	return &Config{
		Method:        MethodLOO,
		K:             5,
		KhatThreshold: psis.DefaultThreshold,
		Logger:        zap.NewNop(),
	}
}

// WithMethod sets the validation method.
func WithMethod(method string) Option {
	return options.New(func(c *Config) error {
		switch m := strings.ToLower(strings.TrimSpace(method)); m {
		case MethodLOO, MethodKFold:
			c.Method = m
		case "k-fold", "kfold-cv":
			c.Method = MethodKFold
		default:
			return fmt.Errorf("%w: unknown validation method %q", errs.ErrConfiguration, method)
		}

		return nil
	})
}

// WithK sets the number of folds.
func WithK(k int) Option {
	return options.New(func(c *Config) error {
		if k < 2 {
			return fmt.Errorf("%w: at least 2 folds required, got %d", errs.ErrConfiguration, k)
		}
		c.K = k

		return nil
	})
}

// WithFolds sets an explicit fold partition and selects K-fold validation.
func WithFolds(folds Folds) Option {
	return options.NoError(func(c *Config) {
		c.Folds = folds
		c.Method = MethodKFold
	})
}

// WithSeed sets the fold and subsampling seed.
func WithSeed(seed uint64) Option {
	return options.NoError(func(c *Config) { c.Seed = seed })
}

// WithKhatThreshold sets the Pareto k-hat reliability threshold.
func WithKhatThreshold(k float64) Option {
	return options.New(func(c *Config) error {
		if !(k > 0) || math.IsInf(k, 0) {
			return fmt.Errorf("%w: k-hat threshold must be positive, got %g", errs.ErrConfiguration, k)
		}
		c.KhatThreshold = k

		return nil
	})
}

// WithValidateSearch repeats the search for every left-out observation.
func WithValidateSearch(on bool) Option {
	return options.NoError(func(c *Config) { c.ValidateSearch = on })
}

// WithNLoo evaluates a random subsample of n observations.
func WithNLoo(n int) Option {
	return options.New(func(c *Config) error {
		if n < 0 {
			return fmt.Errorf("%w: negative LOO subsample %d", errs.ErrConfiguration, n)
		}
		c.NLoo = n

		return nil
	})
}

// WithWorkers bounds the folds or observations validated concurrently.
func WithWorkers(n int) Option {
	return options.NoError(func(c *Config) { c.Workers = n })
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	})
}

// Validator estimates out-of-sample performance of the submodels on a
// selection path.
type Validator struct {
	sel *selection.Selector
	cfg *Config
}

// New returns a validator running the components of sel.
func New(sel *selection.Selector, opts ...Option) (*Validator, error) {
	if sel == nil {
		return nil, fmt.Errorf("%w: cross-validation needs a selector", errs.ErrConfiguration)
	}
	cfg, err := options.Build(DefaultConfig, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = sel.Config().Seed
	}

	return &Validator{sel: sel, cfg: cfg}, nil
}

// Run cross-validates selection on ref with a validator built from sel and opts.
func Run(ctx context.Context, ref *refmodel.Model, sel *selection.Selector, opts ...Option) (*selection.Result, error) {
	v, err := New(sel, opts...)
	if err != nil {
		return nil, err
	}

	return v.Run(ctx, ref)
}

// Config returns a copy of the settings.
func (v *Validator) Config() Config { return *v.cfg }

// Run searches the full data, projects every prefix of the path and
// estimates the out-of-sample performance of every size.
//
// On cancellation the result covers the completed folds or observations, is
// marked partial and is returned together with the context error.
func (v *Validator) Run(ctx context.Context, ref *refmodel.Model) (*selection.Result, error) {
	if err := v.sel.Evaluator().Supports(ref.Family()); err != nil {
		return nil, err
	}
	if _, err := search.ResolveMaxSize(v.sel.Config().NvMax, ref.P()); err != nil {
		return nil, err
	}

	if v.cfg.Method == MethodKFold {
		return v.runKFold(ctx, ref)
	}

	return v.runLOO(ctx, ref)
}

// rowData returns the covariate rows of ref together with their offsets,
// responses and weights.
func rowData(ref *refmodel.Model, rows []int) (*mat.Dense, []float64, []float64, []float64) {
	x := ref.X()
	_, p := x.Dims()
	off, y, w := ref.Offset(), ref.Y(), ref.Weights()

	xs := mat.NewDense(len(rows), p, nil)
	offs := make([]float64, len(rows))
	ys := make([]float64, len(rows))
	ws := make([]float64, len(rows))
	for i, r := range rows {
		xs.SetRow(i, x.RawRowView(r))
		offs[i], ys[i], ws[i] = off[r], y[r], w[r]
	}

	return xs, offs, ys, ws
}

// columns returns the given columns of m.
func columns(m *mat.Dense, cols []int) *mat.Dense {
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

func tagWarnings(ws errs.Warnings, fold, obs int) errs.Warnings {
	out := make(errs.Warnings, len(ws))
	for i, w := range ws {
		if fold >= 0 {
			w.Fold = fold
		}
		if obs >= 0 {
			w.Observation = obs
		}
		out[i] = w
	}

	return out
}
