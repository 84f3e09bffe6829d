package project

import (
	"context"
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/family"
	"github.com/arloliu/projpred/internal/hash"
	"github.com/arloliu/projpred/internal/options"
	"github.com/arloliu/projpred/internal/workpool"
	"github.com/arloliu/projpred/refmodel"
)

// Config holds the projector settings.
type Config struct {
	// Regularization is the L2 penalty on non-intercept coefficients.
	Regularization float64
	// MaxIter caps the IRLS iterations per draw.
	MaxIter int
	// Tolerance is the relative deviance change declaring convergence.
	Tolerance float64
	// Workers bounds the draws projected in parallel (<= 0 means GOMAXPROCS).
	Workers int
	// Logger receives debug and warning output.
	Logger *zap.Logger
	// Cache stores projections for reuse; nil disables caching.
	Cache *Cache
}

// Option configures a Projector.
type Option = options.Option[*Config]

// DefaultConfig returns the default projector settings.
func DefaultConfig() *Config {
	return &Config{
		MaxIter:   50,
		Tolerance: 1e-5,
		Logger:    zap.NewNop(),
	}
}

// WithRegularization sets the L2 penalty applied to non-intercept coefficients.
func WithRegularization(lambda float64) Option {
	return options.New(func(c *Config) error {
		if lambda < 0 || math.IsNaN(lambda) || math.IsInf(lambda, 0) {
			return fmt.Errorf("%w: regularization must be finite and non-negative, got %g", errs.ErrConfiguration, lambda)
		}
		c.Regularization = lambda

		return nil
	})
}

// WithMaxIter sets the IRLS iteration cap.
func WithMaxIter(n int) Option {
	return options.New(func(c *Config) error {
		if n < 2 {
			return fmt.Errorf("%w: max iterations must be at least 2, got %d", errs.ErrConfiguration, n)
		}
		c.MaxIter = n

		return nil
	})
}

// WithTolerance sets the relative convergence threshold.
func WithTolerance(tol float64) Option {
	return options.New(func(c *Config) error {
		if !(tol > 0) {
			return fmt.Errorf("%w: tolerance must be positive, got %g", errs.ErrConfiguration, tol)
		}
		c.Tolerance = tol

		return nil
	})
}

// WithWorkers bounds the number of draws projected concurrently.
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

// WithCache enables projection caching.
func WithCache(cache *Cache) Option {
	return options.NoError(func(c *Config) { c.Cache = cache })
}

// Projector projects reference draws onto variable subsets.
//
// A Projector is immutable and safe for concurrent use.
type Projector struct {
	cfg *Config
}

// New creates a projector.
//
// Example:
//
//	proj, err := project.New(project.WithRegularization(1e-4), project.WithWorkers(4))
//	sub, err := proj.Project(ctx, ref, ref.Draws(), []int{2, 0})
func New(opts ...Option) (*Projector, error) {
	cfg, err := options.Build(DefaultConfig, opts...)
	if err != nil {
		return nil, err
	}

	return &Projector{cfg: cfg}, nil
}

// Config returns a copy of the projector settings.
func (p *Projector) Config() Config { return *p.cfg }

// Cache returns the projection cache, or nil.
func (p *Projector) Cache() *Cache { return p.cfg.Cache }

// Project minimises, for every draw, the KL divergence from the reference
// predictive distribution to the submodel restricted to subset.
//
// Parameters:
//   - ctx: cancellation
//   - ref: reference model providing data, family, weights and offset
//   - draws: draws to project, typically reduced; they must carry the
//     training linear predictor over ref's rows (nil means ref.Draws())
//   - subset: candidate variable indices; empty projects onto the intercept
//
// Returns:
//   - *Submodel: projected draws with the same weights as draws
//   - error: errs.ErrConfiguration for invalid subsets, errs.ErrSingularDesign, ctx errors
//
// Gaussian projections are closed form: a weighted least squares fit of every
// draw's linear predictor, with dispersion² = σ²_ref + weighted mean squared
// residual. Binomial and Poisson projections run IRLS per draw; draws hitting
// the iteration cap keep their last iterate and carry a ConvergenceWarning.
func (p *Projector) Project(ctx context.Context, ref *refmodel.Model, draws *refmodel.DrawSet, subset []int) (*Submodel, error) {
	if draws == nil {
		draws = ref.Draws()
	}
	if err := validateSubset(subset, ref.P()); err != nil {
		return nil, err
	}
	if draws.Eta() == nil {
		return nil, fmt.Errorf("%w: draws without training linear predictor", errs.ErrConfiguration)
	}
	if _, n := draws.Eta().Dims(); n != ref.N() {
		return nil, fmt.Errorf("%w: draws cover %d rows, model has %d", errs.ErrDimensionMismatch, n, ref.N())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subset = append([]int(nil), subset...)
	key := p.cacheKey(ref, draws, subset)
	if p.cfg.Cache != nil {
		if cp, ok := p.cfg.Cache.get(key); ok {
			sub, err := p.fromCache(ref, draws, subset, cp)
			if err == nil {
				return sub, nil
			}
			p.cfg.Logger.Warn("dropping undecodable cache entry", zap.Error(err))
		}
	}

	var (
		sub *Submodel
		err error
	)
	if ref.Family().Kind() == family.KindGaussian {
		sub, err = p.projectGaussian(ctx, ref, draws, subset)
	} else {
		sub, err = p.projectIRLS(ctx, ref, draws, subset)
	}
	if err != nil {
		return nil, err
	}

	if p.cfg.Cache != nil {
		p.cfg.Cache.put(ref.Scope(), key, sub)
	}

	return sub, nil
}

func validateSubset(subset []int, p int) error {
	seen := make(map[int]struct{}, len(subset))
	for _, v := range subset {
		if v < 0 || v >= p {
			return fmt.Errorf("%w: variable %d out of range [0,%d)", errs.ErrConfiguration, v, p)
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("%w: variable %d repeated in subset", errs.ErrConfiguration, v)
		}
		seen[v] = struct{}{}
	}

	return nil
}

// cacheKey keys a projection by the model scope, the draw set, the settings
// that change its result and the canonical (sorted) subset.
func (p *Projector) cacheKey(ref *refmodel.Model, draws *refmodel.DrawSet, subset []int) uint64 {
	sig := fmt.Sprintf("%s|l2=%g|it=%d|tol=%g", draws.Signature(), p.cfg.Regularization, p.cfg.MaxIter, p.cfg.Tolerance)
	return hash.SubsetKey(ref.Scope(), sig, subset)
}

func (p *Projector) projectGaussian(ctx context.Context, ref *refmodel.Model, draws *refmodel.DrawSet, subset []int) (*Submodel, error) {
	s := draws.Len()
	n := ref.N()
	xd := design(ref.X(), subset)
	w := ref.Weights()
	off := ref.Offset()

	ne, err := factorize(xd, w, p.cfg.Regularization)
	if err != nil {
		return nil, err
	}

	targets := mat.NewDense(s, n, nil)
	for r := 0; r < s; r++ {
		floats.SubTo(targets.RawRowView(r), draws.EtaRow(r), off)
	}
	coef, err := ne.solveDraws(xd, w, targets)
	if err != nil {
		return nil, err
	}

	eta := mat.NewDense(s, n, nil)
	disp := make([]float64, s)
	deviance := make([]float64, s)
	wsum := floats.Sum(w)
	fam := ref.Family()

	err = workpool.ForEach(ctx, p.cfg.Workers, s, func(_ context.Context, r int) error {
		row := eta.RawRowView(r)
		fittedInto(row, xd, coef.RawRowView(r), off)
		target := draws.EtaRow(r)
		var dev float64
		for i := range row {
			dev += fam.Deviance(target[i], row[i], w[i])
		}
		deviance[r] = dev
		sigma := draws.Dispersion(r)
		mse := 0.0
		if wsum > 0 {
			mse = dev / wsum
		}
		disp[r] = math.Sqrt(sigma*sigma + mse)

		return nil
	})
	if err != nil {
		return nil, err
	}

	iterations := make([]int, s)
	converged := make([]bool, s)
	for r := range iterations {
		iterations[r] = 1
		converged[r] = true
	}

	return newSubmodel(ref, draws, subset, coef, eta, disp, deviance, iterations, converged)
}

func (p *Projector) projectIRLS(ctx context.Context, ref *refmodel.Model, draws *refmodel.DrawSet, subset []int) (*Submodel, error) {
	s := draws.Len()
	n := ref.N()
	prob := &irlsProblem{
		fam:     ref.Family(),
		xd:      design(ref.X(), subset),
		weights: ref.Weights(),
		offset:  ref.Offset(),
		lambda:  p.cfg.Regularization,
		maxIter: p.cfg.MaxIter,
		tol:     p.cfg.Tolerance,
	}

	coef := mat.NewDense(s, 1+len(subset), nil)
	eta := mat.NewDense(s, n, nil)
	deviance := make([]float64, s)
	iterations := make([]int, s)
	converged := make([]bool, s)

	err := workpool.ForEach(ctx, p.cfg.Workers, s, func(_ context.Context, r int) error {
		start := draws.EtaRow(r)
		target := make([]float64, n)
		for i, e := range start {
			target[i] = prob.fam.LinkInv(e)
		}
		fit, err := prob.fit(target, start)
		if err != nil {
			return fmt.Errorf("draw %d: %w", r, err)
		}
		coef.SetRow(r, fit.coef)
		eta.SetRow(r, fit.eta)
		deviance[r] = fit.deviance
		iterations[r] = fit.iterations
		converged[r] = fit.converged

		return nil
	})
	if err != nil {
		return nil, err
	}

	sub, err := newSubmodel(ref, draws, subset, coef, eta, nil, deviance, iterations, converged)
	if err != nil {
		return nil, err
	}
	if nw := len(sub.warnings); nw > 0 {
		p.cfg.Logger.Warn("projection did not converge",
			zap.Ints("subset", subset),
			zap.Int("draws", nw),
			zap.Int("max_iter", p.cfg.MaxIter),
		)
	}

	return sub, nil
}

// fromCache rebuilds a submodel from a cached projection. The training linear
// predictor is recomputed from the coefficients rather than stored.
func (p *Projector) fromCache(ref *refmodel.Model, draws *refmodel.DrawSet, subset []int, cp *cachedProjection) (*Submodel, error) {
	s, c := cp.coef.Dims()
	if s != draws.Len() || c != 1+len(subset) {
		return nil, fmt.Errorf("%w: cached %d×%d projection for %d draws and %d variables", errs.ErrCacheDecode, s, c, draws.Len(), len(subset))
	}
	coef := permuteColumns(cp.coef, canonicalPositions(subset), false)
	xd := design(ref.X(), subset)
	off := ref.Offset()
	eta := mat.NewDense(s, ref.N(), nil)
	for r := 0; r < s; r++ {
		fittedInto(eta.RawRowView(r), xd, coef.RawRowView(r), off)
	}

	return newSubmodel(ref, draws, subset, coef, eta, cp.dispersion, cp.deviance, cp.iterations, cp.converged)
}

// canonicalPositions returns, for every position j of subset, the position of
// subset[j] in the sorted subset.
func canonicalPositions(subset []int) []int {
	sorted := append([]int(nil), subset...)
	slices.Sort(sorted)
	pos := make([]int, len(subset))
	for j, v := range subset {
		pos[j], _ = slices.BinarySearch(sorted, v)
	}

	return pos
}

// permuteColumns maps coefficient columns between subset order and canonical
// order; column 0 (the intercept) never moves. toCanonical selects the direction.
func permuteColumns(coef *mat.Dense, pos []int, toCanonical bool) *mat.Dense {
	s, c := coef.Dims()
	out := mat.NewDense(s, c, nil)
	for r := 0; r < s; r++ {
		src := coef.RawRowView(r)
		dst := out.RawRowView(r)
		dst[0] = src[0]
		for j, q := range pos {
			if toCanonical {
				dst[1+q] = src[1+j]
			} else {
				dst[1+j] = src[1+q]
			}
		}
	}

	return out
}
