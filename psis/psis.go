package psis

import (
	"context"
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/internal/options"
	"github.com/arloliu/projpred/internal/workpool"
	"github.com/arloliu/projpred/refmodel"
)

// DefaultThreshold is the k-hat above which importance weights are unreliable.
const DefaultThreshold = 0.7

// minTail is the smallest tail that is fitted; shorter tails are left raw and
// reported with an infinite k-hat.
const minTail = 5

// Config holds the smoothing settings.
type Config struct {
	// Threshold flags observations whose k-hat exceeds it.
	Threshold float64
	// Workers bounds the observations smoothed concurrently.
	Workers int
	Logger  *zap.Logger
}

// Option configures smoothing.
type Option = options.Option[*Config]

// DefaultConfig returns the default smoothing settings.
func DefaultConfig() *Config {
	return &Config{Threshold: DefaultThreshold, Logger: zap.NewNop()}
}

// WithThreshold sets the k-hat reliability threshold.
func WithThreshold(k float64) Option {
	return options.New(func(c *Config) error {
		if !(k > 0) || math.IsInf(k, 0) {
			return fmt.Errorf("%w: k-hat threshold must be positive, got %g", errs.ErrConfiguration, k)
		}
		c.Threshold = k

		return nil
	})
}

// WithWorkers bounds the observations smoothed concurrently.
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

// Result holds Pareto-smoothed leave-one-out importance weights.
type Result struct {
	// logWeights is S × n; every column is normalised (logsumexp 0).
	logWeights *mat.Dense
	khat       []float64
	threshold  float64
}

// Smooth Pareto-smooths the columns of an S × n matrix of log importance ratios.
func Smooth(ctx context.Context, logRatios *mat.Dense, opts ...Option) (*Result, error) {
	cfg, err := options.Build(DefaultConfig, opts...)
	if err != nil {
		return nil, err
	}
	s, n := logRatios.Dims()
	if s < 2 {
		return nil, fmt.Errorf("%w: importance sampling needs at least 2 draws, got %d", errs.ErrConfiguration, s)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no observations to smooth", errs.ErrDimensionMismatch)
	}

	res := &Result{
		khat:      make([]float64, n),
		threshold: cfg.Threshold,
	}
	// columns are transposed into rows so each worker writes a contiguous slot
	cols := mat.DenseCopyOf(logRatios.T())
	err = workpool.ForEach(ctx, cfg.Workers, n, func(_ context.Context, i int) error {
		res.khat[i] = smoothColumn(cols.RawRowView(i))
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.logWeights = mat.DenseCopyOf(cols.T())

	if bad := res.Unreliable(); len(bad) > 0 {
		cfg.Logger.Warn("unreliable importance weights",
			zap.Int("observations", len(bad)),
			zap.Float64("threshold", cfg.Threshold),
		)
	}

	return res, nil
}

// FromReference computes leave-one-out weights of the reference model's draws:
// the log ratio of draw s for observation i is log w_s − log p(y_i | θ_s).
func FromReference(ctx context.Context, ref *refmodel.Model, opts ...Option) (*Result, error) {
	ll := ref.LogLik()
	s, n := ll.Dims()
	lr := mat.NewDense(s, n, nil)
	for r := 0; r < s; r++ {
		lw := math.Log(ref.Draws().Weight(r))
		dst := lr.RawRowView(r)
		for i, v := range ll.RawRowView(r) {
			dst[i] = lw - v
		}
	}

	return Smooth(ctx, lr, opts...)
}

// smoothColumn replaces lw by its normalised smoothed log weights and returns k-hat.
func smoothColumn(lw []float64) float64 {
	s := len(lw)
	floats.AddConst(-floats.Max(lw), lw)

	tail := int(math.Ceil(math.Min(0.2*float64(s), 3*math.Sqrt(float64(s)))))
	khat := math.Inf(1)
	if tail >= minTail && tail < s {
		khat = smoothTail(lw, tail)
	}
	floats.AddConst(-floats.LogSumExp(lw), lw)

	return khat
}

// smoothTail replaces the largest tail log weights by the expected order
// statistics of a generalized Pareto fit, truncated at the raw maximum.
func smoothTail(lw []float64, tail int) float64 {
	s := len(lw)
	order := make([]int, s)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case lw[a] < lw[b]:
			return -1
		case lw[a] > lw[b]:
			return 1
		default:
			return 0
		}
	})
	cutoff := lw[order[s-tail-1]]
	if math.IsInf(cutoff, -1) {
		return math.Inf(1)
	}
	expCut := math.Exp(cutoff)

	exceed := make([]float64, tail)
	for j := range exceed {
		exceed[j] = math.Exp(lw[order[s-tail+j]]) - expCut
	}
	if floats.Max(exceed) <= 0 {
		return 0
	}
	k, sigma := FitGPD(exceed)
	if math.IsNaN(k) || math.IsInf(k, 0) || math.IsNaN(sigma) {
		return math.Inf(1)
	}

	// the largest raw log weight is 0 after centring
	for j := 0; j < tail; j++ {
		p := (float64(j) + 0.5) / float64(tail)
		v := math.Log(quantileGPD(p, k, sigma) + expCut)
		lw[order[s-tail+j]] = math.Min(v, 0)
	}

	return k
}

// Khat returns the Pareto shape diagnostic per observation.
func (r *Result) Khat() []float64 { return slices.Clone(r.khat) }

// LogWeights returns the S × n normalised log weights. It must not be modified.
func (r *Result) LogWeights() *mat.Dense { return r.logWeights }

// Threshold returns the k-hat reliability threshold.
func (r *Result) Threshold() float64 { return r.threshold }

// Unreliable returns the observations whose k-hat exceeds the threshold.
func (r *Result) Unreliable() []int {
	var out []int
	for i, k := range r.khat {
		if k > r.threshold {
			out = append(out, i)
		}
	}

	return out
}

// Warnings returns one ImportanceWeightReliabilityWarning per unreliable observation.
func (r *Result) Warnings() errs.Warnings {
	var out errs.Warnings
	for _, i := range r.Unreliable() {
		out = append(out, errs.Warning{
			Kind:        errs.ImportanceWeightReliabilityWarning,
			Size:        -1,
			Draw:        -1,
			Observation: i,
			Fold:        -1,
			Value:       r.khat[i],
			Detail:      fmt.Sprintf("k-hat above %.2g", r.threshold),
		})
	}

	return out
}

// Aggregate maps the weights of the source draws onto reduced draws: the log
// weight of a representative is the logsumexp of its members' log weights.
// Columns are renormalised, since thinned draws cover only part of the source.
func (r *Result) Aggregate(draws *refmodel.DrawSet) (*mat.Dense, error) {
	s, n := r.logWeights.Dims()
	out := mat.NewDense(draws.Len(), n, nil)
	buf := make([]float64, 0, s)
	for c := 0; c < draws.Len(); c++ {
		members := draws.Members(c)
		dst := out.RawRowView(c)
		for i := 0; i < n; i++ {
			buf = buf[:0]
			for _, m := range members {
				if m < 0 || m >= s {
					return nil, fmt.Errorf("%w: member draw %d out of range [0,%d)", errs.ErrDimensionMismatch, m, s)
				}
				buf = append(buf, r.logWeights.At(m, i))
			}
			if len(buf) == 0 {
				dst[i] = math.Inf(-1)
				continue
			}
			dst[i] = floats.LogSumExp(buf)
		}
	}
	col := make([]float64, draws.Len())
	for i := 0; i < n; i++ {
		mat.Col(col, i, out)
		norm := floats.LogSumExp(col)
		if math.IsInf(norm, -1) {
			return nil, fmt.Errorf("%w: observation %d has no weight on the reduced draws", errs.ErrInvalidWeights, i)
		}
		floats.AddConst(-norm, col)
		out.SetCol(i, col)
	}

	return out, nil
}

// Column returns the normalised weights (not logs) of observation i.
func (r *Result) Column(i int) []float64 {
	w := mat.Col(nil, i, r.logWeights)
	for s, v := range w {
		w[s] = math.Exp(v)
	}

	return w
}
