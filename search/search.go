package search

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/internal/options"
	"github.com/arloliu/projpred/project"
	"github.com/arloliu/projpred/refmodel"
)

// Search method names.
const (
	MethodForward = "forward"
	MethodL1      = "l1"
)

// Strategy produces a search path.
//
// On cancellation Search returns the path found so far together with the
// context error; any other error returns a nil path.
type Strategy interface {
	Search(ctx context.Context, ref *refmodel.Model, draws *refmodel.DrawSet, nvMax int) (*Path, error)
	Name() string
}

// Config holds the search settings shared by both strategies.
type Config struct {
	// Workers bounds the candidates scored concurrently in a forward step.
	Workers int
	// Logger receives per-step debug output.
	Logger *zap.Logger
	// LambdaCount is the length of the L1 penalty grid.
	LambdaCount int
	// LambdaMinRatio is the smallest penalty as a fraction of the largest.
	LambdaMinRatio float64
	// Penalty holds per-variable L1 penalty factors (nil means all 1).
	Penalty []float64
	// MaxIter caps coordinate descent sweeps per penalty.
	MaxIter int
	// Tolerance is the coordinate descent convergence threshold.
	Tolerance float64
}

// Option configures a search strategy.
type Option = options.Option[*Config]

// DefaultConfig returns the default search settings.
func DefaultConfig() *Config {
	return &Config{
		Logger:         zap.NewNop(),
		LambdaCount:    100,
		LambdaMinRatio: 1e-5,
		MaxIter:        1000,
		Tolerance:      1e-7,
	}
}

// WithWorkers bounds the candidates scored concurrently.
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

// WithLambdaCount sets the number of penalties on the L1 grid.
func WithLambdaCount(n int) Option {
	return options.New(func(c *Config) error {
		if n < 2 {
			return fmt.Errorf("%w: lambda count must be at least 2, got %d", errs.ErrConfiguration, n)
		}
		c.LambdaCount = n

		return nil
	})
}

// WithLambdaMinRatio sets the smallest penalty relative to the largest.
func WithLambdaMinRatio(ratio float64) Option {
	return options.New(func(c *Config) error {
		if !(ratio > 0 && ratio < 1) {
			return fmt.Errorf("%w: lambda min ratio must lie in (0,1), got %g", errs.ErrConfiguration, ratio)
		}
		c.LambdaMinRatio = ratio

		return nil
	})
}

// WithPenalty sets per-variable L1 penalty factors. A zero factor makes the
// variable enter first; +Inf keeps it out of the lasso so it is ordered last.
func WithPenalty(penalty []float64) Option {
	return options.New(func(c *Config) error {
		for j, v := range penalty {
			if v < 0 || math.IsNaN(v) {
				return fmt.Errorf("%w: penalty factor %d is %g", errs.ErrConfiguration, j, v)
			}
		}
		c.Penalty = append([]float64(nil), penalty...)

		return nil
	})
}

// New returns the strategy registered under method ("forward" or "l1").
// Forward search needs a projector; L1 ignores it.
func New(method string, proj *project.Projector, opts ...Option) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case MethodForward, "":
		return Forward(proj, opts...)
	case MethodL1, "lasso":
		return L1(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown search method %q", errs.ErrConfiguration, method)
	}
}
