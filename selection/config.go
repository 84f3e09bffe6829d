package selection

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/eval"
	"github.com/arloliu/projpred/format"
	"github.com/arloliu/projpred/internal/options"
	"github.com/arloliu/projpred/project"
	"github.com/arloliu/projpred/reduce"
	"github.com/arloliu/projpred/search"
)

// Config holds the settings of a variable selection run.
type Config struct {
	// Method is the search strategy, "forward" or "l1".
	Method string
	// NvMax is the largest submodel size searched; negative means min(p, 19).
	NvMax int
	// SearchClusters is the number of clustered draws used during the search
	// (0 keeps every draw).
	SearchClusters int
	// ProjectionDraws is the number of thinned draws projected for the final
	// submodels (0 keeps every draw). Ignored when ProjectionClusters is set.
	ProjectionDraws int
	// ProjectionClusters clusters the draws for the final submodels instead of thinning.
	ProjectionClusters int
	// Regularization is the L2 penalty of the projection.
	Regularization float64
	MaxIter        int
	Tolerance      float64
	// Penalty holds per-variable L1 penalty factors.
	Penalty []float64

	// Statistics lists the reported statistics; the first drives the suggested size.
	Statistics           []string
	Alpha                float64
	SmallSampleThreshold int
	// SEMultiplier and Threshold parameterise the size suggestion rule.
	SEMultiplier float64
	Threshold    float64

	// Seed makes draw reduction and fold assignment reproducible; 0 is random.
	Seed uint64
	// Workers bounds every parallel stage; non-positive means GOMAXPROCS.
	Workers int
	Logger  *zap.Logger

	// CacheSize bounds the projection cache; 0 disables caching.
	CacheSize   int
	Compression format.CompressionType
}

// Option configures a selection run.
type Option = options.Option[*Config]

// DefaultConfig returns the default selection settings.
func DefaultConfig() *Config {
	return &Config{
		Method:               search.MethodForward,
		NvMax:                -1,
		SearchClusters:       20,
		ProjectionDraws:      400,
		MaxIter:              project.DefaultConfig().MaxIter,
		Tolerance:            project.DefaultConfig().Tolerance,
		Statistics:           []string{"elpd"},
		Alpha:                eval.DefaultSettings().Alpha,
		SmallSampleThreshold: eval.DefaultSettings().SmallSampleThreshold,
		SEMultiplier:         1,
		Logger:               zap.NewNop(),
		CacheSize:            256,
		Compression:          format.CompressionNone,
	}
}

// WithMethod sets the search strategy.
func WithMethod(method string) Option {
	return options.NoError(func(c *Config) { c.Method = method })
}

// WithNvMax sets the largest submodel size.
func WithNvMax(n int) Option {
	return options.NoError(func(c *Config) { c.NvMax = n })
}

// WithSearchClusters sets the number of clustered draws used by the search.
func WithSearchClusters(k int) Option {
	return options.New(func(c *Config) error {
		if k < 0 {
			return fmt.Errorf("%w: negative search cluster count %d", errs.ErrConfiguration, k)
		}
		c.SearchClusters = k

		return nil
	})
}

// WithProjectionDraws sets the number of thinned draws for the final projections.
func WithProjectionDraws(n int) Option {
	return options.New(func(c *Config) error {
		if n < 0 {
			return fmt.Errorf("%w: negative projection draw count %d", errs.ErrConfiguration, n)
		}
		c.ProjectionDraws = n

		return nil
	})
}

// WithProjectionClusters clusters the draws for the final projections.
func WithProjectionClusters(k int) Option {
	return options.New(func(c *Config) error {
		if k < 0 {
			return fmt.Errorf("%w: negative projection cluster count %d", errs.ErrConfiguration, k)
		}
		c.ProjectionClusters = k

		return nil
	})
}

// WithRegularization sets the projection's L2 penalty.
func WithRegularization(lambda float64) Option {
	return options.NoError(func(c *Config) { c.Regularization = lambda })
}

// WithMaxIter sets the IRLS iteration cap.
func WithMaxIter(n int) Option {
	return options.NoError(func(c *Config) { c.MaxIter = n })
}

// WithTolerance sets the IRLS convergence tolerance.
func WithTolerance(tol float64) Option {
	return options.NoError(func(c *Config) { c.Tolerance = tol })
}

// WithPenalty sets per-variable L1 penalty factors.
func WithPenalty(penalty []float64) Option {
	return options.NoError(func(c *Config) { c.Penalty = append([]float64(nil), penalty...) })
}

// WithStatistics sets the reported statistics; the first one drives the suggestion.
func WithStatistics(names ...string) Option {
	return options.NoError(func(c *Config) { c.Statistics = append([]string(nil), names...) })
}

// WithAlpha sets the interval tail mass.
func WithAlpha(alpha float64) Option {
	return options.NoError(func(c *Config) { c.Alpha = alpha })
}

// WithSmallSampleThreshold sets the observation count below which estimates are flagged.
func WithSmallSampleThreshold(n int) Option {
	return options.NoError(func(c *Config) { c.SmallSampleThreshold = n })
}

// WithSEMultiplier sets the number of standard errors allowed by the size suggestion.
func WithSEMultiplier(m float64) Option {
	return options.New(func(c *Config) error {
		if m < 0 || math.IsNaN(m) {
			return fmt.Errorf("%w: SE multiplier must be non-negative, got %g", errs.ErrConfiguration, m)
		}
		c.SEMultiplier = m

		return nil
	})
}

// WithThreshold sets the tolerated loss relative to the reference model.
func WithThreshold(t float64) Option {
	return options.New(func(c *Config) error {
		if t < 0 || math.IsNaN(t) {
			return fmt.Errorf("%w: threshold must be non-negative, got %g", errs.ErrConfiguration, t)
		}
		c.Threshold = t

		return nil
	})
}

// WithSeed sets the reduction seed.
func WithSeed(seed uint64) Option {
	return options.NoError(func(c *Config) { c.Seed = seed })
}

// WithWorkers bounds every parallel stage.
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

// WithCacheSize bounds the projection cache; 0 disables it.
func WithCacheSize(n int) Option {
	return options.New(func(c *Config) error {
		if n < 0 {
			return fmt.Errorf("%w: negative cache size %d", errs.ErrConfiguration, n)
		}
		c.CacheSize = n

		return nil
	})
}

// WithCompression sets the compression of cached projections.
func WithCompression(ct format.CompressionType) Option {
	return options.NoError(func(c *Config) { c.Compression = ct })
}

// Selector holds the components of a selection run built from a Config.
//
// A Selector is safe for concurrent use; runs share its projection cache.
type Selector struct {
	cfg        *Config
	cache      *project.Cache
	proj       *project.Projector
	strategy   search.Strategy
	evaluator  *eval.Evaluator
	searchRed  reduce.Reducer
	projectRed reduce.Reducer
}

// New validates the configuration and builds the selection components.
func New(opts ...Option) (*Selector, error) {
	cfg, err := options.Build(DefaultConfig, opts...)
	if err != nil {
		return nil, err
	}
	sel := &Selector{cfg: cfg}

	if cfg.CacheSize > 0 {
		sel.cache, err = project.NewCache(
			project.WithCacheSize(cfg.CacheSize),
			project.WithCompression(cfg.Compression),
			project.WithCacheLogger(cfg.Logger),
		)
		if err != nil {
			return nil, err
		}
	}

	sel.proj, err = project.New(
		project.WithRegularization(cfg.Regularization),
		project.WithMaxIter(cfg.MaxIter),
		project.WithTolerance(cfg.Tolerance),
		project.WithWorkers(cfg.Workers),
		project.WithLogger(cfg.Logger),
		project.WithCache(sel.cache),
	)
	if err != nil {
		return nil, err
	}

	searchOpts := []search.Option{search.WithWorkers(cfg.Workers), search.WithLogger(cfg.Logger)}
	if cfg.Penalty != nil {
		searchOpts = append(searchOpts, search.WithPenalty(cfg.Penalty))
	}
	sel.strategy, err = search.New(cfg.Method, sel.proj, searchOpts...)
	if err != nil {
		return nil, err
	}

	sel.evaluator, err = eval.New(
		eval.WithStatistics(cfg.Statistics...),
		eval.WithAlpha(cfg.Alpha),
		eval.WithSmallSampleThreshold(cfg.SmallSampleThreshold),
	)
	if err != nil {
		return nil, err
	}

	sel.searchRed = reduce.Identity()
	if cfg.SearchClusters > 0 {
		sel.searchRed, err = reduce.Cluster(cfg.SearchClusters,
			reduce.WithSeed(cfg.Seed), reduce.WithClusterLogger(cfg.Logger))
		if err != nil {
			return nil, err
		}
	}
	switch {
	case cfg.ProjectionClusters > 0:
		sel.projectRed, err = reduce.Cluster(cfg.ProjectionClusters,
			reduce.WithSeed(cfg.Seed), reduce.WithClusterLogger(cfg.Logger))
		if err != nil {
			return nil, err
		}
	case cfg.ProjectionDraws > 0:
		sel.projectRed = reduce.Thin(cfg.ProjectionDraws, cfg.Seed)
	default:
		sel.projectRed = reduce.Identity()
	}

	return sel, nil
}

// Config returns a copy of the settings.
func (s *Selector) Config() Config { return *s.cfg }

// Projector returns the projector.
func (s *Selector) Projector() *project.Projector { return s.proj }

// Cache returns the projection cache, or nil when caching is disabled.
func (s *Selector) Cache() *project.Cache { return s.cache }

// Strategy returns the search strategy.
func (s *Selector) Strategy() search.Strategy { return s.strategy }

// Evaluator returns the evaluator.
func (s *Selector) Evaluator() *eval.Evaluator { return s.evaluator }

// Logger returns the logger.
func (s *Selector) Logger() *zap.Logger { return s.cfg.Logger }

// SuggestOptions returns the size suggestion settings for the primary
// statistic on a problem with the given number of candidate variables.
func (s *Selector) SuggestOptions(candidates int) SuggestOptions {
	return SuggestOptions{
		SEMultiplier:   s.cfg.SEMultiplier,
		Threshold:      s.cfg.Threshold,
		HigherIsBetter: s.evaluator.Statistics()[0].HigherIsBetter(),
		Candidates:     candidates,
	}
}
