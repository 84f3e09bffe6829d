package config

import (
	"fmt"
	"math"
	"os"
	"runtime"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/projpred/cv"
	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/eval"
	"github.com/arloliu/projpred/format"
	"github.com/arloliu/projpred/psis"
	"github.com/arloliu/projpred/search"
	"github.com/arloliu/projpred/selection"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROJPRED_"

// Config is the file and environment form of the selection settings.
type Config struct {
	Search     SearchConfig     `yaml:"search" envPrefix:"SEARCH_"`
	Projection ProjectionConfig `yaml:"projection" envPrefix:"PROJECTION_"`
	Evaluation EvaluationConfig `yaml:"evaluation" envPrefix:"EVALUATION_"`
	Validation ValidationConfig `yaml:"validation" envPrefix:"VALIDATION_"`
	Cache      CacheConfig      `yaml:"cache" envPrefix:"CACHE_"`

	Seed    uint64 `yaml:"seed" env:"SEED"`
	Workers int    `yaml:"workers" env:"WORKERS"`
}

// SearchConfig selects the search strategy and bounds the path length.
// Penalty holds per-variable L1 penalty factors.
type SearchConfig struct {
	Method   string    `yaml:"method" env:"METHOD"`
	NvMax    int       `yaml:"nv_max" env:"NV_MAX"`
	Clusters int       `yaml:"clusters" env:"CLUSTERS"`
	Penalty  []float64 `yaml:"penalty" env:"PENALTY"`
}

// ProjectionConfig controls the draws used for the final projections and the
// IRLS solver of non-Gaussian families.
type ProjectionConfig struct {
	Draws          int     `yaml:"draws" env:"DRAWS"`
	Clusters       int     `yaml:"clusters" env:"CLUSTERS"`
	Regularization float64 `yaml:"regularization" env:"REGULARIZATION"`
	MaxIter        int     `yaml:"max_iter" env:"MAX_ITER"`
	Tolerance      float64 `yaml:"tolerance" env:"TOLERANCE"`
}

// EvaluationConfig lists the reported statistics and the size suggestion rule.
type EvaluationConfig struct {
	Statistics           []string `yaml:"statistics" env:"STATISTICS"`
	Alpha                float64  `yaml:"alpha" env:"ALPHA"`
	SmallSampleThreshold int      `yaml:"small_sample_threshold" env:"SMALL_SAMPLE_THRESHOLD"`
	SEMultiplier         float64  `yaml:"se_multiplier" env:"SE_MULTIPLIER"`
	Threshold            float64  `yaml:"threshold" env:"THRESHOLD"`
}

// ValidationConfig configures cross-validation: the method, the fold count
// and the PSIS reliability threshold.
type ValidationConfig struct {
	Method         string  `yaml:"method" env:"METHOD"`
	K              int     `yaml:"k" env:"K"`
	KhatThreshold  float64 `yaml:"khat_threshold" env:"KHAT_THRESHOLD"`
	ValidateSearch bool    `yaml:"validate_search" env:"VALIDATE_SEARCH"`
	NLoo           int     `yaml:"nloo" env:"NLOO"`
}

// CacheConfig bounds the projection cache; a zero Size disables it.
type CacheConfig struct {
	Size        int                    `yaml:"size" env:"SIZE"`
	Compression format.CompressionType `yaml:"compression" env:"COMPRESSION"`
}

// Default returns the default settings.
func Default() *Config {
	sel := selection.DefaultConfig()
	ev := eval.DefaultSettings()

	return &Config{
		Search: SearchConfig{
			Method:   search.MethodForward,
			NvMax:    -1,
			Clusters: sel.SearchClusters,
		},
		Projection: ProjectionConfig{
			Draws:     sel.ProjectionDraws,
			MaxIter:   sel.MaxIter,
			Tolerance: sel.Tolerance,
		},
		Evaluation: EvaluationConfig{
			Statistics:           []string{"elpd"},
			Alpha:                ev.Alpha,
			SmallSampleThreshold: ev.SmallSampleThreshold,
			SEMultiplier:         1,
		},
		Validation: ValidationConfig{
			Method:        cv.MethodLOO,
			K:             5,
			KhatThreshold: psis.DefaultThreshold,
		},
		Cache: CacheConfig{
			Size:        sel.CacheSize,
			Compression: format.CompressionNone,
		},
		Workers: runtime.GOMAXPROCS(0),
	}
}

// Load reads the YAML file at path over the defaults, applies PROJPRED_
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return Parse(data)
}

// Parse decodes YAML data over the defaults, applies environment overrides
// and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: decode yaml: %w", errs.ErrConfiguration, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("%w: parse env: %w", errs.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings by building the selector and validator they describe.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: negative workers %d", errs.ErrConfiguration, c.Workers)
	}
	if c.Projection.Tolerance <= 0 || math.IsNaN(c.Projection.Tolerance) {
		return fmt.Errorf("%w: tolerance must be positive, got %g", errs.ErrConfiguration, c.Projection.Tolerance)
	}
	sel, err := selection.New(c.SelectionOptions(nil)...)
	if err != nil {
		return err
	}
	if _, err := cv.New(sel, c.ValidationOptions(nil)...); err != nil {
		return err
	}

	return nil
}

// SelectionOptions converts the settings to selection options.
func (c *Config) SelectionOptions(logger *zap.Logger) []selection.Option {
	opts := []selection.Option{
		selection.WithMethod(c.Search.Method),
		selection.WithNvMax(c.Search.NvMax),
		selection.WithSearchClusters(c.Search.Clusters),
		selection.WithProjectionDraws(c.Projection.Draws),
		selection.WithProjectionClusters(c.Projection.Clusters),
		selection.WithRegularization(c.Projection.Regularization),
		selection.WithMaxIter(c.Projection.MaxIter),
		selection.WithTolerance(c.Projection.Tolerance),
		selection.WithStatistics(c.Evaluation.Statistics...),
		selection.WithAlpha(c.Evaluation.Alpha),
		selection.WithSmallSampleThreshold(c.Evaluation.SmallSampleThreshold),
		selection.WithSEMultiplier(c.Evaluation.SEMultiplier),
		selection.WithThreshold(c.Evaluation.Threshold),
		selection.WithSeed(c.Seed),
		selection.WithWorkers(c.Workers),
		selection.WithCacheSize(c.Cache.Size),
		selection.WithCompression(c.Cache.Compression),
		selection.WithLogger(logger),
	}
	if len(c.Search.Penalty) > 0 {
		opts = append(opts, selection.WithPenalty(c.Search.Penalty))
	}

	return opts
}

// ValidationOptions converts the settings to cross-validation options.
func (c *Config) ValidationOptions(logger *zap.Logger) []cv.Option {
	return []cv.Option{
		cv.WithMethod(c.Validation.Method),
		cv.WithK(c.Validation.K),
		cv.WithKhatThreshold(c.Validation.KhatThreshold),
		cv.WithValidateSearch(c.Validation.ValidateSearch),
		cv.WithNLoo(c.Validation.NLoo),
		cv.WithSeed(c.Seed),
		cv.WithWorkers(c.Workers),
		cv.WithLogger(logger),
	}
}
