package eval

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/family"
	"github.com/arloliu/projpred/internal/options"
)

// Estimate is a point estimate with its standard error and a normal
// approximation interval.
type Estimate struct {
	Value float64
	SE    float64
	Lower float64
	Upper float64
	// N is the number of observations the estimate is based on.
	N int
	// SmallSample is set when N is below the small-sample threshold, in which
	// case the normal interval is unreliable.
	SmallSample bool
}

// Settings controls how pointwise contributions are summarised.
type Settings struct {
	// Alpha is the two-sided tail mass outside the interval; 0.32 gives ±1 SE.
	Alpha float64
	// SmallSampleThreshold flags estimates based on fewer observations.
	SmallSampleThreshold int
}

// DefaultSettings returns alpha 0.32 and a small-sample threshold of 20.
func DefaultSettings() Settings {
	return Settings{Alpha: 0.32, SmallSampleThreshold: 20}
}

func (s Settings) estimate(value, se float64, n int) Estimate {
	z := distuv.UnitNormal.Quantile(1 - s.Alpha/2)

	return Estimate{
		Value:       value,
		SE:          se,
		Lower:       value - z*se,
		Upper:       value + z*se,
		N:           n,
		SmallSample: n < s.SmallSampleThreshold,
	}
}

// Config holds the evaluator settings.
type Config struct {
	Settings
	// Statistics lists the statistic names to compute; the first is primary.
	Statistics []string
}

// Option configures an Evaluator.
type Option = options.Option[*Config]

// DefaultConfig returns the default evaluator configuration (elpd only).
func DefaultConfig() *Config {
	return &Config{Settings: DefaultSettings(), Statistics: []string{"elpd"}}
}

// WithAlpha sets the interval tail mass.
func WithAlpha(alpha float64) Option {
	return options.New(func(c *Config) error {
		if !(alpha > 0 && alpha < 1) {
			return fmt.Errorf("%w: alpha must lie in (0,1), got %g", errs.ErrConfiguration, alpha)
		}
		c.Alpha = alpha

		return nil
	})
}

// WithSmallSampleThreshold sets the observation count below which estimates are flagged.
func WithSmallSampleThreshold(n int) Option {
	return options.New(func(c *Config) error {
		if n < 0 {
			return fmt.Errorf("%w: negative small-sample threshold %d", errs.ErrConfiguration, n)
		}
		c.SmallSampleThreshold = n

		return nil
	})
}

// WithStatistics selects the statistics to compute.
func WithStatistics(names ...string) Option {
	return options.New(func(c *Config) error {
		if len(names) == 0 {
			return fmt.Errorf("%w: no statistics requested", errs.ErrConfiguration)
		}
		for _, name := range names {
			if _, err := Lookup(name); err != nil {
				return err
			}
		}
		c.Statistics = append([]string(nil), names...)

		return nil
	})
}

// Evaluator computes the configured statistics of predictions.
type Evaluator struct {
	cfg   *Config
	stats []Statistic
}

// New returns an evaluator.
func New(opts ...Option) (*Evaluator, error) {
	cfg, err := options.Build(DefaultConfig, opts...)
	if err != nil {
		return nil, err
	}
	e := &Evaluator{cfg: cfg}
	for _, name := range cfg.Statistics {
		st, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		e.stats = append(e.stats, st)
	}

	return e, nil
}

// Settings returns the summary settings.
func (e *Evaluator) Settings() Settings { return e.cfg.Settings }

// Statistics returns the configured statistics; the first is primary.
func (e *Evaluator) Statistics() []Statistic { return append([]Statistic(nil), e.stats...) }

// Supports checks every configured statistic against the family.
func (e *Evaluator) Supports(fam family.Family) error {
	for _, st := range e.stats {
		if err := st.Supports(fam); err != nil {
			return err
		}
	}

	return nil
}

// Evaluate returns the estimate of every configured statistic, keyed by name.
func (e *Evaluator) Evaluate(pred *Prediction) map[string]Estimate {
	out := make(map[string]Estimate, len(e.stats))
	for _, st := range e.stats {
		out[st.Name()] = st.Aggregate(st.Pointwise(pred), e.cfg.Settings)
	}

	return out
}

// Diff returns the paired relative estimate (sub − ref) of every configured
// statistic. Both predictions must cover the same observations in the same order.
func (e *Evaluator) Diff(sub, ref *Prediction) (map[string]Estimate, error) {
	if sub.Len() != ref.Len() {
		return nil, fmt.Errorf("%w: %d submodel and %d reference observations", errs.ErrDimensionMismatch, sub.Len(), ref.Len())
	}
	out := make(map[string]Estimate, len(e.stats))
	for _, st := range e.stats {
		out[st.Name()] = st.Diff(st.Pointwise(sub), st.Pointwise(ref), e.cfg.Settings)
	}

	return out, nil
}

// Relative converts a submodel−reference difference into a loss: positive when
// the submodel is worse, whatever the orientation of the statistic.
func Relative(st Statistic, diff float64) float64 {
	if st.HigherIsBetter() {
		return -diff
	}

	return diff
}
