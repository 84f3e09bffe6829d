package eval

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/viterin/vek"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/family"
)

// Statistic is a predictive performance measure computed from per-observation
// contributions.
//
// Pointwise contributions of a submodel and the reference model over the same
// observations are paired by Diff, which yields the estimate of the relative
// statistic (submodel minus reference).
type Statistic interface {
	// Name returns the registry name.
	Name() string
	// HigherIsBetter reports whether larger values indicate better predictions.
	HigherIsBetter() bool
	// Supports returns errs.ErrConfiguration when the statistic is undefined for the family.
	Supports(fam family.Family) error
	// Pointwise returns the per-observation contributions.
	Pointwise(pred *Prediction) []float64
	// Aggregate summarises pointwise contributions.
	Aggregate(pointwise []float64, s Settings) Estimate
	// Diff summarises the paired difference of submodel and reference contributions.
	Diff(sub, ref []float64, s Settings) Estimate
}

var registry = map[string]Statistic{}

func register(st Statistic) { registry[st.Name()] = st }

func init() {
	register(elpd{})
	register(mlpd{})
	register(mse{})
	register(rmse{})
	register(acc{})
}

// Lookup returns the statistic registered under name (case-insensitive).
func Lookup(name string) (Statistic, error) {
	st, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownStatistic, name)
	}

	return st, nil
}

// Names returns the registered statistic names in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)

	return out
}

// meanSE returns the mean of v and the standard error of that mean.
func meanSE(v []float64) (float64, float64) {
	n := len(v)
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	mean := stat.Mean(v, nil)
	if n < 2 {
		return mean, 0
	}

	return mean, stat.StdDev(v, nil) / math.Sqrt(float64(n))
}

func paired(sub, ref []float64) []float64 {
	d := make([]float64, len(sub))
	copy(d, sub)
	vek.Sub_Inplace(d, ref)

	return d
}

// elpd is the expected log pointwise predictive density, summed over observations.
type elpd struct{}

func (elpd) Name() string { return "elpd" }
func (elpd) HigherIsBetter() bool { return true }
func (elpd) Supports(family.Family) error { return nil }
func (elpd) Pointwise(p *Prediction) []float64 { return p.LPD() }

func (elpd) Aggregate(v []float64, s Settings) Estimate {
	mean, se := meanSE(v)
	n := float64(len(v))

	return s.estimate(mean*n, se*n, len(v))
}

func (e elpd) Diff(sub, ref []float64, s Settings) Estimate {
	return e.Aggregate(paired(sub, ref), s)
}

// mlpd is the mean log predictive density.
type mlpd struct{}

func (mlpd) Name() string { return "mlpd" }
func (mlpd) HigherIsBetter() bool { return true }
func (mlpd) Supports(family.Family) error { return nil }
func (mlpd) Pointwise(p *Prediction) []float64 { return p.LPD() }

func (mlpd) Aggregate(v []float64, s Settings) Estimate {
	mean, se := meanSE(v)
	return s.estimate(mean, se, len(v))
}

func (m mlpd) Diff(sub, ref []float64, s Settings) Estimate {
	return m.Aggregate(paired(sub, ref), s)
}

// weightObservations scales contributions by w_i·m/Σw so that their plain
// mean is the observation-weighted mean. Binomial weights are the trials, so
// aggregated proportions count once per trial.
func weightObservations(p *Prediction, v []float64) []float64 {
	total := floats.Sum(p.weights)
	if len(v) == 0 || !(total > 0) {
		return v
	}
	vek.Mul_Inplace(v, p.weights)
	floats.Scale(float64(len(v))/total, v)

	return v
}

func squaredErrors(p *Prediction) []float64 {
	out := make([]float64, p.Len())
	for i := range out {
		d := p.y[i] - p.mean[i]
		out[i] = d * d
	}

	return weightObservations(p, out)
}

// mse is the observation-weighted mean squared error of the predictive mean.
type mse struct{}

func (mse) Name() string { return "mse" }
func (mse) HigherIsBetter() bool { return false }
func (mse) Supports(family.Family) error { return nil }
func (mse) Pointwise(p *Prediction) []float64 { return squaredErrors(p) }

func (mse) Aggregate(v []float64, s Settings) Estimate {
	mean, se := meanSE(v)
	return s.estimate(mean, se, len(v))
}

func (m mse) Diff(sub, ref []float64, s Settings) Estimate {
	return m.Aggregate(paired(sub, ref), s)
}

// rmse is the root mean squared error; its standard errors use the delta method.
type rmse struct{}

func (rmse) Name() string { return "rmse" }
func (rmse) HigherIsBetter() bool { return false }
func (rmse) Supports(family.Family) error { return nil }
func (rmse) Pointwise(p *Prediction) []float64 { return squaredErrors(p) }

func (rmse) Aggregate(v []float64, s Settings) Estimate {
	mean, se := meanSE(v)
	root := math.Sqrt(mean)
	if root == 0 {
		return s.estimate(0, 0, len(v))
	}

	return s.estimate(root, se/(2*root), len(v))
}

// Diff linearises both roots around their means so the paired correlation
// enters the standard error.
func (rmse) Diff(sub, ref []float64, s Settings) Estimate {
	ms, mr := stat.Mean(sub, nil), stat.Mean(ref, nil)
	rs, rr := math.Sqrt(ms), math.Sqrt(mr)
	d := make([]float64, len(sub))
	for i := range d {
		var a, b float64
		if rs > 0 {
			a = sub[i] / (2 * rs)
		}
		if rr > 0 {
			b = ref[i] / (2 * rr)
		}
		d[i] = a - b
	}
	_, se := meanSE(d)

	return s.estimate(rs-rr, se, len(d))
}

// acc is the observation-weighted classification accuracy of the predictive
// mean: a 0.5 threshold for binomial responses, the rounded mean for counts.
type acc struct{}

func (acc) Name() string { return "acc" }
func (acc) HigherIsBetter() bool { return true }

func (acc) Supports(fam family.Family) error {
	if fam.Kind() == family.KindGaussian {
		return fmt.Errorf("%w: acc is undefined for the %s family", errs.ErrConfiguration, family.String(fam))
	}

	return nil
}

func (acc) Pointwise(p *Prediction) []float64 {
	out := make([]float64, p.Len())
	for i := range out {
		y, mu := p.y[i], p.mean[i]
		if p.fam.Kind() == family.KindPoisson {
			if math.Round(mu) == y {
				out[i] = 1
			}
			continue
		}
		// proportions score the fraction of trials on the predicted side
		if mu >= 0.5 {
			out[i] = y
		} else {
			out[i] = 1 - y
		}
	}

	return weightObservations(p, out)
}

func (acc) Aggregate(v []float64, s Settings) Estimate {
	mean, se := meanSE(v)
	return s.estimate(mean, se, len(v))
}

func (a acc) Diff(sub, ref []float64, s Settings) Estimate {
	return a.Aggregate(paired(sub, ref), s)
}
