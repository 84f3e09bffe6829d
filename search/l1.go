package search

import (
	"context"
	"math"
	"slices"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/arloliu/projpred/family"
	"github.com/arloliu/projpred/internal/options"
	"github.com/arloliu/projpred/refmodel"
)

// maxOuterIRLS caps the quadratic approximations per penalty for non-Gaussian families.
const maxOuterIRLS = 25

type l1 struct {
	cfg *Config
}

// L1 returns the lasso path strategy: a single L1-penalised fit to the
// reference model's posterior mean prediction over a decreasing, log-spaced
// penalty grid. Variables are ordered by the penalty at which their
// coefficient first becomes non-zero; variables entering together are ordered
// by decreasing |coefficient|, then index. Variables that never enter are
// appended by index.
//
// Non-Gaussian families use IRLS around the penalised coordinate descent, with
// warm starts along the grid.
func L1(opts ...Option) (Strategy, error) {
	cfg, err := options.Build(DefaultConfig, opts...)
	if err != nil {
		return nil, err
	}

	return &l1{cfg: cfg}, nil
}

func (l *l1) Name() string { return MethodL1 }

// lassoProblem is the standardised penalised regression solved along the grid.
type lassoProblem struct {
	fam     family.Family
	z       [][]float64 // standardised columns
	target  []float64   // reference mean prediction μ̄
	offset  []float64
	weights []float64 // observation weights normalised to sum 1
	penalty []float64
	active  []bool // columns that may enter the lasso

	beta0 float64
	beta  []float64
}

func (l *l1) Search(ctx context.Context, ref *refmodel.Model, draws *refmodel.DrawSet, nvMax int) (*Path, error) {
	p := ref.P()
	nvMax, err := ResolveMaxSize(nvMax, p)
	if err != nil {
		return nil, err
	}
	if draws == nil {
		draws = ref.Draws()
	}

	prob := l.newProblem(ref, draws)
	path := &Path{Method: MethodL1}
	entered := make([]bool, p)

	record := func(lambda float64) {
		var fresh []int
		for j, b := range prob.beta {
			if b != 0 && !entered[j] {
				fresh = append(fresh, j)
			}
		}
		slices.SortFunc(fresh, func(a, b int) int {
			da, db := math.Abs(prob.beta[a]), math.Abs(prob.beta[b])
			switch {
			case da > db:
				return -1
			case da < db:
				return 1
			default:
				return a - b
			}
		})
		for _, j := range fresh {
			entered[j] = true
			path.Order = append(path.Order, j)
			path.Scores = append(path.Scores, lambda)
		}
	}

	lambdas := prob.grid(l.cfg.LambdaCount, l.cfg.LambdaMinRatio)
	for k, lambda := range lambdas {
		if len(path.Order) >= nvMax {
			break
		}
		if err := ctx.Err(); err != nil {
			path.Order = path.Order[:min(len(path.Order), nvMax)]
			path.Scores = path.Scores[:len(path.Order)]

			return path, err
		}
		prob.fit(lambda, l.cfg.MaxIter, l.cfg.Tolerance)
		record(lambda)

		l.cfg.Logger.Debug("lasso step",
			zap.Int("step", k),
			zap.Float64("lambda", lambda),
			zap.Int("entered", len(path.Order)),
		)
	}

	// lasso-eligible variables first, excluded or constant columns last
	for _, eligible := range []bool{true, false} {
		for j := 0; j < p && len(path.Order) < nvMax; j++ {
			if !entered[j] && prob.active[j] == eligible {
				entered[j] = true
				path.Order = append(path.Order, j)
				path.Scores = append(path.Scores, 0)
			}
		}
	}
	path.Order = path.Order[:nvMax]
	path.Scores = path.Scores[:nvMax]

	return path, nil
}

func (l *l1) newProblem(ref *refmodel.Model, draws *refmodel.DrawSet) *lassoProblem {
	n, p := ref.N(), ref.P()
	fam := ref.Family()

	w := ref.Weights()
	if total := floats.Sum(w); total > 0 {
		floats.Scale(1/total, w)
	}

	target := make([]float64, n)
	eta := draws.Eta()
	for s := 0; s < draws.Len(); s++ {
		ws := draws.Weight(s)
		for i, e := range eta.RawRowView(s) {
			target[i] += ws * fam.LinkInv(e)
		}
	}

	penalty := make([]float64, p)
	for j := range penalty {
		penalty[j] = 1
		if j < len(l.cfg.Penalty) {
			penalty[j] = l.cfg.Penalty[j]
		}
	}

	x := ref.X()
	prob := &lassoProblem{
		fam:     fam,
		z:       make([][]float64, p),
		target:  target,
		offset:  ref.Offset(),
		weights: w,
		penalty: penalty,
		active:  make([]bool, p),
		beta:    make([]float64, p),
	}
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			col[i] = x.At(i, j)
		}
		mean := floats.Dot(w, col)
		var ss float64
		for i, v := range col {
			d := v - mean
			ss += w[i] * d * d
		}
		sd := math.Sqrt(ss)
		zj := make([]float64, n)
		if sd > 0 {
			for i, v := range col {
				zj[i] = (v - mean) / sd
			}
		}
		prob.z[j] = zj
		prob.active[j] = sd > 0 && !math.IsInf(penalty[j], 1)
	}

	// start from the intercept-only fit
	mean := floats.Dot(w, target)
	offMean := floats.Dot(w, prob.offset)
	prob.beta0 = fam.LinkFun(mean) - offMean

	return prob
}

// working returns the IRLS working response and weights around the current fit.
func (pr *lassoProblem) working(resp, ww []float64) {
	for i := range resp {
		eta := pr.offset[i] + pr.beta0
		for j, b := range pr.beta {
			if b != 0 {
				eta += b * pr.z[j][i]
			}
		}
		mu := pr.fam.LinkInv(eta)
		d := pr.fam.MuEta(eta)
		v := pr.fam.Variance(mu)
		ww[i] = pr.weights[i] * d * d / v
		resp[i] = eta - pr.offset[i] + (pr.target[i]-mu)/d
	}
}

// grid returns count penalties from the smallest one keeping every penalised
// coefficient at zero down to ratio times it, log-spaced.
func (pr *lassoProblem) grid(count int, ratio float64) []float64 {
	n := len(pr.target)
	resp := make([]float64, n)
	ww := make([]float64, n)
	pr.working(resp, ww)

	var lmax float64
	for j, zj := range pr.z {
		if !pr.active[j] || pr.penalty[j] == 0 {
			continue
		}
		var g float64
		for i := range resp {
			g += ww[i] * zj[i] * (resp[i] - pr.beta0)
		}
		lmax = math.Max(lmax, math.Abs(g)/pr.penalty[j])
	}
	if lmax == 0 {
		lmax = 1
	}

	out := make([]float64, count)
	step := math.Log(ratio) / float64(count-1)
	for k := range out {
		out[k] = lmax * math.Exp(step*float64(k))
	}

	return out
}

// fit solves the penalised problem at lambda, warm-started from the current
// coefficients.
func (pr *lassoProblem) fit(lambda float64, maxIter int, tol float64) {
	n := len(pr.target)
	resp := make([]float64, n)
	ww := make([]float64, n)
	r := make([]float64, n)
	scale := make([]float64, len(pr.beta))

	outer := maxOuterIRLS
	if pr.fam.Kind() == family.KindGaussian {
		outer = 1
	}

	for o := 0; o < outer; o++ {
		pr.working(resp, ww)
		for i := range r {
			v := resp[i] - pr.beta0
			for j, b := range pr.beta {
				if b != 0 {
					v -= b * pr.z[j][i]
				}
			}
			r[i] = v
		}
		for j, zj := range pr.z {
			var s float64
			for i, v := range zj {
				s += ww[i] * v * v
			}
			scale[j] = s
		}
		wsum := floats.Sum(ww)

		var outerDelta float64
		for it := 0; it < maxIter; it++ {
			var maxDelta float64
			for j, zj := range pr.z {
				if !pr.active[j] || scale[j] == 0 {
					continue
				}
				old := pr.beta[j]
				g := old * scale[j]
				for i, v := range zj {
					g += ww[i] * v * r[i]
				}
				nb := softThreshold(g, lambda*pr.penalty[j]) / scale[j]
				if nb == old {
					continue
				}
				d := nb - old
				for i, v := range zj {
					r[i] -= d * v
				}
				pr.beta[j] = nb
				maxDelta = math.Max(maxDelta, scale[j]*d*d)
			}
			if wsum > 0 {
				d := floats.Dot(ww, r) / wsum
				pr.beta0 += d
				for i := range r {
					r[i] -= d
				}
				maxDelta = math.Max(maxDelta, wsum*d*d)
			}
			outerDelta = math.Max(outerDelta, maxDelta)
			if maxDelta < tol {
				break
			}
		}
		if outerDelta < tol {
			break
		}
	}
}

func softThreshold(g, t float64) float64 {
	switch {
	case g > t:
		return g - t
	case g < -t:
		return g + t
	default:
		return 0
	}
}
