package refmodel

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/family"
)

func TestNew_Gaussian(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	const n, p, s = 12, 3, 5
	x := randomData(rng, n, p)
	coef := randomCoef(rng, s, p)
	y := make([]float64, n)
	for i := range y {
		y[i] = rng.NormFloat64()
	}
	draws, err := NewDrawSet(coef, constant(s, 0.7))
	require.NoError(t, err)

	ref, err := New(family.Gaussian(), x, y, draws, WithOffset(constant(n, 0.5)))
	require.NoError(t, err)
	require.Equal(t, n, ref.N())
	require.Equal(t, p, ref.P())
	require.True(t, strings.HasPrefix(ref.Scope(), FullScope+"/"))

	other, err := New(family.Gaussian(), x, y, draws)
	require.NoError(t, err)
	require.NotEqual(t, ref.Scope(), other.Scope())

	for i := 0; i < s; i++ {
		for j := 0; j < n; j++ {
			want := coef.At(i, 0) + 0.5
			for k := 0; k < p; k++ {
				want += coef.At(i, k+1) * x.At(j, k)
			}
			require.InDelta(t, want, ref.Eta().At(i, j), 1e-12)
			require.InDelta(t, want, ref.Mu().At(i, j), 1e-12)

			wantLL := family.Gaussian().LogDensity(y[j], want, 0.7, 1)
			require.InDelta(t, wantLL, ref.LogLik().At(i, j), 1e-12)
		}
	}

	t.Run("predict new data with offset", func(t *testing.T) {
		xNew := randomData(rng, 2, p)
		eta, err := ref.PredictLinear(xNew, ref.Draws(), []float64{1, 1})
		require.NoError(t, err)
		r, c := eta.Dims()
		require.Equal(t, s, r)
		require.Equal(t, 2, c)
		want := coef.At(0, 0) + 1
		for k := 0; k < p; k++ {
			want += coef.At(0, k+1) * xNew.At(0, k)
		}
		require.InDelta(t, want, eta.At(0, 0), 1e-12)
	})
}

func TestNew_Errors(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	x := randomData(rng, 6, 2)
	draws, err := NewDrawSet(randomCoef(rng, 3, 2), constant(3, 1))
	require.NoError(t, err)
	noDisp, err := NewDrawSet(randomCoef(rng, 3, 2), nil)
	require.NoError(t, err)
	wrongDim, err := NewDrawSet(randomCoef(rng, 3, 4), constant(3, 1))
	require.NoError(t, err)

	tests := []struct {
		name    string
		build   func() (*Model, error)
		wantErr error
	}{
		{"nil family", func() (*Model, error) { return New(nil, x, constant(6, 0), draws) }, errs.ErrUnsupportedFamily},
		{"response length", func() (*Model, error) { return New(family.Gaussian(), x, constant(5, 0), draws) }, errs.ErrDimensionMismatch},
		{"coefficient width", func() (*Model, error) { return New(family.Gaussian(), x, constant(6, 0), wrongDim) }, errs.ErrDimensionMismatch},
		{"weights length", func() (*Model, error) {
			return New(family.Gaussian(), x, constant(6, 0), draws, WithWeights([]float64{1}))
		}, errs.ErrDimensionMismatch},
		{"binomial support", func() (*Model, error) { return New(family.Binomial(), x, constant(6, 2), noDisp) }, errs.ErrInvalidResponse},
		{"gaussian without dispersion", func() (*Model, error) { return New(family.Gaussian(), x, constant(6, 0), noDisp) }, errs.ErrConfiguration},
		{"nil predictor option", func() (*Model, error) {
			return New(family.Gaussian(), x, constant(6, 0), draws, WithPredictor(nil))
		}, errs.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.build()
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, m)
		})
	}
}

func TestNew_CustomPredictor(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	x := randomData(rng, 4, 2)
	draws, err := NewDrawSet(randomCoef(rng, 2, 2), nil)
	require.NoError(t, err)

	calls := 0
	pred := PredictorFunc(func(x mat.Matrix, d *DrawSet) (*mat.Dense, error) {
		calls++
		r, _ := x.Dims()
		return mat.NewDense(d.Len(), r, nil), nil
	})

	ref, err := New(family.Poisson(), x, []float64{0, 1, 2, 3}, draws, WithPredictor(pred))
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.InDelta(t, 1.0, ref.Mu().At(0, 0), 1e-12)
	require.InDelta(t, -1.0, ref.LogLik().At(0, 0), 1e-12)
}

func TestNew_LinearDraws(t *testing.T) {
	eta := mat.NewDense(2, 3, []float64{0, 1, -1, 0.5, 0.5, 0.5})
	draws, err := NewLinearDrawSet(eta, nil)
	require.NoError(t, err)
	x := mat.NewDense(3, 1, []float64{1, 2, 3})

	ref, err := New(family.Binomial(), x, []float64{0, 1, 0}, draws)
	require.NoError(t, err)
	require.InDelta(t, 0.5, ref.Mu().At(0, 0), 1e-12)
	require.InDelta(t, math.Log(0.5), ref.LogLik().At(0, 0), 1e-12)

	_, err = ref.PredictLinear(x, draws, nil)
	require.ErrorIs(t, err, errs.ErrNoPredictor)
}

func TestModel_Restrict(t *testing.T) {
	rng := rand.New(rand.NewPCG(13, 14))
	x := randomData(rng, 10, 2)
	draws, err := NewDrawSet(randomCoef(rng, 4, 2), constant(4, 1))
	require.NoError(t, err)
	y := make([]float64, 10)
	for i := range y {
		y[i] = float64(i)
	}
	ref, err := New(family.Gaussian(), x, y, draws)
	require.NoError(t, err)

	sub, err := ref.Restrict([]int{1, 4, 9}, "fold-0")
	require.NoError(t, err)
	require.Equal(t, 3, sub.N())
	require.Equal(t, []float64{1, 4, 9}, sub.Y())
	require.Equal(t, []int{1, 4, 9}, sub.Rows())
	require.Equal(t, "fold-0", sub.Scope())
	require.InDelta(t, ref.Eta().At(2, 4), sub.Eta().At(2, 1), 0)
	require.InDelta(t, ref.LogLik().At(3, 9), sub.LogLik().At(3, 2), 0)

	nested, err := sub.Restrict([]int{2}, "fold-0-inner")
	require.NoError(t, err)
	require.Equal(t, []int{9}, nested.Rows())

	_, err = ref.Restrict([]int{10}, "bad")
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestModel_MeanMuAndWithDraws(t *testing.T) {
	eta := mat.NewDense(2, 2, []float64{0, 2, 2, 4})
	draws, err := NewLinearDrawSet(eta, constant(2, 1))
	require.NoError(t, err)
	x := mat.NewDense(2, 1, []float64{1, 2})
	ref, err := New(family.Gaussian(), x, []float64{1, 3}, draws)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{1, 3}, ref.MeanMu(), 1e-12)

	rw, err := ref.Draws().Reweighted([]float64{1, 0}, "first")
	require.NoError(t, err)
	ref2, err := ref.WithDraws(rw)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{0, 2}, ref2.MeanMu(), 1e-12)
}
