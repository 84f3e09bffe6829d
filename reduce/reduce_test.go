package reduce

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/family"
	"github.com/arloliu/projpred/refmodel"
)

func gaussianReference(t *testing.T, s, n, p int, seed uint64) *refmodel.Model {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	x := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			x.Set(i, j, rng.NormFloat64())
		}
	}
	coef := mat.NewDense(s, p+1, nil)
	sigma := make([]float64, s)
	for i := 0; i < s; i++ {
		for j := 0; j <= p; j++ {
			coef.Set(i, j, float64(j)+0.3*rng.NormFloat64())
		}
		sigma[i] = 1 + 0.1*rng.Float64()
	}
	y := make([]float64, n)
	for i := range y {
		y[i] = rng.NormFloat64()
	}
	draws, err := refmodel.NewDrawSet(coef, sigma)
	require.NoError(t, err)
	ref, err := refmodel.New(family.Gaussian(), x, y, draws)
	require.NoError(t, err)

	return ref
}

func TestIdentityTargets(t *testing.T) {
	ref := gaussianReference(t, 10, 8, 2, 1)
	draws := ref.Draws()
	c, err := Cluster(10)
	require.NoError(t, err)

	for _, r := range []Reducer{Identity(), Thin(10, 3), Thin(50, 3), c} {
		t.Run(r.Name(), func(t *testing.T) {
			out, err := r.Reduce(context.Background(), ref.Family(), draws)
			require.NoError(t, err)
			require.Equal(t, draws.Len(), out.Len())
			for s := 0; s < out.Len(); s++ {
				require.InDelta(t, 0.1, out.Weight(s), 1e-15)
				require.Equal(t, draws.EtaRow(s), out.EtaRow(s))
				require.Equal(t, draws.Dispersion(s), out.Dispersion(s))
			}
		})
	}
}

func TestThin(t *testing.T) {
	ref := gaussianReference(t, 40, 6, 2, 2)
	ctx := context.Background()

	a, err := Thin(12, 99).Reduce(ctx, ref.Family(), ref.Draws())
	require.NoError(t, err)
	b, err := Thin(12, 99).Reduce(ctx, ref.Family(), ref.Draws())
	require.NoError(t, err)

	require.Equal(t, 12, a.Len())
	require.Equal(t, a.Signature(), b.Signature())
	seen := make(map[int]bool)
	for s := 0; s < a.Len(); s++ {
		require.Equal(t, a.Members(s), b.Members(s))
		require.Len(t, a.Members(s), 1)
		src := a.Members(s)[0]
		require.False(t, seen[src], "draw %d sampled twice", src)
		seen[src] = true
		require.Equal(t, ref.Draws().EtaRow(src), a.EtaRow(s))
		require.Equal(t, ref.Draws().Coef(src), a.Coef(s))
	}
	require.InDelta(t, 1.0, floats.Sum(a.Weights()), 1e-12)

	_, err = Thin(-1, 0).Reduce(ctx, ref.Family(), ref.Draws())
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestCluster(t *testing.T) {
	ref := gaussianReference(t, 60, 15, 3, 3)
	ctx := context.Background()
	r, err := Cluster(8, WithSeed(5), WithRestarts(2))
	require.NoError(t, err)

	out, err := r.Reduce(ctx, ref.Family(), ref.Draws())
	require.NoError(t, err)
	require.LessOrEqual(t, out.Len(), 8)
	require.InDelta(t, 1.0, floats.Sum(out.Weights()), 1e-12)

	t.Run("preserves weighted mean linear predictor", func(t *testing.T) {
		require.True(t, floats.EqualApprox(ref.Draws().MeanEta(), out.MeanEta(), 1e-10))
	})

	t.Run("members partition the source draws", func(t *testing.T) {
		count := make([]int, ref.Draws().Len())
		for s := 0; s < out.Len(); s++ {
			for _, m := range out.Members(s) {
				count[m]++
			}
		}
		for i, c := range count {
			require.Equal(t, 1, c, "draw %d", i)
		}
	})

	t.Run("cluster weight equals member weight", func(t *testing.T) {
		for s := 0; s < out.Len(); s++ {
			require.InDelta(t, float64(len(out.Members(s)))/60, out.Weight(s), 1e-12)
		}
	})

	t.Run("gaussian dispersion includes spread", func(t *testing.T) {
		for s := 0; s < out.Len(); s++ {
			var mean2 float64
			for _, m := range out.Members(s) {
				d := ref.Draws().Dispersion(m)
				mean2 += d * d
			}
			mean2 /= float64(len(out.Members(s)))
			require.GreaterOrEqual(t, out.Dispersion(s), math.Sqrt(mean2)-1e-12)
		}
	})

	t.Run("deterministic for a seed", func(t *testing.T) {
		again, err := r.Reduce(ctx, ref.Family(), ref.Draws())
		require.NoError(t, err)
		require.Equal(t, out.Signature(), again.Signature())
		for s := 0; s < out.Len(); s++ {
			require.Equal(t, out.Members(s), again.Members(s))
		}
	})

	t.Run("coefficients follow the centroid", func(t *testing.T) {
		eta, err := refmodel.LinearPredictor(ref.X(), out.Coefficients())
		require.NoError(t, err)
		require.True(t, mat.EqualApprox(eta, out.Eta(), 1e-9))
	})
}

func TestCluster_Errors(t *testing.T) {
	_, err := Cluster(0)
	require.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = Cluster(3, WithRestarts(0))
	require.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = Cluster(3, WithTolerance(0))
	require.ErrorIs(t, err, errs.ErrConfiguration)

	r, err := Cluster(2, WithMaxIterations(5))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ref := gaussianReference(t, 10, 5, 1, 4)
	_, err = r.Reduce(ctx, ref.Family(), ref.Draws())
	require.ErrorIs(t, err, context.Canceled)
}
