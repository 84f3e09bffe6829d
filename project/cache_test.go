package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/format"
	"github.com/arloliu/projpred/internal/simulate"
)

func TestCache_HitAcrossSubsetOrder(t *testing.T) {
	for _, ct := range []format.CompressionType{
		format.CompressionNone,
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	} {
		t.Run(ct.String(), func(t *testing.T) {
			prob := gaussianProblem(t)
			cache, err := NewCache(WithCacheSize(8), WithCompression(ct))
			require.NoError(t, err)
			proj, err := New(WithCache(cache))
			require.NoError(t, err)

			first, err := proj.Project(context.Background(), prob.Model, nil, []int{3, 1})
			require.NoError(t, err)
			require.Equal(t, 1, cache.Len())
			stored := cache.Stats()
			require.Positive(t, stored.Bytes)
			require.Positive(t, stored.RawBytes)
			require.InDelta(t, float64(stored.Bytes)/float64(stored.RawBytes), stored.Ratio, 1e-12)
			if ct == format.CompressionNone {
				require.Equal(t, stored.RawBytes, stored.Bytes)
			}

			second, err := proj.Project(context.Background(), prob.Model, nil, []int{1, 3})
			require.NoError(t, err)
			stats := cache.Stats()
			require.Equal(t, int64(1), stats.Hits)
			require.Equal(t, int64(1), stats.Misses)
			require.Equal(t, ct, stats.Compression)

			// same projection, columns in the requested order
			require.Equal(t, []int{1, 3}, second.Subset())
			a, b := first.Coefficients(), second.Coefficients()
			s, _ := a.Dims()
			for r := 0; r < s; r++ {
				require.InDelta(t, a.At(r, 0), b.At(r, 0), 1e-12)
				require.InDelta(t, a.At(r, 1), b.At(r, 2), 1e-12)
				require.InDelta(t, a.At(r, 2), b.At(r, 1), 1e-12)
			}
			require.True(t, mat.EqualApprox(first.Eta(), second.Eta(), 1e-10))
			require.InDeltaSlice(t, first.Dispersion(), second.Dispersion(), 1e-12)
			require.InDeltaSlice(t, first.Deviance(), second.Deviance(), 1e-12)
		})
	}
}

func TestCache_KeysSeparateScopesAndDraws(t *testing.T) {
	prob := gaussianProblem(t)
	ref := prob.Model
	cache, err := NewCache()
	require.NoError(t, err)
	proj, err := New(WithCache(cache))
	require.NoError(t, err)

	fold, err := ref.Restrict([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, "fold-0")
	require.NoError(t, err)
	reweighted, err := ref.Draws().Reweighted(offsets(ref.Draws().Len(), 2), "double")
	require.NoError(t, err)

	_, err = proj.Project(context.Background(), ref, nil, []int{0})
	require.NoError(t, err)
	_, err = proj.Project(context.Background(), fold, nil, []int{0})
	require.NoError(t, err)
	_, err = proj.Project(context.Background(), ref, reweighted, []int{0})
	require.NoError(t, err)
	require.Equal(t, 3, cache.Len())

	ridge, err := New(WithCache(cache), WithRegularization(1))
	require.NoError(t, err)
	_, err = ridge.Project(context.Background(), ref, nil, []int{0})
	require.NoError(t, err)
	require.Equal(t, 4, cache.Len())
	require.Zero(t, cache.Stats().Hits)

	require.Equal(t, 1, cache.Invalidate("fold-0"))
	require.Equal(t, 0, cache.Invalidate("fold-0"))
	require.Equal(t, 3, cache.Len())

	cache.Purge()
	require.Zero(t, cache.Len())
	require.Zero(t, cache.Stats().Bytes)
	require.Zero(t, cache.Stats().RawBytes)
	require.Zero(t, cache.Stats().Ratio)
}

func TestCache_SeparatesModels(t *testing.T) {
	a, err := simulate.Gaussian(simulate.Spec{N: 40, P: 4, Active: 2, Draws: 10, Seed: 1})
	require.NoError(t, err)
	b, err := simulate.Gaussian(simulate.Spec{N: 40, P: 4, Active: 2, Draws: 10, Seed: 99})
	require.NoError(t, err)
	cache, err := NewCache()
	require.NoError(t, err)
	proj, err := New(WithCache(cache))
	require.NoError(t, err)

	_, err = proj.Project(context.Background(), a.Model, nil, []int{0})
	require.NoError(t, err)
	got, err := proj.Project(context.Background(), b.Model, nil, []int{0})
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())
	require.Zero(t, cache.Stats().Hits)

	fresh, err := New()
	require.NoError(t, err)
	want, err := fresh.Project(context.Background(), b.Model, nil, []int{0})
	require.NoError(t, err)
	require.True(t, mat.EqualApprox(want.Coefficients(), got.Coefficients(), 1e-12))
}

func TestCache_Eviction(t *testing.T) {
	prob := gaussianProblem(t)
	cache, err := NewCache(WithCacheSize(2))
	require.NoError(t, err)
	proj, err := New(WithCache(cache))
	require.NoError(t, err)

	for v := 0; v < 4; v++ {
		_, err := proj.Project(context.Background(), prob.Model, nil, []int{v})
		require.NoError(t, err)
	}
	require.Equal(t, 2, cache.Len())
	require.Equal(t, int64(2), cache.Stats().Evictions)
	// evicted keys left the scope index
	require.Equal(t, 2, cache.Invalidate(prob.Model.Scope()))
}

func TestCache_GLMRoundTrip(t *testing.T) {
	binom, err := simulate.Binomial(simulate.Spec{N: 60, P: 3, Active: 1, Draws: 6, Seed: 3})
	require.NoError(t, err)
	cache, err := NewCache(WithCompression(format.CompressionZstd))
	require.NoError(t, err)
	proj, err := New(WithCache(cache), WithMaxIter(2), WithTolerance(1e-300))
	require.NoError(t, err)

	first, err := proj.Project(context.Background(), binom.Model, nil, []int{2})
	require.NoError(t, err)
	second, err := proj.Project(context.Background(), binom.Model, nil, []int{2})
	require.NoError(t, err)
	require.Nil(t, second.Dispersion())
	require.Equal(t, first.Iterations(), second.Iterations())
	require.Equal(t, first.Converged(), second.Converged())
	require.Len(t, second.Warnings(), len(first.Warnings()))
}

func TestNewCache_Errors(t *testing.T) {
	_, err := NewCache(WithCacheSize(0))
	require.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = NewCache(WithCompression(format.CompressionType(0x42)))
	require.ErrorIs(t, err, errs.ErrConfiguration)
}
