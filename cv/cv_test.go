package cv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/internal/simulate"
	"github.com/arloliu/projpred/selection"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestKFold_Partition(t *testing.T) {
	folds, err := KFold(23, 5, 11)
	require.NoError(t, err)
	require.Len(t, folds, 5)
	require.NoError(t, folds.Validate(23))
	for _, f := range folds {
		require.GreaterOrEqual(t, len(f), 4)
		require.LessOrEqual(t, len(f), 5)
		require.IsNonDecreasing(t, f)
	}

	again, err := KFold(23, 5, 11)
	require.NoError(t, err)
	require.Equal(t, folds, again)

	train := folds.Train(2, 23)
	require.Len(t, train, 23-len(folds[2]))
	for _, row := range folds[2] {
		require.NotContains(t, train, row)
	}

	_, err = KFold(3, 4, 1)
	require.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = KFold(10, 1, 1)
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestFoldsFromAssignment(t *testing.T) {
	folds, err := FoldsFromAssignment([]int{7, 3, 7, 3, 9, 3})
	require.NoError(t, err)
	require.Equal(t, Folds{{1, 3, 5}, {0, 2}, {4}}, folds)
	require.NoError(t, folds.Validate(6))

	_, err = FoldsFromAssignment([]int{1, 1, 1})
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestFolds_Validate(t *testing.T) {
	require.ErrorIs(t, Folds{{0, 1}}.Validate(2), errs.ErrConfiguration)
	require.ErrorIs(t, Folds{{0}, {}}.Validate(1), errs.ErrConfiguration)
	require.ErrorIs(t, Folds{{0, 1}, {1, 2}}.Validate(3), errs.ErrConfiguration)
	require.ErrorIs(t, Folds{{0}, {1}}.Validate(3), errs.ErrConfiguration)
	require.ErrorIs(t, Folds{{0}, {5}}.Validate(2), errs.ErrConfiguration)
}

func newSelector(t *testing.T, opts ...selection.Option) *selection.Selector {
	t.Helper()
	sel, err := selection.New(opts...)
	require.NoError(t, err)

	return sel
}

func TestRun_KFold(t *testing.T) {
	prob, err := simulate.Gaussian(simulate.Spec{N: 60, P: 5, Active: 2, Draws: 40, Seed: 41})
	require.NoError(t, err)
	sel := newSelector(t,
		selection.WithNvMax(3),
		selection.WithSearchClusters(5),
		selection.WithProjectionDraws(20),
		selection.WithStatistics("elpd", "mse"),
		selection.WithSeed(3),
	)

	res, err := Run(context.Background(), prob.Model, sel, WithMethod("kfold"), WithK(3), WithWorkers(2))
	require.NoError(t, err)
	require.False(t, res.Partial())
	require.Equal(t, selection.EvalKFold, res.Method())
	require.Equal(t, 4, res.Sizes())

	curve, err := res.Curve("elpd")
	require.NoError(t, err)
	require.Len(t, curve, 4)
	ref, err := res.Reference("elpd")
	require.NoError(t, err)
	require.Equal(t, 60, ref.N)
	// held-out fit of the intercept-only model is worse than the true model
	require.Less(t, curve[0].Value, curve[2].Value)

	rs := res.RankStability()
	require.NotNil(t, rs)
	require.Equal(t, 3, rs.Paths)
	require.Len(t, rs.Fraction, 3)

	// two reductions on the full data and two per fold, tagged with the fold
	reductions := res.Warnings().Filter(errs.ReductionWarning)
	require.Len(t, reductions, 8)
	folds := map[int]int{}
	for _, w := range reductions {
		folds[w.Fold]++
	}
	require.Equal(t, map[int]int{-1: 2, 0: 2, 1: 2, 2: 2}, folds)
}

func TestRun_ExplicitFolds(t *testing.T) {
	prob, err := simulate.Poisson(simulate.Spec{N: 30, P: 3, Active: 1, Draws: 20, Effect: 0.5, Noise: 0.05, Seed: 42})
	require.NoError(t, err)
	assign := make([]int, 30)
	for i := range assign {
		assign[i] = i % 2
	}
	folds, err := FoldsFromAssignment(assign)
	require.NoError(t, err)

	sel := newSelector(t, selection.WithNvMax(2), selection.WithSearchClusters(0), selection.WithProjectionDraws(0))
	res, err := Run(context.Background(), prob.Model, sel, WithFolds(folds))
	require.NoError(t, err)
	require.Equal(t, selection.EvalKFold, res.Method())
	require.Equal(t, 2, res.RankStability().Paths)

	_, err = Run(context.Background(), prob.Model, sel, WithFolds(Folds{{0, 1}, {2}}))
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestRun_LOO(t *testing.T) {
	prob, err := simulate.Gaussian(simulate.Spec{N: 40, P: 4, Active: 2, Draws: 200, Seed: 43})
	require.NoError(t, err)
	sel := newSelector(t, selection.WithNvMax(3), selection.WithSearchClusters(10), selection.WithProjectionDraws(100), selection.WithSeed(5))

	res, err := Run(context.Background(), prob.Model, sel)
	require.NoError(t, err)
	require.Equal(t, selection.EvalLOO, res.Method())
	require.Equal(t, 4, res.Sizes())
	require.Nil(t, res.RankStability())

	looRef, err := res.Reference("elpd")
	require.NoError(t, err)
	require.Equal(t, 40, looRef.N)

	train, err := sel.Run(context.Background(), prob.Model)
	require.NoError(t, err)
	trainRef, err := train.Reference("elpd")
	require.NoError(t, err)
	// leave-one-out densities are never above the in-sample ones on average
	require.Less(t, looRef.Value, trainRef.Value)

	sub, err := Run(context.Background(), prob.Model, sel, WithNLoo(15), WithSeed(9))
	require.NoError(t, err)
	subRef, err := sub.Reference("elpd")
	require.NoError(t, err)
	require.Equal(t, 15, subRef.N)
}

func TestRun_LOOValidateSearch(t *testing.T) {
	prob, err := simulate.Gaussian(simulate.Spec{N: 12, P: 3, Active: 1, Draws: 20, Effect: 2, Seed: 44})
	require.NoError(t, err)
	sel := newSelector(t, selection.WithNvMax(2), selection.WithSearchClusters(0), selection.WithProjectionDraws(0))

	res, err := Run(context.Background(), prob.Model, sel, WithValidateSearch(true), WithWorkers(3))
	require.NoError(t, err)
	require.Equal(t, 3, res.Sizes())

	rs := res.RankStability()
	require.NotNil(t, rs)
	require.Equal(t, 12, rs.Paths)
	total := 0.0
	for v := 0; v < 3; v++ {
		total += rs.At(1, v)
		require.GreaterOrEqual(t, rs.At(2, v), rs.At(1, v))
	}
	require.InDelta(t, 1, total, 1e-12)

	// 20 draws leave too short a tail to fit, so every observation is flagged
	khat := res.Warnings().Filter(errs.ImportanceWeightReliabilityWarning)
	require.Len(t, khat, 12)

	curve, err := res.Curve("elpd")
	require.NoError(t, err)
	require.Len(t, curve, 3)
	require.Equal(t, 12, curve[0].N)
}

func TestRun_Cancelled(t *testing.T) {
	prob, err := simulate.Gaussian(simulate.Spec{N: 30, P: 3, Active: 1, Draws: 20, Seed: 45})
	require.NoError(t, err)
	sel := newSelector(t, selection.WithSearchClusters(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, method := range []string{MethodLOO, MethodKFold} {
		res, err := Run(ctx, prob.Model, sel, WithMethod(method), WithK(3))
		require.ErrorIs(t, err, context.Canceled, method)
		require.NotNil(t, res, method)
		require.True(t, res.Partial(), method)
		require.Equal(t, -1, res.SuggestedSize(), method)
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, errs.ErrConfiguration)

	sel := newSelector(t)
	for _, opt := range []Option{WithK(1), WithMethod("bootstrap"), WithKhatThreshold(0), WithNLoo(-1)} {
		_, err = New(sel, opt)
		require.ErrorIs(t, err, errs.ErrConfiguration)
	}

	v, err := New(newSelector(t, selection.WithSeed(17)), WithMethod("K-Fold"))
	require.NoError(t, err)
	require.Equal(t, MethodKFold, v.Config().Method)
	require.Equal(t, uint64(17), v.Config().Seed)

	prob, err := simulate.Gaussian(simulate.Spec{N: 20, P: 3, Active: 1, Draws: 10, Seed: 46})
	require.NoError(t, err)
	_, err = Run(context.Background(), prob.Model, newSelector(t, selection.WithStatistics("acc")))
	require.ErrorIs(t, err, errs.ErrConfiguration)
}
