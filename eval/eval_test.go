package eval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/family"
)

func TestPredict_MixesDrawDensities(t *testing.T) {
	fam := family.Gaussian()
	y := []float64{0.5, -1, 2}
	eta := mat.NewDense(2, 3, []float64{
		0.4, -0.8, 1.5,
		0.7, -1.2, 2.5,
	})
	disp := []float64{1, 0.5}
	weights := []float64{0.25, 0.75}

	pred, err := Predict(fam, y, nil, eta, disp, weights)
	require.NoError(t, err)
	require.Equal(t, 3, pred.Len())

	for i := range y {
		want := math.Log(weights[0]*math.Exp(fam.LogDensity(y[i], eta.At(0, i), disp[0], 1)) +
			weights[1]*math.Exp(fam.LogDensity(y[i], eta.At(1, i), disp[1], 1)))
		require.InDelta(t, want, pred.LPD()[i], 1e-12)
		require.InDelta(t, weights[0]*eta.At(0, i)+weights[1]*eta.At(1, i), pred.Mean()[i], 1e-12)
	}
}

func TestPredictWeighted_PerObservationWeights(t *testing.T) {
	fam := family.Poisson()
	y := []float64{1, 4}
	eta := mat.NewDense(2, 2, []float64{
		0, math.Log(2),
		math.Log(3), math.Log(5),
	})
	// observation 0 only sees draw 0, observation 1 only draw 1
	lw := mat.NewDense(2, 2, []float64{
		0, math.Inf(-1),
		math.Inf(-1), 0,
	})
	pred, err := PredictWeighted(fam, y, nil, eta, nil, lw)
	require.NoError(t, err)
	require.InDelta(t, fam.LogDensity(1, 1, 1, 1), pred.LPD()[0], 1e-12)
	require.InDelta(t, fam.LogDensity(4, 5, 1, 1), pred.LPD()[1], 1e-12)
	require.InDelta(t, 1, pred.Mean()[0], 1e-12)
	require.InDelta(t, 5, pred.Mean()[1], 1e-12)
}

func TestPredict_DimensionErrors(t *testing.T) {
	fam := family.Gaussian()
	eta := mat.NewDense(2, 3, nil)

	_, err := Predict(fam, []float64{1, 2}, nil, eta, []float64{1, 1}, []float64{0.5, 0.5})
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)
	_, err = Predict(fam, []float64{1, 2, 3}, nil, eta, []float64{1, 1}, []float64{1})
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)
	_, err = Predict(fam, []float64{1, 2, 3}, []float64{1}, eta, []float64{1, 1}, []float64{0.5, 0.5})
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)
	_, err = Predict(fam, []float64{1, 2, 3}, nil, eta, []float64{1}, []float64{0.5, 0.5})
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestConcatAndSelect(t *testing.T) {
	fam := family.Gaussian()
	a, err := Predict(fam, []float64{1, 2}, nil, mat.NewDense(1, 2, []float64{1, 2}), []float64{1}, []float64{1})
	require.NoError(t, err)
	b, err := Predict(fam, []float64{3}, nil, mat.NewDense(1, 1, []float64{2}), []float64{1}, []float64{1})
	require.NoError(t, err)

	all := Concat(a, b)
	require.Equal(t, 3, all.Len())
	require.Equal(t, []float64{1, 2, 3}, all.Y())
	require.Equal(t, []float64{1, 2, 2}, all.Mean())

	sel := all.Select([]int{2, 0})
	require.Equal(t, []float64{3, 1}, sel.Y())
	require.Equal(t, all.LPD()[2], sel.LPD()[0])

	require.Zero(t, Concat().Len())
}

func TestStatistics_Aggregate(t *testing.T) {
	s := DefaultSettings()
	v := []float64{1, 2, 3, 4}
	sd := math.Sqrt(5.0 / 3.0)

	elpdStat, err := Lookup("ELPD")
	require.NoError(t, err)
	est := elpdStat.Aggregate(v, s)
	require.InDelta(t, 10, est.Value, 1e-12)
	require.InDelta(t, 2*sd, est.SE, 1e-12)
	require.Equal(t, 4, est.N)
	require.True(t, est.SmallSample)
	require.InDelta(t, 10-0.9944578832097535*est.SE, est.Lower, 1e-9)
	require.InDelta(t, 10+0.9944578832097535*est.SE, est.Upper, 1e-9)

	mlpdStat, err := Lookup("mlpd")
	require.NoError(t, err)
	est = mlpdStat.Aggregate(v, s)
	require.InDelta(t, 2.5, est.Value, 1e-12)
	require.InDelta(t, sd/2, est.SE, 1e-12)

	rmseStat, err := Lookup("rmse")
	require.NoError(t, err)
	est = rmseStat.Aggregate([]float64{1, 1, 4, 4}, s)
	require.InDelta(t, math.Sqrt(2.5), est.Value, 1e-12)
	require.InDelta(t, (math.Sqrt(3)/2)/(2*math.Sqrt(2.5)), est.SE, 1e-12)

	est = elpdStat.Aggregate([]float64{7}, s)
	require.Equal(t, 7.0, est.Value)
	require.Zero(t, est.SE)
}

func TestStatistics_Accuracy(t *testing.T) {
	accStat, err := Lookup("acc")
	require.NoError(t, err)
	require.ErrorIs(t, accStat.Supports(family.Gaussian()), errs.ErrConfiguration)
	require.NoError(t, accStat.Supports(family.Binomial()))

	binom := family.Binomial()
	mu := []float64{0.9, 0.2, 0.4, 0.6}
	eta := mat.NewDense(1, 4, nil)
	for i, m := range mu {
		eta.Set(0, i, binom.LinkFun(m))
	}
	pred, err := Predict(binom, []float64{1, 0, 1, 0}, nil, eta, nil, []float64{1})
	require.NoError(t, err)
	require.Equal(t, []float64{1, 1, 0, 0}, accStat.Pointwise(pred))
	require.InDelta(t, 0.5, accStat.Aggregate(accStat.Pointwise(pred), DefaultSettings()).Value, 1e-12)

	pois := family.Poisson()
	eta = mat.NewDense(1, 2, []float64{math.Log(2.2), math.Log(3.6)})
	pred, err = Predict(pois, []float64{2, 3}, nil, eta, nil, []float64{1})
	require.NoError(t, err)
	require.Equal(t, []float64{1, 0}, accStat.Pointwise(pred))
}

func TestStatistics_ObservationWeights(t *testing.T) {
	accStat, err := Lookup("acc")
	require.NoError(t, err)
	mseStat, err := Lookup("mse")
	require.NoError(t, err)

	// 0 of 1 trial and 9 of 9 trials on the predicted side
	binom := family.Binomial()
	eta := mat.NewDense(1, 2, []float64{binom.LinkFun(0.8), binom.LinkFun(0.8)})
	pred, err := Predict(binom, []float64{0, 1}, []float64{1, 9}, eta, nil, []float64{1})
	require.NoError(t, err)
	got := accStat.Aggregate(accStat.Pointwise(pred), DefaultSettings())
	require.InDelta(t, 0.9, got.Value, 1e-12)

	sq := mseStat.Aggregate(mseStat.Pointwise(pred), DefaultSettings())
	require.InDelta(t, (1*0.64+9*0.04)/10, sq.Value, 1e-9)

	// equal weights leave the contributions unchanged
	pred, err = Predict(binom, []float64{0, 1}, []float64{4, 4}, eta, nil, []float64{1})
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{0, 1}, accStat.Pointwise(pred), 1e-12)
}

func TestStatistics_Diff(t *testing.T) {
	s := DefaultSettings()
	for _, name := range Names() {
		st, err := Lookup(name)
		require.NoError(t, err)
		v := []float64{0.2, 0.4, 0.9, 0.1}
		d := st.Diff(v, v, s)
		require.InDelta(t, 0, d.Value, 1e-12, name)
		require.InDelta(t, 0, d.SE, 1e-12, name)
	}

	elpdStat, err := Lookup("elpd")
	require.NoError(t, err)
	d := elpdStat.Diff([]float64{1, 2, 3}, []float64{2, 2, 2}, s)
	require.InDelta(t, 0, d.Value, 1e-12)
	require.InDelta(t, math.Sqrt(3), d.SE, 1e-12)

	mseStat, err := Lookup("mse")
	require.NoError(t, err)
	require.InDelta(t, 1, Relative(mseStat, 1), 0)
	require.InDelta(t, -1, Relative(elpdStat, 1), 0)
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("r2")
	require.ErrorIs(t, err, errs.ErrUnknownStatistic)
	require.Equal(t, []string{"acc", "elpd", "mlpd", "mse", "rmse"}, Names())
}

func TestEvaluator(t *testing.T) {
	e, err := New(WithStatistics("elpd", "rmse"), WithAlpha(0.05), WithSmallSampleThreshold(2))
	require.NoError(t, err)
	require.Len(t, e.Statistics(), 2)
	require.Equal(t, "elpd", e.Statistics()[0].Name())
	require.NoError(t, e.Supports(family.Gaussian()))

	fam := family.Gaussian()
	y := []float64{0, 1, 2}
	ref, err := Predict(fam, y, nil, mat.NewDense(1, 3, []float64{0, 1, 2}), []float64{1}, []float64{1})
	require.NoError(t, err)
	sub, err := Predict(fam, y, nil, mat.NewDense(1, 3, []float64{1, 1, 1}), []float64{1}, []float64{1})
	require.NoError(t, err)

	est := e.Evaluate(ref)
	require.InDelta(t, 0, est["rmse"].Value, 1e-12)
	require.False(t, est["elpd"].SmallSample)
	require.InDelta(t, 3*fam.LogDensity(0, 0, 1, 1), est["elpd"].Value, 1e-12)

	diff, err := e.Diff(sub, ref)
	require.NoError(t, err)
	require.Less(t, diff["elpd"].Value, 0.0)
	require.InDelta(t, math.Sqrt(2.0/3.0), diff["rmse"].Value, 1e-12)

	short, err := Predict(fam, y[:2], nil, mat.NewDense(1, 2, nil), []float64{1}, []float64{1})
	require.NoError(t, err)
	_, err = e.Diff(short, ref)
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)

	acc, err := New(WithStatistics("acc"))
	require.NoError(t, err)
	require.ErrorIs(t, acc.Supports(fam), errs.ErrConfiguration)

	_, err = New(WithAlpha(1.5))
	require.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = New(WithStatistics())
	require.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = New(WithStatistics("auc"))
	require.ErrorIs(t, err, errs.ErrUnknownStatistic)
	_, err = New(WithSmallSampleThreshold(-1))
	require.ErrorIs(t, err, errs.ErrConfiguration)
}
