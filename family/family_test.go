package family

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/projpred/errs"
)

func TestNew(t *testing.T) {
	tests := []struct {
		kind, link string
		want       Kind
		wantErr    bool
	}{
		{"gaussian", "", KindGaussian, false},
		{"Gaussian", "identity", KindGaussian, false},
		{"binomial", "logit", KindBinomial, false},
		{"bernoulli", "", KindBinomial, false},
		{"poisson", "log", KindPoisson, false},
		{"poisson", "identity", 0, true},
		{"gamma", "log", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"_"+tt.link, func(t *testing.T) {
			fam, err := New(tt.kind, tt.link)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, errs.ErrUnsupportedFamily))

				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, fam.Kind())
		})
	}
}

func TestLinkRoundTrip(t *testing.T) {
	for _, fam := range []Family{Gaussian(), Binomial(), Poisson()} {
		t.Run(String(fam), func(t *testing.T) {
			for _, eta := range []float64{-3, -0.5, 0, 0.7, 2.5} {
				mu := fam.LinkInv(eta)
				require.InDelta(t, eta, fam.LinkFun(mu), 1e-9)
			}
		})
	}
}

func TestMuEtaMatchesFiniteDifference(t *testing.T) {
	const h = 1e-6
	for _, fam := range []Family{Gaussian(), Binomial(), Poisson()} {
		for _, eta := range []float64{-1.2, 0, 0.8} {
			fd := (fam.LinkInv(eta+h) - fam.LinkInv(eta-h)) / (2 * h)
			require.InDelta(t, fd, fam.MuEta(eta), 1e-6, "%s at %g", String(fam), eta)
		}
	}
}

func TestDevianceZeroAtPerfectFit(t *testing.T) {
	require.InDelta(t, 0, Gaussian().Deviance(1.5, 1.5, 2), 1e-12)
	require.InDelta(t, 0, Binomial().Deviance(0.3, 0.3, 10), 1e-9)
	require.InDelta(t, 0, Poisson().Deviance(4, 4, 1), 1e-9)
	require.Greater(t, Poisson().Deviance(4, 2, 1), 0.0)
	require.Greater(t, Binomial().Deviance(1, 0.6, 1), 0.0)
}

func TestLogDensity(t *testing.T) {
	t.Run("gaussian standard normal", func(t *testing.T) {
		got := Gaussian().LogDensity(0, 0, 1, 1)
		require.InDelta(t, -0.5*math.Log(2*math.Pi), got, 1e-12)
	})

	t.Run("bernoulli", func(t *testing.T) {
		require.InDelta(t, math.Log(0.8), Binomial().LogDensity(1, 0.8, 0, 1), 1e-12)
		require.InDelta(t, math.Log(0.2), Binomial().LogDensity(0, 0.8, 0, 1), 1e-12)
	})

	t.Run("binomial with trials", func(t *testing.T) {
		// 2 successes out of 4 with p = 0.5: C(4,2) / 16
		require.InDelta(t, math.Log(6.0/16.0), Binomial().LogDensity(0.5, 0.5, 0, 4), 1e-9)
	})

	t.Run("poisson", func(t *testing.T) {
		// P(Y=2 | mu=3) = 9 e^-3 / 2
		require.InDelta(t, math.Log(4.5)-3, Poisson().LogDensity(2, 3, 0, 1), 1e-9)
	})

	t.Run("binomial repeating proportion", func(t *testing.T) {
		// 1 success out of 3 trials
		want := math.Log(3) + math.Log(0.4) + 2*math.Log(0.6)
		require.InDelta(t, want, Binomial().LogDensity(1.0/3.0, 0.4, 0, 3), 1e-9)
	})

	t.Run("binomial fractional trials", func(t *testing.T) {
		got := Binomial().LogDensity(0.5, 0.3, 0, 2.5)
		require.False(t, math.IsInf(got, 0))
		require.False(t, math.IsNaN(got))
	})

	t.Run("gaussian observation weight", func(t *testing.T) {
		one := Gaussian().LogDensity(1.5, 0.5, 2, 1)
		require.InDelta(t, 3*one, Gaussian().LogDensity(1.5, 0.5, 2, 3), 1e-12)
		require.InDelta(t, -0.5*math.Log(2*math.Pi)-math.Log(2)-0.125, one, 1e-12)
	})
}

func TestValidateResponse(t *testing.T) {
	require.NoError(t, Binomial().ValidateResponse(0.25, 4))
	require.ErrorIs(t, Binomial().ValidateResponse(1.5, 1), errs.ErrInvalidResponse)
	require.ErrorIs(t, Poisson().ValidateResponse(-1, 1), errs.ErrInvalidResponse)
	require.ErrorIs(t, Poisson().ValidateResponse(1.5, 1), errs.ErrInvalidResponse)
	require.ErrorIs(t, Gaussian().ValidateResponse(math.NaN(), 1), errs.ErrInvalidResponse)
	require.NoError(t, Gaussian().ValidateResponse(-3.2, 1))
}

func TestKindAndLinkString(t *testing.T) {
	require.Equal(t, "binomial(logit)", String(Binomial()))
	require.Equal(t, "unknown", Kind(42).String())
	require.Equal(t, "unknown", Link(42).String())
}
