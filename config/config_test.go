package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/projpred/cv"
	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/format"
	"github.com/arloliu/projpred/search"
	"github.com/arloliu/projpred/selection"
)

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, search.MethodForward, cfg.Search.Method)
	require.Equal(t, -1, cfg.Search.NvMax)
	require.Equal(t, 20, cfg.Search.Clusters)
	require.Equal(t, 400, cfg.Projection.Draws)
	require.Equal(t, 50, cfg.Projection.MaxIter)
	require.Equal(t, []string{"elpd"}, cfg.Evaluation.Statistics)
	require.InDelta(t, 0.32, cfg.Evaluation.Alpha, 0)
	require.Equal(t, cv.MethodLOO, cfg.Validation.Method)
	require.InDelta(t, 0.7, cfg.Validation.KhatThreshold, 0)
	require.Equal(t, 256, cfg.Cache.Size)
	require.Equal(t, format.CompressionNone, cfg.Cache.Compression)
	require.Equal(t, runtime.GOMAXPROCS(0), cfg.Workers)
}

const sample = `
search:
  method: l1
  nv_max: 6
  penalty: [1, 1, 0.5]
projection:
  draws: 100
  regularization: 0.01
evaluation:
  statistics: [mlpd, rmse]
  se_multiplier: 0
validation:
  method: kfold
  k: 10
cache:
  compression: s2
seed: 42
`

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projpred.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	t.Setenv("PROJPRED_SEARCH_NV_MAX", "4")
	t.Setenv("PROJPRED_CACHE_COMPRESSION", "lz4")
	t.Setenv("PROJPRED_EVALUATION_STATISTICS", "elpd,mse")
	t.Setenv("PROJPRED_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, search.MethodL1, cfg.Search.Method)
	require.Equal(t, 4, cfg.Search.NvMax)
	require.Equal(t, []float64{1, 1, 0.5}, cfg.Search.Penalty)
	require.Equal(t, 100, cfg.Projection.Draws)
	require.Equal(t, 20, cfg.Search.Clusters)
	require.InDelta(t, 0.01, cfg.Projection.Regularization, 0)
	require.Equal(t, []string{"elpd", "mse"}, cfg.Evaluation.Statistics)
	require.Zero(t, cfg.Evaluation.SEMultiplier)
	require.Equal(t, cv.MethodKFold, cfg.Validation.Method)
	require.Equal(t, 10, cfg.Validation.K)
	require.Equal(t, format.CompressionLZ4, cfg.Cache.Compression)
	require.Equal(t, uint64(42), cfg.Seed)
	require.Equal(t, 2, cfg.Workers)

	sel, err := selection.New(cfg.SelectionOptions(nil)...)
	require.NoError(t, err)
	require.Equal(t, search.MethodL1, sel.Strategy().Name())
	require.Equal(t, 4, sel.Config().NvMax)
	require.Equal(t, format.CompressionLZ4, sel.Config().Compression)

	v, err := cv.New(sel, cfg.ValidationOptions(nil)...)
	require.NoError(t, err)
	require.Equal(t, 10, v.Config().K)
	require.Equal(t, uint64(42), v.Config().Seed)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":        "search: [",
		"unknown method":  "search:\n  method: stepwise\n",
		"bad statistic":   "evaluation:\n  statistics: [auc]\n",
		"one fold":        "validation:\n  k: 1\n",
		"bad compression": "cache:\n  compression: gzip\n",
		"bad khat":        "validation:\n  khat_threshold: -1\n",
		"zero tolerance":  "projection:\n  tolerance: 0\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			require.Error(t, err)
		})
	}

	_, err := Parse([]byte("cache:\n  size: -3\n"))
	require.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_BadEnv(t *testing.T) {
	t.Setenv("PROJPRED_VALIDATION_K", "many")
	_, err := Parse(nil)
	require.ErrorIs(t, err, errs.ErrConfiguration)
}
