package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Workers  int
	Name     string
	LastCall string
}

func withWorkers(n int) Option[*testConfig] {
	return New(func(c *testConfig) error {
		if n <= 0 {
			return errors.New("workers must be positive")
		}
		c.Workers = n
		c.LastCall = "workers"

		return nil
	})
}

func withName(name string) Option[*testConfig] {
	return NoError(func(c *testConfig) {
		c.Name = name
		c.LastCall = "name"
	})
}

func TestApply(t *testing.T) {
	t.Run("applies options in order", func(t *testing.T) {
		cfg := &testConfig{}
		require.NoError(t, Apply(cfg, withWorkers(4), withName("forward")))
		require.Equal(t, 4, cfg.Workers)
		require.Equal(t, "forward", cfg.Name)
		require.Equal(t, "name", cfg.LastCall)
	})

	t.Run("stops at first error", func(t *testing.T) {
		cfg := &testConfig{}
		err := Apply(cfg, withWorkers(2), withWorkers(-1), withName("skipped"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "workers must be positive")
		require.Equal(t, 2, cfg.Workers)
		require.Empty(t, cfg.Name)
	})

	t.Run("skips nil options", func(t *testing.T) {
		cfg := &testConfig{}
		require.NoError(t, Apply(cfg, nil, withName("x")))
		require.Equal(t, "x", cfg.Name)
	})
}

func TestBuild(t *testing.T) {
	defaults := func() *testConfig { return &testConfig{Workers: 1, Name: "default"} }

	t.Run("keeps defaults without options", func(t *testing.T) {
		cfg, err := Build(defaults)
		require.NoError(t, err)
		require.Equal(t, 1, cfg.Workers)
		require.Equal(t, "default", cfg.Name)
	})

	t.Run("returns zero value on error", func(t *testing.T) {
		cfg, err := Build(defaults, withWorkers(0))
		require.Error(t, err)
		require.Nil(t, cfg)
	})

	t.Run("works with non-pointer generic targets", func(t *testing.T) {
		n := 0
		opt := NoError(func(v *int) { *v = 42 })
		require.NoError(t, opt.apply(&n))
		require.Equal(t, 42, n)
	})
}
