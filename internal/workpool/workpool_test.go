package workpool

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, 3, Normalize(3, 10))
	require.Equal(t, 2, Normalize(8, 2))
	require.Equal(t, min(runtime.GOMAXPROCS(0), 100), Normalize(0, 100))
	require.Equal(t, 1, Normalize(-1, 1))
}

func TestForEach(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run("fills disjoint slots", func(t *testing.T) {
			out := make([]int, 50)
			err := ForEach(context.Background(), workers, len(out), func(_ context.Context, i int) error {
				out[i] = i * i
				return nil
			})
			require.NoError(t, err)
			for i, v := range out {
				require.Equal(t, i*i, v)
			}
		})
	}

	t.Run("returns first error", func(t *testing.T) {
		boom := errors.New("boom")
		err := ForEach(context.Background(), 4, 20, func(_ context.Context, i int) error {
			if i == 7 {
				return boom
			}
			return nil
		})
		require.ErrorIs(t, err, boom)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var calls atomic.Int32
		err := ForEach(ctx, 2, 100, func(context.Context, int) error {
			calls.Add(1)
			return nil
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Zero(t, calls.Load())
	})

	t.Run("empty range", func(t *testing.T) {
		require.NoError(t, ForEach(context.Background(), 4, 0, nil))
	})
}
