// Package workpool runs index-addressed work items on a bounded set of
// goroutines. Every item owns a disjoint output slot, so callers combine
// results after ForEach returns without any locking.
package workpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Normalize returns the effective worker count: non-positive values mean
// GOMAXPROCS, and the result never exceeds n (when n > 0).
func Normalize(workers, n int) int {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if n > 0 && workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	return workers
}

// ForEach calls fn for every index in [0, n) using at most workers goroutines.
//
// The first error cancels the context passed to the remaining items and is
// returned. A cancelled parent context stops dispatching new items and its
// error is returned. With a single worker the items run sequentially on the
// calling goroutine.
//
// Example:
//
//	out := make([]float64, n)
//	err := workpool.ForEach(ctx, 4, n, func(ctx context.Context, i int) error {
//	    out[i] = score(i)
//	    return nil
//	})
func ForEach(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return ctx.Err()
	}

	workers = Normalize(workers, n)
	if workers == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}

		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}
