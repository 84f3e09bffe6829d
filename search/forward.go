package search

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/internal/options"
	"github.com/arloliu/projpred/internal/workpool"
	"github.com/arloliu/projpred/project"
	"github.com/arloliu/projpred/refmodel"
)

type forward struct {
	proj *project.Projector
	cfg  *Config
}

// Forward returns greedy forward search: starting from the intercept-only
// model, each step projects every remaining candidate added to the current
// subset and keeps the one with the lowest draw-weighted training divergence
// from the reference model. Ties go to the lowest variable index.
func Forward(proj *project.Projector, opts ...Option) (Strategy, error) {
	if proj == nil {
		return nil, fmt.Errorf("%w: forward search needs a projector", errs.ErrConfiguration)
	}
	cfg, err := options.Build(DefaultConfig, opts...)
	if err != nil {
		return nil, err
	}

	return &forward{proj: proj, cfg: cfg}, nil
}

func (f *forward) Name() string { return MethodForward }

func (f *forward) Search(ctx context.Context, ref *refmodel.Model, draws *refmodel.DrawSet, nvMax int) (*Path, error) {
	nvMax, err := ResolveMaxSize(nvMax, ref.P())
	if err != nil {
		return nil, err
	}
	if draws == nil {
		draws = ref.Draws()
	}

	path := &Path{Method: MethodForward}
	remaining := make([]int, ref.P())
	for j := range remaining {
		remaining[j] = j
	}

	for step := 0; step < nvMax; step++ {
		if err := ctx.Err(); err != nil {
			return path, err
		}

		scores := make([]float64, len(remaining))
		selected := path.Order
		err := workpool.ForEach(ctx, f.cfg.Workers, len(remaining), func(ctx context.Context, i int) error {
			subset := make([]int, len(selected)+1)
			copy(subset, selected)
			subset[len(selected)] = remaining[i]

			sub, err := f.proj.Project(ctx, ref, draws, subset)
			if err != nil {
				return err
			}
			scores[i] = sub.MeanDeviance()

			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return path, err
			}
			return nil, fmt.Errorf("forward step %d: %w", step+1, err)
		}

		// remaining is ascending, so a strict comparison keeps the lowest index on ties
		best, bestScore := 0, math.Inf(1)
		for i, sc := range scores {
			if sc < bestScore {
				best, bestScore = i, sc
			}
		}
		chosen := remaining[best]
		path.Order = append(path.Order, chosen)
		path.Scores = append(path.Scores, bestScore)
		remaining = append(remaining[:best], remaining[best+1:]...)

		f.cfg.Logger.Debug("forward step",
			zap.Int("size", step+1),
			zap.Int("variable", chosen),
			zap.Float64("divergence", bestScore),
			zap.Int("candidates", len(scores)),
		)
	}

	return path, nil
}
