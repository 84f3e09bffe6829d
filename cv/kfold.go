package cv

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/eval"
	"github.com/arloliu/projpred/internal/workpool"
	"github.com/arloliu/projpred/refmodel"
	"github.com/arloliu/projpred/search"
	"github.com/arloliu/projpred/selection"
)

// foldResult holds the held-out predictions of one fold.
type foldResult struct {
	path     *search.Path
	preds    []*eval.Prediction // per size
	ref      *eval.Prediction
	warnings errs.Warnings
}

func (v *Validator) runKFold(ctx context.Context, ref *refmodel.Model) (*selection.Result, error) {
	n := ref.N()
	folds := v.cfg.Folds
	if folds == nil {
		var err error
		if folds, err = KFold(n, v.cfg.K, v.cfg.Seed); err != nil {
			return nil, err
		}
	}
	if err := folds.Validate(n); err != nil {
		return nil, err
	}

	fp, err := v.sel.FullDataPath(ctx, ref)
	if err != nil {
		if selection.Cancelled(err) {
			return v.kfoldResult(fp, ref.P(), nil, true), err
		}
		return nil, err
	}

	// scopes are unique per run so concurrent runs sharing a cache never mix
	runID := uuid.NewString()
	outs := make([]*foldResult, len(folds))
	err = workpool.ForEach(ctx, v.cfg.Workers, len(folds), func(ctx context.Context, f int) error {
		out, err := v.fold(ctx, ref, folds, f, runID)
		if err != nil {
			return err
		}
		outs[f] = out

		return nil
	})
	if err != nil && !selection.Cancelled(err) {
		return nil, err
	}

	return v.kfoldResult(fp, ref.P(), outs, err != nil), err
}

func (v *Validator) fold(ctx context.Context, ref *refmodel.Model, folds Folds, f int, runID string) (*foldResult, error) {
	n := ref.N()
	scope := fmt.Sprintf("%s/fold-%d", runID, f)
	train, test := folds.Train(f, n), folds[f]

	foldRef, err := ref.Restrict(train, scope)
	if err != nil {
		return nil, err
	}
	if cache := v.sel.Cache(); cache != nil {
		defer cache.Invalidate(scope)
	}

	fp, err := v.sel.FullDataPath(ctx, foldRef)
	if err != nil {
		if selection.Cancelled(err) {
			return nil, err
		}
		return nil, fmt.Errorf("fold %d: %w", f, err)
	}

	fam := ref.Family()
	x, off, y, w := rowData(ref, test)
	out := &foldResult{
		path:     fp.Path,
		preds:    make([]*eval.Prediction, len(fp.Submodels)),
		warnings: tagWarnings(fp.Warnings, f, -1),
	}
	for size, sub := range fp.Submodels {
		eta, err := sub.PredictLinear(x, off)
		if err != nil {
			return nil, fmt.Errorf("fold %d size %d: %w", f, size, err)
		}
		if out.preds[size], err = eval.Predict(fam, y, w, eta, sub.Dispersion(), sub.Weights()); err != nil {
			return nil, fmt.Errorf("fold %d size %d: %w", f, size, err)
		}
	}

	// the reference model is fit once on all rows
	draws := ref.Draws()
	out.ref, err = eval.Predict(fam, y, w, columns(ref.Eta(), test), draws.Dispersions(), draws.Weights())
	if err != nil {
		return nil, err
	}

	v.cfg.Logger.Debug("fold finished",
		zap.Int("fold", f),
		zap.Int("train", len(train)),
		zap.Int("test", len(test)),
		zap.Ints("path", fp.Path.Order),
	)

	return out, nil
}

// kfoldResult pools the held-out predictions of the completed folds.
func (v *Validator) kfoldResult(fp *selection.FullPath, p int, outs []*foldResult, partial bool) *selection.Result {
	params := selection.ResultParams{
		Method:     selection.EvalKFold,
		Path:       fp.Path,
		Statistics: v.sel.Evaluator().Statistics(),
		Submodels:  fp.Submodels,
		Warnings:   fp.Warnings,
		Partial:    partial,
		Suggest:    v.sel.SuggestOptions(p),
	}

	var done []*foldResult
	sizes := -1
	for _, out := range outs {
		if out == nil {
			continue
		}
		done = append(done, out)
		if sizes < 0 || len(out.preds) < sizes {
			sizes = len(out.preds)
		}
		params.Warnings = append(params.Warnings, out.warnings...)
	}

	if len(done) > 0 && fp.Path != nil {
		paths := make([]*search.Path, len(done))
		refs := make([]*eval.Prediction, len(done))
		for i, out := range done {
			paths[i] = out.path
			refs[i] = out.ref
		}
		refPred := eval.Concat(refs...)

		preds := make([]*eval.Prediction, sizes)
		for size := range preds {
			parts := make([]*eval.Prediction, len(done))
			for i, out := range done {
				parts[i] = out.preds[size]
			}
			preds[size] = eval.Concat(parts...)
		}
		// predictions are built with matching lengths, so Summarise cannot fail here
		params.Curves, params.Diffs, params.Reference, _ = v.sel.Summarise(preds, refPred)
		params.RankStability = selection.NewRankStability(paths, p, fp.Path.Size())
	}

	return selection.NewResult(params)
}
