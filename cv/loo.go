package cv

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/eval"
	"github.com/arloliu/projpred/internal/workpool"
	"github.com/arloliu/projpred/psis"
	"github.com/arloliu/projpred/refmodel"
	"github.com/arloliu/projpred/search"
	"github.com/arloliu/projpred/selection"
)

func (v *Validator) runLOO(ctx context.Context, ref *refmodel.Model) (*selection.Result, error) {
	weights, err := psis.FromReference(ctx, ref,
		psis.WithThreshold(v.cfg.KhatThreshold),
		psis.WithWorkers(v.cfg.Workers),
		psis.WithLogger(v.cfg.Logger),
	)
	if err != nil {
		if selection.Cancelled(err) {
			return v.looResult(&selection.FullPath{}, ref.P(), nil, nil, nil, true), err
		}
		return nil, err
	}

	fp, err := v.sel.FullDataPath(ctx, ref)
	fp.Warnings = append(fp.Warnings, weights.Warnings()...)
	if err != nil {
		if selection.Cancelled(err) {
			return v.looResult(fp, ref.P(), nil, nil, nil, true), err
		}
		return nil, err
	}

	rows := v.looRows(ref.N())
	fam := ref.Family()
	draws := ref.Draws()
	refAll, err := eval.PredictWeighted(fam, ref.Y(), ref.Weights(), ref.Eta(), draws.Dispersions(), weights.LogWeights())
	if err != nil {
		return nil, err
	}

	if v.cfg.ValidateSearch {
		return v.validateSearch(ctx, ref, weights, fp, rows, refAll)
	}

	preds := make([]*eval.Prediction, len(fp.Submodels))
	for size, sub := range fp.Submodels {
		lw, err := weights.Aggregate(sub.Draws())
		if err != nil {
			return nil, fmt.Errorf("size %d: %w", size, err)
		}
		pred, err := eval.PredictWeighted(fam, ref.Y(), ref.Weights(), sub.Eta(), sub.Dispersion(), lw)
		if err != nil {
			return nil, fmt.Errorf("size %d: %w", size, err)
		}
		preds[size] = pred.Select(rows)
	}

	return v.looResult(fp, ref.P(), preds, refAll.Select(rows), nil, false), nil
}

// looRows returns the observations to evaluate: all of them, or a random
// subsample of NLoo rows in ascending order.
func (v *Validator) looRows(n int) []int {
	if v.cfg.NLoo <= 0 || v.cfg.NLoo >= n {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}

	seed := v.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rows := rng.Perm(n)[:v.cfg.NLoo]
	slices.Sort(rows)

	return rows
}

// looRow holds the search of one left-out observation.
type looRow struct {
	path     *search.Path
	preds    []*eval.Prediction // per size, one observation each
	warnings errs.Warnings
}

// validateSearch repeats the search once per observation with the reference
// draws reweighted by that observation's leave-one-out weights.
func (v *Validator) validateSearch(
	ctx context.Context,
	ref *refmodel.Model,
	weights *psis.Result,
	fp *selection.FullPath,
	rows []int,
	refAll *eval.Prediction,
) (*selection.Result, error) {
	runID := uuid.NewString()
	outs := make([]*looRow, len(rows))
	all := make([]int, ref.N())
	for i := range all {
		all[i] = i
	}

	err := workpool.ForEach(ctx, v.cfg.Workers, len(rows), func(ctx context.Context, k int) error {
		out, err := v.searchRow(ctx, ref, weights, rows[k], all, runID)
		if err != nil {
			return err
		}
		outs[k] = out

		return nil
	})
	if err != nil && !selection.Cancelled(err) {
		return nil, err
	}

	var done []int
	var completed []*looRow
	for k, out := range outs {
		if out != nil {
			done = append(done, rows[k])
			completed = append(completed, out)
		}
	}

	var preds []*eval.Prediction
	if len(completed) > 0 {
		sizes := len(completed[0].preds)
		for _, out := range completed {
			sizes = min(sizes, len(out.preds))
		}
		preds = make([]*eval.Prediction, sizes)
		for size := range preds {
			parts := make([]*eval.Prediction, len(completed))
			for k, out := range completed {
				parts[k] = out.preds[size]
			}
			preds[size] = eval.Concat(parts...)
		}
	}

	return v.looResult(fp, ref.P(), preds, refAll.Select(done), completed, err != nil), err
}

func (v *Validator) searchRow(ctx context.Context, ref *refmodel.Model, weights *psis.Result, i int, all []int, runID string) (*looRow, error) {
	scope := fmt.Sprintf("%s/loo-%d", runID, i)
	draws, err := ref.Draws().Reweighted(weights.Column(i), fmt.Sprintf("loo:%d", i))
	if err != nil {
		return nil, fmt.Errorf("observation %d: %w", i, err)
	}
	scoped, err := ref.Restrict(all, scope)
	if err != nil {
		return nil, err
	}
	rowRef, err := scoped.WithDraws(draws)
	if err != nil {
		return nil, fmt.Errorf("observation %d: %w", i, err)
	}
	if cache := v.sel.Cache(); cache != nil {
		defer cache.Invalidate(scope)
	}

	fp, err := v.sel.FullDataPath(ctx, rowRef)
	if err != nil {
		if selection.Cancelled(err) {
			return nil, err
		}
		return nil, fmt.Errorf("observation %d: %w", i, err)
	}

	fam := ref.Family()
	y := ref.Y()[i : i+1]
	w := ref.Weights()[i : i+1]
	out := &looRow{
		path:     fp.Path,
		preds:    make([]*eval.Prediction, len(fp.Submodels)),
		warnings: tagWarnings(fp.Warnings, -1, i),
	}
	// the submodel draws already carry the leave-one-out weights of row i
	for size, sub := range fp.Submodels {
		pred, err := eval.Predict(fam, y, w, columns(sub.Eta(), []int{i}), sub.Dispersion(), sub.Weights())
		if err != nil {
			return nil, fmt.Errorf("observation %d size %d: %w", i, size, err)
		}
		out.preds[size] = pred
	}

	v.cfg.Logger.Debug("observation searched",
		zap.Int("observation", i),
		zap.Ints("path", fp.Path.Order),
	)

	return out, nil
}

func (v *Validator) looResult(fp *selection.FullPath, p int, preds []*eval.Prediction, refPred *eval.Prediction, rows []*looRow, partial bool) *selection.Result {
	params := selection.ResultParams{
		Method:     selection.EvalLOO,
		Path:       fp.Path,
		Statistics: v.sel.Evaluator().Statistics(),
		Submodels:  fp.Submodels,
		Warnings:   fp.Warnings,
		Partial:    partial,
		Suggest:    v.sel.SuggestOptions(p),
	}
	for _, r := range rows {
		params.Warnings = append(params.Warnings, r.warnings...)
	}

	if len(preds) > 0 && refPred != nil && refPred.Len() > 0 {
		// predictions are built with matching lengths, so Summarise cannot fail here
		params.Curves, params.Diffs, params.Reference, _ = v.sel.Summarise(preds, refPred)
	}
	if len(rows) > 0 && fp.Path != nil {
		paths := make([]*search.Path, len(rows))
		for k, r := range rows {
			paths[k] = r.path
		}
		params.RankStability = selection.NewRankStability(paths, p, fp.Path.Size())
	}

	return selection.NewResult(params)
}
