package selection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/eval"
	"github.com/arloliu/projpred/project"
	"github.com/arloliu/projpred/reduce"
	"github.com/arloliu/projpred/refmodel"
	"github.com/arloliu/projpred/search"
)

// Cancelled reports whether err comes from a cancelled or expired context.
func Cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Run performs variable selection on the training data with a Selector
// built from opts.
func Run(ctx context.Context, ref *refmodel.Model, opts ...Option) (*Result, error) {
	sel, err := New(opts...)
	if err != nil {
		return nil, err
	}

	return sel.Run(ctx, ref)
}

// Run searches the variables of ref, projects every path prefix and evaluates
// the submodels on the training data.
//
// Training-data estimates are optimistic for the search path; use package cv
// for out-of-sample curves. On cancellation the completed part is returned as
// a partial result together with the context error.
func (s *Selector) Run(ctx context.Context, ref *refmodel.Model) (*Result, error) {
	if err := s.evaluator.Supports(ref.Family()); err != nil {
		return nil, err
	}
	if _, err := search.ResolveMaxSize(s.cfg.NvMax, ref.P()); err != nil {
		return nil, err
	}

	fp, err := s.FullDataPath(ctx, ref)
	if err != nil && !Cancelled(err) {
		return nil, err
	}
	partial := err != nil
	params := ResultParams{
		Method:     EvalTraining,
		Path:       fp.Path,
		Statistics: s.evaluator.Statistics(),
		Submodels:  fp.Submodels,
		Warnings:   fp.Warnings,
		Partial:    partial,
		Suggest:    s.SuggestOptions(ref.P()),
	}

	refPred, perr := ReferencePrediction(ref)
	if perr != nil {
		return nil, perr
	}
	preds := make([]*eval.Prediction, 0, len(fp.Submodels))
	for _, sub := range fp.Submodels {
		pred, perr := TrainingPrediction(ref, sub)
		if perr != nil {
			return nil, perr
		}
		preds = append(preds, pred)
	}
	params.Curves, params.Diffs, params.Reference, perr = s.Summarise(preds, refPred)
	if perr != nil {
		return nil, perr
	}

	res := NewResult(params)
	s.cfg.Logger.Debug("selection finished",
		zap.String("evaluation", EvalTraining),
		zap.Int("sizes", len(fp.Submodels)),
		zap.Int("suggested", res.SuggestedSize()),
		zap.Bool("partial", partial),
	)

	return res, err
}

// FullPath is the search path of a reference model with the projected
// submodel of every prefix.
type FullPath struct {
	Path      *search.Path
	Submodels []*project.Submodel
	Warnings  errs.Warnings
	// SearchDraws and ProjectionDraws are the reduced draws used for the two stages.
	SearchDraws     *refmodel.DrawSet
	ProjectionDraws *refmodel.DrawSet
}

// FullDataPath reduces the draws, searches the path and projects every prefix
// of it on ref's rows. On cancellation the completed part is returned together
// with the context error.
func (s *Selector) FullDataPath(ctx context.Context, ref *refmodel.Model) (*FullPath, error) {
	fp := &FullPath{}

	searchDraws, w, err := s.reduceDraws(ctx, s.searchRed, ref, "search")
	if err != nil {
		return fp, err
	}
	fp.SearchDraws = searchDraws
	fp.Warnings = append(fp.Warnings, w...)

	path, err := s.strategy.Search(ctx, ref, searchDraws, s.cfg.NvMax)
	fp.Path = path
	if err != nil {
		return fp, err
	}

	projDraws, w, err := s.reduceDraws(ctx, s.projectRed, ref, "projection")
	if err != nil {
		return fp, err
	}
	fp.ProjectionDraws = projDraws
	fp.Warnings = append(fp.Warnings, w...)

	fp.Submodels, w, err = s.ProjectPath(ctx, ref, projDraws, path)
	fp.Warnings = append(fp.Warnings, w...)

	return fp, err
}

// SearchPath reduces ref's draws for the search and returns the search path.
func (s *Selector) SearchPath(ctx context.Context, ref *refmodel.Model) (*search.Path, errs.Warnings, error) {
	draws, w, err := s.reduceDraws(ctx, s.searchRed, ref, "search")
	if err != nil {
		return nil, w, err
	}
	path, err := s.strategy.Search(ctx, ref, draws, s.cfg.NvMax)

	return path, w, err
}

// ProjectionDraws reduces ref's draws for the final projections.
func (s *Selector) ProjectionDraws(ctx context.Context, ref *refmodel.Model) (*refmodel.DrawSet, errs.Warnings, error) {
	return s.reduceDraws(ctx, s.projectRed, ref, "projection")
}

// ProjectPath projects every prefix of path, intercept-only first. On
// cancellation the completed prefixes are returned with the context error.
func (s *Selector) ProjectPath(ctx context.Context, ref *refmodel.Model, draws *refmodel.DrawSet, path *search.Path) ([]*project.Submodel, errs.Warnings, error) {
	subs := make([]*project.Submodel, 0, path.Size()+1)
	var warnings errs.Warnings
	for size := 0; size <= path.Size(); size++ {
		sub, err := s.proj.Project(ctx, ref, draws, path.Prefix(size))
		if err != nil {
			if Cancelled(err) {
				return subs, warnings, err
			}
			return nil, warnings, fmt.Errorf("project size %d: %w", size, err)
		}
		for _, w := range sub.Warnings() {
			w.Size = size
			warnings = append(warnings, w)
		}
		subs = append(subs, sub)
	}

	return subs, warnings, nil
}

func (s *Selector) reduceDraws(ctx context.Context, r reduce.Reducer, ref *refmodel.Model, stage string) (*refmodel.DrawSet, errs.Warnings, error) {
	draws := ref.Draws()
	out, err := r.Reduce(ctx, ref.Family(), draws)
	if err != nil {
		return nil, nil, fmt.Errorf("reduce %s draws: %w", stage, err)
	}
	if out.Len() == draws.Len() {
		return out, nil, nil
	}

	s.cfg.Logger.Debug("draws reduced",
		zap.String("stage", stage),
		zap.String("method", r.Name()),
		zap.Int("draws", draws.Len()),
		zap.Int("reduced", out.Len()),
	)

	return out, errs.Warnings{{
		Kind:        errs.ReductionWarning,
		Size:        -1,
		Draw:        -1,
		Observation: -1,
		Fold:        -1,
		Value:       float64(out.Len()),
		Detail:      fmt.Sprintf("%s draws reduced from %d by %s", stage, draws.Len(), r.Name()),
	}}, nil
}

// Summarise evaluates per-size predictions against the reference prediction.
func (s *Selector) Summarise(preds []*eval.Prediction, refPred *eval.Prediction) (
	curves, diffs map[string][]eval.Estimate, reference map[string]eval.Estimate, err error,
) {
	curves = make(map[string][]eval.Estimate)
	diffs = make(map[string][]eval.Estimate)
	reference = s.evaluator.Evaluate(refPred)
	for _, st := range s.evaluator.Statistics() {
		curves[st.Name()] = make([]eval.Estimate, 0, len(preds))
		diffs[st.Name()] = make([]eval.Estimate, 0, len(preds))
	}
	for size, pred := range preds {
		d, derr := s.evaluator.Diff(pred, refPred)
		if derr != nil {
			return nil, nil, nil, fmt.Errorf("size %d: %w", size, derr)
		}
		for name, est := range s.evaluator.Evaluate(pred) {
			curves[name] = append(curves[name], est)
			diffs[name] = append(diffs[name], d[name])
		}
	}

	return curves, diffs, reference, nil
}

// TrainingPrediction integrates a submodel's draws over the training rows of ref.
func TrainingPrediction(ref *refmodel.Model, sub *project.Submodel) (*eval.Prediction, error) {
	return eval.Predict(ref.Family(), ref.Y(), ref.Weights(), sub.Eta(), sub.Dispersion(), sub.Weights())
}

// ReferencePrediction integrates the reference draws over the training rows.
func ReferencePrediction(ref *refmodel.Model) (*eval.Prediction, error) {
	d := ref.Draws()
	return eval.Predict(ref.Family(), ref.Y(), ref.Weights(), ref.Eta(), d.Dispersions(), d.Weights())
}
