// Package projpred implements projection predictive variable selection for
// generalized linear models.
//
// Given a reference model (posterior draws of a model that uses every
// candidate variable), projpred finds a small submodel whose predictive
// distribution is as close as possible to the reference. It projects the
// reference draws onto candidate submodels by minimising the Kullback-Leibler
// divergence, searches an ordering of the variables, evaluates every prefix
// of that ordering and suggests the smallest size whose predictive
// performance is close to the reference.
//
// # Core Features
//
//   - Gaussian (identity), binomial (logit) and Poisson (log) families
//   - Forward search and L1 (lasso path) search
//   - Draw clustering and thinning to bound projection cost
//   - Training, K-fold and Pareto-smoothed importance sampling LOO evaluation
//   - elpd, mlpd, mse, rmse and accuracy statistics with paired differences
//   - Parallel projections, candidate scoring and folds on bounded worker pools
//   - Shared projection cache with optional Zstd, S2 or LZ4 compression
//
// # Basic Usage
//
// Building a reference model from coefficient draws (S × (1+p), intercept
// first) and running a selection:
//
//	import "github.com/arloliu/projpred"
//
//	ref, _ := projpred.NewReference(family.Gaussian(), x, y, coef, sigma)
//	res, _ := projpred.Select(ctx, ref, selection.WithNvMax(10))
//	fmt.Println(res.Summary())
//
// Cross-validating the selection with 10 folds:
//
//	res, _ := projpred.CrossValidate(ctx, ref,
//	    projpred.SelectionOptions(selection.WithSearchClusters(10)),
//	    cv.WithMethod(cv.MethodKFold), cv.WithK(10),
//	)
//	size := res.SuggestedSize()
//	sub, _ := res.Submodel(size)
//
// # Package Structure
//
// This package provides convenient top-level wrappers. For fine-grained
// control use the subpackages directly: refmodel, family, reduce, project,
// search, eval, psis, cv, selection and config.
package projpred

import (
	"context"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/config"
	"github.com/arloliu/projpred/cv"
	"github.com/arloliu/projpred/family"
	"github.com/arloliu/projpred/refmodel"
	"github.com/arloliu/projpred/selection"
)

// NewReference builds a reference model from coefficient draws.
//
// Parameters:
//   - fam: response family
//   - x: n × p candidate variables, without an intercept column
//   - y: n responses
//   - coef: S × (1+p) coefficient draws, intercept in column 0
//   - dispersion: S dispersion draws, or nil for binomial and Poisson
//   - opts: observation weights, offset, logger
//
// Returns:
//   - *refmodel.Model: the reference model
//   - error: validation error from refmodel
func NewReference(fam family.Family, x mat.Matrix, y []float64, coef mat.Matrix, dispersion []float64, opts ...refmodel.Option) (*refmodel.Model, error) {
	draws, err := refmodel.NewDrawSet(coef, dispersion)
	if err != nil {
		return nil, err
	}

	return refmodel.New(fam, x, y, draws, opts...)
}

// Select runs variable selection evaluated on the training data.
func Select(ctx context.Context, ref *refmodel.Model, opts ...selection.Option) (*selection.Result, error) {
	return selection.Run(ctx, ref, opts...)
}

// SelectionOptions groups selection options for CrossValidate.
func SelectionOptions(opts ...selection.Option) []selection.Option { return opts }

// CrossValidate runs variable selection evaluated out of sample; PSIS-LOO
// unless cv.WithMethod or cv.WithFolds ask for K-fold.
func CrossValidate(ctx context.Context, ref *refmodel.Model, selOpts []selection.Option, cvOpts ...cv.Option) (*selection.Result, error) {
	sel, err := selection.New(selOpts...)
	if err != nil {
		return nil, err
	}

	return cv.Run(ctx, ref, sel, cvOpts...)
}

// FromConfig builds a selector and a validator sharing one projection cache
// from loaded settings.
func FromConfig(cfg *config.Config, logger *zap.Logger) (*selection.Selector, *cv.Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	sel, err := selection.New(cfg.SelectionOptions(logger)...)
	if err != nil {
		return nil, nil, err
	}
	v, err := cv.New(sel, cfg.ValidationOptions(logger)...)
	if err != nil {
		return nil, nil, err
	}

	return sel, v, nil
}
