// Package project computes projected submodels: for every reference draw, the
// submodel parameters closest (in Kullback-Leibler divergence) to the
// reference predictive distribution, restricted to a subset of the candidate
// variables.
//
// # Projection
//
// For the Gaussian family the projection is a weighted least squares fit of
// each draw's linear predictor onto [1, X_subset]; the normal equations are
// factorised once and solved for all draws together. The projected dispersion
// adds the weighted mean squared residual to the reference dispersion.
//
// Binomial and Poisson projections have no closed form and run iteratively
// reweighted least squares per draw, with the reference means as the
// pseudo-response. A draw that reaches the iteration cap keeps its last
// iterate and is annotated with an errs.ConvergenceWarning instead of failing
// the whole projection.
//
// An optional L2 penalty (WithRegularization) stabilises projections of
// nearly collinear subsets; the intercept is never penalised.
//
// # Caching
//
// Search and cross-validation project the same subsets repeatedly. A Cache
// keyed by model scope, draw set signature and canonical subset returns
// earlier projections without refitting:
//
//	cache, _ := project.NewCache(project.WithCompression(format.CompressionS2))
//	proj, _ := project.New(project.WithCache(cache), project.WithWorkers(8))
//
// Entries are encoded float64 matrices, optionally compressed. Invalidate
// drops every entry of one scope, which cross-validation uses when a fold ends.
package project
