// Package eval turns weighted draws into predictive performance estimates.
//
// A Prediction integrates the per-draw predictive distributions of a model
// over a set of observations, either with the draw weights shared by every
// observation or with per-observation importance weights (leave-one-out).
// Statistics reduce the per-observation contributions of a prediction to an
// Estimate with a standard error and a normal interval:
//
//	elpd   sum of log predictive densities
//	mlpd   mean log predictive density
//	mse    mean squared error of the predictive mean
//	rmse   root mean squared error (delta-method standard error)
//	acc    classification accuracy (binomial and Poisson only)
//
// Submodels are compared with the reference model through paired
// per-observation differences, which is far tighter than differencing two
// independent estimates.
package eval
