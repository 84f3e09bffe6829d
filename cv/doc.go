// Package cv estimates the out-of-sample performance of the submodels on a
// selection path.
//
// K-fold validation repeats the whole selection (reduction, search and
// projection) on every training split and pools the held-out predictions.
// Leave-one-out validation reuses the full-data path and reweights the draws
// with Pareto-smoothed importance weights; with ValidateSearch the search is
// repeated once per observation on the reweighted draws. Both also report
// how often each variable entered the repeated paths.
package cv
