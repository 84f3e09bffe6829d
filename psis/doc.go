// Package psis computes Pareto-smoothed importance sampling weights for
// leave-one-out evaluation.
//
// For each observation the raw log ratios of the draws are centred, the
// largest ones are replaced by the expected order statistics of a generalized
// Pareto distribution fitted to them, and the result is normalised. The
// fitted shape k-hat diagnoses the reliability of the weights; observations
// above the threshold (0.7 by default) are reported as warnings rather than
// errors.
package psis
