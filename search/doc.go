// Package search orders the candidate variables into a nested search path.
//
// Two strategies produce paths of the same shape:
//   - Forward: greedy addition of the candidate whose projection is closest to
//     the reference model; candidates of one step are projected in parallel.
//   - L1: the entry order along a lasso path fitted to the reference model's
//     posterior mean prediction; no projection happens during the search.
//
// Both accept a maximum size; a negative value means min(p, 19) and a value
// above the candidate count is a configuration error.
package search
