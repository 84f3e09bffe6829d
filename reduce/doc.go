// Package reduce bounds the cost of projection by replacing the S posterior
// draws of a reference model with S' ≤ S weighted representatives.
//
// Three reducers are provided:
//
//   - Identity keeps every draw (full accuracy, highest cost)
//   - Thin keeps a uniform random subsample drawn without replacement
//   - Cluster groups draws by weighted k-means on their training linear
//     predictors and replaces every group by its weighted centroid
//
// A target at or above the number of draws always returns the input draw set
// unchanged. The number of representatives actually produced is available via
// the Len method of the returned draw set so that callers can report it.
package reduce
