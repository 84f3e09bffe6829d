// Package errs defines the sentinel errors and the warning annotations shared by
// the projection predictive selection packages.
//
// Errors are always returned wrapped with context via fmt.Errorf("...: %w", err),
// so callers should match them with errors.Is.
package errs

import "errors"

var (
	// ErrConfiguration is returned for invalid size bounds, fold counts, option
	// values or unsupported family/statistic combinations.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrUnsupportedFamily is returned when a family/link pair has no projection.
	ErrUnsupportedFamily = errors.New("unsupported family/link combination")

	// ErrDimensionMismatch is returned when covariates, response and draws disagree in shape.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidResponse is returned when a response value lies outside the family support.
	ErrInvalidResponse = errors.New("response outside family support")

	// ErrEmptyDraws is returned when a draw set contains no draws.
	ErrEmptyDraws = errors.New("draw set is empty")

	// ErrInvalidWeights is returned for negative, non-finite or all-zero draw weights.
	ErrInvalidWeights = errors.New("invalid draw weights")

	// ErrUnknownStatistic is returned when a statistic name is not registered.
	ErrUnknownStatistic = errors.New("unknown statistic")

	// ErrNoPredictor is returned when new data must be predicted but the draws
	// carry no coefficients and no custom predictor was supplied.
	ErrNoPredictor = errors.New("no predictor available for new data")

	// ErrSingularDesign is returned when a projection's normal equations stay
	// singular even after diagonal jitter.
	ErrSingularDesign = errors.New("singular projection design")

	// ErrCacheDecode is returned when a compressed cache entry cannot be decoded.
	ErrCacheDecode = errors.New("malformed cache entry")
)
