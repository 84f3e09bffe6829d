package selection

import "github.com/arloliu/projpred/eval"

// SuggestOptions parameterises the size suggestion rule.
type SuggestOptions struct {
	// SEMultiplier is the number of difference standard errors a size may fall
	// short of the reference model.
	SEMultiplier float64
	// Threshold is an additional tolerated loss.
	Threshold float64
	// HigherIsBetter is the orientation of the statistic.
	HigherIsBetter bool
	// Candidates is the number of candidate variables, returned when no size
	// qualifies. Zero falls back to the largest evaluated size.
	Candidates int
}

// SuggestSize returns the smallest submodel size whose performance is close
// enough to the reference model's: scanning sizes in increasing order, the
// first size k with
//
//	rel_k + SEMultiplier·SE_k ≥ −Threshold
//
// where rel_k is curve[k] − ref (ref − curve[k] for losses) and SE_k is the
// standard error of curve[k]. When no size qualifies the full candidate count
// (opts.Candidates) is returned, or the largest evaluated size when it is
// unset; an empty curve returns -1.
//
// Use SuggestFromDiffs when paired differences are available; they account for
// the correlation between submodel and reference predictions.
func SuggestSize(curve []eval.Estimate, ref eval.Estimate, opts SuggestOptions) int {
	diffs := make([]eval.Estimate, len(curve))
	for k, est := range curve {
		diffs[k] = eval.Estimate{Value: est.Value - ref.Value, SE: est.SE, N: est.N}
	}

	return SuggestFromDiffs(diffs, opts)
}

// SuggestFromDiffs applies the suggestion rule to per-size differences
// (submodel minus reference) with their own standard errors.
func SuggestFromDiffs(diffs []eval.Estimate, opts SuggestOptions) int {
	if len(diffs) == 0 {
		return -1
	}
	for k, d := range diffs {
		rel := d.Value
		if !opts.HigherIsBetter {
			rel = -rel
		}
		if rel+opts.SEMultiplier*d.SE >= -opts.Threshold {
			return k
		}
	}

	if opts.Candidates > 0 {
		return opts.Candidates
	}

	return len(diffs) - 1
}
