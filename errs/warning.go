package errs

import "fmt"

// WarningKind identifies the category of a non-fatal annotation attached to a result.
type WarningKind uint8

const (
	// ConvergenceWarning marks a draw whose iterative projection hit the iteration cap.
	ConvergenceWarning WarningKind = iota + 1
	// ImportanceWeightReliabilityWarning marks an observation whose Pareto k-hat
	// exceeded the reliability threshold.
	ImportanceWeightReliabilityWarning
	// ReductionWarning reports that the draws were reduced (S' < S).
	ReductionWarning
)

func (k WarningKind) String() string {
	switch k {
	case ConvergenceWarning:
		return "ConvergenceWarning"
	case ImportanceWeightReliabilityWarning:
		return "ImportanceWeightReliabilityWarning"
	case ReductionWarning:
		return "ReductionWarning"
	default:
		return "Unknown"
	}
}

// Warning is an additive annotation on an otherwise valid result.
//
// Fields that do not apply to a kind are set to -1.
type Warning struct {
	Kind        WarningKind
	Size        int     // submodel size, -1 for the reference model
	Draw        int     // draw (or cluster) index
	Observation int     // observation index
	Fold        int     // fold index
	Value       float64 // k-hat, iteration count or reduced draw count
	Detail      string
}

// String returns a human-readable representation of the warning.
func (w Warning) String() string {
	return fmt.Sprintf("%s{size=%d draw=%d obs=%d fold=%d value=%.4g %s}",
		w.Kind, w.Size, w.Draw, w.Observation, w.Fold, w.Value, w.Detail)
}

// Warnings is an ordered collection of warnings.
type Warnings []Warning

// Count returns the number of warnings of the given kind.
func (ws Warnings) Count(kind WarningKind) int {
	n := 0
	for _, w := range ws {
		if w.Kind == kind {
			n++
		}
	}

	return n
}

// Filter returns the warnings of the given kind, preserving order.
func (ws Warnings) Filter(kind WarningKind) Warnings {
	var out Warnings
	for _, w := range ws {
		if w.Kind == kind {
			out = append(out, w)
		}
	}

	return out
}

// Observations returns the distinct observation indices flagged with the given kind.
func (ws Warnings) Observations(kind WarningKind) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, w := range ws {
		if w.Kind != kind || w.Observation < 0 {
			continue
		}
		if _, ok := seen[w.Observation]; ok {
			continue
		}
		seen[w.Observation] = struct{}{}
		out = append(out, w.Observation)
	}

	return out
}
