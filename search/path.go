package search

import (
	"fmt"

	"github.com/arloliu/projpred/errs"
)

// DefaultMaxSize bounds the automatic search depth.
const DefaultMaxSize = 19

// Path is a nested sequence of variable subsets, stored as the order in which
// variables were selected. Subset k is the first k entries of Order.
type Path struct {
	// Order holds the selected variable indices in selection order.
	Order []int
	// Scores holds, per step, the strategy-specific score of the selection:
	// the mean training divergence for forward search, the penalty at entry
	// for the L1 path.
	Scores []float64
	// Method names the strategy that produced the path.
	Method string
}

// Size returns the largest subset size on the path.
func (p *Path) Size() int { return len(p.Order) }

// Prefix returns a copy of the first k selected variables. The empty prefix
// is an empty, non-nil slice.
func (p *Path) Prefix(k int) []int {
	out := make([]int, k)
	copy(out, p.Order[:k])

	return out
}

// Subsets returns the len(Order)+1 nested subsets, starting with the empty one.
func (p *Path) Subsets() [][]int {
	out := make([][]int, len(p.Order)+1)
	for k := range out {
		out[k] = p.Prefix(k)
	}

	return out
}

// Validate checks that the path covers distinct variables in [0, candidates).
// Nestedness holds by construction.
func (p *Path) Validate(candidates int) error {
	if len(p.Order) > candidates {
		return fmt.Errorf("%w: path of length %d for %d candidates", errs.ErrConfiguration, len(p.Order), candidates)
	}
	seen := make(map[int]struct{}, len(p.Order))
	for _, v := range p.Order {
		if v < 0 || v >= candidates {
			return fmt.Errorf("%w: variable %d out of range [0,%d)", errs.ErrConfiguration, v, candidates)
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("%w: variable %d selected twice", errs.ErrConfiguration, v)
		}
		seen[v] = struct{}{}
	}

	return nil
}

// Position returns the position of variable v in the order, or -1.
func (p *Path) Position(v int) int {
	for i, o := range p.Order {
		if o == v {
			return i
		}
	}

	return -1
}

// ResolveMaxSize validates the requested maximum subset size. A negative value
// selects min(candidates, DefaultMaxSize).
func ResolveMaxSize(nvMax, candidates int) (int, error) {
	if nvMax < 0 {
		return min(candidates, DefaultMaxSize), nil
	}
	if nvMax > candidates {
		return 0, fmt.Errorf("%w: nv_max %d exceeds %d candidate variables", errs.ErrConfiguration, nvMax, candidates)
	}

	return nvMax, nil
}
