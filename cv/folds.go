package cv

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/arloliu/projpred/errs"
)

// Folds holds the held-out rows of every fold, each sorted ascending.
type Folds [][]int

// KFold partitions n rows into k shuffled folds whose sizes differ by at most
// one. A zero seed uses process-local randomness.
func KFold(n, k int, seed uint64) (Folds, error) {
	if k < 2 || k > n {
		return nil, fmt.Errorf("%w: %d folds for %d rows", errs.ErrConfiguration, k, n)
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x2545f4914f6cdd1d))

	folds := make(Folds, k)
	for j, row := range rng.Perm(n) {
		folds[j%k] = append(folds[j%k], row)
	}
	for _, f := range folds {
		slices.Sort(f)
	}

	return folds, nil
}

// FoldsFromAssignment builds folds from a per-row fold label. Labels may be
// any integers; folds are ordered by label.
func FoldsFromAssignment(assign []int) (Folds, error) {
	labels := slices.Clone(assign)
	slices.Sort(labels)
	labels = slices.Compact(labels)
	if len(labels) < 2 {
		return nil, fmt.Errorf("%w: fold assignment has %d distinct folds", errs.ErrConfiguration, len(labels))
	}

	folds := make(Folds, len(labels))
	for row, label := range assign {
		f, _ := slices.BinarySearch(labels, label)
		folds[f] = append(folds[f], row)
	}

	return folds, nil
}

// Validate checks that the folds partition rows [0, n): every row held out
// exactly once and no fold empty.
func (f Folds) Validate(n int) error {
	if len(f) < 2 {
		return fmt.Errorf("%w: %d folds", errs.ErrConfiguration, len(f))
	}
	seen := make([]bool, n)
	count := 0
	for i, fold := range f {
		if len(fold) == 0 {
			return fmt.Errorf("%w: fold %d is empty", errs.ErrConfiguration, i)
		}
		for _, row := range fold {
			if row < 0 || row >= n {
				return fmt.Errorf("%w: fold %d row %d out of range [0,%d)", errs.ErrConfiguration, i, row, n)
			}
			if seen[row] {
				return fmt.Errorf("%w: row %d held out twice", errs.ErrConfiguration, row)
			}
			seen[row] = true
			count++
		}
	}
	if count != n {
		return fmt.Errorf("%w: folds cover %d of %d rows", errs.ErrConfiguration, count, n)
	}

	return nil
}

// Train returns the training rows of fold i, ascending.
func (f Folds) Train(i, n int) []int {
	held := make([]bool, n)
	for _, row := range f[i] {
		held[row] = true
	}
	out := make([]int, 0, n-len(f[i]))
	for row := 0; row < n; row++ {
		if !held[row] {
			out = append(out, row)
		}
	}

	return out
}
