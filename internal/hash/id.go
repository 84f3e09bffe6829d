// Package hash derives the canonical cache keys used by the projection cache.
package hash

import (
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// SubsetKey computes the canonical key of a projection request.
//
// The subset is hashed in sorted order so that the key does not depend on the
// order in which variables were selected. Scope and signature are separated by
// a zero byte so that ("ab", "c") and ("a", "bc") never collide structurally.
func SubsetKey(scope, signature string, subset []int) uint64 {
	sorted := slices.Clone(subset)
	slices.Sort(sorted)

	d := xxhash.New()
	_, _ = d.WriteString(scope)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(signature)
	_, _ = d.Write([]byte{0})

	buf := make([]byte, 0, 8)
	for _, v := range sorted {
		buf = strconv.AppendInt(buf[:0], int64(v), 10)
		buf = append(buf, ',')
		_, _ = d.Write(buf)
	}

	return d.Sum64()
}
