package pool

import "sync"

// Float64 workspaces reused by the IRLS loop and the per-draw prediction code.
var float64SlicePool = sync.Pool{
	New: func() any { return &[]float64{} },
}

// GetFloat64Slice retrieves a float64 slice of length size from the pool.
//
// The contents of the returned slice are unspecified; callers that need zeroed
// memory should use GetZeroedFloat64Slice. The returned cleanup function must be
// called (typically with defer) to hand the slice back to the pool.
//
// Parameters:
//   - size: The desired length of the slice
//
// Returns:
//   - []float64: A slice with length equal to size
//   - func(): Cleanup function returning the slice to the pool
//
// Example:
//
//	work, cleanup := pool.GetFloat64Slice(n)
//	defer cleanup()
func GetFloat64Slice(size int) ([]float64, func()) {
	ptr, _ := float64SlicePool.Get().(*[]float64)
	slice := (*ptr)[:0]

	if cap(slice) < size {
		slice = make([]float64, size)
	} else {
		slice = slice[:size]
	}
	*ptr = slice

	return slice, func() { float64SlicePool.Put(ptr) }
}

// GetZeroedFloat64Slice is like GetFloat64Slice but clears the slice first.
func GetZeroedFloat64Slice(size int) ([]float64, func()) {
	slice, cleanup := GetFloat64Slice(size)
	clear(slice)

	return slice, cleanup
}
