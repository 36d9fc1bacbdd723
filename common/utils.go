package common

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// AlignUp rounds v up to the next multiple of align. align must be a power of two.
//
// Parameters:
//   - v: the value to align
//   - align: the power-of-two alignment
//
// Returns:
//   - uint32: the aligned value
func AlignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// AlignUp64 rounds v up to the next multiple of align. align must be a power of two.
//
// Parameters:
//   - v: the value to align
//   - align: the power-of-two alignment
//
// Returns:
//   - uint64: the aligned value
func AlignUp64(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
