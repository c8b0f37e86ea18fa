package util

import "strings"

// CloneSlice clones slice with cloneSize.
// This function will use src length as the clone size if cloneSize is 0.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

// FitBytes returns a copy of src truncated or zero-padded on the right to exactly size bytes.
func FitBytes(src []byte, size int) []byte {
	result := make([]byte, size)
	copy(result, src)

	return result
}

// FitString truncates s or pads it on the right with spaces to exactly size bytes.
func FitString(s string, size int) string {
	if len(s) >= size {
		return s[:size]
	}

	return s + strings.Repeat(" ", size-len(s))
}
