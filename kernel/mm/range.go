package mm

import (
	"iter"

	"golang.org/x/exp/constraints"
)

// Range is a half-open [Start, End) range of page numbers.
type Range[T constraints.Unsigned] struct {
	Start T
	End   T
}

// VPNRange is a range of virtual pages.
type VPNRange = Range[VirtPageNum]

// PPNRange is a range of physical pages.
type PPNRange = Range[PhysPageNum]

// NewRange returns the range [start, end). A range whose end precedes its
// start is a programming error.
func NewRange[T constraints.Unsigned](start, end T) Range[T] {
	if start > end {
		panicFn(errInvertedRange)
	}
	return Range[T]{Start: start, End: end}
}

// Len returns the number of pages in the range.
func (r Range[T]) Len() uint64 {
	return uint64(r.End - r.Start)
}

// Empty returns true if the range contains no pages.
func (r Range[T]) Empty() bool {
	return r.Start == r.End
}

// Contains returns true if v lies inside the range.
func (r Range[T]) Contains(v T) bool {
	return v >= r.Start && v < r.End
}

// Overlaps returns true if r and other have at least one page in common.
func (r Range[T]) Overlaps(other Range[T]) bool {
	return r.Start < other.End && other.Start < r.End
}

// All returns an ascending sequence with every page in the range. The
// sequence may be iterated any number of times.
func (r Range[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := r.Start; v < r.End; v++ {
			if !yield(v) {
				return
			}
		}
	}
}
