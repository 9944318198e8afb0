package heap

import "unsafe"

const minVecCapacity = 8

// Vec is a growable array whose storage lives in the heap arena. T must not
// contain Go pointers. The zero value is an empty Vec ready for use.
type Vec[T any] struct {
	offset   uint64
	length   int
	capacity int
}

func (v *Vec[T]) elemLayout() (uint64, uint64) {
	var zero T
	size := uint64(unsafe.Sizeof(zero))
	if size == 0 {
		size = 1
	}
	return size, uint64(unsafe.Alignof(zero))
}

// Len returns the number of elements in the Vec.
func (v *Vec[T]) Len() int {
	return v.length
}

// Cap returns the number of elements the Vec can hold before it needs to
// grow.
func (v *Vec[T]) Cap() int {
	return v.capacity
}

// Items returns a slice that aliases the Vec storage. The slice is only
// valid until the next call to Push or Release.
func (v *Vec[T]) Items() []T {
	if v.capacity == 0 {
		return nil
	}
	return unsafe.Slice((*T)(bytesAt(v.offset)), v.capacity)[:v.length]
}

// At returns the element at index i.
func (v *Vec[T]) At(i int) T {
	return v.Items()[i]
}

// Push appends x, doubling the storage when the Vec is full.
func (v *Vec[T]) Push(x T) {
	if v.length == v.capacity {
		v.grow()
	}

	v.length++
	v.Items()[v.length-1] = x
}

// Pop removes and returns the last element. The second return value is false
// if the Vec is empty.
func (v *Vec[T]) Pop() (T, bool) {
	var zero T
	if v.length == 0 {
		return zero, false
	}

	x := v.Items()[v.length-1]
	v.length--
	return x, true
}

// Truncate drops every element past the first n.
func (v *Vec[T]) Truncate(n int) {
	if n < v.length {
		v.length = n
	}
}

// Release returns the storage to the arena and leaves v empty.
func (v *Vec[T]) Release() {
	if v.capacity != 0 {
		size, align := v.elemLayout()
		Free(v.offset, size*uint64(v.capacity), align)
	}
	*v = Vec[T]{}
}

func (v *Vec[T]) grow() {
	newCap := v.capacity * 2
	if newCap < minVecCapacity {
		newCap = minVecCapacity
	}

	size, align := v.elemLayout()
	offset := Alloc(size*uint64(newCap), align)
	if v.capacity != 0 {
		copy(unsafe.Slice((*T)(bytesAt(offset)), newCap), v.Items())
		Free(v.offset, size*uint64(v.capacity), align)
	}

	v.offset, v.capacity = offset, newCap
}
