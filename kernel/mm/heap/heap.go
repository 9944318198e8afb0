// Package heap implements the kernel heap arena.
//
// The arena is a statically sized region that is carved up by a buddy
// allocator once Init has been called. Only pointer-free data may live in
// the arena; containers that hold Go pointers must stay on the Go heap so
// the collector can scan them.
package heap

import (
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/sync"
	"unsafe"
)

// KernelHeapSize is the size of the heap arena in bytes.
const KernelHeapSize = 0x30_0000

var (
	// arena backs every heap allocation.
	arena [KernelHeapSize / 8]uint64

	allocator = sync.NewExclusiveCell(buddyAllocator{})
	ready     bool

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	errAlreadyInitialized = &kernel.Error{Module: "heap", Message: "heap arena already initialized"}
	errNotInitialized     = &kernel.Error{Module: "heap", Message: "heap arena used before initialization"}
	errOutOfMemory        = &kernel.Error{Module: "heap", Message: "heap arena exhausted"}
	errBadFree            = &kernel.Error{Module: "heap", Message: "free of a block that does not belong to the arena"}
	errBadAlign           = &kernel.Error{Module: "heap", Message: "alignment must be a power of two no larger than 8"}
)

// Stats describes the current usage of the heap arena.
type Stats struct {
	Total     mm.Size
	Allocated mm.Size
	User      mm.Size
}

// Init hands the arena to the allocator. Calling Init more than once is a
// fatal error.
func Init() {
	if ready {
		panicFn(errAlreadyInitialized)
		return
	}

	allocator.With(func(b *buddyAllocator) {
		b.init(arena[:])
	})
	ready = true

	kfmt.Printf("[heap] arena of %dKb at 0x%x\n", uint64(KernelHeapSize/mm.Kb), uint64(uintptr(unsafe.Pointer(&arena[0]))))
}

// Initialized returns true once Init has run.
func Initialized() bool {
	return ready
}

// Alloc reserves size bytes aligned to align and returns the offset of the
// block inside the arena. Alignment is relative to the arena, whose base is
// only guaranteed to be 8-byte aligned; larger alignments are rejected.
// Running out of arena space is a fatal error.
func Alloc(size, align uint64) uint64 {
	if !ready {
		panicFn(errNotInitialized)
		return 0
	}

	if align == 0 || align&(align-1) != 0 || align > 8 {
		panicFn(errBadAlign)
		return 0
	}

	var (
		offset uint64
		ok     bool
	)
	allocator.With(func(b *buddyAllocator) {
		offset, ok = b.alloc(size, align)
	})

	if !ok {
		kfmt.Printf("[heap] unable to satisfy request for %d bytes\n", size)
		panicFn(errOutOfMemory)
		return 0
	}

	return offset
}

// Free returns a block obtained by Alloc with the same size and align.
func Free(offset, size, align uint64) {
	var ok bool
	allocator.With(func(b *buddyAllocator) {
		ok = b.free(offset, size, align)
	})

	if !ok {
		panicFn(errBadFree)
	}
}

// GetStats returns a snapshot of the arena usage counters.
func GetStats() Stats {
	var st Stats
	allocator.With(func(b *buddyAllocator) {
		st = Stats{Total: mm.Size(b.total), Allocated: mm.Size(b.allocated), User: mm.Size(b.user)}
	})
	return st
}

// Contains returns true if ptr points inside the arena.
func Contains(ptr unsafe.Pointer) bool {
	start := uintptr(unsafe.Pointer(&arena[0]))
	return uintptr(ptr) >= start && uintptr(ptr) < start+KernelHeapSize
}

// bytesAt returns a pointer to the arena byte at offset.
func bytesAt(offset uint64) unsafe.Pointer {
	return unsafe.Pointer(&arena[offset/8])
}
