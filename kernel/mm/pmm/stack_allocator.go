package pmm

import (
	"sv39os/kernel"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/heap"
)

var (
	// ErrOutOfFrames is returned when the pool has no frame left to hand out.
	ErrOutOfFrames = &kernel.Error{Module: "pmm", Message: "out of physical frames"}

	errNeverAllocated = &kernel.Error{Module: "pmm", Message: "frame was never allocated"}
	errDoubleFree     = &kernel.Error{Module: "pmm", Message: "frame has already been freed"}
)

// StackFrameAllocator hands out the frames in [start, end). Frames that have
// never been used are taken from a watermark that only moves forward; freed
// frames are pushed onto a recycled stack and are reused first.
type StackFrameAllocator struct {
	start, current, end mm.PhysPageNum

	recycled heap.Vec[mm.PhysPageNum]
}

// Init resets the allocator so that it manages [start, end). Any state from
// a previous Init is discarded.
func (a *StackFrameAllocator) Init(start, end mm.PhysPageNum) {
	a.recycled.Release()
	a.start, a.current, a.end = start, start, end
}

// Alloc returns a free frame or ErrOutOfFrames. The frame contents are not
// cleared.
func (a *StackFrameAllocator) Alloc() (mm.PhysPageNum, *kernel.Error) {
	if ppn, ok := a.recycled.Pop(); ok {
		return ppn, nil
	}

	if a.current == a.end {
		return 0, ErrOutOfFrames
	}

	ppn := a.current
	a.current++
	return ppn, nil
}

// Dealloc returns ppn to the pool. Freeing a frame that was never handed out
// or that is already free is reported as an error.
func (a *StackFrameAllocator) Dealloc(ppn mm.PhysPageNum) *kernel.Error {
	if ppn < a.start || ppn >= a.current {
		return errNeverAllocated
	}

	for _, free := range a.recycled.Items() {
		if free == ppn {
			return errDoubleFree
		}
	}

	a.recycled.Push(ppn)
	return nil
}

// Stats describes the state of a frame pool.
type Stats struct {
	Total    uint64
	InUse    uint64
	Recycled uint64
}

// Stats returns the pool counters.
func (a *StackFrameAllocator) Stats() Stats {
	recycled := uint64(a.recycled.Len())
	return Stats{
		Total:    uint64(a.end - a.start),
		InUse:    uint64(a.current-a.start) - recycled,
		Recycled: recycled,
	}
}
