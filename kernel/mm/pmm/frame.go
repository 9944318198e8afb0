package pmm

import (
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/physmem"
)

// FrameTracker owns a single zero-filled physical frame. The frame goes back
// to the pool when Release is called; only the first call has an effect.
type FrameTracker struct {
	ppn      mm.PhysPageNum
	released bool
}

// Alloc returns a tracker for a freshly cleared frame. Running out of frames
// is a fatal error.
func Alloc() *FrameTracker {
	ppn, err := AllocFrame()
	if err != nil {
		panicFn(err)
		return nil
	}

	return &FrameTracker{ppn: ppn}
}

// PPN returns the page number of the tracked frame.
func (f *FrameTracker) PPN() mm.PhysPageNum {
	return f.ppn
}

// Bytes returns the contents of the tracked frame.
func (f *FrameTracker) Bytes() []byte {
	return physmem.PageBytes(f.ppn)
}

// Release returns the frame to the pool.
func (f *FrameTracker) Release() {
	if f == nil || f.released {
		return
	}

	f.released = true
	DeallocFrame(f.ppn)
}
