// Package pmm manages the physical frames that sit between the end of the
// kernel image and the end of RAM.
package pmm

import (
	"sv39os/kernel"
	"sv39os/kernel/hal/board"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/heap"
	"sv39os/kernel/mm/physmem"
	"sv39os/kernel/sync"
)

var (
	frameAllocator = sync.NewExclusiveCell(StackFrameAllocator{})

	// The following functions are mocked by tests.
	panicFn       = kfmt.Panic
	physmemInitFn = physmem.Init
	heapReadyFn   = heap.Initialized

	errHeapNotReady = &kernel.Error{Module: "pmm", Message: "frame allocator requires an initialized heap"}
)

// Init brings RAM online and hands every frame between the end of the kernel
// image and the end of memory to the frame allocator.
func Init(layout *board.Layout) *kernel.Error {
	if !heapReadyFn() {
		panicFn(errHeapNotReady)
		return errHeapNotReady
	}

	if err := physmemInitFn(mm.NewPhysAddr(layout.RAMBase), mm.NewPhysAddr(layout.MemoryEnd)); err != nil {
		return err
	}

	start := mm.NewPhysAddr(layout.KernelEnd()).Ceil()
	end := mm.NewPhysAddr(layout.MemoryEnd).Floor()
	frameAllocator.With(func(a *StackFrameAllocator) {
		a.Init(start, end)
	})

	kfmt.Printf("[pmm] managing frames [0x%x - 0x%x), %d frames available\n", uint64(start), uint64(end), uint64(end-start))
	return nil
}

// AllocFrame reserves a frame and clears its contents.
func AllocFrame() (mm.PhysPageNum, *kernel.Error) {
	var (
		ppn mm.PhysPageNum
		err *kernel.Error
	)

	frameAllocator.With(func(a *StackFrameAllocator) {
		ppn, err = a.Alloc()
	})

	if err != nil {
		return 0, err
	}

	kernel.Memset(physmem.PageBytes(ppn), 0)
	return ppn, nil
}

// DeallocFrame returns a frame obtained by AllocFrame. Freeing a frame twice
// is a fatal error.
func DeallocFrame(ppn mm.PhysPageNum) {
	var err *kernel.Error
	frameAllocator.With(func(a *StackFrameAllocator) {
		err = a.Dealloc(ppn)
	})

	if err != nil {
		kfmt.Printf("[pmm] bad free of frame 0x%x\n", uint64(ppn))
		panicFn(err)
	}
}

// GetStats returns the counters of the global frame pool.
func GetStats() Stats {
	var st Stats
	frameAllocator.With(func(a *StackFrameAllocator) {
		st = a.Stats()
	})
	return st
}
