package kmain

import (
	"sv39os/kernel"
	"sv39os/kernel/hal/board"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/memory"
	"sv39os/kernel/mm/aspace"
	"sv39os/kernel/mm/heap"
	"sv39os/kernel/mm/pmm"
)

var (
	// The following functions are mocked by tests.
	panicFn      = kfmt.Panic
	memoryInitFn = memory.Init

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// Kmain is invoked by the boot code once the hart runs in supervisor mode
// with paging disabled. It receives the layout of the board it runs on.
//
// A failure to bring up memory management halts the hart. On success Kmain
// returns with the kernel address space active; the caller then hands the
// hart over to the scheduler.
func Kmain(layout *board.Layout) {
	kfmt.Printf("Starting sv39os\n")

	if err := memoryInitFn(layout); err != nil {
		panicFn(err)
		return
	}

	arena := heap.GetStats()
	frames := pmm.GetStats()
	kfmt.Printf("[kmain] heap: %d/%d bytes, frames: %d/%d, satp: 0x%x\n",
		uint64(arena.Allocated), uint64(arena.Total), frames.InUse, frames.Total, aspace.KernelToken())
}

// Halt is called when the boot code regains control from the kernel, which
// only happens if the scheduler returns.
func Halt() {
	panicFn(errKmainReturned)
}
