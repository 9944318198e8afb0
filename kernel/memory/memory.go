// Package memory is the entry point of the memory management subsystem. It
// brings the subsystem up at boot and serves the map/unmap requests that
// user programs issue through system calls.
package memory

import (
	"sv39os/kernel"
	"sv39os/kernel/hal/board"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/aspace"
	"sv39os/kernel/mm/heap"
	"sv39os/kernel/mm/pmm"
)

// Task is the view of a task that the memory subsystem needs.
type Task interface {
	// MemorySetExclusiveAccess opens an exclusive-access scope over the
	// task's address space. The returned function closes the scope.
	MemorySetExclusiveAccess() (*aspace.MemorySet, func())
}

var (
	// currentTaskFn returns the task running on the hart, or nil.
	currentTaskFn func() Task

	// The following functions are mocked by tests.
	panicFn      = kfmt.Panic
	heapInitFn   = heap.Init
	pmmInitFn    = pmm.Init
	aspaceInitFn = aspace.Init

	errNoCurrentTask = &kernel.Error{Module: "memory", Message: "no task is running"}
)

// SetCurrentTaskFn registers the function used to look up the running task.
func SetCurrentTaskFn(fn func() Task) {
	currentTaskFn = fn
}

// Init brings up the memory management subsystem. The heap arena must come
// first because the frame allocator keeps its free list there; the kernel
// address space needs frames for its page table and is only activated once
// it is complete.
func Init(layout *board.Layout) *kernel.Error {
	if err := layout.Validate(); err != nil {
		return err
	}

	heapInitFn()

	if err := pmmInitFn(layout); err != nil {
		return err
	}

	aspaceInitFn(layout)
	aspace.KernelSpace().With(func(ms *aspace.MemorySet) {
		ms.Activate()
	})

	aspace.RemapCheck()

	st := pmm.GetStats()
	kfmt.Printf("[memory] kernel space active, token: 0x%x, free frames: %d/%d\n", aspace.KernelToken(), st.Total-st.InUse, st.Total)
	return nil
}

func currentTask() Task {
	var task Task
	if currentTaskFn != nil {
		task = currentTaskFn()
	}

	if task == nil {
		panicFn(errNoCurrentTask)
	}
	return task
}

// Map backs [start, end) in the address space of the running task with
// fresh frames.
func Map(start, end mm.VirtAddr, perm aspace.MapPermission) *kernel.Error {
	task := currentTask()
	if task == nil {
		return errNoCurrentTask
	}

	ms, release := task.MemorySetExclusiveAccess()
	defer release()

	return ms.InsertFramedAreaResult(start, end, perm)
}

// Unmap removes the area that exactly covers [start, end) from the address
// space of the running task.
func Unmap(start, end mm.VirtAddr) *kernel.Error {
	task := currentTask()
	if task == nil {
		return errNoCurrentTask
	}

	ms, release := task.MemorySetExclusiveAccess()
	defer release()

	return ms.RemoveAreaResult(start, end)
}
