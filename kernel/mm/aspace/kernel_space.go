package aspace

import (
	"sv39os/kernel"
	"sv39os/kernel/hal/board"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/sync"
)

var (
	// kernelSpace is the address space of the kernel itself. It is built
	// once by Init and lives until the machine halts.
	kernelSpace *sync.ExclusiveCell[MemorySet]

	// layout is the board layout kernelSpace was built from.
	layout *board.Layout

	errAlreadyInitialized = &kernel.Error{Module: "aspace", Message: "kernel space already initialized"}
	errNotInitialized     = &kernel.Error{Module: "aspace", Message: "kernel space used before initialization"}
	errRemapCheckFailed   = &kernel.Error{Module: "aspace", Message: "kernel section permissions are not enforced"}
)

// Init builds the kernel address space for the given board. The space is not
// activated. Calling Init more than once is a fatal error.
func Init(l *board.Layout) {
	if kernelSpace != nil {
		panicFn(errAlreadyInitialized)
		return
	}

	layout = l
	kernelSpace = sync.NewExclusiveCell(*NewKernel(l))
}

// KernelSpace returns the guarded kernel address space.
func KernelSpace() *sync.ExclusiveCell[MemorySet] {
	if kernelSpace == nil {
		panicFn(errNotInitialized)
	}
	return kernelSpace
}

// KernelToken returns the satp value of the kernel address space.
func KernelToken() uint64 {
	var token uint64
	KernelSpace().With(func(ms *MemorySet) {
		token = ms.Token()
	})
	return token
}

// KernelStackPosition returns the bounds of the kernel stack of task id.
// Stacks are stacked downwards from the trampoline and are separated by an
// unmapped guard page.
func KernelStackPosition(id int) (bottom, top mm.VirtAddr) {
	size := mm.VirtAddr(currentLayout().KernelStackSize)
	top = Trampoline - mm.VirtAddr(id)*(size+mm.VirtAddr(mm.PageSize))
	return top - size, top
}

// InsertKernelStack maps the kernel stack of task id into the kernel space
// and returns its top.
func InsertKernelStack(id int) mm.VirtAddr {
	bottom, top := KernelStackPosition(id)
	KernelSpace().With(func(ms *MemorySet) {
		ms.InsertFramedArea(bottom, top, PermR|PermW, nil)
	})
	return top
}

// RemoveKernelStack unmaps the kernel stack of task id and releases its
// frames.
func RemoveKernelStack(id int) {
	bottom, _ := KernelStackPosition(id)
	KernelSpace().With(func(ms *MemorySet) {
		ms.RemoveAreaWithStartVPN(bottom.Floor())
	})
}

func currentLayout() *board.Layout {
	if layout == nil {
		panicFn(errNotInitialized)
		return board.Default()
	}
	return layout
}

func trampolinePA() mm.PhysAddr {
	return mm.NewPhysAddr(currentLayout().Trampoline)
}

// NewKernel builds the kernel address space: the kernel image and the rest of
// RAM are identity-mapped with per-section permissions, followed by the MMIO
// windows and the trampoline.
func NewKernel(l *board.Layout) *MemorySet {
	ms := NewBare()
	ms.mapTrampoline(mm.NewPhysAddr(l.Trampoline))

	sections := []struct {
		name string
		sec  board.Section
		perm MapPermission
	}{
		{".text", l.Text, PermR | PermX},
		{".rodata", l.ROData, PermR},
		{".data", l.Data, PermR | PermW},
		{".bss", l.BSS, PermR | PermW},
		{"physical memory", board.Section{Start: l.KernelEnd(), End: l.MemoryEnd}, PermR | PermW},
	}

	for _, s := range sections {
		kfmt.Printf("[kernel] mapping %s [0x%x - 0x%x)\n", s.name, s.sec.Start, s.sec.End)
		ms.push(NewMapArea(mm.NewVirtAddr(s.sec.Start), mm.NewVirtAddr(s.sec.End), Identical, s.perm), 0, nil)
	}

	for _, r := range l.MMIO {
		kfmt.Printf("[kernel] mapping MMIO [0x%x - 0x%x)\n", r.Base, r.Base+r.Size)
		ms.push(NewMapArea(mm.NewVirtAddr(r.Base), mm.NewVirtAddr(r.Base+r.Size), Identical, PermR|PermW), 0, nil)
	}

	return ms
}

// RemapCheck verifies that the active kernel address space enforces the
// permissions of the kernel image sections.
func RemapCheck() {
	KernelSpace().With(func(ms *MemorySet) {
		mid := func(s board.Section) mm.VirtPageNum {
			return mm.NewVirtAddr((s.Start + s.End) / 2).Floor()
		}

		text, textOK := ms.Translate(mid(layout.Text))
		rodata, rodataOK := ms.Translate(mid(layout.ROData))
		data, dataOK := ms.Translate(mid(layout.Data))

		if !textOK || !rodataOK || !dataOK || text.Writable() || rodata.Writable() || data.Executable() {
			panicFn(errRemapCheckFailed)
			return
		}
	})

	kfmt.Printf("[kernel] remap check passed\n")
}
