package vmm

import (
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/heap"
	"sv39os/kernel/mm/physmem"
	"sv39os/kernel/mm/pmm"
	"unsafe"
)

const (
	// satpModeSV39 selects SV39 translation in the satp register.
	satpModeSV39 = uint64(8) << 60

	entriesPerTable = 1 << mm.PageTableIndexBits
)

var (
	// The following functions are mocked by tests.
	panicFn        = kfmt.Panic
	allocFrameFn   = pmm.AllocFrame
	deallocFrameFn = pmm.DeallocFrame

	errAlreadyMapped     = &kernel.Error{Module: "vmm", Message: "virtual page is already mapped"}
	errNotMapped         = &kernel.Error{Module: "vmm", Message: "virtual page is not mapped"}
	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errBorrowedTable     = &kernel.Error{Module: "vmm", Message: "page table obtained from a token cannot be modified"}
)

// PageTable is a three-level SV39 page table. A table created by New owns
// its root frame and every intermediate table frame it allocates; leaf
// frames belong to whoever asked for the mapping.
type PageTable struct {
	root mm.PhysPageNum

	// frames lists the table frames owned by this table, root first.
	frames heap.Vec[mm.PhysPageNum]

	borrowed bool
}

// New allocates an empty page table. Running out of frames is a fatal error.
func New() *PageTable {
	root, err := allocFrameFn()
	if err != nil {
		panicFn(err)
		return nil
	}

	pt := &PageTable{root: root}
	pt.frames.Push(root)
	return pt
}

// FromToken returns a view of the page table whose root is encoded in a satp
// value. The view owns no frames and cannot be modified; it is used to
// inspect the memory of another address space.
func FromToken(token uint64) *PageTable {
	return &PageTable{root: mm.NewPhysPageNum(token), borrowed: true}
}

// Token returns the satp value that activates this table.
func (pt *PageTable) Token() uint64 {
	return satpModeSV39 | uint64(pt.root)
}

// RootPPN returns the frame holding the root table.
func (pt *PageTable) RootPPN() mm.PhysPageNum {
	return pt.root
}

// pageTableWalker is invoked by walk for each table level. Returning false
// stops the walk.
type pageTableWalker func(level uint8, pte *PageTableEntry) bool

// walk visits the entry that translates vpn at each level, starting from the
// root table.
func (pt *PageTable) walk(vpn mm.VirtPageNum, walkFn pageTableWalker) {
	indexes := vpn.Indexes()
	table := pt.root

	for level := uint8(0); level < mm.PageTableLevels; level++ {
		pte := &tableEntries(table)[indexes[level]]
		if !walkFn(level, pte) {
			return
		}
		table = pte.PPN()
	}
}

// tableEntries returns the entries stored in a table frame.
func tableEntries(ppn mm.PhysPageNum) *[entriesPerTable]PageTableEntry {
	return (*[entriesPerTable]PageTableEntry)(unsafe.Pointer(&physmem.PageBytes(ppn)[0]))
}

// Map installs a leaf entry translating vpn to ppn. Missing intermediate
// tables are allocated and cleared on the way down. Mapping a page that is
// already mapped is a fatal error.
func (pt *PageTable) Map(vpn mm.VirtPageNum, ppn mm.PhysPageNum, flags PTEFlags) {
	if pt.borrowed {
		panicFn(errBorrowedTable)
		return
	}

	var err *kernel.Error
	pt.walk(vpn, func(level uint8, pte *PageTableEntry) bool {
		if level == mm.PageTableLevels-1 {
			if pte.Valid() {
				err = errAlreadyMapped
				return false
			}
			*pte = NewPageTableEntry(ppn, flags|FlagValid)
			return true
		}

		if pte.isLeaf() {
			err = errNoHugePageSupport
			return false
		}

		if !pte.Valid() {
			var frame mm.PhysPageNum
			if frame, err = allocFrameFn(); err != nil {
				return false
			}
			pt.frames.Push(frame)
			*pte = NewPageTableEntry(frame, FlagValid)
		}

		return true
	})

	if err != nil {
		kfmt.Printf("[vmm] map of vpn 0x%x failed\n", uint64(vpn))
		panicFn(err)
	}
}

// Unmap clears the leaf entry for vpn. Unmapping a page that is not mapped
// is a fatal error.
func (pt *PageTable) Unmap(vpn mm.VirtPageNum) {
	if pt.borrowed {
		panicFn(errBorrowedTable)
		return
	}

	var err *kernel.Error
	pt.walk(vpn, func(level uint8, pte *PageTableEntry) bool {
		switch {
		case !pte.Valid():
			err = errNotMapped
			return false
		case level == mm.PageTableLevels-1:
			*pte = 0
			return true
		case pte.isLeaf():
			err = errNoHugePageSupport
			return false
		}
		return true
	})

	if err != nil {
		kfmt.Printf("[vmm] unmap of vpn 0x%x failed\n", uint64(vpn))
		panicFn(err)
	}
}

// Translate returns the leaf entry for vpn. The second return value is false
// if vpn is not mapped.
func (pt *PageTable) Translate(vpn mm.VirtPageNum) (PageTableEntry, bool) {
	var leaf PageTableEntry

	pt.walk(vpn, func(level uint8, pte *PageTableEntry) bool {
		if !pte.Valid() || (level < mm.PageTableLevels-1 && pte.isLeaf()) {
			return false
		}
		if level == mm.PageTableLevels-1 {
			leaf = *pte
		}
		return true
	})

	return leaf, leaf.Valid()
}

// TranslateVA returns the physical address that va maps to.
func (pt *PageTable) TranslateVA(va mm.VirtAddr) (mm.PhysAddr, bool) {
	pte, ok := pt.Translate(va.Floor())
	if !ok {
		return 0, false
	}

	return pte.PPN().Addr() + mm.PhysAddr(va.PageOffset()), true
}

// Release returns every table frame owned by pt to the frame allocator.
// Releasing a view created by FromToken has no effect.
func (pt *PageTable) Release() {
	if pt.borrowed {
		return
	}

	for _, frame := range pt.frames.Items() {
		deallocFrameFn(frame)
	}
	pt.frames.Release()
}

// TableFrames returns the number of table frames owned by pt.
func (pt *PageTable) TableFrames() int {
	return pt.frames.Len()
}
