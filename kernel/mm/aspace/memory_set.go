// Package aspace builds and manages address spaces. A MemorySet owns a page
// table and the set of non-overlapping areas mapped through it.
package aspace

import (
	"sv39os/kernel"
	"sv39os/kernel/cpu"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/physmem"
	"sv39os/kernel/mm/vmm"

	"github.com/google/btree"
)

const (
	// Trampoline is the virtual address of the trap entry page. It is the
	// highest page of the address space and is mapped in every set.
	Trampoline = mm.VirtAddr(1<<mm.VAWidthSV39 - mm.PageSize)

	// TrapContext is the virtual address of the page that holds the saved
	// user registers of a task.
	TrapContext = Trampoline - mm.VirtAddr(mm.PageSize)

	btreeDegree = 8

	satpModeSV39 = 8

	maxVirtAddr = mm.VirtAddr(1 << mm.VAWidthSV39)
)

var (
	// The following functions are mocked by tests.
	panicFn     = kfmt.Panic
	satpReadFn  = cpu.ReadSATP
	satpWriteFn = cpu.WriteSATP
	sfenceFn    = cpu.SfenceVMA

	// ErrAreaOverlap is returned when a new area intersects an existing one.
	ErrAreaOverlap = &kernel.Error{Module: "aspace", Message: "area overlaps an existing mapping"}

	// ErrAreaNotFound is returned when no area matches the requested range.
	ErrAreaNotFound = &kernel.Error{Module: "aspace", Message: "no area matches the requested range"}

	// ErrUnaligned is returned when a requested range is not page-aligned.
	ErrUnaligned = &kernel.Error{Module: "aspace", Message: "range is not page-aligned"}

	// ErrEmptyRange is returned when a requested range covers no pages.
	ErrEmptyRange = &kernel.Error{Module: "aspace", Message: "range is empty"}

	// ErrOutOfRange is returned when a requested range extends past the
	// top of the virtual address space.
	ErrOutOfRange = &kernel.Error{Module: "aspace", Message: "range exceeds the virtual address space"}

	errTrampolineMissing  = &kernel.Error{Module: "aspace", Message: "page table does not map the trampoline"}
	errTrampolineMismatch = &kernel.Error{Module: "aspace", Message: "trampoline mapping differs from the active page table"}
)

// AreaInfo describes an area of a MemorySet.
type AreaInfo struct {
	Range mm.VPNRange
	Type  MapType
	Perm  MapPermission
}

// MemorySet is an address space.
type MemorySet struct {
	pageTable *vmm.PageTable

	// areas is ordered by the first page of each area.
	areas *btree.BTreeG[*MapArea]
}

func areaLess(a, b *MapArea) bool {
	return a.vpnRange.Start < b.vpnRange.Start
}

// NewBare returns an empty set with a freshly allocated root table.
func NewBare() *MemorySet {
	return &MemorySet{
		pageTable: vmm.New(),
		areas:     btree.NewG(btreeDegree, areaLess),
	}
}

// Token returns the satp value that activates this set.
func (ms *MemorySet) Token() uint64 {
	return ms.pageTable.Token()
}

// Translate returns the leaf entry that maps vpn.
func (ms *MemorySet) Translate(vpn mm.VirtPageNum) (vmm.PageTableEntry, bool) {
	return ms.pageTable.Translate(vpn)
}

// Areas returns a snapshot of the set's areas in address order.
func (ms *MemorySet) Areas() []AreaInfo {
	out := make([]AreaInfo, 0, ms.areas.Len())
	ms.areas.Ascend(func(a *MapArea) bool {
		out = append(out, AreaInfo{Range: a.vpnRange, Type: a.mapType, Perm: a.perm})
		return true
	})
	return out
}

// overlaps returns true if r intersects any area. Because areas never
// overlap, the only candidate is the area with the greatest start that is
// still below the end of r.
func (ms *MemorySet) overlaps(r mm.VPNRange) bool {
	if r.Empty() {
		return false
	}

	var found bool
	ms.areas.DescendLessOrEqual(&MapArea{vpnRange: mm.VPNRange{Start: r.End - 1}}, func(a *MapArea) bool {
		found = a.vpnRange.Overlaps(r)
		return false
	})
	return found
}

// push maps area into the set and copies data into it, starting offset
// bytes into its first page. Adding an area that overlaps another is a
// fatal error.
func (ms *MemorySet) push(area *MapArea, offset uint64, data []byte) {
	if ms.overlaps(area.vpnRange) {
		kfmt.Printf("[aspace] area [0x%x - 0x%x) overlaps an existing area\n", uint64(area.vpnRange.Start), uint64(area.vpnRange.End))
		panicFn(ErrAreaOverlap)
		return
	}

	area.mapAll(ms.pageTable)
	if len(data) != 0 {
		area.copyData(ms.pageTable, offset, data)
	}
	ms.areas.ReplaceOrInsert(area)
}

// InsertFramedArea maps [start, end) with freshly allocated frames and
// copies data, if any, to the start of the area. The range is widened to
// page boundaries.
func (ms *MemorySet) InsertFramedArea(start, end mm.VirtAddr, perm MapPermission, data []byte) {
	ms.push(NewMapArea(start, end, Framed, perm), 0, data)
}

// validateRange checks a range received from an untrusted caller.
func validateRange(start, end mm.VirtAddr) (mm.VPNRange, *kernel.Error) {
	if !start.Aligned() || !end.Aligned() {
		return mm.VPNRange{}, ErrUnaligned
	}
	if end <= start {
		return mm.VPNRange{}, ErrEmptyRange
	}
	if end > maxVirtAddr {
		return mm.VPNRange{}, ErrOutOfRange
	}
	return mm.NewRange(start.Floor(), end.Floor()), nil
}

// InsertFramedAreaResult is the checked variant of InsertFramedArea used to
// serve requests from user space. The set is left untouched when an error
// is returned.
func (ms *MemorySet) InsertFramedAreaResult(start, end mm.VirtAddr, perm MapPermission) *kernel.Error {
	r, err := validateRange(start, end)
	if err != nil {
		return err
	}

	// The trampoline is mapped directly and has no area of its own.
	if ms.overlaps(r) || r.Contains(Trampoline.Floor()) {
		return ErrAreaOverlap
	}

	ms.push(NewMapArea(start, end, Framed, perm), 0, nil)
	return nil
}

// RemoveAreaResult unmaps the area that exactly covers [start, end) and
// releases its frames. The set is left untouched when an error is returned.
func (ms *MemorySet) RemoveAreaResult(start, end mm.VirtAddr) *kernel.Error {
	r, err := validateRange(start, end)
	if err != nil {
		return err
	}

	area, found := ms.areas.Get(&MapArea{vpnRange: r})
	if !found || area.vpnRange != r {
		return ErrAreaNotFound
	}

	area.unmapAll(ms.pageTable)
	ms.areas.Delete(area)
	return nil
}

// RemoveAreaWithStartVPN unmaps the area that starts at vpn, if any, and
// reports whether one was removed.
func (ms *MemorySet) RemoveAreaWithStartVPN(vpn mm.VirtPageNum) bool {
	area, found := ms.areas.Get(&MapArea{vpnRange: mm.VPNRange{Start: vpn}})
	if !found {
		return false
	}

	area.unmapAll(ms.pageTable)
	ms.areas.Delete(area)
	return true
}

// RecycleDataPages unmaps every area and releases its frames. The page
// table, including the trampoline mapping, is kept.
func (ms *MemorySet) RecycleDataPages() {
	ms.areas.Ascend(func(a *MapArea) bool {
		a.unmapAll(ms.pageTable)
		return true
	})
	ms.areas.Clear(false)
}

// Release returns every frame owned by the set, including its page table.
// The set must not be used afterwards.
func (ms *MemorySet) Release() {
	ms.RecycleDataPages()
	ms.pageTable.Release()
}

// mapTrampoline installs the shared trampoline page. It is not tracked as an
// area because the frame belongs to the kernel image.
func (ms *MemorySet) mapTrampoline(trampoline mm.PhysAddr) {
	ms.pageTable.Map(Trampoline.Floor(), trampoline.Floor(), vmm.FlagReadable|vmm.FlagExecutable)
}

// Activate switches the hart to this address space and flushes the TLB.
// The code performing the switch lives in the trampoline page, so the page
// must be mapped identically in the outgoing and incoming tables.
func (ms *MemorySet) Activate() {
	incoming, ok := ms.pageTable.Translate(Trampoline.Floor())
	if !ok || !incoming.Executable() {
		panicFn(errTrampolineMissing)
		return
	}

	if active := satpReadFn(); active>>60 == satpModeSV39 && active != ms.Token() {
		outgoing, ok := vmm.FromToken(active).Translate(Trampoline.Floor())
		if !ok || outgoing.PPN() != incoming.PPN() || !outgoing.Executable() {
			panicFn(errTrampolineMismatch)
			return
		}
	}

	satpWriteFn(ms.Token())
	sfenceFn()
}

// FromExistingUser returns a deep copy of a user address space. Every framed
// page is backed by a new frame holding a copy of the source contents.
func FromExistingUser(src *MemorySet) *MemorySet {
	ms := NewBare()
	ms.mapTrampoline(trampolinePA())

	src.areas.Ascend(func(a *MapArea) bool {
		area := newMapAreaLike(a)
		ms.push(area, 0, nil)

		if a.mapType != Framed {
			return true
		}

		for vpn := range a.vpnRange.All() {
			srcPTE, _ := src.pageTable.Translate(vpn)
			dstPTE, _ := ms.pageTable.Translate(vpn)
			kernel.Memcopy(physmem.PageBytes(srcPTE.PPN()), physmem.PageBytes(dstPTE.PPN()))
		}
		return true
	})

	return ms
}
