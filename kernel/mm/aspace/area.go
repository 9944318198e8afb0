package aspace

import (
	"sv39os/kernel"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/physmem"
	"sv39os/kernel/mm/pmm"
	"sv39os/kernel/mm/vmm"
)

// MapType selects how the pages of an area are backed.
type MapType uint8

const (
	// Identical maps every virtual page to the physical page with the
	// same number.
	Identical MapType = iota

	// Framed backs every virtual page with a frame owned by the area.
	Framed
)

// String implements fmt.Stringer.
func (t MapType) String() string {
	if t == Identical {
		return "identical"
	}
	return "framed"
}

// MapPermission is the set of access rights of an area. The bit positions
// match the corresponding page table entry flags.
type MapPermission uint8

const (
	PermR MapPermission = 1 << 1
	PermW MapPermission = 1 << 2
	PermX MapPermission = 1 << 3
	PermU MapPermission = 1 << 4
)

// String implements fmt.Stringer.
func (p MapPermission) String() string {
	out := []byte("----")
	for i, bit := range []MapPermission{PermR, PermW, PermX, PermU} {
		if p&bit != 0 {
			out[i] = "rwxu"[i]
		}
	}
	return string(out)
}

func (p MapPermission) pteFlags() vmm.PTEFlags {
	return vmm.PTEFlags(p)
}

var errDataTooLarge = &kernel.Error{Module: "aspace", Message: "initial data does not fit in the area"}

// MapArea is a contiguous range of virtual pages that share a backing
// strategy and a set of permissions.
type MapArea struct {
	vpnRange mm.VPNRange
	frames   map[mm.VirtPageNum]*pmm.FrameTracker
	mapType  MapType
	perm     MapPermission
}

// NewMapArea returns an area covering every page touched by [start, end).
func NewMapArea(start, end mm.VirtAddr, mapType MapType, perm MapPermission) *MapArea {
	return &MapArea{
		vpnRange: mm.NewRange(start.Floor(), end.Ceil()),
		frames:   make(map[mm.VirtPageNum]*pmm.FrameTracker),
		mapType:  mapType,
		perm:     perm,
	}
}

// newMapAreaLike returns an unmapped area with the same range, type and
// permissions as another.
func newMapAreaLike(other *MapArea) *MapArea {
	return &MapArea{
		vpnRange: other.vpnRange,
		frames:   make(map[mm.VirtPageNum]*pmm.FrameTracker),
		mapType:  other.mapType,
		perm:     other.perm,
	}
}

// Range returns the pages covered by the area.
func (a *MapArea) Range() mm.VPNRange { return a.vpnRange }

// Type returns the area backing strategy.
func (a *MapArea) Type() MapType { return a.mapType }

// Perm returns the area permissions.
func (a *MapArea) Perm() MapPermission { return a.perm }

func (a *MapArea) mapOne(pt *vmm.PageTable, vpn mm.VirtPageNum) {
	var ppn mm.PhysPageNum

	switch a.mapType {
	case Identical:
		ppn = mm.NewPhysPageNum(uint64(vpn))
	case Framed:
		frame := pmm.Alloc()
		a.frames[vpn] = frame
		ppn = frame.PPN()
	}

	pt.Map(vpn, ppn, a.perm.pteFlags())
}

func (a *MapArea) unmapOne(pt *vmm.PageTable, vpn mm.VirtPageNum) {
	if a.mapType == Framed {
		a.frames[vpn].Release()
		delete(a.frames, vpn)
	}

	pt.Unmap(vpn)
}

func (a *MapArea) mapAll(pt *vmm.PageTable) {
	for vpn := range a.vpnRange.All() {
		a.mapOne(pt, vpn)
	}
}

func (a *MapArea) unmapAll(pt *vmm.PageTable) {
	for vpn := range a.vpnRange.All() {
		a.unmapOne(pt, vpn)
	}
}

// copyData writes data into the area starting offset bytes into its first
// page. The area must already be mapped in pt.
func (a *MapArea) copyData(pt *vmm.PageTable, offset uint64, data []byte) {
	if offset+uint64(len(data)) > a.vpnRange.Len()*mm.PageSize {
		panicFn(errDataTooLarge)
		return
	}

	for vpn := a.vpnRange.Start; len(data) != 0; vpn++ {
		pte, _ := pt.Translate(vpn)
		n := kernel.Memcopy(data, physmem.PageBytes(pte.PPN())[offset:])
		data, offset = data[n:], 0
	}
}
