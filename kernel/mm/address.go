// Package mm contains the address and page number types shared by the
// physical and virtual memory managers.
package mm

import (
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
)

var (
	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	errUnalignedAddress = &kernel.Error{Module: "mm", Message: "exact page number conversion of an unaligned address"}
	errInvertedRange    = &kernel.Error{Module: "mm", Message: "range start is after range end"}
)

const (
	paMask  = uint64(1)<<PAWidthSV39 - 1
	vaMask  = uint64(1)<<VAWidthSV39 - 1
	ppnMask = uint64(1)<<PPNWidthSV39 - 1
	vpnMask = uint64(1)<<VPNWidthSV39 - 1

	pageOffsetMask = PageSize - 1
	indexMask      = uint64(1)<<PageTableIndexBits - 1
)

// PhysAddr describes a physical memory address.
type PhysAddr uint64

// VirtAddr describes a virtual memory address in the SV39 address space.
type VirtAddr uint64

// PhysPageNum describes a physical memory page index.
type PhysPageNum uint64

// VirtPageNum describes a virtual memory page index.
type VirtPageNum uint64

// NewPhysAddr returns the physical address for v, truncated to the
// architectural physical address width.
func NewPhysAddr(v uint64) PhysAddr {
	return PhysAddr(v & paMask)
}

// NewVirtAddr returns the virtual address for v, truncated to the
// architectural virtual address width. High (sign-extended) addresses such
// as 0xffff_ffff_ffff_f000 therefore map to the top of the 39-bit space.
func NewVirtAddr(v uint64) VirtAddr {
	return VirtAddr(v & vaMask)
}

// NewPhysPageNum returns the physical page number for v, truncated to the
// architectural width.
func NewPhysPageNum(v uint64) PhysPageNum {
	return PhysPageNum(v & ppnMask)
}

// NewVirtPageNum returns the virtual page number for v, truncated to the
// architectural width.
func NewVirtPageNum(v uint64) VirtPageNum {
	return VirtPageNum(v & vpnMask)
}

// Floor returns the page that contains this address.
func (pa PhysAddr) Floor() PhysPageNum {
	return PhysPageNum(uint64(pa) >> PageShift)
}

// Ceil returns the first page that starts at or after this address.
func (pa PhysAddr) Ceil() PhysPageNum {
	return PhysPageNum((uint64(pa) + PageSize - 1) >> PageShift)
}

// PageOffset returns the offset of this address within its page.
func (pa PhysAddr) PageOffset() uint64 {
	return uint64(pa) & pageOffsetMask
}

// Aligned returns true if this address is page-aligned.
func (pa PhysAddr) Aligned() bool {
	return pa.PageOffset() == 0
}

// PageNum returns the page number for a page-aligned address. Passing an
// unaligned address is a programming error.
func (pa PhysAddr) PageNum() PhysPageNum {
	if !pa.Aligned() {
		panicFn(errUnalignedAddress)
	}
	return pa.Floor()
}

// Addr returns the physical address of the first byte in this page.
func (ppn PhysPageNum) Addr() PhysAddr {
	return PhysAddr(uint64(ppn) << PageShift)
}

// Step returns the page that follows this one.
func (ppn PhysPageNum) Step() PhysPageNum {
	return ppn + 1
}

// Floor returns the page that contains this address.
func (va VirtAddr) Floor() VirtPageNum {
	return VirtPageNum(uint64(va) >> PageShift)
}

// Ceil returns the first page that starts at or after this address.
func (va VirtAddr) Ceil() VirtPageNum {
	return VirtPageNum((uint64(va) + PageSize - 1) >> PageShift)
}

// PageOffset returns the offset of this address within its page.
func (va VirtAddr) PageOffset() uint64 {
	return uint64(va) & pageOffsetMask
}

// Aligned returns true if this address is page-aligned.
func (va VirtAddr) Aligned() bool {
	return va.PageOffset() == 0
}

// PageNum returns the page number for a page-aligned address. Passing an
// unaligned address is a programming error.
func (va VirtAddr) PageNum() VirtPageNum {
	if !va.Aligned() {
		panicFn(errUnalignedAddress)
	}
	return va.Floor()
}

// Value returns the canonical 64-bit form of this address: SV39 requires
// bits 63-39 to equal bit 38, so addresses in the upper half of the space
// are sign-extended.
func (va VirtAddr) Value() uint64 {
	if uint64(va)&(1<<(VAWidthSV39-1)) != 0 {
		return uint64(va) | ^vaMask
	}
	return uint64(va)
}

// Addr returns the virtual address of the first byte in this page.
func (vpn VirtPageNum) Addr() VirtAddr {
	return VirtAddr(uint64(vpn) << PageShift)
}

// Step returns the page that follows this one.
func (vpn VirtPageNum) Step() VirtPageNum {
	return vpn + 1
}

// Indexes returns the page table index for each level, starting from the
// root table.
func (vpn VirtPageNum) Indexes() [PageTableLevels]uint64 {
	var idx [PageTableLevels]uint64
	v := uint64(vpn)
	for level := PageTableLevels - 1; level >= 0; level-- {
		idx[level] = v & indexMask
		v >>= PageTableIndexBits
	}
	return idx
}
