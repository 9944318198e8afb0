// Package physmem provides access to the machine's RAM by physical address.
//
// The RAM window [base, end) is backed by a single host allocation that is
// created once by Init. Every other memory management package reaches
// physical memory exclusively through the slices returned by this package;
// touching an address outside the window is a bus fault and halts the
// kernel.
package physmem

import (
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
)

var (
	// ram is the backing store for [base, end).
	ram       []byte
	base, end mm.PhysAddr

	// The following functions are mocked by tests.
	panicFn   = kfmt.Panic
	allocFn   = allocRAM
	releaseFn = releaseRAM

	errBusFault    = &kernel.Error{Module: "physmem", Message: "access to physical address outside of RAM"}
	errBadWindow   = &kernel.Error{Module: "physmem", Message: "RAM window must be page-aligned and non-empty"}
	errRAMNotReady = &kernel.Error{Module: "physmem", Message: "RAM window has not been initialized"}
)

// Init brings the RAM window [ramBase, ramEnd) online. Any previously
// initialized window is released first and its contents are lost.
func Init(ramBase, ramEnd mm.PhysAddr) *kernel.Error {
	if !ramBase.Aligned() || !ramEnd.Aligned() || ramEnd <= ramBase {
		return errBadWindow
	}

	if ram != nil {
		if err := releaseFn(ram); err != nil {
			return err
		}
		ram = nil
	}

	backing, err := allocFn(uint64(ramEnd - ramBase))
	if err != nil {
		return err
	}

	ram, base, end = backing, ramBase, ramEnd
	kfmt.Printf("[physmem] RAM window [0x%x - 0x%x), size: %dKb\n", uint64(base), uint64(end), uint64(end-base)/1024)
	return nil
}

// Base returns the physical address of the first byte of RAM.
func Base() mm.PhysAddr {
	return base
}

// End returns the physical address right after the last byte of RAM.
func End() mm.PhysAddr {
	return end
}

// Contains returns true if the n bytes starting at pa are backed by RAM.
func Contains(pa mm.PhysAddr, n uint64) bool {
	return ram != nil && pa >= base && pa <= end && n <= uint64(end-pa)
}

// Bytes returns a slice aliasing the n bytes of RAM that start at pa.
// Accessing memory outside the RAM window is a fatal error.
func Bytes(pa mm.PhysAddr, n uint64) []byte {
	if ram == nil {
		panicFn(errRAMNotReady)
		return nil
	}

	if !Contains(pa, n) {
		kfmt.Printf("[physmem] bus fault at 0x%x (len %d)\n", uint64(pa), n)
		panicFn(errBusFault)
		return nil
	}

	offset := uint64(pa - base)
	return ram[offset : offset+n : offset+n]
}

// PageBytes returns a slice aliasing the whole physical page ppn.
func PageBytes(ppn mm.PhysPageNum) []byte {
	return Bytes(ppn.Addr(), mm.PageSize)
}
