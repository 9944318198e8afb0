package vmm

import "sv39os/kernel/mm"

// PTEFlags holds the flag bits of a page table entry.
type PTEFlags uint8

const (
	// FlagValid marks the entry as present.
	FlagValid PTEFlags = 1 << iota

	// FlagReadable, FlagWritable and FlagExecutable grant access rights.
	// An entry with none of them set points to the next level table.
	FlagReadable
	FlagWritable
	FlagExecutable

	// FlagUser makes the page accessible from user mode.
	FlagUser

	// FlagGlobal marks the mapping as present in every address space.
	FlagGlobal

	// FlagAccessed and FlagDirty are maintained by the hardware.
	FlagAccessed
	FlagDirty
)

const (
	pteFlagBits = 10
	ppnMask     = uint64(1)<<mm.PPNWidthSV39 - 1

	leafFlags = FlagReadable | FlagWritable | FlagExecutable
)

// PageTableEntry is a single SV39 page table entry.
type PageTableEntry uint64

// NewPageTableEntry builds an entry that points to ppn with the given flags.
func NewPageTableEntry(ppn mm.PhysPageNum, flags PTEFlags) PageTableEntry {
	return PageTableEntry(uint64(ppn)<<pteFlagBits | uint64(flags))
}

// PPN returns the physical page the entry points to.
func (pte PageTableEntry) PPN() mm.PhysPageNum {
	return mm.PhysPageNum(uint64(pte) >> pteFlagBits & ppnMask)
}

// Flags returns the entry flags.
func (pte PageTableEntry) Flags() PTEFlags {
	return PTEFlags(pte)
}

// HasFlags returns true if all of the given flags are set.
func (pte PageTableEntry) HasFlags(flags PTEFlags) bool {
	return pte.Flags()&flags == flags
}

// Valid returns true if the entry is present.
func (pte PageTableEntry) Valid() bool { return pte.HasFlags(FlagValid) }

// Readable returns true if the entry grants read access.
func (pte PageTableEntry) Readable() bool { return pte.HasFlags(FlagReadable) }

// Writable returns true if the entry grants write access.
func (pte PageTableEntry) Writable() bool { return pte.HasFlags(FlagWritable) }

// Executable returns true if the entry grants execute access.
func (pte PageTableEntry) Executable() bool { return pte.HasFlags(FlagExecutable) }

// isLeaf returns true for a valid entry that maps a page instead of pointing
// to the next level table.
func (pte PageTableEntry) isLeaf() bool {
	return pte.Valid() && pte.Flags()&leafFlags != 0
}
