// Package board describes the machine the kernel runs on: where RAM ends,
// where each section of the kernel image was loaded and which MMIO windows
// the kernel needs to reach. On a bare-metal build these values come from
// linker symbols; here they are provided by a Layout which defaults to the
// qemu "virt" machine and may be overridden by a TOML board file.
package board

import (
	"fmt"
	"io"
	"sv39os/kernel"
	"sv39os/kernel/mm"

	"github.com/BurntSushi/toml"
)

var (
	errUnalignedLayout   = &kernel.Error{Module: "board", Message: "layout addresses and sizes must be page-aligned"}
	errBadSection        = &kernel.Error{Module: "board", Message: "kernel image sections must be non-empty, ordered and inside RAM"}
	errBadTrampoline     = &kernel.Error{Module: "board", Message: "trampoline page must be inside the text section"}
	errBadMemoryEnd      = &kernel.Error{Module: "board", Message: "memory end must leave at least one free page after the kernel image"}
	errBadStackSize      = &kernel.Error{Module: "board", Message: "stack sizes must be a non-zero number of pages"}
	errMMIOOverlapsImage = &kernel.Error{Module: "board", Message: "MMIO windows must not overlap RAM"}
)

// Section is the [Start, End) physical extent of a kernel image section.
type Section struct {
	Start uint64 `toml:"start"`
	End   uint64 `toml:"end"`
}

// MMIORegion is a device register window that is identity-mapped into the
// kernel address space.
type MMIORegion struct {
	Base uint64 `toml:"base"`
	Size uint64 `toml:"size"`
}

// Layout describes the physical memory layout of the machine.
type Layout struct {
	// RAMBase is the physical address where RAM starts.
	RAMBase uint64 `toml:"ram_base"`

	// MemoryEnd is the physical address right after the last byte of RAM
	// that the kernel manages.
	MemoryEnd uint64 `toml:"memory_end"`

	// Kernel image sections. The BSS section includes the boot stack.
	Text   Section `toml:"text"`
	ROData Section `toml:"rodata"`
	Data   Section `toml:"data"`
	BSS    Section `toml:"bss"`

	// Trampoline is the physical address of the page holding the trap
	// entry/exit code that is shared by every address space.
	Trampoline uint64 `toml:"trampoline"`

	// UserStackSize is the size of the stack given to each user program.
	UserStackSize uint64 `toml:"user_stack_size"`

	// KernelStackSize is the size of each task's kernel stack.
	KernelStackSize uint64 `toml:"kernel_stack_size"`

	MMIO []MMIORegion `toml:"mmio"`
}

// Default returns the layout of the qemu "virt" machine as produced by the
// kernel's linker script.
func Default() *Layout {
	return &Layout{
		RAMBase:         0x80000000,
		MemoryEnd:       0x80800000,
		Text:            Section{Start: 0x80200000, End: 0x8020a000},
		ROData:          Section{Start: 0x8020a000, End: 0x8020c000},
		Data:            Section{Start: 0x8020c000, End: 0x8020e000},
		BSS:             Section{Start: 0x8020e000, End: 0x80230000},
		Trampoline:      0x80209000,
		UserStackSize:   2 * mm.PageSize,
		KernelStackSize: 2 * mm.PageSize,
		MMIO: []MMIORegion{
			{Base: 0x10001000, Size: 0x1000},
		},
	}
}

// Decode reads a TOML board description from r. Keys that are missing from
// the input keep their Default value.
func Decode(r io.Reader) (*Layout, error) {
	l := Default()
	md, err := toml.NewDecoder(r).Decode(l)
	if err != nil {
		return nil, fmt.Errorf("board: decoding layout: %w", err)
	}

	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("board: unknown layout keys: %v", undecoded)
	}

	if kErr := l.Validate(); kErr != nil {
		return nil, fmt.Errorf("board: %w", kErr)
	}

	return l, nil
}

// Load reads a TOML board description from the file at path.
func Load(path string) (*Layout, error) {
	l := Default()
	md, err := toml.DecodeFile(path, l)
	if err != nil {
		return nil, fmt.Errorf("board: loading %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("board: unknown layout keys in %s: %v", path, undecoded)
	}

	if kErr := l.Validate(); kErr != nil {
		return nil, fmt.Errorf("board: %s: %w", path, kErr)
	}

	return l, nil
}

// KernelEnd returns the physical address right after the kernel image.
func (l *Layout) KernelEnd() uint64 {
	return l.BSS.End
}

// Sections returns the kernel image sections in load order.
func (l *Layout) Sections() []Section {
	return []Section{l.Text, l.ROData, l.Data, l.BSS}
}

// Validate checks that the layout describes a machine the memory manager
// can boot on.
func (l *Layout) Validate() *kernel.Error {
	aligned := func(values ...uint64) bool {
		for _, v := range values {
			if v%mm.PageSize != 0 {
				return false
			}
		}
		return true
	}

	if !aligned(l.RAMBase, l.MemoryEnd, l.Trampoline, l.UserStackSize, l.KernelStackSize) {
		return errUnalignedLayout
	}

	prevEnd := l.RAMBase
	for _, s := range l.Sections() {
		if !aligned(s.Start, s.End) {
			return errUnalignedLayout
		}

		if s.Start >= s.End || s.Start < prevEnd {
			return errBadSection
		}
		prevEnd = s.End
	}

	if l.Trampoline < l.Text.Start || l.Trampoline >= l.Text.End {
		return errBadTrampoline
	}

	if l.MemoryEnd <= l.KernelEnd() {
		return errBadMemoryEnd
	}

	if l.UserStackSize == 0 || l.KernelStackSize == 0 {
		return errBadStackSize
	}

	for _, r := range l.MMIO {
		if !aligned(r.Base, r.Size) {
			return errUnalignedLayout
		}

		if r.Base < l.MemoryEnd && l.RAMBase < r.Base+r.Size {
			return errMMIOOverlapsImage
		}
	}

	return nil
}
