package aspace

import (
	"bytes"
	"debug/elf"
	"io"
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
)

// ErrInvalidELF is returned when a program image cannot be loaded.
var ErrInvalidELF = &kernel.Error{Module: "aspace", Message: "invalid ELF image"}

// FromELF builds the address space of a user program. Every loadable segment
// gets its own framed area; the user stack sits one guard page above the
// highest segment and the trap context page sits right below the
// trampoline. FromELF returns the set, the initial user stack pointer and the
// program entry point.
func FromELF(image []byte) (*MemorySet, uint64, uint64, *kernel.Error) {
	layout := currentLayout()

	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		kfmt.Printf("[aspace] bad program image: %s\n", err)
		return nil, 0, 0, ErrInvalidELF
	}

	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV {
		return nil, 0, 0, ErrInvalidELF
	}

	ms := NewBare()
	ms.mapTrampoline(trampolinePA())

	var maxEndVPN mm.VirtPageNum
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}

		data, kerr := segmentData(prog)
		if kerr != nil {
			ms.Release()
			return nil, 0, 0, kerr
		}

		// Segments must end below the trap context page; end < Vaddr
		// catches images whose segment wraps the address space.
		end := prog.Vaddr + prog.Memsz
		if end < prog.Vaddr || end > uint64(TrapContext) {
			ms.Release()
			return nil, 0, 0, ErrInvalidELF
		}

		start := mm.NewVirtAddr(prog.Vaddr)
		area := NewMapArea(start, mm.NewVirtAddr(end), Framed, segmentPerm(prog.Flags))
		if ms.overlaps(area.vpnRange) {
			ms.Release()
			return nil, 0, 0, ErrInvalidELF
		}

		ms.push(area, start.PageOffset(), data)
		if area.vpnRange.End > maxEndVPN {
			maxEndVPN = area.vpnRange.End
		}
	}

	// Leave one unmapped page between the program and its stack.
	userStackBottom := uint64(maxEndVPN.Addr()) + mm.PageSize
	userStackTop := userStackBottom + layout.UserStackSize
	if userStackTop > uint64(TrapContext) {
		ms.Release()
		return nil, 0, 0, ErrInvalidELF
	}

	ms.push(NewMapArea(mm.NewVirtAddr(userStackBottom), mm.NewVirtAddr(userStackTop), Framed, PermR|PermW|PermU), 0, nil)
	ms.push(NewMapArea(TrapContext, Trampoline, Framed, PermR|PermW), 0, nil)

	return ms, userStackTop, f.Entry, nil
}

func segmentPerm(flags elf.ProgFlag) MapPermission {
	perm := PermU
	if flags&elf.PF_R != 0 {
		perm |= PermR
	}
	if flags&elf.PF_W != 0 {
		perm |= PermW
	}
	if flags&elf.PF_X != 0 {
		perm |= PermX
	}
	return perm
}

// segmentData returns the file-backed bytes of a loadable segment.
func segmentData(prog *elf.Prog) ([]byte, *kernel.Error) {
	if prog.Filesz > prog.Memsz {
		return nil, ErrInvalidELF
	}

	data, err := io.ReadAll(prog.Open())
	if err != nil || uint64(len(data)) != prog.Filesz {
		return nil, ErrInvalidELF
	}
	return data, nil
}
