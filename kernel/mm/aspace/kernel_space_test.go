package aspace

import (
	"sv39os/kernel/mm"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestKernelSpaceLayout(t *testing.T) {
	l := testLayout()

	vpns := func(start, end uint64) mm.VPNRange {
		return mm.VPNRange{Start: mm.NewVirtAddr(start).Floor(), End: mm.NewVirtAddr(end).Ceil()}
	}

	exp := []AreaInfo{
		{Range: vpns(l.MMIO[0].Base, l.MMIO[0].Base+l.MMIO[0].Size), Type: Identical, Perm: PermR | PermW},
		{Range: vpns(l.Text.Start, l.Text.End), Type: Identical, Perm: PermR | PermX},
		{Range: vpns(l.ROData.Start, l.ROData.End), Type: Identical, Perm: PermR},
		{Range: vpns(l.Data.Start, l.Data.End), Type: Identical, Perm: PermR | PermW},
		{Range: vpns(l.BSS.Start, l.BSS.End), Type: Identical, Perm: PermR | PermW},
		{Range: vpns(l.KernelEnd(), l.MemoryEnd), Type: Identical, Perm: PermR | PermW},
	}

	KernelSpace().With(func(ms *MemorySet) {
		if diff := cmp.Diff(exp, ms.Areas()); diff != "" {
			t.Fatalf("kernel area mismatch (-want +got):\n%s", diff)
		}

		pte, ok := ms.Translate(Trampoline.Floor())
		if !ok || pte.PPN() != mm.NewPhysAddr(l.Trampoline).Floor() || !pte.Executable() || pte.Writable() {
			t.Fatalf("unexpected trampoline entry 0x%x", uint64(pte))
		}

		pte, ok = ms.Translate(mm.NewVirtAddr(l.Data.Start).Floor())
		if !ok || pte.PPN() != mm.NewPhysAddr(l.Data.Start).Floor() {
			t.Fatalf("expected .data to be identity-mapped; got 0x%x", uint64(pte))
		}
	})
}

func TestTrampolineAddress(t *testing.T) {
	if Trampoline != 0x7ffffff000 {
		t.Fatalf("expected trampoline at 0x7ffffff000; got 0x%x", uint64(Trampoline))
	}
	if Trampoline.Value() != 0xfffffffffffff000 {
		t.Fatalf("expected trampoline to sign-extend to the last page; got 0x%x", Trampoline.Value())
	}
	if TrapContext != 0x7fffffe000 {
		t.Fatalf("expected trap context at 0x7fffffe000; got 0x%x", uint64(TrapContext))
	}
}

func TestRemapCheck(t *testing.T) {
	got, restore := mockPanic()
	defer restore()

	RemapCheck()
	if *got != nil {
		t.Fatalf("expected the kernel space to pass the remap check; got %v", *got)
	}

	// Make .text writable and expect the check to fail.
	KernelSpace().With(func(ms *MemorySet) {
		vpn := mm.NewVirtAddr((layout.Text.Start + layout.Text.End) / 2).Floor()
		pte, _ := ms.Translate(vpn)
		ms.pageTable.Unmap(vpn)
		ms.pageTable.Map(vpn, pte.PPN(), pte.Flags()|PermW.pteFlags())
	})

	RemapCheck()
	if *got != errRemapCheckFailed {
		t.Fatalf("expected errRemapCheckFailed; got %v", *got)
	}

	KernelSpace().With(func(ms *MemorySet) {
		vpn := mm.NewVirtAddr((layout.Text.Start + layout.Text.End) / 2).Floor()
		ms.pageTable.Unmap(vpn)
		ms.pageTable.Map(vpn, mm.NewPhysPageNum(uint64(vpn)), (PermR | PermX).pteFlags())
	})
}

func TestInitTwice(t *testing.T) {
	got, restore := mockPanic()
	defer restore()

	Init(testLayout())
	if *got != errAlreadyInitialized {
		t.Fatalf("expected errAlreadyInitialized; got %v", *got)
	}
}

func TestKernelStacks(t *testing.T) {
	before := framesInUse()
	size := mm.VirtAddr(testLayout().KernelStackSize)

	specs := []struct {
		id     int
		expTop mm.VirtAddr
	}{
		{0, Trampoline},
		{1, Trampoline - size - mm.VirtAddr(mm.PageSize)},
		{2, Trampoline - 2*(size+mm.VirtAddr(mm.PageSize))},
	}

	for specIndex, spec := range specs {
		bottom, top := KernelStackPosition(spec.id)
		if top != spec.expTop || top-bottom != size {
			t.Errorf("[spec %d] expected stack [0x%x - 0x%x); got [0x%x - 0x%x)", specIndex, uint64(spec.expTop-size), uint64(spec.expTop), uint64(bottom), uint64(top))
		}

		if got := InsertKernelStack(spec.id); got != top {
			t.Errorf("[spec %d] expected stack top 0x%x; got 0x%x", specIndex, uint64(top), uint64(got))
		}
	}

	KernelSpace().With(func(ms *MemorySet) {
		for _, spec := range specs {
			bottom, top := KernelStackPosition(spec.id)
			for vpn := bottom.Floor(); vpn < top.Floor(); vpn++ {
				pte, ok := ms.Translate(vpn)
				if !ok || !pte.Writable() || pte.Executable() {
					t.Errorf("expected stack page 0x%x of task %d to be mapped RW; got 0x%x", uint64(vpn), spec.id, uint64(pte))
				}
			}

			// The page below each stack is its guard.
			if _, ok := ms.Translate(bottom.Floor() - 1); ok {
				t.Errorf("expected the guard page below the stack of task %d to be unmapped", spec.id)
			}
		}
	})

	for _, spec := range specs {
		RemoveKernelStack(spec.id)
	}

	if got := framesInUse(); got != before {
		t.Fatalf("expected %d frames in use after removing the stacks; got %d", before, got)
	}
}
