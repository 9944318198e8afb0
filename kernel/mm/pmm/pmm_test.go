package pmm

import (
	"os"
	"sv39os/kernel"
	"sv39os/kernel/hal/board"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/heap"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testLayout leaves 16 frames between the end of the kernel image and the
// end of memory.
func testLayout() *board.Layout {
	l := board.Default()
	l.MemoryEnd = l.BSS.End + 16*mm.PageSize
	return l
}

func TestMain(m *testing.M) {
	heap.Init()
	if err := Init(testLayout()); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestStackFrameAllocator(t *testing.T) {
	var a StackFrameAllocator
	a.Init(10, 13)
	defer a.recycled.Release()

	for _, exp := range []mm.PhysPageNum{10, 11, 12} {
		got, err := a.Alloc()
		if err != nil || got != exp {
			t.Fatalf("expected frame %d; got %d, %v", exp, got, err)
		}
	}

	if _, err := a.Alloc(); err != ErrOutOfFrames {
		t.Fatalf("expected ErrOutOfFrames; got %v", err)
	}

	if err := a.Dealloc(11); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if exp, got := (Stats{Total: 3, InUse: 2, Recycled: 1}), a.Stats(); exp != got {
		t.Fatalf("stats mismatch (-want +got):\n%s", cmp.Diff(exp, got))
	}

	if got, _ := a.Alloc(); got != 11 {
		t.Fatalf("expected recycled frame 11 to be reused; got %d", got)
	}

	specs := []struct {
		ppn    mm.PhysPageNum
		expErr *kernel.Error
	}{
		{9, errNeverAllocated},
		{13, errNeverAllocated},
		{12, nil},
		{12, errDoubleFree},
	}

	for specIndex, spec := range specs {
		if err := a.Dealloc(spec.ppn); err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}
	}
}

func TestStackFrameAllocatorReinit(t *testing.T) {
	var a StackFrameAllocator
	a.Init(0, 2)
	a.Alloc()
	a.Dealloc(0)

	a.Init(100, 101)
	defer a.recycled.Release()

	if got, err := a.Alloc(); err != nil || got != 100 {
		t.Fatalf("expected frame 100 after re-init; got %d, %v", got, err)
	}
}

func TestPoolBounds(t *testing.T) {
	l := testLayout()
	st := GetStats()
	if st.Total != 16 {
		t.Fatalf("expected a pool of 16 frames; got %d", st.Total)
	}

	f := Alloc()
	defer f.Release()

	kernelEnd := mm.NewPhysAddr(l.KernelEnd()).Ceil()
	memEnd := mm.NewPhysAddr(l.MemoryEnd).Floor()
	if f.PPN() < kernelEnd || f.PPN() >= memEnd {
		t.Fatalf("expected frame to be in [0x%x, 0x%x); got 0x%x", kernelEnd, memEnd, f.PPN())
	}
}

func TestAllocZeroFills(t *testing.T) {
	f := Alloc()
	for i := range f.Bytes() {
		f.Bytes()[i] = 0xfe
	}
	ppn := f.PPN()
	f.Release()

	g := Alloc()
	defer g.Release()

	if g.PPN() != ppn {
		t.Fatalf("expected the released frame 0x%x to be reused; got 0x%x", ppn, g.PPN())
	}

	for i, b := range g.Bytes() {
		if b != 0 {
			t.Fatalf("expected frame byte %d to be cleared; got 0x%x", i, b)
		}
	}
}

func TestFrameTrackerRelease(t *testing.T) {
	before := GetStats()

	f := Alloc()
	if got := GetStats(); got.InUse != before.InUse+1 {
		t.Fatalf("expected %d frames in use; got %d", before.InUse+1, got.InUse)
	}

	f.Release()
	f.Release()

	if got := GetStats(); got.InUse != before.InUse {
		t.Fatalf("expected %d frames in use after release; got %d", before.InUse, got.InUse)
	}
}

func TestDeallocFrameTwice(t *testing.T) {
	defer func(orig func(interface{})) { panicFn = orig }(panicFn)

	var got interface{}
	panicFn = func(e interface{}) { got = e }

	ppn, err := AllocFrame()
	if err != nil {
		t.Fatal(err)
	}

	DeallocFrame(ppn)
	if got != nil {
		t.Fatalf("unexpected panic: %v", got)
	}

	DeallocFrame(ppn)
	if got != errDoubleFree {
		t.Fatalf("expected errDoubleFree; got %v", got)
	}
}

func TestExhaustion(t *testing.T) {
	defer func(orig func(interface{})) { panicFn = orig }(panicFn)

	var got interface{}
	panicFn = func(e interface{}) { got = e }

	var frames []*FrameTracker
	for i := uint64(0); i < GetStats().Total; i++ {
		frames = append(frames, Alloc())
	}

	if f := Alloc(); f != nil || got != ErrOutOfFrames {
		t.Fatalf("expected ErrOutOfFrames; got %v", got)
	}

	seen := make(map[mm.PhysPageNum]bool)
	for _, f := range frames {
		if seen[f.PPN()] {
			t.Fatalf("frame 0x%x handed out twice", f.PPN())
		}
		seen[f.PPN()] = true
		f.Release()
	}
}

func TestInitErrors(t *testing.T) {
	defer func(orig func(interface{})) { panicFn = orig }(panicFn)
	defer func(orig func() bool) { heapReadyFn = orig }(heapReadyFn)
	defer func(orig func(mm.PhysAddr, mm.PhysAddr) *kernel.Error) { physmemInitFn = orig }(physmemInitFn)

	var got interface{}
	panicFn = func(e interface{}) { got = e }

	heapReadyFn = func() bool { return false }
	if err := Init(testLayout()); err != errHeapNotReady || got != errHeapNotReady {
		t.Fatalf("expected errHeapNotReady; got %v", err)
	}

	expErr := &kernel.Error{Module: "test", Message: "no RAM"}
	heapReadyFn = func() bool { return true }
	physmemInitFn = func(_, _ mm.PhysAddr) *kernel.Error { return expErr }
	if err := Init(testLayout()); err != expErr {
		t.Fatalf("expected %v; got %v", expErr, err)
	}
}
