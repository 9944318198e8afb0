package kmain

import (
	"bytes"
	"strings"
	"sv39os/kernel"
	"sv39os/kernel/cpu"
	"sv39os/kernel/hal/board"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/aspace"
	"testing"
)

func testLayout() *board.Layout {
	l := board.Default()
	l.MemoryEnd = l.BSS.End + 128*mm.PageSize
	return l
}

func TestKmainInitFailure(t *testing.T) {
	defer func(orig func(interface{})) { panicFn = orig }(panicFn)
	defer func(orig func(*board.Layout) *kernel.Error) { memoryInitFn = orig }(memoryInitFn)

	expErr := &kernel.Error{Module: "test", Message: "no memory"}
	memoryInitFn = func(*board.Layout) *kernel.Error { return expErr }

	var got interface{}
	panicFn = func(e interface{}) { got = e }

	Kmain(testLayout())
	if got != expErr {
		t.Fatalf("expected Kmain to halt with %v; got %v", expErr, got)
	}
}

func TestKmain(t *testing.T) {
	defer cpu.Reset()

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	Kmain(testLayout())

	if got, exp := cpu.ReadSATP(), aspace.KernelToken(); got != exp {
		t.Fatalf("expected satp to hold the kernel token 0x%x; got 0x%x", exp, got)
	}

	for _, exp := range []string{"Starting sv39os", "remap check passed", "[kmain] heap:"} {
		if !strings.Contains(buf.String(), exp) {
			t.Errorf("expected boot log to contain %q; got:\n%s", exp, buf.String())
		}
	}
}

func TestHalt(t *testing.T) {
	defer func(orig func(interface{})) { panicFn = orig }(panicFn)

	var got interface{}
	panicFn = func(e interface{}) { got = e }

	Halt()
	if got != errKmainReturned {
		t.Fatalf("expected errKmainReturned; got %v", got)
	}
}
