package vmm

import (
	"os"
	"sv39os/kernel/hal/board"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/heap"
	"sv39os/kernel/mm/pmm"
	"testing"
)

func TestMain(m *testing.M) {
	heap.Init()

	layout := board.Default()
	layout.MemoryEnd = layout.BSS.End + 64*mm.PageSize
	if err := pmm.Init(layout); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

// mockPanic replaces panicFn with a function that records its argument.
func mockPanic() (*interface{}, func()) {
	orig := panicFn
	var got interface{}
	panicFn = func(e interface{}) { got = e }
	return &got, func() { panicFn = orig }
}
