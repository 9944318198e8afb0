package mm

import (
	"slices"
	"testing"

	"sv39os/kernel/kfmt"
)

func TestRangeIteration(t *testing.T) {
	r := NewRange(VirtAddr(0x1000).Floor(), VirtAddr(0x4000).Ceil())

	exp := []VirtPageNum{1, 2, 3}
	if got := slices.Collect(r.All()); !slices.Equal(got, exp) {
		t.Fatalf("expected range to yield %v; got %v", exp, got)
	}

	// ranges are re-iterable
	if got := slices.Collect(r.All()); !slices.Equal(got, exp) {
		t.Fatalf("expected second iteration to yield %v; got %v", exp, got)
	}

	if got := r.Len(); got != 3 {
		t.Fatalf("expected Len to return 3; got %d", got)
	}

	// early break
	var visited int
	for range r.All() {
		visited++
		break
	}
	if visited != 1 {
		t.Fatalf("expected iteration to stop after 1 page; visited %d", visited)
	}

	if !NewRange[PhysPageNum](5, 5).Empty() {
		t.Fatal("expected [5, 5) to be empty")
	}
}

func TestRangeOverlaps(t *testing.T) {
	specs := []struct {
		a, b VPNRange
		exp  bool
	}{
		{VPNRange{1, 3}, VPNRange{3, 4}, false},
		{VPNRange{3, 4}, VPNRange{1, 3}, false},
		{VPNRange{1, 3}, VPNRange{2, 4}, true},
		{VPNRange{1, 10}, VPNRange{4, 5}, true},
		{VPNRange{4, 5}, VPNRange{1, 10}, true},
		{VPNRange{1, 3}, VPNRange{1, 3}, true},
		{VPNRange{1, 3}, VPNRange{5, 5}, false},
	}

	for specIndex, spec := range specs {
		if got := spec.a.Overlaps(spec.b); got != spec.exp {
			t.Errorf("[spec %d] expected %v.Overlaps(%v) to return %t; got %t", specIndex, spec.a, spec.b, spec.exp, got)
		}
	}

	r := VPNRange{Start: 2, End: 4}
	if !r.Contains(2) || !r.Contains(3) || r.Contains(4) || r.Contains(1) {
		t.Fatal("expected Contains to honour half-open bounds")
	}
}

func TestNewRangeWithInvertedBounds(t *testing.T) {
	defer func() {
		panicFn = kfmt.Panic
	}()

	var got interface{}
	panicFn = func(e interface{}) { got = e }

	NewRange[VirtPageNum](4, 2)
	if got != errInvertedRange {
		t.Fatalf("expected NewRange to panic with errInvertedRange; got %v", got)
	}
}
