package sync

import (
	"testing"

	"sv39os/kernel/kfmt"
)

func TestExclusiveCell(t *testing.T) {
	defer func() {
		panicFn = kfmt.Panic
	}()

	var panicCalls int
	panicFn = func(e interface{}) {
		if e != errAlreadyBorrowed {
			t.Errorf("expected panic with errAlreadyBorrowed; got %v", e)
		}
		panicCalls++
	}

	cell := NewExclusiveCell(42)

	v := cell.ExclusiveAccess()
	if *v != 42 {
		t.Fatalf("expected wrapped value to be 42; got %d", *v)
	}
	*v = 7

	if !cell.Borrowed() {
		t.Fatal("expected cell to be borrowed")
	}

	if cell.TryExclusiveAccess() {
		t.Fatal("expected TryExclusiveAccess to return false while the cell is borrowed")
	}

	// Reentrant access is a fatal error
	if got := cell.ExclusiveAccess(); got != nil {
		t.Fatal("expected reentrant access to return nil")
	}
	if panicCalls != 1 {
		t.Fatalf("expected reentrant access to trigger a panic; got %d panics", panicCalls)
	}

	// A reentrant With must neither run fn nor close the outer scope
	cell.With(func(_ *int) {
		t.Error("expected fn not to run while the cell is borrowed")
	})
	if panicCalls != 2 {
		t.Fatalf("expected reentrant With to trigger a panic; got %d panics", panicCalls)
	}
	if !cell.Borrowed() {
		t.Fatal("expected the outer scope to stay open after a reentrant With")
	}

	cell.Release()
	if cell.Borrowed() {
		t.Fatal("expected cell to be released")
	}

	// Releasing a free cell is a no-op
	cell.Release()

	cell.With(func(v *int) {
		if *v != 7 {
			t.Errorf("expected wrapped value to be 7; got %d", *v)
		}
	})

	if cell.Borrowed() {
		t.Fatal("expected With to release the cell")
	}

	if panicCalls != 2 {
		t.Fatalf("expected no further panics; got %d", panicCalls)
	}
}

func TestExclusiveCellWithReleasesOnUnwind(t *testing.T) {
	cell := NewExclusiveCell("value")

	func() {
		defer func() { _ = recover() }()
		cell.With(func(_ *string) {
			panic("unwind")
		})
	}()

	if cell.Borrowed() {
		t.Fatal("expected With to release the cell when fn unwinds")
	}
}
