// Package sync provides the exclusive-access guard used by the memory
// management singletons.
//
// The kernel runs on a single hart with cooperative multitasking, so there
// is never a second holder to wait for. A guard that is already held when
// someone tries to acquire it indicates a reentrancy bug; spinning would
// deadlock the hart, so the attempt halts the kernel instead.
package sync

import (
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sync/atomic"
)

var (
	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	errAlreadyBorrowed = &kernel.Error{Module: "sync", Message: "exclusive cell is already borrowed"}
)

// ExclusiveCell wraps a value of type T that may only be accessed through an
// exclusive-access scope opened by ExclusiveAccess and closed by Release.
type ExclusiveCell[T any] struct {
	state uint32
	value T
}

// NewExclusiveCell returns a new cell that owns value.
func NewExclusiveCell[T any](value T) *ExclusiveCell[T] {
	return &ExclusiveCell[T]{value: value}
}

// ExclusiveAccess opens an exclusive-access scope and returns a pointer to
// the wrapped value. The pointer must not be used after the matching call to
// Release. Acquiring a cell that is already borrowed is a fatal error; if
// the fault handler returns, ExclusiveAccess returns nil and the existing
// scope is left open.
func (c *ExclusiveCell[T]) ExclusiveAccess() *T {
	if !c.TryExclusiveAccess() {
		panicFn(errAlreadyBorrowed)
		return nil
	}

	return &c.value
}

// TryExclusiveAccess attempts to open an exclusive-access scope and returns
// true if it succeeded or false if the cell is already borrowed.
func (c *ExclusiveCell[T]) TryExclusiveAccess() bool {
	return atomic.SwapUint32(&c.state, 1) == 0
}

// Release closes the exclusive-access scope. Calling Release while the cell
// is not borrowed has no effect.
func (c *ExclusiveCell[T]) Release() {
	atomic.StoreUint32(&c.state, 0)
}

// Borrowed returns true while an exclusive-access scope is open.
func (c *ExclusiveCell[T]) Borrowed() bool {
	return atomic.LoadUint32(&c.state) == 1
}

// With runs fn inside an exclusive-access scope. The scope is closed on every
// exit path of fn, including a halt.
func (c *ExclusiveCell[T]) With(fn func(*T)) {
	v := c.ExclusiveAccess()
	if v == nil {
		return
	}
	defer c.Release()
	fn(v)
}
