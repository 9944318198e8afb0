// Package cpu models the supervisor-mode view of the RISC-V hart that the
// memory management code talks to: the satp CSR, the sfence.vma instruction
// and halting the hart after an unrecoverable fault.
//
// Only a single hart is modelled. The register file is kept in atomics so
// that a monitor goroutine (e.g. a test) may observe it while the kernel runs.
package cpu

import (
	"sv39os/kernel"
	"sync/atomic"
)

var (
	satp       atomic.Uint64
	tlbFlushes atomic.Uint64
	halted     atomic.Bool

	// ErrHalted is the value that Halt unwinds the calling goroutine with.
	ErrHalted = &kernel.Error{Module: "cpu", Message: "hart halted"}
)

// ReadSATP returns the current value of the satp CSR.
func ReadSATP() uint64 {
	return satp.Load()
}

// WriteSATP writes v to the satp CSR. Like the real csrw instruction, the
// write does not invalidate any cached address translations; callers must
// issue SfenceVMA once the new root is in place.
func WriteSATP(v uint64) {
	satp.Store(v)
}

// SfenceVMA flushes every cached address translation of the hart.
func SfenceVMA() {
	tlbFlushes.Add(1)
}

// TLBFlushCount returns the number of sfence.vma instructions issued since
// the last Reset.
func TLBFlushCount() uint64 {
	return tlbFlushes.Load()
}

// Halt stops instruction execution. Calls to Halt never return: the calling
// goroutine is unwound with ErrHalted.
func Halt() {
	halted.Store(true)
	panic(ErrHalted)
}

// Halted returns true if Halt has been invoked since the last Reset.
func Halted() bool {
	return halted.Load()
}

// Reset returns the hart to its power-on state: satp is cleared (bare
// addressing mode) and the halt flag and TLB flush counter are reset.
func Reset() {
	satp.Store(0)
	tlbFlushes.Store(0)
	halted.Store(false)
}
