package cpu

import "testing"

func TestSATP(t *testing.T) {
	defer Reset()
	Reset()

	if got := ReadSATP(); got != 0 {
		t.Fatalf("expected satp to be 0 after reset; got 0x%x", got)
	}

	exp := uint64(8<<60 | 0x80400)
	WriteSATP(exp)
	if got := ReadSATP(); got != exp {
		t.Fatalf("expected satp to be 0x%x; got 0x%x", exp, got)
	}

	if got := TLBFlushCount(); got != 0 {
		t.Fatalf("expected writing satp not to flush the TLB; got %d flushes", got)
	}

	SfenceVMA()
	SfenceVMA()
	if exp, got := uint64(2), TLBFlushCount(); got != exp {
		t.Fatalf("expected %d TLB flushes; got %d", exp, got)
	}
}

func TestHalt(t *testing.T) {
	defer Reset()
	Reset()

	defer func() {
		if err := recover(); err != ErrHalted {
			t.Fatalf("expected Halt to unwind with ErrHalted; got %v", err)
		}

		if !Halted() {
			t.Fatal("expected Halted to return true after Halt")
		}
	}()

	Halt()
	t.Fatal("expected Halt not to return")
}
