package board

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultLayoutIsValid(t *testing.T) {
	l := Default()
	if err := l.Validate(); err != nil {
		t.Fatalf("expected default layout to be valid; got %v", err)
	}

	if exp, got := uint64(0x80230000), l.KernelEnd(); got != exp {
		t.Fatalf("expected kernel end to be 0x%x; got 0x%x", exp, got)
	}
}

func TestDecode(t *testing.T) {
	input := `
memory_end = 0x88000000
user_stack_size = 0x4000

[[mmio]]
base = 0x0c000000
size = 0x400000

[[mmio]]
base = 0x10000000
size = 0x2000
`

	l, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	exp := Default()
	exp.MemoryEnd = 0x88000000
	exp.UserStackSize = 0x4000
	exp.MMIO = []MMIORegion{
		{Base: 0x0c000000, Size: 0x400000},
		{Base: 0x10000000, Size: 0x2000},
	}

	if diff := cmp.Diff(exp, l); diff != "" {
		t.Fatalf("decoded layout mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	specs := []struct {
		input  string
		expErr error
	}{
		{"memory_end = 0x80800010", errUnalignedLayout},
		{"memory_end = 0x80230000", errBadMemoryEnd},
		{"trampoline = 0x8020a000", errBadTrampoline},
		{"user_stack_size = 0", errBadStackSize},
		{"[rodata]\nstart = 0x80208000\nend = 0x8020c000", errBadSection},
		{"[text]\nstart = 0x80200000\nend = 0x80200000", errBadSection},
		{"[[mmio]]\nbase = 0x80100000\nsize = 0x1000", errMMIOOverlapsImage},
		{"not_a_key = 1", nil},
		{"memory_end = ", nil},
	}

	for specIndex, spec := range specs {
		_, err := Decode(strings.NewReader(spec.input))
		if err == nil {
			t.Errorf("[spec %d] expected an error", specIndex)
			continue
		}

		if spec.expErr != nil && !errors.Is(err, spec.expErr) {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "virt.toml")
	if err := os.WriteFile(path, []byte("kernel_stack_size = 0x3000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if exp := uint64(0x3000); l.KernelStackSize != exp {
		t.Fatalf("expected kernel stack size 0x%x; got 0x%x", exp, l.KernelStackSize)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected Load to fail for a missing file")
	}
}
