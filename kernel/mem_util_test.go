package kernel

import "testing"

func TestMemset(t *testing.T) {
	// memset with a 0 size should be a no-op
	Memset(nil, 0x00)

	for pageCount := uint32(1); pageCount <= 10; pageCount++ {
		buf := make([]byte, 4096<<pageCount)
		for i := 0; i < len(buf); i++ {
			buf[i] = 0xFE
		}

		Memset(buf, 0x00)

		for i := 0; i < len(buf); i++ {
			if got := buf[i]; got != 0x00 {
				t.Errorf("[block with %d pages] expected byte: %d to be 0x00; got 0x%x", pageCount, i, got)
			}
		}
	}
}

func TestMemcopy(t *testing.T) {
	// memcopy with a 0 size should be a no-op
	if n := Memcopy(nil, nil); n != 0 {
		t.Fatalf("expected 0 bytes to be copied; got %d", n)
	}

	var (
		src = make([]byte, 4096)
		dst = make([]byte, 4096+512)
	)
	for i := 0; i < len(src); i++ {
		src[i] = byte(i % 256)
	}

	if n := Memcopy(src, dst); n != len(src) {
		t.Fatalf("expected %d bytes to be copied; got %d", len(src), n)
	}

	for i := 0; i < len(src); i++ {
		if got := dst[i]; got != src[i] {
			t.Errorf("expected byte: %d to be 0x%x; got 0x%x", i, src[i], got)
		}
	}

	for i := len(src); i < len(dst); i++ {
		if got := dst[i]; got != 0 {
			t.Errorf("expected byte: %d past the copied region to remain 0; got 0x%x", i, got)
		}
	}
}
