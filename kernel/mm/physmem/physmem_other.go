//go:build !unix

package physmem

import "sv39os/kernel"

// allocRAM falls back to a heap-allocated window on hosts without mmap.
func allocRAM(size uint64) ([]byte, *kernel.Error) {
	return make([]byte, size), nil
}

func releaseRAM(_ []byte) *kernel.Error {
	return nil
}
