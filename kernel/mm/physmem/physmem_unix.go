//go:build unix

package physmem

import (
	"sv39os/kernel"

	"golang.org/x/sys/unix"
)

var errHostMmap = &kernel.Error{Module: "physmem", Message: "unable to reserve host memory for the RAM window"}

// allocRAM reserves an anonymous, zero-filled host mapping for the RAM
// window. Pages are only committed by the host once touched, so large
// windows are cheap until used.
func allocRAM(size uint64) ([]byte, *kernel.Error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errHostMmap
	}
	return b, nil
}

func releaseRAM(b []byte) *kernel.Error {
	if err := unix.Munmap(b); err != nil {
		return errHostMmap
	}
	return nil
}
