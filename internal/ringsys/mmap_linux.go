//go:build linux

package ringsys

import "golang.org/x/sys/unix"

// Mmap maps length bytes of the ring fd at offset, shared and populated so
// the kernel and this process observe the same pages immediately.
func Mmap(fd int, offset uint64, length int) ([]byte, error) {
	return unix.Mmap(
		fd,
		int64(offset),
		length,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_POPULATE,
	)
}

// Munmap unmaps a region previously returned by Mmap.
func Munmap(b []byte) error {
	if b == nil {
		return nil
	}
	return unix.Munmap(b)
}
