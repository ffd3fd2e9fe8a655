//go:build linux

package ringsys

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Setup calls io_uring_setup(2), filling params in place (the kernel
// overwrites sq_entries/cq_entries/features/the ring offsets) and
// returning the new ring's file descriptor.
func Setup(entries uint32, params *Params) (int, error) {
	r1, _, errno := unix.Syscall(
		SysIOUringSetup,
		uintptr(entries),
		uintptr(unsafe.Pointer(params)),
		0,
	)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}

// Enter calls io_uring_enter(2), submitting toSubmit SQEs and optionally
// waiting for minComplete CQEs depending on flags.
func Enter(fd int, toSubmit, minComplete uint32, flags uint32, arg *GeteventsArg) (int, error) {
	var argPtr unsafe.Pointer
	var argSz uintptr
	if arg != nil {
		argPtr = unsafe.Pointer(arg)
		argSz = unsafe.Sizeof(*arg)
	}
	r1, _, errno := unix.Syscall6(
		SysIOUringEnter,
		uintptr(fd),
		uintptr(toSubmit),
		uintptr(minComplete),
		uintptr(flags),
		uintptr(argPtr),
		argSz,
	)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}

