//go:build linux

package uring

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// unparkState tracks whether the driver's run loop is currently blocked
// inside io_uring_enter waiting on the unparker's own read request.
type unparkState int32

const (
	unparkIdle unparkState = iota
	unparkParked
	unparkWoken
)

// unparker lets any goroutine interrupt a blocked Driver.ParkFor call by
// writing to an eventfd the driver has an outstanding multishot-free read
// queued against; the read's completion wakes io_uring_enter the same way
// any other completion would.
type unparker struct {
	fd    int
	state int32 // unparkState, accessed atomically
}

func newUnparker() (*unparker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &unparker{fd: fd}, nil
}

func (u *unparker) rawFd() int { return u.fd }

func (u *unparker) close() error {
	return unix.Close(u.fd)
}

// prepare transitions Idle -> Parked, returning the previous state. Callers
// use this to decide whether a fresh read-against-the-eventfd SQE needs to
// be queued before blocking.
func (u *unparker) prepare() unparkState {
	return unparkState(atomic.SwapInt32(&u.state, int32(unparkParked)))
}

// reset transitions back to Idle once the driver observes the unparker's
// read completion, so the next ParkFor prepares a fresh one.
func (u *unparker) reset() {
	atomic.StoreInt32(&u.state, int32(unparkIdle))
}

// woken reports whether Unpark was called since the last prepare/reset.
func (u *unparker) woken() bool {
	return unparkState(atomic.LoadInt32(&u.state)) == unparkWoken
}

// Unpark wakes a blocked (or about-to-block) ParkFor call by writing to the
// eventfd; safe to call from any goroutine, any number of times.
func (u *unparker) Unpark() {
	prev := atomic.SwapInt32(&u.state, int32(unparkWoken))
	if unparkState(prev) == unparkWoken {
		return
	}
	var buf [8]byte
	buf[0] = 1
	unix.Write(u.fd, buf[:])
}
