//go:build linux

// Package uring implements the ring driver: an io_uring instance wrapped up
// as a Park implementation, plus the SQ/CQ mmap plumbing it needs.
package uring

import (
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ringrt/ringrt/internal/ringsys"
)

// Errors returned directly by the ring wrapper, independent of any
// operation-level error an individual submission may produce.
var (
	ErrRingClosed = errors.New("uring: ring closed")
	ErrSQFull     = errors.New("uring: submission queue full")
)

// Ring owns one io_uring instance: its fd and the mmap'd SQ/CQ regions.
type Ring struct {
	fd       int
	params   ringsys.Params
	features uint32

	sqRingMem []byte
	sqesMem   []byte
	cqRingMem []byte

	sqEntries uint32
	sqMask    uint32
	sqHead    *uint32
	sqTail    *uint32
	sqFlags   *uint32
	sqDropped *uint32
	sqArray   []uint32
	sqes      []ringsys.SQE

	cqEntries  uint32
	cqMask     uint32
	cqHead     *uint32
	cqTail     *uint32
	cqFlags    *uint32
	cqOverflow *uint32
	cqes       []ringsys.CQE

	sqMu      sync.Mutex
	sqPending uint32
	closed    atomic.Bool
}

// Option configures ring setup, mirroring io_uring_params flags.
type Option func(*ringsys.Params)

// WithSQPoll enables kernel-side SQ polling.
func WithSQPoll() Option {
	return func(p *ringsys.Params) { p.Flags |= ringsys.SetupSQPoll }
}

// WithSingleIssuer hints to the kernel that only one task will submit.
func WithSingleIssuer() Option {
	return func(p *ringsys.Params) { p.Flags |= ringsys.SetupSingleIssuer }
}

// WithIOPoll enables busy-polling completion of block-device I/O instead of
// interrupt-driven completion, trading CPU for latency on devices that
// support it.
func WithIOPoll() Option {
	return func(p *ringsys.Params) { p.Flags |= ringsys.SetupIOPoll }
}

// WithCQSize requests a completion queue larger than the default 2x
// submission queue size.
func WithCQSize(size uint32) Option {
	return func(p *ringsys.Params) {
		p.Flags |= ringsys.SetupCQSize
		p.CQEntries = size
	}
}

// New creates and maps a new io_uring instance with at least entries
// submission queue slots.
func New(entries uint32, opts ...Option) (*Ring, error) {
	var params ringsys.Params
	for _, opt := range opts {
		opt(&params)
	}

	fd, err := ringsys.Setup(entries, &params)
	if err != nil {
		return nil, err
	}

	r := &Ring{fd: fd, params: params, features: params.Features}
	if err := r.mapRings(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return r, nil
}

func (r *Ring) mapRings() error {
	p := &r.params

	sqRingSize := p.SQOff.Array + p.SQEntries*4
	cqRingSize := p.CQOff.CQEs + p.CQEntries*uint32(unsafe.Sizeof(ringsys.CQE{}))

	singleMmap := p.Features&ringsys.FeatSingleMmap != 0
	if singleMmap && cqRingSize > sqRingSize {
		sqRingSize = cqRingSize
	}

	var err error
	r.sqRingMem, err = ringsys.Mmap(r.fd, ringsys.OffSQRing, int(sqRingSize))
	if err != nil {
		return err
	}

	if singleMmap {
		r.cqRingMem = r.sqRingMem
	} else {
		r.cqRingMem, err = ringsys.Mmap(r.fd, ringsys.OffCQRing, int(cqRingSize))
		if err != nil {
			ringsys.Munmap(r.sqRingMem)
			return err
		}
	}

	sqeSize := p.SQEntries * uint32(unsafe.Sizeof(ringsys.SQE{}))
	r.sqesMem, err = ringsys.Mmap(r.fd, ringsys.OffSQEs, int(sqeSize))
	if err != nil {
		if !singleMmap {
			ringsys.Munmap(r.cqRingMem)
		}
		ringsys.Munmap(r.sqRingMem)
		return err
	}

	r.sqEntries = *(*uint32)(unsafe.Pointer(&r.sqRingMem[p.SQOff.RingEntries]))
	r.sqMask = *(*uint32)(unsafe.Pointer(&r.sqRingMem[p.SQOff.RingMask]))
	r.sqHead = (*uint32)(unsafe.Pointer(&r.sqRingMem[p.SQOff.Head]))
	r.sqTail = (*uint32)(unsafe.Pointer(&r.sqRingMem[p.SQOff.Tail]))
	r.sqFlags = (*uint32)(unsafe.Pointer(&r.sqRingMem[p.SQOff.Flags]))
	r.sqDropped = (*uint32)(unsafe.Pointer(&r.sqRingMem[p.SQOff.Dropped]))

	sqArrayPtr := unsafe.Pointer(&r.sqRingMem[p.SQOff.Array])
	r.sqArray = unsafe.Slice((*uint32)(sqArrayPtr), r.sqEntries)

	sqesPtr := unsafe.Pointer(&r.sqesMem[0])
	r.sqes = unsafe.Slice((*ringsys.SQE)(sqesPtr), p.SQEntries)

	r.cqEntries = *(*uint32)(unsafe.Pointer(&r.cqRingMem[p.CQOff.RingEntries]))
	r.cqMask = *(*uint32)(unsafe.Pointer(&r.cqRingMem[p.CQOff.RingMask]))
	r.cqHead = (*uint32)(unsafe.Pointer(&r.cqRingMem[p.CQOff.Head]))
	r.cqTail = (*uint32)(unsafe.Pointer(&r.cqRingMem[p.CQOff.Tail]))
	r.cqFlags = (*uint32)(unsafe.Pointer(&r.cqRingMem[p.CQOff.Flags]))
	r.cqOverflow = (*uint32)(unsafe.Pointer(&r.cqRingMem[p.CQOff.Overflow]))

	cqesPtr := unsafe.Pointer(&r.cqRingMem[p.CQOff.CQEs])
	r.cqes = unsafe.Slice((*ringsys.CQE)(cqesPtr), r.cqEntries)

	return nil
}

// Fd returns the ring's own file descriptor.
func (r *Ring) Fd() int { return r.fd }

// Close unmaps every region and closes the ring fd. Safe to call more than
// once.
func (r *Ring) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.params.Features&ringsys.FeatSingleMmap == 0 && r.cqRingMem != nil {
		ringsys.Munmap(r.cqRingMem)
	}
	if r.sqRingMem != nil {
		ringsys.Munmap(r.sqRingMem)
	}
	if r.sqesMem != nil {
		ringsys.Munmap(r.sqesMem)
	}
	return unix.Close(r.fd)
}

// TryPush appends entry to the submission queue if there is room, filling
// in its position in the SQ index array. It does not make the entry
// visible to the kernel; call Submit for that.
func (r *Ring) TryPush(entry *ringsys.SQE) bool {
	r.sqMu.Lock()
	defer r.sqMu.Unlock()

	head := atomic.LoadUint32(r.sqHead)
	tail := *r.sqTail + r.sqPending
	if tail-head >= r.sqEntries {
		return false
	}

	idx := tail & r.sqMask
	r.sqes[idx] = *entry
	r.sqArray[idx] = idx
	r.sqPending++
	return true
}

// SQSpace reports how many more entries TryPush can currently accept.
func (r *Ring) SQSpace() uint32 {
	r.sqMu.Lock()
	defer r.sqMu.Unlock()
	head := atomic.LoadUint32(r.sqHead)
	tail := *r.sqTail + r.sqPending
	return r.sqEntries - (tail - head)
}

func (r *Ring) needsWakeup() bool {
	if r.params.Flags&ringsys.SetupSQPoll == 0 {
		return false
	}
	return atomic.LoadUint32(r.sqFlags)&ringsys.SQNeedWakeup != 0
}

// publish makes every TryPush'd entry since the last publish visible to the
// kernel by advancing the SQ tail with release-store semantics, and returns
// the number of entries published.
func (r *Ring) publish() uint32 {
	r.sqMu.Lock()
	n := r.sqPending
	if n == 0 {
		r.sqMu.Unlock()
		return 0
	}
	tail := atomic.LoadUint32(r.sqTail)
	atomic.StoreUint32(r.sqTail, tail+n)
	r.sqPending = 0
	r.sqMu.Unlock()
	return n
}

// Submit publishes pending entries and calls io_uring_enter, optionally
// waiting for minComplete completions (0 means don't wait at all).
func (r *Ring) Submit(minComplete uint32, timeout *ringsys.Timespec) (int, error) {
	if r.closed.Load() {
		return 0, ErrRingClosed
	}

	n := r.publish()

	var flags uint32
	if r.needsWakeup() {
		flags |= ringsys.EnterSQWakeup
	}
	if minComplete > 0 {
		flags |= ringsys.EnterGetevents
	}

	if r.params.Flags&ringsys.SetupSQPoll != 0 && flags&ringsys.EnterSQWakeup == 0 && minComplete == 0 {
		return int(n), nil
	}

	var arg *ringsys.GeteventsArg
	if timeout != nil {
		arg = &ringsys.GeteventsArg{Ts: uint64(uintptr(unsafe.Pointer(timeout)))}
		flags |= ringsys.EnterExtArg
	}

	got, err := ringsys.Enter(r.fd, n, minComplete, flags, arg)
	if err != nil {
		return 0, err
	}
	return got, nil
}

// FillCompletions copies up to len(dst) ready completions into dst,
// advancing the CQ head, and reports whether more were left in the ring.
func (r *Ring) FillCompletions(dst []ringsys.CQE) (n int, more bool) {
	head := atomic.LoadUint32(r.cqHead)
	tail := atomic.LoadUint32(r.cqTail)
	avail := tail - head

	n = len(dst)
	if uint32(n) > avail {
		n = int(avail)
	}
	for i := 0; i < n; i++ {
		dst[i] = r.cqes[(head+uint32(i))&r.cqMask]
	}
	atomic.StoreUint32(r.cqHead, head+uint32(n))
	return n, avail > uint32(n)
}

// CQReady reports how many completions are waiting to be drained.
func (r *Ring) CQReady() uint32 {
	head := atomic.LoadUint32(r.cqHead)
	tail := atomic.LoadUint32(r.cqTail)
	return tail - head
}

// SQIsFull reports whether TryPush would currently fail.
func (r *Ring) SQIsFull() bool {
	return r.SQSpace() == 0
}

// CQIsFull reports whether the completion queue has no room left for the
// kernel to post into (used by the backpressure heuristic only).
func (r *Ring) CQIsFull() bool {
	return r.CQReady() >= r.cqEntries
}

