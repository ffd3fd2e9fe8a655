// Package bufring implements the buffer-ring typed I/O primitive: a pool of
// fixed-size buffers registered with the kernel under a group id, from which
// a receive operation (UDP recv-from-ring, per spec.md §4.6) has the kernel
// pick a buffer instead of the caller supplying one up front.
//
// spec.md §1 treats buffer-ring memory mapping (the newer, mmap'd
// io_uring_buf_ring ABI registered via IORING_REGISTER_PBUF_RING) as an
// opaque buffer provider out of scope for this core; this package instead
// grounds the same C8 contract ("builder; lends buffers selected by the
// kernel on receive; returns them on drop") on the older, simpler classic
// IORING_OP_PROVIDE_BUFFERS/IORING_OP_REMOVE_BUFFERS opcode pair, which
// needs only an ordinary Go slice as backing memory rather than a
// driver-mapped ring region.
package bufring

import (
	"sync"
	"syscall"
	"unsafe"

	"github.com/ringrt/ringrt"
	"github.com/ringrt/ringrt/internal/op"
	"github.com/ringrt/ringrt/internal/ringsys"
)

func currentSubmitter() op.Submitter {
	return ringrt.CurrentSubmitter()
}

// releaseToken tags the fire-and-forget re-provide submitted by Lease.Release,
// mirroring fd.Fd's fire-and-forget close and uring.Handle.CloseFd: values
// below 1025 are reserved driver sentinels the drain loop never routes to
// the operation registry, so no Header is allocated for this completion.
const releaseToken uint64 = 5

// Builder accumulates a buffer ring's shape (buffer count, buffer length,
// group id) before Build registers it with the currently active ring,
// mirroring the original's builder-then-register split for the same
// reason file.OpenOptions defers its own syscall to Submit: the shape is
// plain data, assembled before anything talks to the kernel.
type Builder struct {
	groupID uint16
	count   uint16
	length  uint32
}

// NewBuilder starts a Builder for the given group id, the value a
// buffer-select recv (netio's UdpSocket.RecvFromRing) names to request a
// buffer from this ring.
func NewBuilder(groupID uint16) *Builder {
	return &Builder{groupID: groupID, count: 16, length: 4096}
}

// Count sets the number of buffers in the ring. Default 16.
func (b *Builder) Count(n uint16) *Builder {
	b.count = n
	return b
}

// Length sets the size in bytes of each buffer. Default 4096.
func (b *Builder) Length(n uint32) *Builder {
	b.length = n
	return b
}

// Build allocates the backing slab and submits one IORING_OP_PROVIDE_BUFFERS
// registering every buffer in the ring under the builder's group id.
func (b *Builder) Build() *op.Op[*BufferRing] {
	r := &BufferRing{
		groupID: b.groupID,
		length:  b.length,
		count:   b.count,
		slab:    make([]byte, int(b.count)*int(b.length)),
	}
	spec := newProvideSpec(r, 0, b.count)
	return op.NewOp(currentSubmitter(), spec, func(res op.CQEResult) (*BufferRing, error) {
		if res.Res < 0 {
			return nil, syscall.Errno(-res.Res)
		}
		return r, nil
	})
}

// BufferRing is a registered pool of fixed-size buffers the kernel selects
// from on a buffer-select receive, returned by Builder.Build. Every method
// is safe to call from the executor thread only, matching every other
// typed-I/O wrapper in this runtime.
type BufferRing struct {
	mu      sync.Mutex
	groupID uint16
	length  uint32
	count   uint16
	slab    []byte
	closed  bool
}

// GroupID returns the group id recv operations reference to pull a buffer
// from this ring.
func (r *BufferRing) GroupID() uint16 { return r.groupID }

// Length returns the fixed size of each buffer in the ring.
func (r *BufferRing) Length() uint32 { return r.length }

func (r *BufferRing) bufferAt(idx uint16) []byte {
	start := int(idx) * int(r.length)
	return r.slab[start : start+int(r.length)]
}

// Lease holds Bytes(idx) returned by one completion's kernel-selected
// buffer until Release gives the slot back to the pool. Exactly one Lease
// exists per outstanding buffer id at a time: the kernel will not select an
// id again until the matching Release's re-provide lands.
type Lease struct {
	ring *BufferRing
	idx  uint16
	n    int
}

// Bytes returns the portion of the leased buffer the completion actually
// filled. Valid only until Release is called.
func (l *Lease) Bytes() []byte { return l.ring.bufferAt(l.idx)[:l.n] }

// Release returns the buffer to the kernel-visible pool via a single-buffer
// re-provide, fire-and-forget the same way fd's last-reference close is:
// the caller does not need (and the kernel does not produce) a completion
// for the common case, so SqeCQESkipSuccess is set and no Header is ever
// allocated for it.
func (l *Lease) Release() {
	l.ring.mu.Lock()
	closed := l.ring.closed
	l.ring.mu.Unlock()
	if closed {
		return
	}
	spec := newProvideSpec(l.ring, l.idx, 1)
	var sqe ringsys.SQE
	spec.Configure(&sqe)
	sqe.Flags |= ringsys.SqeCQESkipSuccess
	sqe.UserData = releaseToken
	currentSubmitter().TryPush(&sqe)
}

// Close unregisters every buffer in the ring via IORING_OP_REMOVE_BUFFERS.
// Outstanding Leases must be released (or simply dropped) before or after
// Close; Close only stops the kernel from selecting new buffers out of
// this group going forward.
func (r *BufferRing) Close() *op.Op[struct{}] {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	spec := &removeSpec{groupID: r.groupID, nbufs: r.count}
	return op.NewOp(currentSubmitter(), spec, func(res op.CQEResult) (struct{}, error) {
		if res.Res < 0 {
			return struct{}{}, syscall.Errno(-res.Res)
		}
		return struct{}{}, nil
	})
}

// Select wraps the buffer id and byte count decoded from a CQE carrying the
// CQEFBuffer flag (the kernel's buffer-select completion shape, as produced
// by netio's UdpSocket.RecvFromRing) into a Lease the caller must
// eventually Release. The caller is responsible for checking the CQE's
// result for a negative (errno) value before calling Select, same as every
// other decode function in this runtime.
func (r *BufferRing) Select(bufID uint16, n int) *Lease {
	return &Lease{ring: r, idx: bufID, n: n}
}

// provideSpec configures IORING_OP_PROVIDE_BUFFERS for count buffers
// starting at startID out of ring's slab.
type provideSpec struct {
	addr    uintptr
	length  uint32
	count   uint16
	startID uint16
	groupID uint16
}

func newProvideSpec(r *BufferRing, startID, count uint16) *provideSpec {
	var addr uintptr
	if len(r.slab) > 0 {
		addr = uintptr(unsafe.Pointer(&r.bufferAt(startID)[0]))
	}
	return &provideSpec{addr: addr, length: r.length, count: count, startID: startID, groupID: r.groupID}
}

func (s *provideSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpProvideBuffers
	sqe.Addr = uint64(s.addr)
	sqe.Len = s.length
	sqe.Fd = int32(s.count)
	sqe.Off = uint64(s.startID)
	sqe.BufIG = s.groupID
}

// removeSpec configures IORING_OP_REMOVE_BUFFERS, unregistering nbufs
// buffers from groupID.
type removeSpec struct {
	groupID uint16
	nbufs   uint16
}

func (s *removeSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpRemoveBuffers
	sqe.Fd = int32(s.nbufs)
	sqe.BufIG = s.groupID
}
