package netio

import (
	"net"
	"syscall"
	"unsafe"

	"github.com/ringrt/ringrt"
	"github.com/ringrt/ringrt/bufring"
	"github.com/ringrt/ringrt/internal/op"
	"github.com/ringrt/ringrt/internal/ringsys"
	"github.com/ringrt/ringrt/internal/task"
)

// UdpSocket is a bound, unconnected UDP socket: every send/recv names its
// peer explicitly, grounded on UdpSocket::bind/send_to/recv_from in
// net/udp.rs.
type UdpSocket struct {
	sock *Socket
}

// BindUDP submits the socket/bind sequence needed to stand up a UdpSocket
// bound to addr.
func BindUDP(addr *net.UDPAddr) task.PollFn[op.Result[*UdpSocket]] {
	addrBytes, err := encodeUDPAddr(addr)
	if err != nil {
		return failedPoll[*UdpSocket](&ringrt.OpenError{Path: addr.String(), Err: err})
	}
	st := &bindUDPState{domain: domainFor(addr.IP), addr: addrBytes}
	return st.poll
}

type bindUDPPhase int

const (
	bindUDPPhaseSocket bindUDPPhase = iota
	bindUDPPhaseBind
)

type bindUDPState struct {
	phase  bindUDPPhase
	domain int32
	addr   []byte

	sockOp *op.Op[*Socket]
	bindOp *op.Op[struct{}]
	sock   *Socket
}

func (s *bindUDPState) poll(wake func()) (op.Result[*UdpSocket], bool) {
	for {
		switch s.phase {
		case bindUDPPhaseSocket:
			if s.sockOp == nil {
				s.sockOp = newSocket(s.domain, syscall.SOCK_DGRAM, 0)
			}
			sock, err, ready := s.sockOp.Poll(wake)
			if !ready {
				return op.Result[*UdpSocket]{}, false
			}
			if err != nil {
				return op.Result[*UdpSocket]{Err: err}, true
			}
			s.sock = sock
			s.phase = bindUDPPhaseBind

		case bindUDPPhaseBind:
			if s.bindOp == nil {
				s.bindOp = s.sock.Bind(s.addr)
			}
			_, err, ready := s.bindOp.Poll(wake)
			if !ready {
				return op.Result[*UdpSocket]{}, false
			}
			if err != nil {
				s.sock.Close()
				return op.Result[*UdpSocket]{Err: err}, true
			}
			return op.Result[*UdpSocket]{Value: &UdpSocket{sock: s.sock}}, true
		}
	}
}

// LocalAddr returns the address the socket is bound to.
func (u *UdpSocket) LocalAddr() (net.Addr, error) { return u.sock.LocalAddr("udp") }

// Close closes the socket.
func (u *UdpSocket) Close() { u.sock.Close() }

// Datagram pairs a received byte count with the sender's address, the
// Go shape of the original's (Result<usize>, SocketAddr) recv_from return.
type Datagram struct {
	N    int
	Addr net.Addr
}

// SendTo submits IORING_OP_SENDMSG of buf addressed to addr.
func (u *UdpSocket) SendTo(buf []byte, addr *net.UDPAddr) *op.Op[int] {
	addrBytes, err := encodeUDPAddr(addr)
	if err != nil {
		return failedOpSingle[int](&ringrt.OpenError{Path: addr.String(), Err: err})
	}
	spec := newMsgSpec(u.sock.fd.Raw(), buf, addrBytes)
	return op.NewOp(currentSubmitter(), spec, func(r op.CQEResult) (int, error) {
		if r.Res < 0 {
			return 0, syscall.Errno(-r.Res)
		}
		return int(r.Res), nil
	})
}

// RecvFrom submits IORING_OP_RECVMSG into buf, reporting both the byte
// count and the sender's address.
func (u *UdpSocket) RecvFrom(buf []byte) *op.Op[Datagram] {
	addrBuf := make([]byte, sockaddrLen)
	spec := newMsgSpec(u.sock.fd.Raw(), buf, addrBuf)
	spec.recv = true
	return op.NewOp(currentSubmitter(), spec, func(r op.CQEResult) (Datagram, error) {
		if r.Res < 0 {
			return Datagram{}, syscall.Errno(-r.Res)
		}
		addr, err := decodeSockaddr(addrBuf, "udp")
		if err != nil {
			return Datagram{}, err
		}
		return Datagram{N: int(r.Res), Addr: addr}, nil
	})
}

// RingDatagram pairs a buffer-ring lease with the sender's address, the
// recv-from-ring counterpart of Datagram: the caller must call Lease.Release
// once it is done reading Lease.Bytes() so the kernel can reuse the slot.
type RingDatagram struct {
	Lease *bufring.Lease
	Addr  net.Addr
}

// RecvFromRing submits IORING_OP_RECVMSG with IOSQE_BUFFER_SELECT against
// ring's group id instead of a caller-owned buffer, the recv-from-ring
// primitive §4.6 names alongside the plain-buffer RecvFrom: the kernel picks
// which of ring's registered buffers to fill, reported back via the
// completion's buffer-index flag rather than a buffer this call supplied.
func (u *UdpSocket) RecvFromRing(ring *bufring.BufferRing) *op.Op[RingDatagram] {
	addrBuf := make([]byte, sockaddrLen)
	spec := newRingMsgSpec(u.sock.fd.Raw(), ring, addrBuf)
	return op.NewOp(currentSubmitter(), spec, func(r op.CQEResult) (RingDatagram, error) {
		if r.Res < 0 {
			return RingDatagram{}, syscall.Errno(-r.Res)
		}
		if r.Flags&ringsys.CQEFBuffer == 0 {
			return RingDatagram{}, syscall.EINVAL
		}
		addr, err := decodeSockaddr(addrBuf, "udp")
		if err != nil {
			return RingDatagram{}, err
		}
		bufID := uint16(r.Flags >> 16)
		return RingDatagram{Lease: ring.Select(bufID, int(r.Res)), Addr: addr}, nil
	})
}

// ringMsgSpec configures IORING_OP_RECVMSG with buffer selection enabled
// against a buffer ring's group id: the msghdr still carries the sender
// address slot and an iovec, but the iovec's base is left nil (the kernel
// substitutes the buffer it selects); only iov_len, capped to the ring's
// per-buffer length, matters for the request.
type ringMsgSpec struct {
	fd      int32
	ring    *bufring.BufferRing
	addr    []byte
	iov     [1]iovec
	msghdr  msghdr
}

func newRingMsgSpec(fd int32, ring *bufring.BufferRing, addr []byte) *ringMsgSpec {
	return &ringMsgSpec{fd: fd, ring: ring, addr: addr}
}

func (s *ringMsgSpec) Configure(sqe *ringsys.SQE) {
	s.iov[0] = iovec{Len: uint64(s.ring.Length())}
	s.msghdr = msghdr{
		Name:    uint64(uintptr(unsafe.Pointer(&s.addr[0]))),
		NameLen: uint32(len(s.addr)),
		Iov:     uint64(uintptr(unsafe.Pointer(&s.iov[0]))),
		Iovlen:  1,
	}
	sqe.Opcode = ringsys.OpRecvmsg
	sqe.Fd = s.fd
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&s.msghdr)))
	sqe.Len = 1
	sqe.Flags |= ringsys.SqeBufferSelect
	sqe.BufIG = s.ring.GroupID()
}

// msgSpec configures IORING_OP_SENDMSG/RECVMSG via a hand-encoded kernel
// msghdr/iovec pair. Plain SEND/RECV (reused for TCP) carry no peer
// address, so UDP's addressed send/recv needs the msghdr-based opcodes
// instead, grounded on send_to/recv_from in net/udp.rs and the real Linux
// x86_64 struct msghdr/iovec ABI (msghdr is 56 bytes: name ptr+len, iovec
// ptr+count, control ptr+len, flags, with the compiler-inserted padding
// those fields require on a 64-bit kernel).
type msgSpec struct {
	fd      int32
	buf     []byte
	addr    []byte
	recv    bool
	iov     [1]iovec
	msghdr  msghdr
}

type iovec struct {
	Base uint64
	Len  uint64
}

type msghdr struct {
	Name       uint64
	NameLen    uint32
	_          uint32
	Iov        uint64
	Iovlen     uint64
	Control    uint64
	ControlLen uint64
	Flags      int32
	_          uint32
}

func newMsgSpec(fd int32, buf, addr []byte) *msgSpec {
	return &msgSpec{fd: fd, buf: buf, addr: addr}
}

func (s *msgSpec) Configure(sqe *ringsys.SQE) {
	if len(s.buf) > 0 {
		s.iov[0] = iovec{Base: uint64(uintptr(unsafe.Pointer(&s.buf[0]))), Len: uint64(len(s.buf))}
	} else {
		s.iov[0] = iovec{}
	}
	s.msghdr = msghdr{
		Name:    uint64(uintptr(unsafe.Pointer(&s.addr[0]))),
		NameLen: uint32(len(s.addr)),
		Iov:     uint64(uintptr(unsafe.Pointer(&s.iov[0]))),
		Iovlen:  1,
	}
	if s.recv {
		sqe.Opcode = ringsys.OpRecvmsg
	} else {
		sqe.Opcode = ringsys.OpSendmsg
	}
	sqe.Fd = s.fd
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&s.msghdr)))
	sqe.Len = 1
}

func failedOpSingle[T any](err error) *op.Op[T] {
	spec := &nopSpec{}
	return op.NewOp(currentSubmitter(), spec, func(op.CQEResult) (T, error) {
		var zero T
		return zero, err
	})
}

type nopSpec struct{}

func (nopSpec) Configure(sqe *ringsys.SQE) { sqe.Opcode = ringsys.OpNop }
