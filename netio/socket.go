// Package netio implements TCP and UDP sockets driven through the active
// executor's ring: bind/listen/connect/accept/send/recv/shutdown/close, all
// built on the shared Socket primitive this file defines, the same way the
// original this is adapted from factors socket.rs out from tcp.rs/udp.rs
// rather than duplicating dial/accept/send/recv logic per protocol.
package netio

import (
	"net"
	"syscall"
	"unsafe"

	"github.com/ringrt/ringrt"
	"github.com/ringrt/ringrt/fd"
	"github.com/ringrt/ringrt/internal/op"
	"github.com/ringrt/ringrt/internal/ringsys"
)

// Socket wraps a single socket descriptor with the bind/connect/accept/
// send/recv/shutdown/close operations TcpListener, TcpStream, and UdpSocket
// are all built from.
type Socket struct {
	fd *fd.Fd
}

func currentSubmitter() op.Submitter {
	return ringrt.CurrentSubmitter()
}

// newSocket submits IORING_OP_SOCKET for (domain, typ, protocol).
func newSocket(domain, typ, protocol int32) *op.Op[*Socket] {
	spec := &socketSpec{domain: domain, typ: typ, protocol: protocol}
	return op.NewOp(currentSubmitter(), spec, decodeSocket)
}

type socketSpec struct {
	domain, typ, protocol int32
}

func (s *socketSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpSocket
	sqe.Fd = s.domain
	sqe.Off = uint64(s.typ)
	sqe.Len = uint32(s.protocol)
}

func decodeSocket(r op.CQEResult) (*Socket, error) {
	if r.Res < 0 {
		return nil, syscall.Errno(-r.Res)
	}
	return &Socket{fd: fd.NewCurrent(r.Res, fd.KindRaw)}, nil
}

// Bind submits IORING_OP_BIND against addrBytes (a sockaddr the caller has
// already encoded via encodeSockaddr, kept alive by the caller for the
// duration of the returned Op).
func (s *Socket) Bind(addrBytes []byte) *op.Op[struct{}] {
	spec := &bindSpec{fd: s.fd.Raw(), addr: addrBytes}
	return op.NewOp(currentSubmitter(), spec, decodeVoid)
}

type bindSpec struct {
	fd   int32
	addr []byte
}

func (s *bindSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpBind
	sqe.Fd = s.fd
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&s.addr[0])))
	sqe.Len = uint32(len(s.addr))
}

// Listen submits IORING_OP_LISTEN with the given backlog.
func (s *Socket) Listen(backlog uint32) *op.Op[struct{}] {
	spec := &listenSpec{fd: s.fd.Raw(), backlog: backlog}
	return op.NewOp(currentSubmitter(), spec, decodeVoid)
}

type listenSpec struct {
	fd      int32
	backlog uint32
}

func (s *listenSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpListen
	sqe.Fd = s.fd
	sqe.Len = s.backlog
}

// Connect submits IORING_OP_CONNECT against addrBytes.
func (s *Socket) Connect(addrBytes []byte) *op.Op[struct{}] {
	spec := &connectSpec{fd: s.fd.Raw(), addr: addrBytes}
	return op.NewOp(currentSubmitter(), spec, decodeVoid)
}

type connectSpec struct {
	fd   int32
	addr []byte
}

func (s *connectSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpConnect
	sqe.Fd = s.fd
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&s.addr[0])))
	sqe.Off = uint64(len(s.addr))
}

// Accept submits a single-shot IORING_OP_ACCEPT, returning the newly
// accepted Socket.
func (s *Socket) Accept() *op.Op[*Socket] {
	spec := newAcceptSpec(s.fd.Raw(), false)
	return op.NewOp(currentSubmitter(), spec, decodeAccept(spec))
}

// AcceptStream submits a multishot IORING_OP_ACCEPT, producing one Socket
// per incoming connection until the stream is aborted or the listener's
// descriptor is closed. Mirrors TcpListener::incoming's Incoming stream.
func (s *Socket) AcceptStream() *op.Stream[*Socket] {
	spec := newAcceptSpec(s.fd.Raw(), true)
	return op.NewStream(currentSubmitter(), spec, decodeAccept(spec))
}

type acceptSpec struct {
	fd        int32
	multishot bool
	addrBuf   []byte
	addrLen   uint32
}

func newAcceptSpec(rawFd int32, multishot bool) *acceptSpec {
	return &acceptSpec{fd: rawFd, multishot: multishot, addrBuf: make([]byte, sockaddrLen), addrLen: sockaddrLen}
}

func (s *acceptSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpAccept
	sqe.Fd = s.fd
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&s.addrBuf[0])))
	sqe.Off = uint64(uintptr(unsafe.Pointer(&s.addrLen)))
	if s.multishot {
		sqe.IoPrio = uint16(ringsys.AcceptMultishot)
	}
}

func decodeAccept(s *acceptSpec) func(op.CQEResult) (*Socket, error) {
	return func(r op.CQEResult) (*Socket, error) {
		if r.Res < 0 {
			return nil, syscall.Errno(-r.Res)
		}
		return &Socket{fd: fd.NewCurrent(r.Res, fd.KindRaw)}, nil
	}
}

// Cleanup implements op.Cleanupper: when a multishot accept's stream is
// abandoned (its caller called Abort, or simply stopped polling), the
// kernel may still have further connections queued up that the original
// caller will now never see. Each one arrives as an intermediate
// completion carrying an accepted descriptor nobody owns; Cleanup closes
// it instead of letting it leak, mirroring Operation::cleanup in
// norn-uring/src/fs/file.rs.
func (s *acceptSpec) Cleanup(r op.CQEResult) {
	if r.Res >= 0 {
		fd.NewCurrent(r.Res, fd.KindRaw).Release()
	}
}

// Send submits IORING_OP_SEND of buf against a connected socket.
func (s *Socket) Send(buf []byte) *op.Op[int] {
	spec := &sendSpec{fd: s.fd.Raw(), buf: buf}
	return op.NewOp(currentSubmitter(), spec, decodeN)
}

type sendSpec struct {
	fd  int32
	buf []byte
}

func (s *sendSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpSend
	sqe.Fd = s.fd
	if len(s.buf) > 0 {
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&s.buf[0])))
	}
	sqe.Len = uint32(len(s.buf))
}

// Recv submits IORING_OP_RECV into buf from a connected socket.
func (s *Socket) Recv(buf []byte) *op.Op[int] {
	spec := &recvSpec{fd: s.fd.Raw(), buf: buf}
	return op.NewOp(currentSubmitter(), spec, decodeN)
}

type recvSpec struct {
	fd  int32
	buf []byte
}

func (s *recvSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpRecv
	sqe.Fd = s.fd
	if len(s.buf) > 0 {
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&s.buf[0])))
	}
	sqe.Len = uint32(len(s.buf))
}

func decodeN(r op.CQEResult) (int, error) {
	if r.Res < 0 {
		return 0, syscall.Errno(-r.Res)
	}
	return int(r.Res), nil
}

func decodeVoid(r op.CQEResult) (struct{}, error) {
	if r.Res < 0 {
		return struct{}{}, syscall.Errno(-r.Res)
	}
	return struct{}{}, nil
}

// Shutdown submits IORING_OP_SHUTDOWN with how (SHUT_RD/SHUT_WR/SHUT_RDWR).
func (s *Socket) Shutdown(how int32) *op.Op[struct{}] {
	spec := &shutdownSpec{fd: s.fd.Raw(), how: how}
	return op.NewOp(currentSubmitter(), spec, decodeVoid)
}

type shutdownSpec struct {
	fd  int32
	how int32
}

func (s *shutdownSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpShutdown
	sqe.Fd = s.fd
	sqe.Len = uint32(s.how)
}

// LocalAddr and PeerAddr use plain getsockname(2)/getpeername(2) rather
// than a ring round trip: both are non-blocking metadata reads the kernel
// answers immediately from the socket's in-memory state, the same
// reasoning the original gives for implementing these synchronously
// (`local_addr`/`peer_addr` are not `async fn` in tcp.rs/udp.rs either).
func (s *Socket) LocalAddr(network string) (net.Addr, error) {
	return getName(s.fd.Raw(), network, syscall.Getsockname)
}

func (s *Socket) PeerAddr(network string) (net.Addr, error) {
	return getName(s.fd.Raw(), network, syscall.Getpeername)
}

func getName(rawFd int32, network string, get func(int) (syscall.Sockaddr, error)) (net.Addr, error) {
	sa, err := get(int(rawFd))
	if err != nil {
		return nil, err
	}
	switch a := sa.(type) {
	case *syscall.SockaddrInet4:
		return newAddr(network, net.IP(a.Addr[:]), a.Port, ""), nil
	case *syscall.SockaddrInet6:
		return newAddr(network, net.IP(a.Addr[:]), a.Port, ""), nil
	default:
		return nil, syscall.EAFNOSUPPORT
	}
}

// Close releases the socket's descriptor. Like file.File.Close, the
// underlying close(2) is asynchronous and fire-and-forget.
func (s *Socket) Close() {
	s.fd.Release()
}

// Raw exposes the underlying Fd for TCP/UDP wrappers built on Socket.
func (s *Socket) Raw() *fd.Fd { return s.fd }
