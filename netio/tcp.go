package netio

import (
	"io"
	"net"
	"syscall"

	"github.com/ringrt/ringrt"
	"github.com/ringrt/ringrt/internal/op"
	"github.com/ringrt/ringrt/internal/task"
)

const backlogDefault = 128

func domainFor(ip net.IP) int32 {
	if ip.To4() != nil {
		return afInet
	}
	return afInet6
}

// TcpListener accepts incoming TCP connections.
type TcpListener struct {
	sock *Socket
}

// BindTCP submits the socket/bind/listen sequence needed to stand up a
// TcpListener bound to addr (0 backlog selects a 128-connection default).
// Unlike a single kernel request, this is a small hand-written state
// machine over three underlying Ops, the same way a multi-step task is
// built elsewhere in this runtime: there is no single SQE for "bind a TCP
// listener", so the steps are sequenced explicitly rather than invented as
// a fictitious one-shot operation.
func BindTCP(addr *net.TCPAddr, backlog uint32) task.PollFn[op.Result[*TcpListener]] {
	if backlog == 0 {
		backlog = backlogDefault
	}
	addrBytes, err := encodeTCPAddr(addr)
	if err != nil {
		return failedPoll[*TcpListener](&ringrt.OpenError{Path: addr.String(), Err: err})
	}
	st := &bindTCPState{domain: domainFor(addr.IP), addr: addrBytes, backlog: backlog}
	return st.poll
}

type bindPhase int

const (
	bindPhaseSocket bindPhase = iota
	bindPhaseBind
	bindPhaseListen
)

type bindTCPState struct {
	phase   bindPhase
	domain  int32
	addr    []byte
	backlog uint32

	sockOp   *op.Op[*Socket]
	bindOp   *op.Op[struct{}]
	listenOp *op.Op[struct{}]
	sock     *Socket
}

func (s *bindTCPState) poll(wake func()) (op.Result[*TcpListener], bool) {
	for {
		switch s.phase {
		case bindPhaseSocket:
			if s.sockOp == nil {
				s.sockOp = newSocket(s.domain, syscall.SOCK_STREAM, 0)
			}
			sock, err, ready := s.sockOp.Poll(wake)
			if !ready {
				return op.Result[*TcpListener]{}, false
			}
			if err != nil {
				return op.Result[*TcpListener]{Err: err}, true
			}
			s.sock = sock
			s.phase = bindPhaseBind

		case bindPhaseBind:
			if s.bindOp == nil {
				s.bindOp = s.sock.Bind(s.addr)
			}
			_, err, ready := s.bindOp.Poll(wake)
			if !ready {
				return op.Result[*TcpListener]{}, false
			}
			if err != nil {
				s.sock.Close()
				return op.Result[*TcpListener]{Err: err}, true
			}
			s.phase = bindPhaseListen

		case bindPhaseListen:
			if s.listenOp == nil {
				s.listenOp = s.sock.Listen(s.backlog)
			}
			_, err, ready := s.listenOp.Poll(wake)
			if !ready {
				return op.Result[*TcpListener]{}, false
			}
			if err != nil {
				s.sock.Close()
				return op.Result[*TcpListener]{Err: err}, true
			}
			return op.Result[*TcpListener]{Value: &TcpListener{sock: s.sock}}, true
		}
	}
}

// Accept accepts a single incoming connection.
func (l *TcpListener) Accept() *op.Op[*TcpStream] {
	spec := newAcceptSpec(l.sock.fd.Raw(), false)
	decodeSocket := decodeAccept(spec)
	return op.NewOp(currentSubmitter(), spec, func(r op.CQEResult) (*TcpStream, error) {
		sock, err := decodeSocket(r)
		if err != nil {
			return nil, err
		}
		return &TcpStream{sock: sock}, nil
	})
}

// Incoming returns a multishot stream of incoming connections, mirroring
// TcpListener::incoming's Incoming stream.
func (l *TcpListener) Incoming() *op.Stream[*TcpStream] {
	spec := newAcceptSpec(l.sock.fd.Raw(), true)
	decodeSocket := decodeAccept(spec)
	return op.NewStream(currentSubmitter(), spec, func(r op.CQEResult) (*TcpStream, error) {
		sock, err := decodeSocket(r)
		if err != nil {
			return nil, err
		}
		return &TcpStream{sock: sock}, nil
	})
}

// LocalAddr returns the address the listener is bound to.
func (l *TcpListener) LocalAddr() (net.Addr, error) { return l.sock.LocalAddr("tcp") }

// Close closes the listener.
func (l *TcpListener) Close() { l.sock.Close() }

// TcpStream is a connected TCP socket.
type TcpStream struct {
	sock *Socket
}

// ConnectTCP submits the socket/connect sequence to dial addr.
func ConnectTCP(addr *net.TCPAddr) task.PollFn[op.Result[*TcpStream]] {
	addrBytes, err := encodeTCPAddr(addr)
	if err != nil {
		return failedPoll[*TcpStream](&ringrt.OpenError{Path: addr.String(), Err: err})
	}
	st := &connectTCPState{domain: domainFor(addr.IP), addr: addrBytes}
	return st.poll
}

type connectPhase int

const (
	connectPhaseSocket connectPhase = iota
	connectPhaseConnect
)

type connectTCPState struct {
	phase  connectPhase
	domain int32
	addr   []byte

	sockOp    *op.Op[*Socket]
	connectOp *op.Op[struct{}]
	sock      *Socket
}

func (s *connectTCPState) poll(wake func()) (op.Result[*TcpStream], bool) {
	for {
		switch s.phase {
		case connectPhaseSocket:
			if s.sockOp == nil {
				s.sockOp = newSocket(s.domain, syscall.SOCK_STREAM, 0)
			}
			sock, err, ready := s.sockOp.Poll(wake)
			if !ready {
				return op.Result[*TcpStream]{}, false
			}
			if err != nil {
				return op.Result[*TcpStream]{Err: err}, true
			}
			s.sock = sock
			s.phase = connectPhaseConnect

		case connectPhaseConnect:
			if s.connectOp == nil {
				s.connectOp = s.sock.Connect(s.addr)
			}
			_, err, ready := s.connectOp.Poll(wake)
			if !ready {
				return op.Result[*TcpStream]{}, false
			}
			if err != nil {
				s.sock.Close()
				return op.Result[*TcpStream]{Err: err}, true
			}
			return op.Result[*TcpStream]{Value: &TcpStream{sock: s.sock}}, true
		}
	}
}

// LocalAddr returns the local address of the stream.
func (t *TcpStream) LocalAddr() (net.Addr, error) { return t.sock.LocalAddr("tcp") }

// PeerAddr returns the address of the stream's remote peer.
func (t *TcpStream) PeerAddr() (net.Addr, error) { return t.sock.PeerAddr("tcp") }

// Send writes buf to the connected peer.
func (t *TcpStream) Send(buf []byte) *op.Op[int] { return t.sock.Send(buf) }

// Recv reads from the connected peer into buf.
func (t *TcpStream) Recv(buf []byte) *op.Op[int] { return t.sock.Recv(buf) }

// Shutdown shuts down the read, write, or both halves of the connection.
func (t *TcpStream) Shutdown(how int32) *op.Op[struct{}] { return t.sock.Shutdown(how) }

// Close closes the stream.
func (t *TcpStream) Close() { t.sock.Close() }

// Split divides the stream into independent read/write halves that
// present the ordinary io.Reader/io.Writer contract via plain blocking
// read(2)/write(2) calls on the raw descriptor, rather than an Op per
// call: a split half is meant to be handed to code written against
// io.Reader/io.Writer on its own goroutine (e.g. io.Copy in a TCP echo
// loop), outside the single-threaded executor loop that bare Ops are
// polled from, so routing it back through a ring submission would mean
// blocking that goroutine on a nested call into the executor — that
// reentrancy is exactly what this runtime's single active-executor-per-
// thread model (see Block) does not support. A direct blocking syscall on
// the descriptor gives the same observable behavior without it.
func (t *TcpStream) Split() (*TcpReadHalf, *TcpWriteHalf) {
	return &TcpReadHalf{sock: t.sock}, &TcpWriteHalf{sock: t.sock}
}

// TcpReadHalf is the read half of a split TcpStream.
type TcpReadHalf struct {
	sock *Socket
}

func (r *TcpReadHalf) Read(buf []byte) (int, error) {
	n, err := syscall.Read(int(r.sock.fd.Raw()), buf)
	if err != nil {
		return 0, err
	}
	if n == 0 && len(buf) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// TcpWriteHalf is the write half of a split TcpStream.
type TcpWriteHalf struct {
	sock *Socket
}

func (w *TcpWriteHalf) Write(buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := syscall.Write(int(w.sock.fd.Raw()), buf[written:])
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
		written += n
	}
	return written, nil
}

func failedPoll[T any](err error) task.PollFn[op.Result[T]] {
	return func(wake func()) (op.Result[T], bool) {
		return op.Result[T]{Err: err}, true
	}
}
