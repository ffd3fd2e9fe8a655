// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

package e2e_test

import (
	"bytes"
	"net"
	"syscall"
	"testing"

	"github.com/ringrt/ringrt"
	"github.com/ringrt/ringrt/internal/op"
	"github.com/ringrt/ringrt/internal/task"
	"github.com/ringrt/ringrt/netio"

	. "github.com/jacobsa/ogletest"
)

func TestTCP(t *testing.T) { RunTests(t) }

type TCPTest struct {
}

func init() { RegisterTestSuite(&TCPTest{}) }

type echoPhase int

const (
	echoAccepting echoPhase = iota
	echoReceiving
	echoSending
)

// echoState accepts a single connection and copies whatever it reads back
// to the same connection until a zero-length read reports the peer shut
// its write side down, driven one Op at a time the way bindTCPState drives
// a multi-step bind: no single op.Op call can express "accept, then loop
// read/write", so the phases are sequenced by hand.
type echoState struct {
	l   *netio.TcpListener
	buf []byte

	phase  echoPhase
	stream *netio.TcpStream

	acceptOp *op.Op[*netio.TcpStream]
	recvOp   *op.Op[int]
	sendOp   *op.Op[int]

	n       int
	written int
}

func echoOnce(l *netio.TcpListener) task.PollFn[error] {
	st := &echoState{l: l, buf: make([]byte, 4096)}
	return st.poll
}

func (s *echoState) poll(wake func()) (error, bool) {
	for {
		switch s.phase {
		case echoAccepting:
			if s.acceptOp == nil {
				s.acceptOp = s.l.Accept()
			}
			stream, err, ready := s.acceptOp.Poll(wake)
			if !ready {
				return nil, false
			}
			if err != nil {
				return err, true
			}
			s.stream = stream
			s.phase = echoReceiving

		case echoReceiving:
			if s.recvOp == nil {
				s.recvOp = s.stream.Recv(s.buf)
			}
			n, err, ready := s.recvOp.Poll(wake)
			if !ready {
				return nil, false
			}
			s.recvOp = nil
			if err != nil {
				return err, true
			}
			if n == 0 {
				s.stream.Close()
				return nil, true
			}
			s.n = n
			s.written = 0
			s.phase = echoSending

		case echoSending:
			if s.sendOp == nil {
				s.sendOp = s.stream.Send(s.buf[s.written:s.n])
			}
			m, err, ready := s.sendOp.Poll(wake)
			if !ready {
				return nil, false
			}
			s.sendOp = nil
			if err != nil {
				return err, true
			}
			s.written += m
			if s.written >= s.n {
				s.phase = echoReceiving
			}
		}
	}
}

// A client connecting to a listener, writing 640 bytes, and reading them
// back byte for byte exercises BindTCP, ConnectTCP, Accept, Send, and Recv
// together: the full request/response path a TCP echo service is built
// from.
func (t *TCPTest) Echo() {
	park, err := ringrt.NewRingPark(64)
	AssertEq(nil, err)
	e := ringrt.NewLocalExecutor(park)
	defer e.Close()

	wildcard := &net.TCPAddr{IP: net.ParseIP("127.0.0.1")}
	listenRes := ringrt.Block(e, netio.BindTCP(wildcard, 0))
	AssertEq(nil, listenRes.Err)
	listener := listenRes.Value
	defer listener.Close()

	addr, err := listener.LocalAddr()
	AssertEq(nil, err)

	serverHandle := ringrt.Spawn(e.Handle(), echoOnce(listener))

	connectRes := ringrt.Block(e, netio.ConnectTCP(addr.(*net.TCPAddr)))
	AssertEq(nil, connectRes.Err)
	client := connectRes.Value
	defer client.Close()

	payload := bytes.Repeat([]byte("hello"), 128)
	AssertEq(640, len(payload))

	written := 0
	for written < len(payload) {
		sent := ringrt.Block(e, op.AsPollFn(client.Send(payload[written:])))
		AssertEq(nil, sent.Err)
		written += sent.Value
	}

	received := make([]byte, 0, len(payload))
	for len(received) < len(payload) {
		buf := make([]byte, 256)
		got := ringrt.Block(e, op.AsPollFn(client.Recv(buf)))
		AssertEq(nil, got.Err)
		AssertTrue(got.Value > 0)
		received = append(received, buf[:got.Value]...)
	}

	ExpectTrue(bytes.Equal(payload, received))

	shutRes := ringrt.Block(e, op.AsPollFn(client.Shutdown(syscall.SHUT_WR)))
	AssertEq(nil, shutRes.Err)

	joinErr := ringrt.Block(e, func(wake func()) (error, bool) {
		_, err, ready := serverHandle.Poll(wake)
		return err, ready
	})
	AssertEq(nil, joinErr)
}
