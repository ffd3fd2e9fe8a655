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

package ringrt

import (
	"sync"

	"github.com/ringrt/ringrt/internal/op"
	"github.com/ringrt/ringrt/internal/task"
)

// submitterProvider is implemented by Park values that can also accept
// typed I/O operations (a RingPark); tests instead use a Park stand-in
// that only exercises the task engine and leaves Submitter nil.
type submitterProvider interface {
	Submitter() op.Submitter
}

// LocalExecutor drives one task queue plus a root future to completion,
// alternating between running ready tasks and parking on the supplied Park
// implementation. It is meant to be driven by a single goroutine for its
// entire lifetime: that goroutine's call to Block is the only place
// Current resolves correctly.
type LocalExecutor struct {
	q    *task.Queue
	park Park
	sub  op.Submitter
}

// NewLocalExecutor constructs an executor around the given Park
// implementation. Ownership of park passes to the executor: its Shutdown is
// called when the executor is discarded via Close. If park also implements
// submitterProvider, its Submitter becomes available via Handle.Submitter
// and CurrentSubmitter.
func NewLocalExecutor(park Park) *LocalExecutor {
	e := &LocalExecutor{q: task.NewQueue(), park: park}
	if sp, ok := park.(submitterProvider); ok {
		e.sub = sp.Submitter()
	}
	return e
}

// Handle returns a cloneable, thread-safe reference to the executor's task
// queue that can be used to Spawn work from any goroutine, including one
// that is not currently inside Block.
func (e *LocalExecutor) Handle() Handle {
	return Handle{q: e.q, sub: e.sub}
}

// Close shuts down the task queue (cancelling every outstanding task) and
// the underlying Park implementation. It must be called exactly once, after
// the last call to Block has returned.
func (e *LocalExecutor) Close() {
	e.q.Shutdown()
	e.park.Shutdown()
}

// rootHarness adapts a single top-level PollFn into the same "is a wake
// pending" bookkeeping the task engine gives ordinary spawned tasks, without
// allocating a full task cell for it.
type rootHarness[T any] struct {
	mu       sync.Mutex
	notified bool
}

func newRootHarness[T any]() *rootHarness[T] {
	return &rootHarness[T]{notified: true}
}

func (r *rootHarness[T]) wake() {
	r.mu.Lock()
	r.notified = true
	r.mu.Unlock()
}

func (r *rootHarness[T]) takeNotified() bool {
	r.mu.Lock()
	n := r.notified
	r.notified = false
	r.mu.Unlock()
	return n
}

func (r *rootHarness[T]) isNotified() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notified
}

// Block runs the executor's loop until future completes, returning its
// value. While future is pending, Block repeatedly drains every currently
// runnable task and then parks until new work (a task wake, a ring
// completion, or an explicit unpark) is available.
func Block[T any](e *LocalExecutor, future task.PollFn[T]) T {
	if exit := e.park.Enter(); exit != nil {
		defer exit()
	}

	prev := swapCurrent(e.Handle())
	defer swapCurrent(prev)

	root := newRootHarness[T]()
	for {
		if root.takeNotified() {
			value, ready := future(root.wake)
			if ready {
				return value
			}
		}

		for {
			r, ok := e.q.Next()
			if !ok {
				break
			}
			r.Run()
			if e.park.NeedsPark() {
				break
			}
		}

		mode := ParkRequest{Mode: ParkNextCompletion}
		if root.isNotified() {
			mode = ParkRequest{Mode: ParkNoWait}
		}
		if err := e.park.ParkFor(mode); err != nil {
			debugf("park: %v", err)
		}
	}
}

// Handle is a cheap, cloneable reference to a LocalExecutor's task queue. It
// may be used to Spawn work from any goroutine, not just the one running
// Block.
type Handle struct {
	q   *task.Queue
	sub op.Submitter
}

// Submitter returns the op.Submitter typed I/O operations should be pushed
// through, or nil if this executor was not parked on a ring driver (e.g. a
// test Park stand-in exercising only the task engine).
func (h Handle) Submitter() op.Submitter { return h.sub }

var (
	currentMu sync.Mutex
	current   *Handle
)

// swapCurrent installs h as the process-wide "current executor" used by
// Current, returning whatever was installed before it. One LocalExecutor
// may be blocked at a time per call to Block; nested or concurrent Block
// calls on different goroutines must pass Handle explicitly instead of
// relying on Current, since Go exposes no per-OS-thread storage to give
// each goroutine its own slot the way the original single-thread runtime's
// thread-local context did.
func swapCurrent(h Handle) Handle {
	currentMu.Lock()
	defer currentMu.Unlock()
	var prev Handle
	if current != nil {
		prev = *current
	}
	if h.q == nil {
		current = nil
	} else {
		hc := h
		current = &hc
	}
	return prev
}

// Current returns the Handle of the LocalExecutor currently running Block
// on some goroutine. It panics if called while no executor is active.
func Current() Handle {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current == nil {
		panic(errNoExecutor)
	}
	return *current
}

// Spawn hands future to h's task queue, returning a handle that resolves
// once the task completes, is aborted, or panics.
func Spawn[T any](h Handle, future task.PollFn[T]) *task.JoinHandle[T] {
	return task.Spawn(h.q, future)
}

// SpawnCurrent spawns future onto the currently active executor, found via
// Current. It panics under the same conditions Current does.
func SpawnCurrent[T any](future task.PollFn[T]) *task.JoinHandle[T] {
	return Spawn(Current(), future)
}

// CurrentSubmitter returns the op.Submitter of the currently active
// executor. It panics under the same conditions Current does.
func CurrentSubmitter() op.Submitter {
	return Current().Submitter()
}
