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
	"github.com/ringrt/ringrt"
	"github.com/ringrt/ringrt/internal/op"
	"github.com/ringrt/ringrt/internal/ringsys"
	"github.com/ringrt/ringrt/internal/task"
)

// nopSpec submits a bare IORING_OP_NOP, the cheapest possible round trip
// through the ring: no fd, no buffer, just a completion.
type nopSpec struct{}

func (nopSpec) Configure(sqe *ringsys.SQE) { sqe.Opcode = ringsys.OpNop }

func submitNop() *op.Op[struct{}] {
	return op.NewOp(ringrt.CurrentSubmitter(), nopSpec{}, func(op.CQEResult) (struct{}, error) {
		return struct{}{}, nil
	})
}

// nopTask wraps a fresh Nop operation as a task.PollFn, ready to hand
// straight to Spawn; its result is whatever error (if any) the operation
// resolved with.
func nopTask() task.PollFn[error] {
	o := submitNop()
	return func(wake func()) (error, bool) {
		_, err, ready := o.Poll(wake)
		return err, ready
	}
}

// raceOutcome reports which of a pair of raced Nop operations completed
// first, mirroring a select! over two futures: whichever resolves first
// wins, and the loser's interest is relinquished via Abort rather than left
// to complete unobserved.
type raceOutcome struct {
	winner int
}

// raceNops polls a and b together, completing as soon as either does and
// aborting whichever one lost the race.
func raceNops(a, b *op.Op[struct{}]) task.PollFn[raceOutcome] {
	return func(wake func()) (raceOutcome, bool) {
		if _, _, ready := a.Poll(wake); ready {
			b.Abort()
			return raceOutcome{winner: 0}, true
		}
		if _, _, ready := b.Poll(wake); ready {
			a.Abort()
			return raceOutcome{winner: 1}, true
		}
		return raceOutcome{}, false
	}
}

// joinAll drives every handle to completion, collecting the first error (if
// any) encountered across all of them. It only returns ready once every
// handle has produced a result. When record is non-nil, it is called once
// per handle, with the handle's index and join error, as that handle
// completes.
func joinAll[T any](handles []*task.JoinHandle[T], record func(i int, err error)) task.PollFn[error] {
	done := make([]bool, len(handles))
	var firstErr error
	remaining := len(handles)
	return func(wake func()) (error, bool) {
		for i, h := range handles {
			if done[i] {
				continue
			}
			_, err, ready := h.Poll(wake)
			if !ready {
				continue
			}
			done[i] = true
			remaining--
			if record != nil {
				record(i, err)
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr, remaining == 0
	}
}
