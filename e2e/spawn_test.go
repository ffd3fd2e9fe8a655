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
	"testing"

	"github.com/ringrt/ringrt"
	"github.com/ringrt/ringrt/internal/task"

	. "github.com/jacobsa/ogletest"
)

func TestSpawn(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type SpawnTest struct {
}

func init() { RegisterTestSuite(&SpawnTest{}) }

// newExecutor builds a RingPark-backed executor with a small ring, good
// enough for every scenario here that doesn't need to exercise backpressure
// directly.
func newExecutor(t *SpawnTest, entries uint32) *ringrt.LocalExecutor {
	park, err := ringrt.NewRingPark(entries)
	AssertEq(nil, err)
	return ringrt.NewLocalExecutor(park)
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

// A spawned task that returns a plain value resolves once joined, the
// simplest possible round trip through Spawn/JoinHandle.
func (t *SpawnTest) SpawnThenJoin() {
	e := newExecutor(t, 32)
	defer e.Close()

	h := ringrt.Spawn(e.Handle(), func(wake func()) (int, bool) {
		return 1 + 1, true
	})

	result := ringrt.Block(e, func(wake func()) (int, bool) {
		v, err, ready := h.Poll(wake)
		AssertEq(nil, err)
		return v, ready
	})

	ExpectEq(2, result)
}

// Spawning against a handle whose executor has already been closed resolves
// to ErrCancelled the first time it is polled, rather than hanging or
// panicking: Queue.Shutdown marks every task (including ones spawned after
// the fact) cancelled up front.
func (t *SpawnTest) SpawnAfterShutdown() {
	park, err := ringrt.NewRingPark(32)
	AssertEq(nil, err)
	e := ringrt.NewLocalExecutor(park)
	handle := e.Handle()
	e.Close()

	h := ringrt.Spawn(handle, func(wake func()) (int, bool) {
		return 42, true
	})

	_, err, ready := h.Poll(func() {})
	AssertTrue(ready)
	ExpectEq(task.ErrCancelled, err)
}
