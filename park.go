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

import "time"

// ParkMode tells a Park implementation how long it is allowed to block the
// calling goroutine for.
type ParkMode int

const (
	// ParkNoWait means work is known to be available already; Park must
	// return immediately without blocking, after doing at most one
	// non-blocking poll for newly arrived completions.
	ParkNoWait ParkMode = iota
	// ParkNextCompletion means Park may block indefinitely until at least
	// one completion (or unpark) arrives.
	ParkNextCompletion
	// ParkTimeout means Park may block, but never longer than the
	// associated duration.
	ParkTimeout
)

// ParkRequest is passed to Park; Timeout is only meaningful when Mode is
// ParkTimeout.
type ParkRequest struct {
	Mode    ParkMode
	Timeout time.Duration
}

// Unparker lets any goroutine (not just the one running the executor loop)
// force a blocked Park call to return early. Implementations must be safe
// to clone and to call concurrently with Park.
type Unparker interface {
	Unpark()
}

// Park abstracts the blocking step of a LocalExecutor's run loop. RingPark
// satisfies Park by turning it (through the ring Driver) into an
// io_uring_enter(2) call that both
// submits pending work and waits for completions; tests instead use a
// trivial no-op or condvar-based implementation so task-engine behavior can
// be exercised without a kernel ring.
type Park interface {
	// Enter is called once, for the duration of a single Block call,
	// before the run loop starts. The returned function (if non-nil) is
	// called when Block returns, mirroring a scope guard.
	Enter() (exit func())

	// ParkFor blocks the calling goroutine according to req, returning
	// once at least one unit of new work might be available (a
	// completion, an unpark, or the requested timeout elapsing).
	ParkFor(req ParkRequest) error

	// NeedsPark reports whether the implementation wants control back
	// before the run loop exhausts every currently runnable task — used
	// by drivers that must periodically resubmit to bound queue depth.
	NeedsPark() bool

	// Unparker returns a handle any goroutine can use to interrupt a
	// blocked ParkFor call.
	Unparker() Unparker

	// Shutdown releases any resources and unblocks anything parked,
	// called once when the owning LocalExecutor is discarded.
	Shutdown()
}
