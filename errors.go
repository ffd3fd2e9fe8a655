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
	"fmt"

	"github.com/ringrt/ringrt/internal/op"
	"github.com/ringrt/ringrt/internal/task"
)

// ErrCancelled is returned by a JoinHandle whose task was aborted or whose
// executor shut down before the task completed.
var ErrCancelled = task.ErrCancelled

// ErrPanicked is returned by a JoinHandle whose task's future panicked.
var ErrPanicked = task.ErrPanicked

// ErrShuttingDown is returned by an Op or Stream (and anything built on
// them) that tries to push a submission once a Driver has entered its
// draining or shutdown state: no new operations are accepted, only
// completions already in flight are still delivered.
var ErrShuttingDown = op.ErrShuttingDown

// errNoExecutor is the panic value used by Current when called outside of a
// Block call.
const errNoExecutor = "ringrt: no executor running on this goroutine"

// SubmitError wraps a failure surfaced by the ring driver's own
// io_uring_enter(2) call, as opposed to an error reported through a CQE for
// a particular operation. RingPark.ParkFor is the one place that issues it,
// wrapping whatever the underlying Driver.ParkFor returned (a closed-ring
// sentinel or a raw errno from the syscall).
type SubmitError struct {
	Op  string
	Err error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("ringrt: submit %s: %v", e.Op, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// OpenError reports a failure to prepare an open/bind/connect-style
// operation before it ever reached the ring, e.g. an invalid path, an
// unencodable address, or an option combination the driver rejects
// outright. file.Open and netio's BindTCP/ConnectTCP/BindUDP/SendTo all
// construct one instead of returning the underlying error bare, so a
// caller can tell "this never reached the kernel" apart from an errno the
// kernel itself returned.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("ringrt: open %q: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }
