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

// Package ringrt implements a single-threaded asynchronous runtime built
// around a Linux io_uring submission/completion ring.
//
// The primary elements of interest are:
//
//  *  LocalExecutor, which drives spawned tasks and a root future to
//     completion by alternating between running ready tasks and parking the
//     calling goroutine via a Park implementation.
//
//  *  Spawn and Handle, which let code running inside a LocalExecutor (or
//     holding a cloned Handle) hand off additional work to the same task
//     queue.
//
//  *  RingPark, the Park implementation that backs a LocalExecutor with an
//     actual io_uring instance by adapting the internal uring package's
//     Driver, and the fd/file/netio/bufring packages, which build typed
//     asynchronous I/O primitives on top of a Driver.
//
// This package deliberately has no stackful coroutines and no implicit
// global scheduler: every asynchronous operation is a pollable state machine
// with an explicit registered wake handle, driven from a single run loop.
package ringrt
