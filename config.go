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

package ringrt

import (
	"log"

	"github.com/jacobsa/timeutil"

	"github.com/ringrt/ringrt/internal/uring"
)

// Config collects the knobs NewRingParkConfig needs to build a ring-backed
// Park, mirroring the way fuse.MountConfig collects the knobs Mount needs
// to establish a connection: one struct, documented field by field, with
// every field optional and a documented default.
type Config struct {
	// Entries is the minimum number of submission queue slots the
	// underlying ring is set up with. Zero means use a small built-in
	// default suitable for tests and examples, not production workloads.
	Entries uint32

	// EnableSQPoll asks the kernel to poll the submission queue from a
	// dedicated kernel thread instead of trapping into the kernel on every
	// submission, trading a kernel thread for lower per-call overhead.
	EnableSQPoll bool

	// EnableIOPoll enables busy-polling completion instead of
	// interrupt-driven completion; only meaningful with backing files
	// opened O_DIRECT on devices that support polled completion.
	EnableIOPoll bool

	// NeedsParkChecksRings, when true, makes RingPark also report NeedsPark
	// true whenever the submission queue or the completion queue is full,
	// even if the run loop still has runnable tasks, so the rings are
	// serviced promptly under bursty load. NeedsPark is always true while
	// a pusher is waiting for submission queue space; with the default
	// (false) that is the only case in which the run loop stops draining
	// runnable tasks early.
	NeedsParkChecksRings bool

	// Clock supplies the current time used to timestamp the driver's debug
	// and error log lines. A nil Clock means use timeutil.RealClock().
	Clock timeutil.Clock

	// DebugLogger receives a line per park/drain cycle, the same
	// granularity the ringrt.debug flag gates when DebugLogger is left nil
	// and the process instead enables tracing from the command line.
	DebugLogger *log.Logger

	// ErrorLogger receives a line whenever a completion carries a negative
	// result for a token the operation registry no longer tracks — the one
	// way a caller could otherwise lose an error silently, because the
	// Header it would have been reported through was already released. A
	// nil ErrorLogger means use the same discard-unless-ringrt.debug logger
	// DebugLogger falls back to.
	ErrorLogger *log.Logger
}

func (c Config) clock() timeutil.Clock {
	if c.Clock != nil {
		return c.Clock
	}
	return timeutil.RealClock()
}

func (c Config) debugLogger() *log.Logger {
	if c.DebugLogger != nil {
		return c.DebugLogger
	}
	return getLogger()
}

func (c Config) errorLogger() *log.Logger {
	if c.ErrorLogger != nil {
		return c.ErrorLogger
	}
	return getLogger()
}

func (c Config) ringOptions() []uring.Option {
	var opts []uring.Option
	if c.EnableSQPoll {
		opts = append(opts, uring.WithSQPoll())
	}
	if c.EnableIOPoll {
		opts = append(opts, uring.WithIOPoll())
	}
	return opts
}

// NewRingParkConfig builds a RingPark the way NewRingPark does, except every
// knob comes from cfg instead of from New's variadic options. Entries
// default to 32 when cfg.Entries is zero.
func NewRingParkConfig(cfg Config) (*RingPark, error) {
	entries := cfg.Entries
	if entries == 0 {
		entries = 32
	}

	park, err := newRingParkConfigured(entries, cfg)
	if err != nil {
		return nil, err
	}
	return park, nil
}
