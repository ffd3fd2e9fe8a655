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
	"github.com/ringrt/ringrt/internal/op"
	"github.com/ringrt/ringrt/internal/uring"
)

// RingPark adapts a ring driver to Park, making it the concrete
// implementation a production executor parks on. It also implements
// submitterProvider, so NewLocalExecutor automatically wires its Handle's
// Submitter to the same driver.
type RingPark struct {
	driver *uring.Driver
}

// NewRingPark creates a ring driver with at least entries submission queue
// slots and wraps it as a RingPark, ready to pass to NewLocalExecutor.
func NewRingPark(entries uint32, opts ...uring.Option) (*RingPark, error) {
	d, err := uring.NewDriver(entries, opts...)
	if err != nil {
		return nil, err
	}
	return &RingPark{driver: d}, nil
}

// newRingParkConfigured builds a RingPark the way NewRingPark does, applying
// cfg's ring-setup options plus the NeedsParkChecksRings toggle (not a ring
// setup flag, so it is applied to the driver after construction instead of
// folded into uring.Option).
func newRingParkConfigured(entries uint32, cfg Config) (*RingPark, error) {
	d, err := uring.NewDriver(entries, cfg.ringOptions()...)
	if err != nil {
		return nil, err
	}
	d.SetNeedsParkChecksRings(cfg.NeedsParkChecksRings)
	d.SetLoggers(cfg.debugLogger(), cfg.errorLogger())
	d.SetClock(cfg.clock())
	return &RingPark{driver: d}, nil
}

// Submitter returns the driver's Handle as an op.Submitter.
func (p *RingPark) Submitter() op.Submitter { return p.driver.Handle() }

// Enter is a no-op: the ring driver needs no per-Block setup beyond what
// Block already does generically for Current/Handle.
func (p *RingPark) Enter() (exit func()) { return nil }

func (p *RingPark) ParkFor(req ParkRequest) error {
	var mode uring.ParkMode
	switch req.Mode {
	case ParkNoWait:
		mode = uring.ParkNoWait
	case ParkNextCompletion:
		mode = uring.ParkNextCompletion
	case ParkTimeout:
		mode = uring.ParkTimeout
	}
	if err := p.driver.ParkFor(mode, req.Timeout); err != nil {
		return &SubmitError{Op: "ring_park", Err: err}
	}
	return nil
}

func (p *RingPark) NeedsPark() bool { return p.driver.NeedsPark() }

func (p *RingPark) Unparker() Unparker { return p.driver.Unparker() }

func (p *RingPark) Shutdown() { p.driver.Shutdown() }
