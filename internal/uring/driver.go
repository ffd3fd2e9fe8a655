//go:build linux

package uring

import (
	"errors"
	"log"
	"math"
	"time"
	"unsafe"

	"github.com/jacobsa/timeutil"
	"golang.org/x/sys/unix"

	"github.com/ringrt/ringrt/internal/notify"
	"github.com/ringrt/ringrt/internal/op"
	"github.com/ringrt/ringrt/internal/ringsys"
)

// Reserved completion tokens the driver's own drain loop handles directly,
// never routed through the operation registry. op's own token allocator
// starts at 1025, keeping every real operation safely above this range.
const (
	drainToken        uint64 = 1
	unparkerToken     uint64 = 2
	cancellationToken uint64 = 3
	closeFdToken      uint64 = 4
)

// ParkMode mirrors ringrt.ParkMode. It is redeclared here, rather than
// imported, so this package never has to import the root package: the root
// package is what constructs a Driver and adapts it to Park, and a Driver
// importing back would be a cycle. The adapter in the root package
// translates one into the other at the boundary.
type ParkMode int

const (
	ParkNoWait ParkMode = iota
	ParkNextCompletion
	ParkTimeout
)

// Shared is the ring state a Driver and every Handle cloned from it operate
// on. Every method here runs on the single goroutine driving the owning
// LocalExecutor's Block call, matching the single-threaded reactor the
// ring wraps; only the unparker and the backpressure notifier's wake
// callbacks are ever touched from another goroutine, and both already
// provide their own synchronization.
type Shared struct {
	ring         *Ring
	backpressure *notify.Notifier
	st           status
	checkRings   bool
}

// Driver drives one io_uring instance: submission, completion draining, and
// the running/draining/shutdown lifecycle a clean stop must walk through so
// every outstanding operation gets a chance to observe cancellation before
// the ring fd is closed out from under it.
type Driver struct {
	shared      *Shared
	unparker    *unparker
	unparkerBuf [8]byte
	debugLogger *log.Logger
	errorLogger *log.Logger
	clock       timeutil.Clock
}

// NewDriver creates a Driver around a freshly set-up io_uring instance with
// at least entries submission queue slots.
func NewDriver(entries uint32, opts ...Option) (*Driver, error) {
	ring, err := New(entries, opts...)
	if err != nil {
		return nil, err
	}
	up, err := newUnparker()
	if err != nil {
		ring.Close()
		return nil, err
	}
	return &Driver{
		shared: &Shared{
			ring:         ring,
			backpressure: notify.New(),
			st:           statusRunning,
		},
		unparker: up,
	}, nil
}

// SetNeedsParkChecksRings controls whether NeedsPark additionally consults
// SQ/CQ occupancy (spec.md §9's NEEDS_PARK_CHECK_RINGS toggle) rather than
// only the backpressure notifier's waiter count. Off by default; must be
// called before the driver starts parking, since it is read without
// synchronization from the single executor goroutine.
func (d *Driver) SetNeedsParkChecksRings(v bool) {
	d.shared.checkRings = v
}

// SetLoggers installs the debug and error loggers a Driver reports through:
// debug receives one line per park/drain cycle (gated the same way the rest
// of this module gates kernel-protocol tracing), error receives one line per
// completion that carries a negative result for an operation no longer
// tracked in the registry (the only way a caller could otherwise lose an
// error silently: its Header was already dropped, by Abort or by the owning
// Op/Stream going out of scope, before the kernel's answer arrived). Either
// argument may be nil to leave that logger unset.
func (d *Driver) SetLoggers(debug, errl *log.Logger) {
	d.debugLogger = debug
	d.errorLogger = errl
}

// SetClock overrides the clock used to timestamp debug log lines, letting
// tests substitute a timeutil.SimulatedClock for deterministic output. A nil
// clock (the default) falls back to timeutil.RealClock() lazily.
func (d *Driver) SetClock(c timeutil.Clock) {
	d.clock = c
}

func (d *Driver) now() time.Time {
	if d.clock == nil {
		return timeutil.RealClock().Now()
	}
	return d.clock.Now()
}

// Handle is a cheap, cloneable reference to a Driver's shared ring state,
// used to submit typed operations from anywhere a task's poll function
// runs. It implements op.Submitter.
type Handle struct {
	shared *Shared
}

// Handle returns a Handle bound to this Driver.
func (d *Driver) Handle() Handle { return Handle{shared: d.shared} }

// Unparker returns the object any goroutine can call Unpark on to
// interrupt a blocked ParkFor.
func (d *Driver) Unparker() *unparker { return d.unparker }

func (s *Shared) status() status { return s.st }

// setStatus transitions the driver's lifecycle state, waking every
// currently blocked backpressure waiter on any change so a pusher blocked
// on a full submission queue notices a shutdown even with no space having
// freed up.
func (s *Shared) setStatus(next status) {
	if next != s.st {
		s.backpressure.Notify(math.MaxInt) // wake everyone
	}
	s.st = next
}

// TryPush implements op.Submitter.
func (h Handle) TryPush(entry *ringsys.SQE) bool {
	return h.shared.ring.TryPush(entry)
}

// WaitForSpace implements op.Submitter: it registers wake against the
// driver's backpressure notifier, fired the next time a submit call frees
// up space (or the driver's status changes). The returned cancel must be
// called once the caller stops waiting, whether because it gave up or
// because a later TryPush succeeded without ever observing Poll complete.
func (h Handle) WaitForSpace(wake func()) (cancel func()) {
	w := h.shared.backpressure.Wait()
	w.Poll(wake)
	return w.Cancel
}

// RequestCancel implements op.Submitter: best-effort, fire-and-forget
// async-cancel of the operation registered under token.
func (h Handle) RequestCancel(token uint64) {
	var sqe ringsys.SQE
	sqe.Opcode = ringsys.OpAsyncCancel
	sqe.Addr = token
	sqe.Flags = ringsys.SqeCQESkipSuccess
	sqe.UserData = cancellationToken
	h.shared.tryPushRawSubmit(&sqe)
}

// ShuttingDown implements op.Submitter.
func (h Handle) ShuttingDown() bool {
	return h.shared.status() != statusRunning
}

// CloseFd issues a fire-and-forget close of fd (a raw fd, or a registered
// fixed-file index when fixed is true), used by fd's reference-counted
// handle on its last Drop instead of blocking the dropping goroutine on a
// synchronous close(2).
func (h Handle) CloseFd(fd int32, fixed bool) {
	var sqe ringsys.SQE
	sqe.Opcode = ringsys.OpClose
	sqe.Fd = fd
	if fixed {
		sqe.Flags |= ringsys.SqeFixedFile
	}
	sqe.Flags |= ringsys.SqeCQESkipSuccess
	sqe.UserData = closeFdToken
	h.shared.tryPushRawSubmit(&sqe)
}

// tryPushRawSubmit pushes entry, and if the submission queue was full,
// submits once to make room and retries. Best-effort: a second failure is
// silently dropped, matching the fire-and-forget tokens' CQE being
// discarded anyway.
func (s *Shared) tryPushRawSubmit(entry *ringsys.SQE) {
	if s.ring.TryPush(entry) {
		return
	}
	s.submit(ParkNoWait, 0)
	s.ring.TryPush(entry)
}

// cancelAll issues a best-effort cancellation of every outstanding
// request, used once while shutting down.
func (s *Shared) cancelAll() {
	var sqe ringsys.SQE
	sqe.Opcode = ringsys.OpAsyncCancel
	sqe.OpcodeFlags = ringsys.AsyncCancelAny
	sqe.Flags = ringsys.SqeCQESkipSuccess
	sqe.UserData = cancellationToken
	s.tryPushRawSubmit(&sqe)
}

// submit publishes every pending entry and calls io_uring_enter, blocking
// according to mode, and notifies the backpressure queue with however many
// entries were actually submitted (since that's exactly how much SQ space
// just freed up).
func (s *Shared) submit(mode ParkMode, timeout time.Duration) (int, error) {
	var minComplete uint32
	var ts *ringsys.Timespec
	switch mode {
	case ParkTimeout:
		t := ringsys.Timespec{Sec: int64(timeout / time.Second), Nsec: int64(timeout % time.Second)}
		ts = &t
		minComplete = 1
	case ParkNextCompletion:
		minComplete = 1
	case ParkNoWait:
		minComplete = 0
	}
	submitted, err := s.ring.Submit(minComplete, ts)
	if err != nil {
		return 0, err
	}
	s.backpressure.Notify(submitted)
	return submitted, nil
}

// needsPark reports whether the run loop should return control to the
// driver before exhausting every runnable task, so a pusher blocked on SQ
// backpressure gets a chance to retry against freshly drained space. This
// is a much cheaper check than inspecting the ring itself, and by default
// the ring's own fullness doesn't matter unless something is actually
// waiting on it; checkRings additionally reports a full SQ or CQ.
func (s *Shared) needsPark() bool {
	if s.backpressure.Waiters() > 0 {
		return true
	}
	if s.checkRings {
		return s.ring.SQIsFull() || s.ring.CQIsFull()
	}
	return false
}

// preparePark arms the unparker's read request (if one isn't already
// outstanding) before the driver blocks inside io_uring_enter, and reports
// whether it is safe to park at all: false means either pushing the read
// failed (no SQ space) or an Unpark already arrived before this park, and
// in both cases the caller should submit without blocking rather than
// block with no way to be woken (or past a wake-up already delivered).
func (d *Driver) preparePark() bool {
	if d.shared.status() != statusRunning {
		return true
	}
	prev := d.unparker.prepare()
	if prev != unparkParked {
		var sqe ringsys.SQE
		sqe.Opcode = ringsys.OpRead
		sqe.Fd = int32(d.unparker.rawFd())
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&d.unparkerBuf[0])))
		sqe.Len = uint32(len(d.unparkerBuf))
		sqe.UserData = unparkerToken
		if !d.shared.ring.TryPush(&sqe) {
			return false
		}
	}
	return prev != unparkWoken
}

// submit prepares the unparker (when the caller intends to actually block)
// and forwards to Shared.submit.
func (d *Driver) submit(mode ParkMode, timeout time.Duration) (int, error) {
	if mode != ParkNoWait && !d.preparePark() {
		mode = ParkNoWait
	}
	return d.shared.submit(mode, timeout)
}

// drain reaps every completion currently ready, dispatching each to the
// operation registered under its token, and handling the driver's own
// reserved tokens directly. It returns the number of completions reaped.
func (d *Driver) drain() int {
	var buf [32]ringsys.CQE
	total := 0
	defer func() {
		if total > 0 && d.debugLogger != nil {
			d.debugLogger.Printf("%s drained %d completion(s)", d.now().Format(time.RFC3339Nano), total)
		}
	}()
	for {
		n, more := d.shared.ring.FillCompletions(buf[:])
		for i := 0; i < n; i++ {
			cqe := buf[i]
			switch cqe.UserData {
			case drainToken:
				d.shared.setStatus(statusShutdown)
				continue
			case unparkerToken:
				d.unparker.reset()
				continue
			case cancellationToken, closeFdToken:
				continue
			}
			if cqe.UserData < 1025 {
				// Reserved for future internal bookkeeping tokens; no
				// operation is ever issued one, so seeing one here would
				// mean a bug upstream rather than real work to dispatch.
				continue
			}
			h, ok := op.Lookup(cqe.UserData)
			if !ok {
				if cqe.Res < 0 && d.errorLogger != nil {
					d.errorLogger.Printf("%s untracked completion for token %d carried error %d",
						d.now().Format(time.RFC3339Nano), cqe.UserData, cqe.Res)
				}
				continue
			}
			h.PushCompletion(op.CQEResult{
				Res:   cqe.Res,
				Flags: cqe.Flags,
				More:  cqe.Flags&ringsys.CQEFMore != 0,
			})
		}
		total += n
		if !more {
			break
		}
	}
	return total
}

// ParkFor blocks the calling goroutine according to mode, first draining
// whatever completions are already ready (which, if any were found, turns
// the park into a non-blocking one: there's fresh work to run before
// parking again makes sense).
func (d *Driver) ParkFor(mode ParkMode, timeout time.Duration) error {
	if d.debugLogger != nil {
		d.debugLogger.Printf("%s park mode=%d timeout=%s", d.now().Format(time.RFC3339Nano), mode, timeout)
	}
	if d.drain() > 0 {
		mode = ParkNoWait
	}
	for {
		_, err := d.submit(mode, timeout)
		if err == nil {
			return nil
		}
		if errors.Is(err, unix.EBUSY) {
			d.drain()
			mode = ParkNoWait
			continue
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return err
	}
}

// NeedsPark reports whether the run loop should yield back to ParkFor
// before exhausting every currently runnable task.
func (d *Driver) NeedsPark() bool {
	return d.shared.needsPark()
}

// CQReady reports how many completions are currently waiting to be drained,
// for callers that want the run loop to yield back more eagerly than
// NeedsPark's default backpressure-only signal.
func (d *Driver) CQReady() uint32 {
	return d.shared.ring.CQReady()
}

// Shutdown walks the driver through Running -> Draining -> Shutdown:
// cancelling every outstanding request, pushing an IO_DRAIN-flagged nop as
// a marker that sequences after everything cancelled ahead of it, and
// parking until that marker's completion confirms the ring is quiescent.
// Safe to call more than once.
func (d *Driver) Shutdown() {
	if d.shared.ring.closed.Load() {
		return
	}
	for d.shared.status() != statusShutdown {
		switch d.shared.status() {
		case statusRunning:
			d.unparker.Unpark()
			d.shared.submit(ParkNoWait, 0)
			d.shared.cancelAll()

			var nop ringsys.SQE
			nop.Opcode = ringsys.OpNop
			nop.Flags = ringsys.SqeIODrain
			nop.UserData = drainToken
			if d.shared.ring.TryPush(&nop) {
				d.shared.setStatus(statusDraining)
			}
		case statusDraining:
			if err := d.ParkFor(ParkNextCompletion, 0); err != nil {
				return
			}
		}
	}
	d.unparker.close()
	d.shared.ring.Close()
}
