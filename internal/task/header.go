// Package task implements the task engine: a reference-counted,
// single-thread-oriented task allocation that fuses a deferred computation,
// its output slot, its scheduling state and its result-observer handle into
// one allocation, per the runtime's task cell / task set / task queue
// design.
package task

import "sync"

// flag is one bit of task scheduling state.
type flag uint32

const (
	flagScheduled flag = 1 << iota
	flagRunning
	flagComplete
	flagJoinInterest
	flagCancelled
)

// Outcome is the terminal result taxonomy observable via a join handle.
type Outcome int

const (
	// OutcomeNone means the task has not yet completed.
	OutcomeNone Outcome = iota
	OutcomeOK
	OutcomeCancelled
	OutcomePanicked
)

// header is the control block shared by every reference to a task cell: the
// task set's intrusive membership, the queue's runnable, any waker clones,
// and the join handle. It is allocated once per spawn and lives until every
// reference (task-set membership, runnable, join handle, outstanding
// wakers) has been released.
//
// Poll functions run on the single executor thread, but a cloned waker may
// be handed to another goroutine and call Wake concurrently with a Run in
// progress; mu guards the handful of fields that crosses that boundary, so
// that (unlike the single-OS-thread Rust original) this remains correct
// under Go's real concurrent goroutines.
type header struct {
	mu       sync.Mutex
	refcount int
	state    flag
	outcome  Outcome

	// run is invoked by Runnable.Run; it is a closure over the concrete
	// Cell[T] bound at spawn time, erasing the generic type parameter.
	run func()
	// shutdownFn drops the future in place and marks the cell Cancelled.
	shutdownFn func()

	schedule func(r Runnable) // schedules this task's runnable
	unbind   func(h *header)  // removes this task from its owning Set

	joinWake func() // fired when the task transitions to Complete
}

func newHeader(schedule func(Runnable), unbind func(*header)) *header {
	return &header{
		refcount: 1,
		schedule: schedule,
		unbind:   unbind,
	}
}

func (h *header) incref() {
	h.mu.Lock()
	h.refcount++
	h.mu.Unlock()
}

// decref releases one reference, returning true if this was the last one.
func (h *header) decref() bool {
	h.mu.Lock()
	h.refcount--
	zero := h.refcount == 0
	h.mu.Unlock()
	return zero
}

func (h *header) is(f flag) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state&f != 0
}

func (h *header) set(f flag) {
	h.mu.Lock()
	h.state |= f
	h.mu.Unlock()
}

func (h *header) clear(f flag) {
	h.mu.Lock()
	h.state &^= f
	h.mu.Unlock()
}

// wake marks the task Scheduled. If the task is not currently running, it
// publishes a new runnable immediately; if it is running, the outgoing Run
// will observe Scheduled and re-publish on its way out, per "Running =>
// re-publish on next run".
func (h *header) wake() {
	h.mu.Lock()
	if h.state&flagComplete != 0 {
		h.mu.Unlock()
		return
	}
	alreadyScheduled := h.state&flagScheduled != 0
	running := h.state&flagRunning != 0
	h.state |= flagScheduled
	h.mu.Unlock()

	if !alreadyScheduled && !running {
		h.incref()
		h.schedule(Runnable{h: h})
	}
}

// setJoinWaker registers the function to call when the task completes. It
// returns true if the task had already completed (caller should call it
// immediately instead of storing it).
func (h *header) setJoinWaker(f func()) (alreadyComplete bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state&flagComplete != 0 {
		return true
	}
	h.joinWake = f
	h.state |= flagJoinInterest
	return false
}

func (h *header) fireJoinWaker() {
	h.mu.Lock()
	f := h.joinWake
	h.joinWake = nil
	h.mu.Unlock()
	if f != nil {
		f()
	}
}
