// Package notify provides a single-threaded, intrusive FIFO wait queue.
//
// A Notifier lets callers suspend until someone calls Notify(n). It
// guarantees that exactly n waiters eventually make progress, even if some
// of them are abandoned (their Waiter dropped) in between being fired and
// being polled: a fired-but-abandoned waiter forwards its wakeup to the
// next waiter in line.
package notify

import "container/list"

// state is the lifecycle of a single entry in the wait queue.
type state int

const (
	stateUnregistered state = iota
	stateLinked
	stateFired
	stateCompleted
)

// Notifier is an intrusive FIFO of suspended waiters.
//
// The zero value is not usable; construct with New.
type Notifier struct {
	waiters *list.List // of *entry
	count   int
}

// New constructs an empty Notifier.
func New() *Notifier {
	return &Notifier{waiters: list.New()}
}

type entry struct {
	state state
	wake  func()
	elem  *list.Element
}

// Waiter is a single outstanding registration against a Notifier.
//
// It must be polled via Poll to register and observe completion, and
// Cancel must be called if the caller gives up waiting without having
// observed a completed Poll.
type Waiter struct {
	n *Notifier
	e *entry
}

// Wait returns a new Waiter pinned to this Notifier. Waiters must be
// driven with Poll.
func (n *Notifier) Wait() *Waiter {
	return &Waiter{n: n, e: &entry{state: stateUnregistered}}
}

// Poll registers the waiter (on first call) or refreshes its wake
// function, returning true once the waiter has been fired.
//
// wake is called at most once, when Notify selects this waiter. It may be
// called from any goroutine holding a reference reached via a cloned
// waker; Notifier itself is not safe for concurrent use from more than one
// goroutine at a time for Wait/Notify/Waiters, matching the single
// executor-thread model described in the runtime's concurrency model.
func (w *Waiter) Poll(wake func()) bool {
	switch w.e.state {
	case stateUnregistered:
		w.e.state = stateLinked
		w.e.wake = wake
		w.e.elem = w.n.waiters.PushBack(w.e)
		w.n.count++
		return false
	case stateLinked:
		w.e.wake = wake
		return false
	case stateFired:
		w.e.state = stateCompleted
		return true
	default: // stateCompleted
		panic("notify: Poll called after completion")
	}
}

// Cancel must be called when a Waiter is abandoned before Poll observes
// completion (the suspension point it guarded was itself cancelled).
//
// If the waiter had already been fired but not yet observed, the
// notification is forwarded to the next waiter in line so that the
// Notify(n) caller's guarantee of n eventual completions is preserved.
func (w *Waiter) Cancel() {
	switch w.e.state {
	case stateLinked:
		w.n.count--
		w.n.waiters.Remove(w.e.elem)
	case stateFired:
		w.n.Notify(1)
	}
}

// Waiters returns the number of currently linked (registered, not yet
// fired) waiters.
func (n *Notifier) Waiters() int {
	return n.count
}

// Notify fires up to n waiters from the front of the queue (FIFO) and
// returns the number actually fired.
func (n *Notifier) Notify(count int) int {
	fired := 0
	for fired != count {
		front := n.waiters.Front()
		if front == nil {
			break
		}
		n.waiters.Remove(front)
		e := front.Value.(*entry)
		e.state = stateFired
		if e.wake != nil {
			wake := e.wake
			e.wake = nil
			wake()
		}
		fired++
	}
	n.count -= fired
	return fired
}
