package task

import "errors"

// ErrCancelled is returned by a JoinHandle whose task was aborted, whose
// owning Set was shut down before the task ran, or was shut down while the
// task was still outstanding.
var ErrCancelled = errors.New("task: cancelled")

// ErrPanicked is returned by a JoinHandle whose task's poll function
// panicked.
var ErrPanicked = errors.New("task: panicked")

// JoinHandle observes the result of a spawned task. It holds one reference
// on the task's header; the caller must eventually call Drop if they never
// poll it to completion (Poll releases it implicitly on completion).
type JoinHandle[T any] struct {
	h      *header
	cell   *Cell[T]
	polled bool
}

func newJoinHandle[T any](h *header, c *Cell[T]) *JoinHandle[T] {
	return &JoinHandle[T]{h: h, cell: c}
}

// Poll returns the task's result if it has completed. wake is registered
// to be called once if the task has not yet completed.
func (j *JoinHandle[T]) Poll(wake func()) (value T, err error, ready bool) {
	if j.polled {
		panic("task: JoinHandle polled after completion")
	}
	already := j.h.setJoinWaker(wake)
	if !already {
		return value, nil, false
	}
	j.polled = true
	defer j.h.decref()
	return j.result()
}

func (j *JoinHandle[T]) result() (T, error, bool) {
	switch j.h.outcome {
	case OutcomeOK:
		return j.cell.takeOutput(), nil, true
	case OutcomeCancelled:
		var zero T
		return zero, ErrCancelled, true
	case OutcomePanicked:
		var zero T
		return zero, ErrPanicked, true
	default:
		panic("task: JoinHandle result requested before completion")
	}
}

// Abort requests cancellation of the task. If the task is not currently
// running and has not completed, it is scheduled so that its next run
// observes Cancelled instead of making further progress; idempotent.
func (j *JoinHandle[T]) Abort() {
	h := j.h
	h.mu.Lock()
	if h.state&flagComplete != 0 {
		h.mu.Unlock()
		return
	}
	already := h.state&flagCancelled != 0
	h.state |= flagCancelled
	running := h.state&flagRunning != 0
	h.mu.Unlock()
	if already {
		return
	}
	if !running {
		h.wake()
	}
}

// Drop releases the join handle's reference on the task's header without
// observing its output (if any); the task still runs to completion, but a
// completed OutcomeOK's output is discarded rather than returned.
func (j *JoinHandle[T]) Drop() {
	j.h.decref()
}
