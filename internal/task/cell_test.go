package task

import "testing"

// TestRunningImpliesNotScheduled exercises the core scheduling invariant
// directly against the header bits: while the poll runs (Running set),
// Scheduled must be clear, and once Run returns Running must be clear too.
func TestRunningImpliesNotScheduled(t *testing.T) {
	q := NewQueue()
	var h *header
	Spawn(q, func(wake func()) (int, bool) {
		if h.is(flagScheduled) {
			t.Error("flagScheduled must be clear while the poll runs")
		}
		return 0, true
	})
	r, _ := q.Next()
	h = r.h

	// Run drives the cell to completion synchronously; by the time Run
	// returns, Running must be clear (it is a terminal cell either way).
	r.Run()
	if h.is(flagRunning) {
		t.Fatal("flagRunning must be clear once Run has returned")
	}
}

func TestCancelledDuringRunClearsRunning(t *testing.T) {
	q := NewQueue()
	h := Spawn(q, func(wake func()) (int, bool) {
		t.Fatal("cancelled task must never reach its poll function")
		return 0, true
	})
	r, _ := q.Next()
	h.Abort() // cancels before the task has ever run

	r.Run() // observes Cancelled at the start of the run

	if r.h.is(flagRunning) {
		t.Fatal("flagRunning must be clear once the cancelled run has returned")
	}

	// The join handle observes the cancellation.
	_, err, ready := h.Poll(func() {})
	if !ready || err != ErrCancelled {
		t.Fatalf("got err=%v ready=%v, want ErrCancelled", err, ready)
	}
}

func TestWakeOnAlreadyScheduledTaskDoesNotDoubleSchedule(t *testing.T) {
	q := NewQueue()
	var savedWake func()
	Spawn(q, func(wake func()) (int, bool) {
		savedWake = wake
		wake() // wake while still Running: must only mark Scheduled once
		return 0, false
	})

	r, _ := q.Next()
	r.Run()

	if n := q.Runnable(); n != 1 {
		t.Fatalf("got %d runnables, want exactly 1 (the re-publish on exit)", n)
	}

	// Calling the same logical wake again before the re-published runnable
	// is drained must be a no-op: still exactly one runnable queued.
	savedWake()
	if n := q.Runnable(); n != 1 {
		t.Fatalf("got %d runnables after redundant wake, want 1", n)
	}
}

func TestWakerCloneKeepsTaskAliveAcrossDrop(t *testing.T) {
	q := NewQueue()
	var clone Waker
	h := Spawn(q, func(wake func()) (int, bool) {
		return 7, true
	})

	r, _ := q.Next()
	// Smuggle out a clone of the waker before running, to exercise
	// Clone/Drop refcounting independent of the poll's own wake arg.
	clone = Waker{h: r.h}.Clone()
	r.Run()
	clone.Drop()

	v, err, ready := h.Poll(func() {})
	if !ready || err != nil || v != 7 {
		t.Fatalf("got v=%d err=%v ready=%v", v, err, ready)
	}
}
