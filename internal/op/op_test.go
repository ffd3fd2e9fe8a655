package op

import (
	"errors"
	"testing"
)

func TestOpPushThenComplete(t *testing.T) {
	sub := &fakeSubmitter{}
	o := NewOp[int](sub, nopSpec{}, decodeInt)

	var woken bool
	wake := func() { woken = true }

	_, _, ready := o.Poll(wake)
	if ready {
		t.Fatal("expected Op to be pending after a successful push with no completion yet")
	}
	if len(sub.pushes) != 1 {
		t.Fatalf("expected exactly one push, got %d", len(sub.pushes))
	}

	token := sub.pushes[0].UserData
	h, ok := Lookup(token)
	if !ok {
		t.Fatal("expected a header registered under the pushed token")
	}

	h.PushCompletion(CQEResult{Res: 42})
	if !woken {
		t.Fatal("expected the waker to fire once a completion arrived")
	}

	v, err, ready := o.Poll(wake)
	if !ready {
		t.Fatal("expected Op to be ready after a completion")
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("value = %d, want 42", v)
	}

	if _, ok := Lookup(token); ok {
		t.Fatal("expected header to be unregistered once the Op consumed its completion")
	}
}

func TestOpPollAfterCompletionPanics(t *testing.T) {
	sub := &fakeSubmitter{}
	o := NewOp[int](sub, nopSpec{}, decodeInt)
	o.Poll(func() {})
	token := sub.pushes[0].UserData
	h, _ := Lookup(token)
	h.PushCompletion(CQEResult{Res: 1})
	o.Poll(func() {})

	defer func() {
		if recover() == nil {
			t.Fatal("expected a second Poll after completion to panic")
		}
	}()
	o.Poll(func() {})
}

func TestOpBackpressureRetry(t *testing.T) {
	sub := &fakeSubmitter{full: true}
	o := NewOp[int](sub, nopSpec{}, decodeInt)

	_, _, ready := o.Poll(func() {})
	if ready {
		t.Fatal("expected a full submission queue to leave Op pending")
	}
	if len(sub.waiters) != 1 {
		t.Fatalf("expected one registered backpressure waiter, got %d", len(sub.waiters))
	}
	if len(sub.pushes) != 0 {
		t.Fatalf("expected no push recorded while the queue was full, got %d", len(sub.pushes))
	}

	sub.releaseSpace()
	_, _, ready = o.Poll(func() {})
	if ready {
		t.Fatal("expected Op to move to awaiting, not to complete, once space freed")
	}
	if len(sub.pushes) != 1 {
		t.Fatalf("expected the retried push to land, got %d pushes", len(sub.pushes))
	}
}

func TestOpShuttingDown(t *testing.T) {
	sub := &fakeSubmitter{shuttingDown: true}
	o := NewOp[int](sub, nopSpec{}, decodeInt)

	_, err, ready := o.Poll(func() {})
	if !ready {
		t.Fatal("expected Op to resolve immediately once the submitter is shutting down")
	}
	if !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("err = %v, want ErrShuttingDown", err)
	}
}

func TestOpAbortDuringPushCancelsWaiter(t *testing.T) {
	sub := &fakeSubmitter{full: true}
	o := NewOp[int](sub, nopSpec{}, decodeInt)
	o.Poll(func() {})

	o.Abort()
	if sub.waiters[0] != nil {
		t.Fatal("expected Abort to cancel the registered backpressure waiter")
	}
}

func TestOpAbortDuringAwaitRequestsCancel(t *testing.T) {
	sub := &fakeSubmitter{}
	o := NewOp[int](sub, nopSpec{}, decodeInt)
	o.Poll(func() {})
	token := sub.pushes[0].UserData

	o.Abort()
	if len(sub.cancels) != 1 || sub.cancels[0] != token {
		t.Fatalf("cancels = %v, want [%d]", sub.cancels, token)
	}

	h, ok := Lookup(token)
	if !ok {
		t.Fatal("expected header to still be registered pending its completion")
	}
	if !h.IsCancelled() {
		t.Fatal("expected MarkCancelled to have run")
	}

	// Abort relinquishes the Op's own reference to Abandon; the header must
	// still unregister itself once the (sole, terminal) completion arrives,
	// even though nothing calls Poll again.
	h.PushCompletion(CQEResult{Res: -1})
	if _, ok := Lookup(token); ok {
		t.Fatal("expected the header to unregister itself once abandoned and complete")
	}
}
