package op

import (
	"testing"

	"github.com/ringrt/ringrt/internal/ringsys"
)

func TestStreamMultishotProducesUntilDone(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewStream[int](sub, nopSpec{}, decodeInt)

	_, _, item, done := s.Next(func() {})
	if item || done {
		t.Fatal("expected the first Next to be pending after a successful push")
	}
	token := sub.pushes[0].UserData
	h, ok := Lookup(token)
	if !ok {
		t.Fatal("expected a header registered under the pushed token")
	}

	h.PushCompletion(CQEResult{Res: 1, More: true})
	h.PushCompletion(CQEResult{Res: 2, More: true})
	h.PushCompletion(CQEResult{Res: 3, More: false})

	var got []int
	for {
		v, err, item, done := s.Next(func() {})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if item {
			got = append(got, v)
		}
		if done {
			break
		}
	}

	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got = %v, want %v", got, want)
		}
	}

	if _, ok := Lookup(token); ok {
		t.Fatal("expected header to be unregistered once the stream's final item was consumed")
	}
}

func TestStreamSurfacesNegativeTerminalResultAsItem(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewStream[int](sub, nopSpec{}, decodeInt)
	s.Next(func() {})
	token := sub.pushes[0].UserData
	h, _ := Lookup(token)

	// The kernel can deliver a terminal completion with More clear and a
	// negative result (e.g. an accept loop torn down by cancellation); the
	// stream still reports it through item/err rather than dropping it.
	h.PushCompletion(CQEResult{Res: -1})

	_, err, item, done := s.Next(func() {})
	if !item {
		t.Fatal("expected the terminal completion to still be surfaced as an item")
	}
	if err == nil {
		t.Fatal("expected a decode error for a negative terminal result")
	}
	if !done {
		t.Fatal("expected the stream to report done once More is clear")
	}
}

func TestStreamNextAfterDonePanics(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewStream[int](sub, nopSpec{}, decodeInt)
	s.Next(func() {})
	token := sub.pushes[0].UserData
	h, _ := Lookup(token)
	h.PushCompletion(CQEResult{Res: 1})
	s.Next(func() {})

	defer func() {
		if recover() == nil {
			t.Fatal("expected Next after stream completion to panic")
		}
	}()
	s.Next(func() {})
}

func TestStreamAbortDuringAwaitRequestsCancel(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewStream[int](sub, nopSpec{}, decodeInt)
	s.Next(func() {})
	token := sub.pushes[0].UserData

	s.Abort()
	if len(sub.cancels) != 1 || sub.cancels[0] != token {
		t.Fatalf("cancels = %v, want [%d]", sub.cancels, token)
	}
}

// cleanupSpec records every intermediate completion Cleanup is called with,
// exercising the op.Cleanupper path an abandoned multishot operation (e.g.
// accept) uses to release kernel-handed resources nobody will consume.
type cleanupSpec struct {
	cleaned []CQEResult
}

func (*cleanupSpec) Configure(sqe *ringsys.SQE) {}

func (s *cleanupSpec) Cleanup(r CQEResult) {
	s.cleaned = append(s.cleaned, r)
}

func TestStreamAbortRoutesIntermediateCompletionsToCleanup(t *testing.T) {
	sub := &fakeSubmitter{}
	spec := &cleanupSpec{}
	s := NewStream[int](sub, spec, decodeInt)
	s.Next(func() {})
	token := sub.pushes[0].UserData
	h, _ := Lookup(token)

	s.Abort()
	if !h.IsCancelled() {
		t.Fatal("expected Abort to mark the header cancelled")
	}

	// Further intermediate completions arrive after the stream has given up
	// interest (the kernel does not know to stop immediately); each must be
	// cleaned up rather than buffered where nothing will ever read it.
	h.PushCompletion(CQEResult{Res: 10, More: true})
	h.PushCompletion(CQEResult{Res: 11, More: true})
	if len(spec.cleaned) != 2 || spec.cleaned[0].Res != 10 || spec.cleaned[1].Res != 11 {
		t.Fatalf("cleaned = %v, want two intermediate completions", spec.cleaned)
	}

	if _, ok := Lookup(token); !ok {
		t.Fatal("expected header to remain registered until the final completion")
	}

	// The final completion still takes the normal path and releases the
	// header's last reference via Abandon's self-draining waker.
	h.PushCompletion(CQEResult{Res: -1})
	if _, ok := Lookup(token); ok {
		t.Fatal("expected the final completion to unregister the header")
	}
}
