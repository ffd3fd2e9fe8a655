// Package op implements the operation record: the per-request allocation
// that links a submitted SQE to the completions the driver later delivers
// for it, independent of which ring or which driver owns the underlying
// io_uring instance.
package op

import "sync"

// CQEResult is one completion delivered for an operation. Multishot
// operations receive more than one of these over their lifetime; singleshot
// operations receive exactly one, with More always false.
type CQEResult struct {
	Res   int32
	Flags uint32
	More  bool
}

// VTable customizes what happens when the last reference to a Header is
// released. Most operations have no extra cleanup; a few (an outstanding
// accept loop, a registered buffer ring) need to issue an async-cancel or
// unregister call so the kernel stops writing into memory nobody is reading
// anymore.
type VTable struct {
	Drop    func(h *Header)
	Cleanup func(r CQEResult)
}

// Header is the control block registered in the driver's completion
// registry under a single uint64 token: the token is what travels to the
// kernel as user_data, and back as user_data on every CQE naming this
// operation.
type Header struct {
	mu          sync.Mutex
	refcount    int
	waker       func()
	completions []CQEResult
	complete    bool
	cancelled   bool
	vtable      *VTable
	token       uint64
}

// NewHeader allocates a Header with refcount 1 and registers it in the
// package-level token registry.
func NewHeader(vtable *VTable) *Header {
	h := &Header{refcount: 1, vtable: vtable}
	h.token = register(h)
	return h
}

// Token returns the value to place in an SQE's user_data field.
func (h *Header) Token() uint64 { return h.token }

// IncRef adds a reference to the header.
func (h *Header) IncRef() {
	h.mu.Lock()
	h.refcount++
	h.mu.Unlock()
}

// DecRef releases a reference. Once the refcount reaches zero the header is
// removed from the token registry and its VTable.Drop (if any) runs.
func (h *Header) DecRef() {
	h.mu.Lock()
	h.refcount--
	zero := h.refcount == 0
	h.mu.Unlock()
	if !zero {
		return
	}
	unregister(h.token)
	if h.vtable != nil && h.vtable.Drop != nil {
		h.vtable.Drop(h)
	}
}

// SetWaker registers wake to be called the next time a completion (or
// cancellation) arrives. It overwrites any previously registered waker,
// matching the single-waiter contract every Op/Stream in this package
// relies on.
func (h *Header) SetWaker(wake func()) {
	h.mu.Lock()
	h.waker = wake
	h.mu.Unlock()
}

// PushCompletion records one CQE for this operation, marks the header
// complete if the CQE's More flag is clear, and fires whatever waker is
// currently registered. Called only from the driver's drain loop.
//
// §4.4's cleanup(cqe) hook takes over here for a cancelled header: once
// Abandon has recorded that nobody will ever call TakeCompletions again,
// every intermediate completion (More still set) is handed to the
// operation's VTable.Cleanup instead of being buffered forever, so e.g. an
// abandoned multishot accept stream closes file descriptors the kernel
// handed it rather than leaking them. The final completion (More clear)
// still takes the normal path: that is the one that releases the kernel's
// reference, and Abandon's self-draining waker is what is registered to
// observe it.
func (h *Header) PushCompletion(r CQEResult) {
	h.mu.Lock()
	if h.cancelled && r.More {
		vt := h.vtable
		h.mu.Unlock()
		if vt != nil && vt.Cleanup != nil {
			vt.Cleanup(r)
		}
		return
	}
	h.completions = append(h.completions, r)
	if !r.More {
		h.complete = true
	}
	wake := h.waker
	h.waker = nil
	h.mu.Unlock()
	if wake != nil {
		wake()
	}
}

// Abandon transfers the caller's interest in this header to the header
// itself: used by Op.Abort/Stream.Abort once the caller has stopped
// polling, so the header's ref is released as soon as the final completion
// arrives instead of being held forever by an Op/Stream nobody drives
// anymore. If the header is already complete, Abandon releases the
// reference immediately.
func (h *Header) Abandon() {
	h.mu.Lock()
	if h.complete {
		h.mu.Unlock()
		h.DecRef()
		return
	}
	h.waker = h.selfDrain
	h.mu.Unlock()
}

// selfDrain is the waker Abandon installs: it discards whatever buffered
// completions accumulated before cancellation was observed, running every
// one of them (including a final, More-clear completion) through Cleanup.
// A completion can easily have buffered in the window between the kernel
// delivering it and Abort actually being called, and once abandoned nobody
// will ever decode even a singleshot operation's one and only completion —
// so unlike PushCompletion's fast path, which only ever sees completions
// still arriving after cancellation (always intermediate, by construction:
// the final one is what lets it stop intercepting), selfDrain cannot
// assume that and cleans up everything it finds. Once the header reaches
// its terminal state, selfDrain drops the final reference.
func (h *Header) selfDrain() {
	h.mu.Lock()
	discarded := h.completions
	h.completions = nil
	complete := h.complete
	vt := h.vtable
	if !complete {
		h.waker = h.selfDrain
	}
	h.mu.Unlock()
	if vt != nil && vt.Cleanup != nil {
		for _, r := range discarded {
			vt.Cleanup(r)
		}
	}
	if complete {
		h.DecRef()
	}
}

// MarkCancelled records that cancellation was requested; it does not by
// itself produce a completion, since the kernel still owns the right to
// deliver (or not deliver) a final CQE for the cancelled request.
func (h *Header) MarkCancelled() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
}

// TakeCompletions drains and returns every completion recorded since the
// last call, along with whether the header has reached its terminal state.
func (h *Header) TakeCompletions() ([]CQEResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.completions
	h.completions = nil
	return c, h.complete
}

// IsComplete reports whether the operation has received its final
// completion (a CQE with More clear).
func (h *Header) IsComplete() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.complete
}

// IsCancelled reports whether MarkCancelled has been called.
func (h *Header) IsCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}
