package task

import (
	"container/list"

	"github.com/jacobsa/syncutil"
)

// Set tracks every live task cell spawned through one TaskQueue, so that
// the whole group can be cancelled in bulk on shutdown.
//
// mu guards closed (touched by Shutdown, racing Spawn from a goroutine that
// only holds a cloned Handle) and the membership list; Set is the one piece
// of task-engine state genuinely visible to more than the executor goroutine
// per spec.md §5, so it is the one that gets an invariant-checked mutex
// rather than the plain, unchecked locking the rest of this package uses.
type Set struct {
	mu     syncutil.InvariantMutex
	list   *list.List // of *header
	closed bool
}

// NewSet constructs an empty, open Set.
func NewSet() *Set {
	s := &Set{list: list.New()}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	return s
}

// checkInvariants enforces that a closed set never retains membership: once
// Shutdown runs, every bound header has been handed its shutdownFn and
// detached, so the list must be empty for as long as closed stays true.
func (s *Set) checkInvariants() {
	if s.closed && s.list.Len() != 0 {
		panic("task: closed Set still has bound headers")
	}
}

// headerElem pairs a header with its membership token in the set's list so
// that removal is O(1).
type headerElem struct {
	h    *header
	elem *list.Element
}

// bind registers h in s, unless s is closed, in which case it is not
// registered at all (the caller is expected to shut the cell down
// immediately). Returns true if registration succeeded.
//
// Membership in s is a structural index, not a counted ownership edge: bind
// does not call h.incref, and remove (below) does not call h.decref to
// match. The header's refcount instead tracks its *logical* owners (the
// join handle, the queued runnable, any cloned wakers) exactly as §4.2
// describes; once every one of those drops its reference the cell becomes
// unreachable and Go's GC reclaims it, whether or not it was ever unbound
// from a Set first.
func (s *Set) bind(h *header) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	he := &headerElem{h: h}
	he.elem = s.list.PushBack(he)
	h.unbind = func(h *header) { s.remove(he) }
	return true
}

func (s *Set) remove(he *headerElem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if he.elem == nil {
		return
	}
	s.list.Remove(he.elem)
	he.elem = nil
}

// Shutdown closes the set and cancels every task still registered in it,
// dropping their futures in place. It is idempotent and safe to call more
// than once; spawns that arrive afterwards are rejected by bind.
func (s *Set) Shutdown() {
	s.mu.Lock()
	s.closed = true
	var headers []*header
	for e := s.list.Front(); e != nil; e = e.Next() {
		he := e.Value.(*headerElem)
		headers = append(headers, he.h)
		// Detach the token up front so a later remove() call (triggered by
		// shutdownFn below, outside this lock) is a no-op instead of
		// operating on a list.Element whose generation has already moved on.
		he.elem = nil
	}
	s.list.Init()
	s.mu.Unlock()

	for _, h := range headers {
		h.shutdownFn()
	}
}

// Closed reports whether the set has been shut down.
func (s *Set) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Len returns the number of tasks currently registered.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Len()
}
