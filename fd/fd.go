// Package fd implements a reference-counted file descriptor: the shared
// ownership a single open regular file or fixed-file slot needs once both
// the typed I/O handle wrapping it and every operation still in flight
// against it can outlive one another.
package fd

import "sync"

// Kind distinguishes a plain kernel file descriptor from a fixed-file slot
// registered with the ring (IORING_REGISTER_FILES): an operation against a
// fixed file carries IOSQE_FIXED_FILE and names it by its registered index
// rather than its real fd number.
type Kind int

const (
	KindRaw Kind = iota
	KindFixed
)

// Closer is the subset of a ring driver's Handle a Fd needs on its last
// release: a fire-and-forget close, so the goroutine dropping the last
// reference never blocks on close(2).
type Closer interface {
	CloseFd(fd int32, fixed bool)
}

// Fd is a reference-counted file descriptor. Its last Release issues an
// asynchronous close against closer rather than calling close(2) directly,
// since whatever goroutine happens to drop the last reference has no
// particular reason to be the one running the executor loop.
//
// Unlike the original this is adapted from, the Closer a Fd will use is
// captured once at construction rather than looked up again at release
// time: Go has no equivalent of a cheap thread-local driver handle to
// re-fetch from an arbitrary goroutine, and storing it up front means
// Release can never panic for having outlived its executor.
type Fd struct {
	mu       sync.Mutex
	refcount int
	raw      int32
	kind     Kind
	closer   Closer
}

// New wraps raw (a real fd, or a fixed-file index when kind is KindFixed)
// with a starting reference count of 1, closing through closer once the
// last reference is released.
func New(raw int32, kind Kind, closer Closer) *Fd {
	return &Fd{refcount: 1, raw: raw, kind: kind, closer: closer}
}

// Raw returns the underlying fd number or fixed-file index.
func (f *Fd) Raw() int32 { return f.raw }

// Fixed reports whether Raw is a fixed-file index rather than a real fd.
func (f *Fd) Fixed() bool { return f.kind == KindFixed }

// Clone adds a reference and returns the same Fd. A submitted-but-not-yet-
// complete operation holds one of these across its own lifetime,
// independent of whatever holds the File/TcpStream/etc. that issued it.
func (f *Fd) Clone() *Fd {
	f.mu.Lock()
	f.refcount++
	f.mu.Unlock()
	return f
}

// Release drops one reference. Once the last reference is released, the
// fd (or fixed-file slot) is closed asynchronously via Closer.
func (f *Fd) Release() {
	f.mu.Lock()
	f.refcount--
	zero := f.refcount == 0
	f.mu.Unlock()
	if !zero {
		return
	}
	f.closer.CloseFd(f.raw, f.kind == KindFixed)
}
