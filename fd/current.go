package fd

import "github.com/ringrt/ringrt"

// NewCurrent wraps raw using the currently active executor's ring driver
// as the Closer, for typed I/O code running inside a spawned task or
// inside Block. It panics under the same conditions ringrt.Current does.
func NewCurrent(raw int32, kind Kind) *Fd {
	return New(raw, kind, currentCloser())
}

// currentCloser fetches the active executor's Submitter and asserts it
// also implements Closer. Every production Submitter (a ring driver's
// Handle) does; the assertion only fails against a test Park stand-in that
// exercises the task engine without a real driver, in which case Release
// silently discards the close instead of panicking.
func currentCloser() Closer {
	sub := ringrt.CurrentSubmitter()
	if c, ok := sub.(Closer); ok {
		return c
	}
	return discardCloser{}
}

type discardCloser struct{}

func (discardCloser) CloseFd(fd int32, fixed bool) {}
