package op

import (
	"errors"
	"fmt"

	"github.com/ringrt/ringrt/internal/ringsys"
)

// fakeSubmitter is a Submitter test double: no kernel, no ring, just enough
// bookkeeping to exercise Op/Stream's push-retry and completion plumbing.
type fakeSubmitter struct {
	full         bool
	shuttingDown bool

	pushes  []ringsys.SQE
	waiters []func()
	cancels []uint64
}

func (f *fakeSubmitter) TryPush(entry *ringsys.SQE) bool {
	if f.full {
		return false
	}
	f.pushes = append(f.pushes, *entry)
	return true
}

func (f *fakeSubmitter) WaitForSpace(wake func()) func() {
	idx := len(f.waiters)
	f.waiters = append(f.waiters, wake)
	return func() { f.waiters[idx] = nil }
}

func (f *fakeSubmitter) RequestCancel(token uint64) {
	f.cancels = append(f.cancels, token)
}

func (f *fakeSubmitter) ShuttingDown() bool { return f.shuttingDown }

// releaseSpace clears the full flag and fires every still-registered
// waiter, the way a successful Submit freeing up SQ room would.
func (f *fakeSubmitter) releaseSpace() {
	f.full = false
	for i, w := range f.waiters {
		if w != nil {
			f.waiters[i] = nil
			w()
		}
	}
}

type nopSpec struct{}

func (nopSpec) Configure(sqe *ringsys.SQE) {}

func decodeInt(r CQEResult) (int, error) {
	if r.Res < 0 {
		return 0, fmt.Errorf("op: %w", errors.New("negative result"))
	}
	return int(r.Res), nil
}
