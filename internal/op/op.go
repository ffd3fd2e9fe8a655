package op

import (
	"context"
	"fmt"

	"github.com/jacobsa/reqtrace"

	"github.com/ringrt/ringrt/internal/ringsys"
)

// Operation is implemented by every typed I/O request (read, write,
// accept, ...). Configure fills in the request-specific fields of sqe;
// Header.Token() is written into UserData by Submitter before the entry
// reaches the ring, so Configure never has to deal with it.
type Operation interface {
	Configure(sqe *ringsys.SQE)
}

// Cleanupper is implemented by operations that hand the kernel something
// (an accepted descriptor, a selected buffer) a dropped caller will never
// consume, and that therefore needs releasing per intermediate completion
// once the operation is abandoned — §4.4's cleanup(cqe) hook.
type Cleanupper interface {
	Cleanup(r CQEResult)
}

// vtableFor builds the Header VTable for spec, wiring Cleanup through when
// spec implements Cleanupper and returning nil (the common case) otherwise.
func vtableFor(spec Operation) *VTable {
	if c, ok := spec.(Cleanupper); ok {
		return &VTable{Cleanup: c.Cleanup}
	}
	return nil
}

// Submitter is the subset of the ring driver an operation future needs: a
// best-effort, non-blocking attempt to place an entry in the submission
// queue, a way to be woken when space frees up if that attempt fails, and a
// way to ask for best-effort cancellation of an outstanding request.
type Submitter interface {
	TryPush(entry *ringsys.SQE) bool
	WaitForSpace(wake func()) (cancel func())
	RequestCancel(token uint64)
	ShuttingDown() bool
}

type opPhase int

const (
	phasePushing opPhase = iota
	phaseAwaiting
	phaseDone
)

// Op drives a singleshot operation from construction through submission
// (retrying under submission-queue backpressure) to its single completion.
// It implements the same PollFn shape the task engine uses, so it can be
// awaited directly from a spawned task's poll function.
type Op[T any] struct {
	sub    Submitter
	spec   Operation
	decode func(CQEResult) (T, error)

	phase       opPhase
	header      *Header
	cancelWait  func()
	abortOnDrop bool
	report      reqtrace.ReportFunc
}

// describeOperation names spec for a trace span, mirroring
// fuseops.describeOpType's use of the concrete request type as the span
// label.
func describeOperation(spec Operation) string {
	return fmt.Sprintf("%T", spec)
}

// NewOp constructs an Op for spec, decoding its single completion with
// decode.
func NewOp[T any](sub Submitter, spec Operation, decode func(CQEResult) (T, error)) *Op[T] {
	return &Op[T]{sub: sub, spec: spec, decode: decode}
}

// Poll implements task.PollFn[Result[T]]-shaped polling via a concrete
// (T, error) pair packed by the caller; ready is true once either a
// completion or a shutdown has produced a final result.
func (o *Op[T]) Poll(wake func()) (value T, err error, ready bool) {
	for {
		switch o.phase {
		case phasePushing:
			if o.sub.ShuttingDown() {
				o.phase = phaseDone
				var zero T
				return zero, ErrShuttingDown, true
			}

			h := NewHeader(vtableFor(o.spec))
			var sqe ringsys.SQE
			o.spec.Configure(&sqe)
			sqe.UserData = h.Token()

			if !o.sub.TryPush(&sqe) {
				h.DecRef()
				o.cancelWait = o.sub.WaitForSpace(wake)
				return value, nil, false
			}
			if o.cancelWait != nil {
				o.cancelWait()
				o.cancelWait = nil
			}
			o.header = h
			o.header.SetWaker(wake)
			_, o.report = reqtrace.StartSpan(context.Background(), describeOperation(o.spec))
			o.phase = phaseAwaiting
			continue

		case phaseAwaiting:
			completions, complete := o.header.TakeCompletions()
			if len(completions) == 0 {
				if !complete {
					o.header.SetWaker(wake)
					return value, nil, false
				}
				// Completed with zero completions only happens after a
				// cancellation race; treat as shutdown.
				o.phase = phaseDone
				o.header.DecRef()
				var zero T
				o.reportDone(ErrShuttingDown)
				return zero, ErrShuttingDown, true
			}
			result := completions[len(completions)-1]
			o.phase = phaseDone
			o.header.DecRef()
			v, decodeErr := o.decode(result)
			o.reportDone(decodeErr)
			return v, decodeErr, true

		default: // phaseDone
			panic("op: Poll called after completion")
		}
	}
}

// reportDone closes this Op's trace span, if one was ever opened (a span is
// only started once the operation is actually submitted, in phasePushing).
func (o *Op[T]) reportDone(err error) {
	if o.report != nil {
		o.report(err)
		o.report = nil
	}
}

// Abort requests best-effort cancellation of an outstanding operation and
// relinquishes this Op's interest in it: safe to call at any phase,
// idempotent (a second call is a no-op, matching §8's idempotent-abort
// law), and a no-op once the operation has already completed. After Abort,
// Poll must not be called again; the header's final completion (and the
// kernel reference it releases) is observed internally via Header.Abandon
// instead.
func (o *Op[T]) Abort() {
	switch o.phase {
	case phasePushing:
		if o.cancelWait != nil {
			o.cancelWait()
			o.cancelWait = nil
		}
		o.phase = phaseDone
	case phaseAwaiting:
		o.phase = phaseDone
		o.header.MarkCancelled()
		o.sub.RequestCancel(o.header.Token())
		o.header.Abandon()
		o.reportDone(errAborted)
	}
}
