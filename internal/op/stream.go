package op

import (
	"context"

	"github.com/jacobsa/reqtrace"

	"github.com/ringrt/ringrt/internal/ringsys"
)

// Stream drives a multishot operation (multishot accept, multishot recv):
// submission works exactly like Op, but the operation keeps producing
// completions until either the kernel clears CQEResult.More or the stream
// is cancelled.
type Stream[T any] struct {
	sub    Submitter
	spec   Operation
	decode func(CQEResult) (T, error)

	phase      opPhase
	header     *Header
	cancelWait func()
	buffered   []CQEResult
	report     reqtrace.ReportFunc
}

// NewStream constructs a Stream for a multishot spec.
func NewStream[T any](sub Submitter, spec Operation, decode func(CQEResult) (T, error)) *Stream[T] {
	return &Stream[T]{sub: sub, spec: spec, decode: decode}
}

// Next polls for the next item. done=true means the stream has produced its
// final item (or error) and must not be polled again.
func (s *Stream[T]) Next(wake func()) (value T, err error, item bool, done bool) {
	for {
		switch s.phase {
		case phasePushing:
			if s.sub.ShuttingDown() {
				s.phase = phaseDone
				var zero T
				return zero, ErrShuttingDown, true, true
			}

			h := NewHeader(vtableFor(s.spec))
			var sqe ringsys.SQE
			s.spec.Configure(&sqe)
			sqe.UserData = h.Token()

			if !s.sub.TryPush(&sqe) {
				h.DecRef()
				s.cancelWait = s.sub.WaitForSpace(wake)
				return value, nil, false, false
			}
			if s.cancelWait != nil {
				s.cancelWait()
				s.cancelWait = nil
			}
			s.header = h
			s.header.SetWaker(wake)
			_, s.report = reqtrace.StartSpan(context.Background(), describeOperation(s.spec))
			s.phase = phaseAwaiting
			continue

		case phaseAwaiting:
			if len(s.buffered) == 0 {
				completions, complete := s.header.TakeCompletions()
				s.buffered = completions
				if len(s.buffered) == 0 {
					if complete {
						s.phase = phaseDone
						s.header.DecRef()
						var zero T
						s.reportDone(nil)
						return zero, nil, false, true
					}
					s.header.SetWaker(wake)
					return value, nil, false, false
				}
			}

			next := s.buffered[0]
			s.buffered = s.buffered[1:]
			done := len(s.buffered) == 0 && !next.More
			if done {
				s.phase = phaseDone
				s.header.DecRef()
			}
			v, decodeErr := s.decode(next)
			if done {
				s.reportDone(decodeErr)
			}
			return v, decodeErr, true, done

		default: // phaseDone
			panic("op: Next called after stream completion")
		}
	}
}

// reportDone closes this Stream's trace span, if one was ever opened (a
// span is only started once the operation is actually submitted, in
// phasePushing).
func (s *Stream[T]) reportDone(err error) {
	if s.report != nil {
		s.report(err)
		s.report = nil
	}
}

// Abort requests best-effort cancellation of the whole multishot request
// and relinquishes this Stream's interest in it, the same way Op.Abort
// does: idempotent, safe at any phase, and Next must not be called again
// afterward. Every intermediate completion still in flight after Abort
// (e.g. further accepted connections a multishot accept was about to
// deliver) is routed to the operation's Cleanup hook instead of being
// buffered where nothing will ever read it.
func (s *Stream[T]) Abort() {
	switch s.phase {
	case phasePushing:
		if s.cancelWait != nil {
			s.cancelWait()
			s.cancelWait = nil
		}
		s.phase = phaseDone
	case phaseAwaiting:
		s.phase = phaseDone
		s.header.MarkCancelled()
		s.sub.RequestCancel(s.header.Token())
		s.header.Abandon()
		s.reportDone(errAborted)
	}
}
