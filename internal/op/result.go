package op

import "github.com/ringrt/ringrt/internal/task"

// Result packages an Op's (value, error) pair into the single type
// task.PollFn's contract expects, so a singleshot operation can be awaited
// directly as a spawned task's root future (via ringrt.Block/ringrt.Spawn)
// without the caller hand-rolling the (T, error, bool) -> (T, bool)
// conversion at every call site.
type Result[T any] struct {
	Value T
	Err   error
}

// AsPollFn adapts o into a task.PollFn, the form Block/Spawn expect. Typed
// I/O constructors (file.Open, netio.Connect, ...) return a bare *Op[T];
// callers wrap it with AsPollFn only when they want to await it as a
// standalone task rather than embedding its Poll call in a larger
// hand-written state machine.
func AsPollFn[T any](o *Op[T]) task.PollFn[Result[T]] {
	return func(wake func()) (Result[T], bool) {
		v, err, ready := o.Poll(wake)
		return Result[T]{Value: v, Err: err}, ready
	}
}
