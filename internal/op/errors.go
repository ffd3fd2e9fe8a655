package op

import "errors"

// ErrShuttingDown is surfaced to a caller whose Op or Stream was still
// pending when the owning driver began draining.
var ErrShuttingDown = errors.New("op: ring is shutting down")

// errAborted closes out a trace span for an operation whose caller called
// Abort before a completion arrived; never surfaced to a caller, since
// Abort's contract is that Poll/Next must not be called again afterward.
var errAborted = errors.New("op: aborted")
