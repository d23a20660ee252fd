package sim

import (
	"errors"
	"fmt"
	"strings"
)

// The simulation error taxonomy. Every kind except ErrNotAvailable is fatal:
// the model is deterministic, so any of these signals a design defect in the
// simulated accelerator, not a transient environmental fault. A fatal error
// aborts the entire run; no unit is ever retried.
var (
	// ErrUsage is API misuse: write after close, join on a detached handle.
	ErrUsage = errors.New("usage error")

	// ErrBinding is a port direction conflict detected at instantiation.
	ErrBinding = errors.New("binding conflict")

	// ErrBounds is an out-of-range mmap access.
	ErrBounds = errors.New("mmap access out of bounds")

	// ErrDeadlock is declared when no schedulable unit can make progress.
	ErrDeadlock = errors.New("deadlock")

	// ErrNotAvailable is returned by non-blocking probes (Peek) on an empty
	// stream. It is the only non-fatal kind.
	ErrNotAvailable = errors.New("not available")
)

// Error wraps a fatal simulation failure with the identity of the task whose
// body triggered it. Task is the hierarchical path (parent/child); it is
// empty when the failure occurred outside any task body.
type Error struct {
	Kind error
	Task string
	Msg  string
}

func (e *Error) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
	}
	return fmt.Sprintf("task %q: %s: %s", e.Task, e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func usagef(task, format string, args ...any) *Error {
	return &Error{Kind: ErrUsage, Task: task, Msg: fmt.Sprintf(format, args...)}
}

func bindingf(task, format string, args ...any) *Error {
	return &Error{Kind: ErrBinding, Task: task, Msg: fmt.Sprintf(format, args...)}
}

func boundsf(task, format string, args ...any) *Error {
	return &Error{Kind: ErrBounds, Task: task, Msg: fmt.Sprintf(format, args...)}
}

// WaitStatus is one still-alive unit's diagnostic entry in a deadlock report.
type WaitStatus struct {
	Task   string
	Reason string
}

// DeadlockError carries the wait-reason of every incomplete unit at the
// moment the run queue drained. The scheduler returns it instead of hanging.
type DeadlockError struct {
	Waits []WaitStatus
}

func (e *DeadlockError) Error() string {
	var b strings.Builder
	b.WriteString("deadlock: no schedulable unit can make progress")
	for _, w := range e.Waits {
		fmt.Fprintf(&b, "; task %q waiting on %s", w.Task, w.Reason)
	}
	return b.String()
}

func (e *DeadlockError) Unwrap() error { return ErrDeadlock }
