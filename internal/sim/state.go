package sim

import "fmt"

// State is the lifecycle state of a scheduled unit.
//
// Allowed transitions:
//
//	CREATED -> RUNNABLE -> RUNNING -> {BLOCKED -> RUNNABLE, RUNNABLE, COMPLETED}
//
// RUNNING -> RUNNABLE occurs only at an explicit yield point (the unit stays
// eligible and requeues). COMPLETED is terminal; there is no re-entry.
type State string

const (
	StateCreated   State = "CREATED"
	StateRunnable  State = "RUNNABLE"
	StateRunning   State = "RUNNING"
	StateBlocked   State = "BLOCKED"
	StateCompleted State = "COMPLETED"
)

// Terminal reports whether the state is terminal.
func (s State) Terminal() bool { return s == StateCompleted }

func allowedTransition(from, to State) bool {
	switch from {
	case StateCreated:
		return to == StateRunnable
	case StateRunnable:
		return to == StateRunning
	case StateRunning:
		return to == StateBlocked || to == StateRunnable || to == StateCompleted
	case StateBlocked:
		return to == StateRunnable
	default:
		return false
	}
}

// transition performs a validated state change for a unit.
//
// The caller supplies the expected prior state so that scheduler bugs become
// observable immediately. A violation is an internal invariant failure, not
// a simulation error, and panics.
func (u *unit) transition(from, to State) {
	if u.state != from {
		panic(fmt.Sprintf("sim: unit %q: expected state %s, got %s", u.path, from, u.state))
	}
	if !allowedTransition(from, to) {
		panic(fmt.Sprintf("sim: unit %q: disallowed transition %s -> %s", u.path, from, to))
	}
	u.state = to
}
