// Package trace records the execution interleaving of a simulation run.
//
// The trace captures logical scheduler decisions in the order they were
// taken: which unit was dispatched, where it blocked and why, when it
// completed. For a fixed task graph and inputs the scheduler is fully
// deterministic, so the canonical encoding (and therefore Hash) must be
// byte-for-byte identical across runs. Ordering IS the payload here; events
// are never sorted or normalized after the fact.
//
// Determinism constraints on events:
//   - No timestamps.
//   - No goroutine IDs, pointers, or any runtime-dependent values.
//   - Reasons are stable diagnostic strings derived from graph names only.
package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// EventKind is the stable discriminator for interleaving events.
// The string values are part of the trace's canonical bytes; do not rename.
type EventKind string

const (
	EventInstantiated EventKind = "Instantiated"
	EventStarted      EventKind = "Started"
	EventBlocked      EventKind = "Blocked"
	EventResumed      EventKind = "Resumed"
	EventYielded      EventKind = "Yielded"
	EventCompleted    EventKind = "Completed"
)

// Event is a single scheduler decision.
//
// Task is the hierarchical task path (parent/child). Reason carries the
// wait-reason for Blocked and Yielded events and is empty otherwise.
type Event struct {
	Seq    int       `json:"seq"`
	Kind   EventKind `json:"kind"`
	Task   string    `json:"task"`
	Reason string    `json:"reason,omitempty"`
}

// Trace is the ordered record of one simulation run.
type Trace struct {
	Graph  string  `json:"graph"`
	Events []Event `json:"events"`
}

// Validate checks basic invariants and returns a descriptive error.
func (t *Trace) Validate() error {
	if t == nil {
		return fmt.Errorf("trace is nil")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Task == "" {
			return fmt.Errorf("events[%d].task is required", i)
		}
		if e.Seq != i {
			return fmt.Errorf("events[%d].seq is %d, want %d", i, e.Seq, i)
		}
	}
	return nil
}

// CanonicalJSON returns the canonical byte encoding of the trace.
//
// encoding/json emits struct fields in declaration order, so the standard
// marshaler is already canonical for this shape.
func (t *Trace) CanonicalJSON() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(t)
}

// Hash returns the sha256 hex digest of the canonical encoding.
//
// Two runs of the same graph with the same inputs must produce equal hashes;
// a differing hash witnesses a scheduler determinism regression.
func (t *Trace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeHash(b), nil
}

// ComputeHash hashes an already-canonical encoding (sha256, hex-encoded).
func ComputeHash(canonicalEncoding []byte) string {
	if len(canonicalEncoding) == 0 {
		return ""
	}
	sum := sha256.Sum256(canonicalEncoding)
	return hex.EncodeToString(sum[:])
}
