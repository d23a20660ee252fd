package sim

import "fmt"

// TryStatus is the result of a non-blocking stream probe.
type TryStatus int

const (
	// TryOK: the operation took effect.
	TryOK TryStatus = iota
	// TryEOS: the stream has drained after Close; no value will ever arrive.
	TryEOS
	// TryWouldBlock: the blocking variant would have suspended.
	TryWouldBlock
)

// Stream is a bounded FIFO channel of one element type.
//
// Capacity models the synthesized FIFO depth and must be at least 1;
// zero-capacity rendezvous channels have no hardware equivalent and are
// rejected at construction.
//
// Exclusivity: at most one live reader binding and one live writer binding
// may hold a stream at a time (the upstream compiler guarantees
// single-writer/single-reader graphs; the runtime asserts that invariant
// rather than implementing multi-producer fairness). A binding held by an
// ancestor task is delegated, not conflicting.
type Stream[T any] struct {
	sched  *Scheduler
	name   string
	cap    int
	buf    []T
	closed bool

	// Live exclusive holders, newest-first so ancestor delegation chains
	// resolve against the closest binder.
	readers []unitID
	writers []unitID

	// Suspended units in FIFO block order, for deterministic wakeups.
	waitingReaders []unitID
	waitingWriters []unitID
}

// NewStream creates a stream with the given element type and capacity.
func NewStream[T any](s *Scheduler, name string, capacity int) (*Stream[T], error) {
	if s == nil {
		return nil, usagef("", "stream %q: nil scheduler", name)
	}
	if capacity < 1 {
		return nil, usagef("", "stream %q: capacity must be >= 1, got %d", name, capacity)
	}
	return &Stream[T]{sched: s, name: name, cap: capacity}, nil
}

func (q *Stream[T]) ResourceName() string { return q.name }

// Name returns the stream's graph-level name.
func (q *Stream[T]) Name() string { return q.name }

// Cap returns the bounded capacity.
func (q *Stream[T]) Cap() int { return q.cap }

// Len returns the number of buffered elements. It never exceeds Cap.
func (q *Stream[T]) Len() int { return len(q.buf) }

// Closed reports whether Close has been called.
func (q *Stream[T]) Closed() bool { return q.closed }

func (q *Stream[T]) acquire(s *Scheduler, id unitID, dir Direction) error {
	wantsRead := dir == Read || dir == ReadWrite
	wantsWrite := dir == Write || dir == ReadWrite
	if !wantsRead && !wantsWrite {
		return fmt.Errorf("unknown direction %q", dir)
	}
	if wantsRead {
		for _, h := range q.readers {
			if !s.isAncestor(h, id) {
				return fmt.Errorf("stream %q already has a reader bound", q.name)
			}
		}
	}
	if wantsWrite {
		for _, h := range q.writers {
			if !s.isAncestor(h, id) {
				return fmt.Errorf("stream %q already has a writer bound", q.name)
			}
		}
	}
	if wantsRead {
		q.readers = append([]unitID{id}, q.readers...)
	}
	if wantsWrite {
		q.writers = append([]unitID{id}, q.writers...)
	}
	return nil
}

func (q *Stream[T]) release(id unitID) {
	q.readers = removeID(q.readers, id)
	q.writers = removeID(q.writers, id)
}

func removeID(ids []unitID, id unitID) []unitID {
	for i, h := range ids {
		if h == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Read returns the next element in FIFO order, suspending the calling unit
// while the stream is empty and not closed (wait-reason "stream <name>
// empty"). ok is false exactly once the stream has drained after Close:
// end of stream.
func (q *Stream[T]) Read() (v T, ok bool) {
	u := q.sched.running("stream read")
	for len(q.buf) == 0 {
		if q.closed {
			return v, false
		}
		q.waitingReaders = append(q.waitingReaders, u.id)
		q.sched.block(u, fmt.Sprintf("stream %q empty", q.name))
	}
	v = q.pop()
	return v, true
}

// TryRead is the non-suspending variant, for bodies that poll several input
// ports without a fixed priority.
func (q *Stream[T]) TryRead() (v T, status TryStatus) {
	if len(q.buf) == 0 {
		if q.closed {
			return v, TryEOS
		}
		return v, TryWouldBlock
	}
	return q.pop(), TryOK
}

// Peek looks at the front element without consuming it. Fails with
// ErrNotAvailable if the stream is empty; unlike the fatal kinds this is an
// ordinary, recoverable condition.
func (q *Stream[T]) Peek() (T, error) {
	var zero T
	if len(q.buf) == 0 {
		return zero, fmt.Errorf("peek on stream %q: %w", q.name, ErrNotAvailable)
	}
	return q.buf[0], nil
}

// Write enqueues v, suspending the calling unit while the stream is full
// (wait-reason "stream <name> full"). The caller's own write order is
// preserved end to end.
//
// Writing after Close is a design bug, not a transient condition, and fails
// fatally with a UsageError.
func (q *Stream[T]) Write(v T) {
	u := q.sched.running("stream write")
	if q.closed {
		panic(usagef(u.path, "write to closed stream %q", q.name))
	}
	for len(q.buf) == q.cap {
		q.waitingWriters = append(q.waitingWriters, u.id)
		q.sched.block(u, fmt.Sprintf("stream %q full", q.name))
		if q.closed {
			panic(usagef(u.path, "write to closed stream %q", q.name))
		}
	}
	q.push(v)
}

// TryWrite is the non-suspending variant; false means the stream was full.
// Writing after Close remains fatal.
func (q *Stream[T]) TryWrite(v T) bool {
	if q.closed {
		panic(usagef(q.sched.currentPath(), "write to closed stream %q", q.name))
	}
	if len(q.buf) == q.cap {
		return false
	}
	q.push(v)
	return true
}

// Close marks end of stream. Idempotent. Buffered elements drain before
// downstream observes end of stream; suspended units are woken so blocked
// readers see EOS and blocked writers fail rather than hang.
func (q *Stream[T]) Close() {
	if q.closed {
		return
	}
	q.closed = true
	for _, id := range q.waitingReaders {
		q.sched.wake(id)
	}
	q.waitingReaders = nil
	for _, id := range q.waitingWriters {
		q.sched.wake(id)
	}
	q.waitingWriters = nil
}

func (q *Stream[T]) pop() T {
	v := q.buf[0]
	q.buf = q.buf[1:]
	if len(q.waitingWriters) > 0 {
		id := q.waitingWriters[0]
		q.waitingWriters = q.waitingWriters[1:]
		q.sched.wake(id)
	}
	return v
}

func (q *Stream[T]) push(v T) {
	q.buf = append(q.buf, v)
	if len(q.waitingReaders) > 0 {
		id := q.waitingReaders[0]
		q.waitingReaders = q.waitingReaders[1:]
		q.sched.wake(id)
	}
}
