package sim

import "fmt"

// Mmap is an addressable shared-memory region of fixed length and one
// element type, accessed randomly by offset.
//
// Access never suspends and no synchronization is provided between
// concurrent accesses: this deliberately mirrors unmodeled hardware
// memory-port arbitration, and callers are responsible for any ordering
// they need. The cooperative scheduler makes accesses physically
// non-concurrent, but their interleaving across units is one legal order
// among many the real hardware could exhibit.
//
// The region is owned by the instantiating scope and borrowed, never owned,
// by child tasks through bindings; a write-capable binding is exclusive
// among non-ancestor units.
type Mmap[T any] struct {
	sched *Scheduler
	name  string
	data  []T

	writers []unitID
}

// NewMmap creates a zero-initialized region of the given length.
func NewMmap[T any](s *Scheduler, name string, length int) (*Mmap[T], error) {
	if s == nil {
		return nil, usagef("", "mmap %q: nil scheduler", name)
	}
	if length < 1 {
		return nil, usagef("", "mmap %q: length must be >= 1, got %d", name, length)
	}
	return &Mmap[T]{sched: s, name: name, data: make([]T, length)}, nil
}

// NewMmapFrom creates a region initialized with a copy of data.
func NewMmapFrom[T any](s *Scheduler, name string, data []T) (*Mmap[T], error) {
	m, err := NewMmap[T](s, name, len(data))
	if err != nil {
		return nil, err
	}
	copy(m.data, data)
	return m, nil
}

func (m *Mmap[T]) ResourceName() string { return m.name }

// Name returns the region's graph-level name.
func (m *Mmap[T]) Name() string { return m.name }

// Len returns the region length in elements.
func (m *Mmap[T]) Len() int { return len(m.data) }

func (m *Mmap[T]) acquire(s *Scheduler, id unitID, dir Direction) error {
	switch dir {
	case Read:
		// Concurrent read ports are unrestricted.
		return nil
	case Write, ReadWrite:
		for _, h := range m.writers {
			if !s.isAncestor(h, id) {
				return fmt.Errorf("mmap %q already has a writer bound", m.name)
			}
		}
		m.writers = append([]unitID{id}, m.writers...)
		return nil
	default:
		return fmt.Errorf("unknown direction %q", dir)
	}
}

func (m *Mmap[T]) release(id unitID) {
	m.writers = removeID(m.writers, id)
}

// Read returns the element at offset. Out-of-range access is fatal.
func (m *Mmap[T]) Read(offset int) T {
	m.check(offset, "read")
	return m.data[offset]
}

// Write stores v at offset. Out-of-range access is fatal. Never suspends.
func (m *Mmap[T]) Write(offset int, v T) {
	m.check(offset, "write")
	m.data[offset] = v
}

func (m *Mmap[T]) check(offset int, op string) {
	if offset < 0 || offset >= len(m.data) {
		panic(boundsf(m.sched.currentPath(), "mmap %q: %s at offset %d, length %d",
			m.name, op, offset, len(m.data)))
	}
}

// Snapshot returns an independent copy of the region's contents, for
// harness reporting and reference comparison after a run.
func (m *Mmap[T]) Snapshot() []T {
	out := make([]T, len(m.data))
	copy(out, m.data)
	return out
}
