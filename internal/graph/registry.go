package graph

import (
	"fmt"
	"reflect"
	"sort"

	"fabricsim/internal/sim"
)

// Kernel is the Go body backing a task declaration. It runs as one scheduler
// unit; everything it does with its ports goes through the sim package.
type Kernel func(t *sim.Task, ports Ports)

// Registry maps kernel names, as referenced by task declarations, to their
// bodies. It is populated before a run starts and read-only afterwards, so
// it needs no locking.
type Registry struct {
	kernels map[string]Kernel
}

func NewRegistry() *Registry {
	return &Registry{kernels: make(map[string]Kernel)}
}

// Register adds a kernel under name. Registering the same name twice is a
// wiring bug and fails.
func (r *Registry) Register(name string, k Kernel) error {
	if name == "" {
		return fmt.Errorf("registering kernel: empty name")
	}
	if k == nil {
		return fmt.Errorf("registering kernel %q: nil body", name)
	}
	if _, dup := r.kernels[name]; dup {
		return fmt.Errorf("registering kernel %q: already registered", name)
	}
	r.kernels[name] = k
	return nil
}

func (r *Registry) Lookup(name string) (Kernel, bool) {
	k, ok := r.kernels[name]
	return k, ok
}

// Names returns all registered kernel names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.kernels))
	for name := range r.kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ports is the ordered set of actual bindings a kernel instance receives.
// The order is the declaration order of the task's ports.
type Ports struct {
	bindings []sim.Binding
	byName   map[string]sim.Binding
}

// NewPorts builds a Ports view over bindings.
func NewPorts(bindings []sim.Binding) Ports {
	byName := make(map[string]sim.Binding, len(bindings))
	for _, b := range bindings {
		byName[b.Port] = b
	}
	return Ports{bindings: bindings, byName: byName}
}

// Bindings returns the bindings in port declaration order.
func (p Ports) Bindings() []sim.Binding { return p.bindings }

// Lookup returns the binding for a named port.
func (p Ports) Lookup(name string) (sim.Binding, bool) {
	b, ok := p.byName[name]
	return b, ok
}

func mustBinding(p Ports, name string) sim.Binding {
	b, ok := p.byName[name]
	if !ok {
		panic(&sim.Error{Kind: sim.ErrUsage, Msg: fmt.Sprintf("kernel port %q is not bound", name)})
	}
	return b
}

// StreamOf returns the stream bound to a named port. A kind or element type
// mismatch between the kernel and the description is fatal.
func StreamOf[T any](p Ports, name string) *sim.Stream[T] {
	b := mustBinding(p, name)
	st, ok := b.Res.(*sim.Stream[T])
	if !ok {
		panic(&sim.Error{Kind: sim.ErrUsage, Msg: fmt.Sprintf("port %q: bound resource is not a stream of the requested element type", name)})
	}
	return st
}

// MmapOf returns the mmap bound to a named port.
func MmapOf[T any](p Ports, name string) *sim.Mmap[T] {
	b := mustBinding(p, name)
	m, ok := b.Res.(*sim.Mmap[T])
	if !ok {
		panic(&sim.Error{Kind: sim.ErrUsage, Msg: fmt.Sprintf("port %q: bound resource is not an mmap of the requested element type", name)})
	}
	return m
}

// ScalarOf returns the scalar value bound to a named port. YAML decodes
// numbers into a handful of Go types, so convertible numeric values are
// coerced to T rather than rejected.
func ScalarOf[T any](p Ports, name string) T {
	b := mustBinding(p, name)
	sc, ok := b.Res.(sim.Scalar)
	if !ok {
		panic(&sim.Error{Kind: sim.ErrUsage, Msg: fmt.Sprintf("port %q: bound resource is not a scalar", name)})
	}
	if v, ok := sc.Value.(T); ok {
		return v
	}
	var zero T
	rv := reflect.ValueOf(sc.Value)
	rt := reflect.TypeOf(zero)
	if rv.IsValid() && rt != nil && rv.Type().ConvertibleTo(rt) {
		return rv.Convert(rt).Interface().(T)
	}
	panic(&sim.Error{Kind: sim.ErrUsage, Msg: fmt.Sprintf("scalar port %q: cannot use %T value as the requested type", name, sc.Value)})
}
