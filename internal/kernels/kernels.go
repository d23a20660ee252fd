// Package kernels is the built-in kernel library referenced by the shipped
// example graphs.
//
// Kernels are monomorphic over their element type; the library registers an
// int32 set, which is what the example graphs declare. A generated design
// would register its own kernels instead and never link this package.
package kernels

import (
	"fmt"

	"fabricsim/internal/graph"
	"fabricsim/internal/sim"
)

// RegisterAll adds every built-in kernel to r.
func RegisterAll(r *graph.Registry) error {
	for name, k := range builtins {
		if err := r.Register(name, k); err != nil {
			return fmt.Errorf("registering builtin kernels: %w", err)
		}
	}
	return nil
}

var builtins = map[string]graph.Kernel{
	"iota":           iota32,
	"mmap_to_stream": mmapToStream,
	"stream_to_mmap": streamToMmap,
	"vadd":           vadd,
	"scale":          scale,
	"fanout_sum":     fanoutSum,
}

// iota32 emits base, base+1, ... base+n-1 and closes.
func iota32(t *sim.Task, p graph.Ports) {
	out := graph.StreamOf[int32](p, "out")
	n := graph.ScalarOf[int](p, "n")
	base := graph.ScalarOf[int32](p, "base")
	for i := 0; i < n; i++ {
		out.Write(base + int32(i))
	}
	out.Close()
}

// mmapToStream streams the first n elements of a region in order.
func mmapToStream(t *sim.Task, p graph.Ports) {
	in := graph.MmapOf[int32](p, "in")
	out := graph.StreamOf[int32](p, "out")
	n := graph.ScalarOf[int](p, "n")
	for i := 0; i < n; i++ {
		out.Write(in.Read(i))
	}
	out.Close()
}

// streamToMmap drains a stream into a region at increasing offsets.
func streamToMmap(t *sim.Task, p graph.Ports) {
	in := graph.StreamOf[int32](p, "in")
	out := graph.MmapOf[int32](p, "out")
	for i := 0; ; i++ {
		v, ok := in.Read()
		if !ok {
			return
		}
		out.Write(i, v)
	}
}

// vadd adds two streams elementwise until either hits end-of-stream.
func vadd(t *sim.Task, p graph.Ports) {
	a := graph.StreamOf[int32](p, "a")
	b := graph.StreamOf[int32](p, "b")
	out := graph.StreamOf[int32](p, "out")
	for {
		va, ok := a.Read()
		if !ok {
			break
		}
		vb, ok := b.Read()
		if !ok {
			break
		}
		out.Write(va + vb)
	}
	out.Close()
}

// scale multiplies every element by a scalar factor.
func scale(t *sim.Task, p graph.Ports) {
	in := graph.StreamOf[int32](p, "in")
	out := graph.StreamOf[int32](p, "out")
	factor := graph.ScalarOf[int32](p, "factor")
	for {
		v, ok := in.Read()
		if !ok {
			break
		}
		out.Write(v * factor)
	}
	out.Close()
}

// fanoutSum instantiates one child per input element, each folding its value
// into an accumulator region, and joins them all. It exists to exercise
// dynamic instantiation from inside a kernel body.
func fanoutSum(t *sim.Task, p graph.Ports) {
	in := graph.StreamOf[int32](p, "in")
	acc := graph.MmapOf[int32](p, "acc")

	var handles []sim.Handle
	for i := 0; ; i++ {
		v, ok := in.Read()
		if !ok {
			break
		}
		// Workers reach acc through the enclosing scope rather than a port
		// binding of their own: a write binding is exclusive, and the
		// siblings would conflict with each other.
		h, err := t.Instantiate(fmt.Sprintf("worker%d", i), func(t *sim.Task) {
			acc.Write(0, acc.Read(0)+v)
		}, nil, false)
		if err != nil {
			panic(err)
		}
		handles = append(handles, h)
	}
	for _, h := range handles {
		t.Join(h)
	}
}
