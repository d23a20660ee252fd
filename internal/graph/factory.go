package graph

import (
	"fmt"

	"fabricsim/internal/sim"
)

// Resources holds the streams and mmaps materialized for one run, indexed by
// their declared names.
type Resources struct {
	byName map[string]sim.Resource
}

// Lookup returns the materialized resource for a declared name.
func (r *Resources) Lookup(name string) (sim.Resource, bool) {
	res, ok := r.byName[name]
	return res, ok
}

// BuildResources materializes every stream and mmap declaration against a
// scheduler. The description must already be validated.
func BuildResources(s *sim.Scheduler, d *Description) (*Resources, error) {
	r := &Resources{byName: make(map[string]sim.Resource, len(d.Streams)+len(d.Mmaps))}
	for _, decl := range d.Streams {
		res, err := buildStream(s, decl)
		if err != nil {
			return nil, err
		}
		r.byName[decl.Name] = res
	}
	for _, decl := range d.Mmaps {
		res, err := buildMmap(s, decl)
		if err != nil {
			return nil, err
		}
		r.byName[decl.Name] = res
	}
	return r, nil
}

// Bind resolves a port list against the materialized resources, producing
// bindings in port declaration order. Scalar ports bind their inline value.
func (r *Resources) Bind(ports []Port) ([]sim.Binding, error) {
	bindings := make([]sim.Binding, 0, len(ports))
	for _, p := range ports {
		switch p.Kind {
		case PortScalar:
			dir := p.Dir
			if dir == "" {
				dir = sim.Read
			}
			bindings = append(bindings, sim.Binding{
				Port: p.Name,
				Dir:  dir,
				Res:  sim.Scalar{Name: p.Name, Value: p.Value},
			})
		case PortStream, PortMmap:
			res, ok := r.byName[p.Ref]
			if !ok {
				return nil, invalidf("port %q: unknown resource %q", p.Name, p.Ref)
			}
			bindings = append(bindings, sim.Binding{Port: p.Name, Dir: p.Dir, Res: res})
		default:
			return nil, invalidf("port %q: unknown port kind %q", p.Name, p.Kind)
		}
	}
	return bindings, nil
}

func buildStream(s *sim.Scheduler, decl StreamDecl) (sim.Resource, error) {
	switch decl.Type {
	case Int32:
		return sim.NewStream[int32](s, decl.Name, decl.Capacity)
	case Int64:
		return sim.NewStream[int64](s, decl.Name, decl.Capacity)
	case Uint64:
		return sim.NewStream[uint64](s, decl.Name, decl.Capacity)
	case Float32:
		return sim.NewStream[float32](s, decl.Name, decl.Capacity)
	case Float64:
		return sim.NewStream[float64](s, decl.Name, decl.Capacity)
	default:
		return nil, invalidf("stream %q: unsupported element type %q", decl.Name, decl.Type)
	}
}

func buildMmap(s *sim.Scheduler, decl MmapDecl) (sim.Resource, error) {
	switch decl.Type {
	case Int32:
		return seededMmap[int32](s, decl)
	case Int64:
		return seededMmap[int64](s, decl)
	case Uint64:
		return seededMmap[uint64](s, decl)
	case Float32:
		return seededMmap[float32](s, decl)
	case Float64:
		return seededMmap[float64](s, decl)
	default:
		return nil, invalidf("mmap %q: unsupported element type %q", decl.Name, decl.Type)
	}
}

type numeric interface {
	~int32 | ~int64 | ~uint64 | ~float32 | ~float64
}

func seededMmap[T numeric](s *sim.Scheduler, decl MmapDecl) (sim.Resource, error) {
	data := make([]T, decl.Length)
	for i, raw := range decl.Init {
		v, err := numericValue(raw)
		if err != nil {
			return nil, invalidf("mmap %q: init[%d]: %v", decl.Name, i, err)
		}
		data[i] = T(v)
	}
	return sim.NewMmapFrom(s, decl.Name, data)
}

// numericValue widens the handful of number types the YAML decoder emits.
func numericValue(raw any) (float64, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", raw, raw)
	}
}

// MmapContents returns the final contents of a materialized mmap in a
// JSON-encodable form, for run reports.
func MmapContents(res sim.Resource) (any, bool) {
	switch m := res.(type) {
	case *sim.Mmap[int32]:
		return m.Snapshot(), true
	case *sim.Mmap[int64]:
		return m.Snapshot(), true
	case *sim.Mmap[uint64]:
		return m.Snapshot(), true
	case *sim.Mmap[float32]:
		return m.Snapshot(), true
	case *sim.Mmap[float64]:
		return m.Snapshot(), true
	default:
		return nil, false
	}
}
