package graph

import (
	"errors"
	"fmt"

	"fabricsim/internal/sim"
)

// ErrInvalidDescription reports a structurally broken description. All
// validation failures unwrap to it.
var ErrInvalidDescription = errors.New("invalid graph description")

// DescriptionError carries the specific defect.
type DescriptionError struct {
	Msg string
}

func (e *DescriptionError) Error() string {
	return ErrInvalidDescription.Error() + ": " + e.Msg
}

func (e *DescriptionError) Unwrap() error { return ErrInvalidDescription }

func invalidf(format string, args ...any) error {
	return &DescriptionError{Msg: fmt.Sprintf(format, args...)}
}

// Validate checks structural integrity: required fields, unique names,
// resolvable references, legal directions. It does not re-check kernel type
// signatures; that is the upstream compiler's contract.
func (d *Description) Validate() error {
	if d.Top == "" {
		return invalidf("top task name is required")
	}
	if len(d.Tasks) == 0 {
		return invalidf("at least one task is required")
	}

	resources := make(map[string]PortKind, len(d.Streams)+len(d.Mmaps))
	for _, s := range d.Streams {
		if s.Name == "" {
			return invalidf("stream with empty name")
		}
		if _, dup := resources[s.Name]; dup {
			return invalidf("duplicate resource name %q", s.Name)
		}
		if !s.Type.Valid() {
			return invalidf("stream %q: unsupported element type %q", s.Name, s.Type)
		}
		if s.Capacity < 1 {
			return invalidf("stream %q: capacity must be at least 1, got %d", s.Name, s.Capacity)
		}
		resources[s.Name] = PortStream
	}
	for _, m := range d.Mmaps {
		if m.Name == "" {
			return invalidf("mmap with empty name")
		}
		if _, dup := resources[m.Name]; dup {
			return invalidf("duplicate resource name %q", m.Name)
		}
		if !m.Type.Valid() {
			return invalidf("mmap %q: unsupported element type %q", m.Name, m.Type)
		}
		if m.Length < 1 {
			return invalidf("mmap %q: length must be at least 1, got %d", m.Name, m.Length)
		}
		if len(m.Init) > m.Length {
			return invalidf("mmap %q: %d init values exceed length %d", m.Name, len(m.Init), m.Length)
		}
		resources[m.Name] = PortMmap
	}

	taskNames := make(map[string]bool, len(d.Tasks))
	for _, t := range d.Tasks {
		if t.Name == "" {
			return invalidf("task with empty name")
		}
		if taskNames[t.Name] {
			return invalidf("duplicate task name %q", t.Name)
		}
		taskNames[t.Name] = true
		if t.Kernel == "" {
			return invalidf("task %q: kernel is required", t.Name)
		}
		if err := validatePorts(fmt.Sprintf("task %q", t.Name), t.Ports, resources); err != nil {
			return err
		}
	}

	return validatePorts("top-level args", d.Args, resources)
}

func validatePorts(owner string, ports []Port, resources map[string]PortKind) error {
	seen := make(map[string]bool, len(ports))
	for _, p := range ports {
		if p.Name == "" {
			return invalidf("%s: port with empty name", owner)
		}
		if seen[p.Name] {
			return invalidf("%s: duplicate port %q", owner, p.Name)
		}
		seen[p.Name] = true

		switch p.Kind {
		case PortStream, PortMmap:
			if p.Ref == "" {
				return invalidf("%s: port %q: %s port needs a ref", owner, p.Name, p.Kind)
			}
			if p.Value != nil {
				return invalidf("%s: port %q: %s port cannot carry an inline value", owner, p.Name, p.Kind)
			}
			kind, ok := resources[p.Ref]
			if !ok {
				return invalidf("%s: port %q: unknown resource %q", owner, p.Name, p.Ref)
			}
			if kind != p.Kind {
				return invalidf("%s: port %q: resource %q is a %s, not a %s", owner, p.Name, p.Ref, kind, p.Kind)
			}
			switch p.Dir {
			case sim.Read, sim.Write, sim.ReadWrite:
			case "":
				return invalidf("%s: port %q: direction is required", owner, p.Name)
			default:
				return invalidf("%s: port %q: unknown direction %q", owner, p.Name, p.Dir)
			}
			if p.Kind == PortStream && p.Dir == sim.ReadWrite {
				return invalidf("%s: port %q: streams are unidirectional", owner, p.Name)
			}
		case PortScalar:
			if p.Ref != "" {
				return invalidf("%s: port %q: scalar port cannot reference a resource", owner, p.Name)
			}
			if p.Value == nil {
				return invalidf("%s: port %q: scalar port needs a value", owner, p.Name)
			}
		default:
			return invalidf("%s: port %q: unknown port kind %q", owner, p.Name, p.Kind)
		}
	}
	return nil
}
