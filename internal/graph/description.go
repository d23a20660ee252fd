// Package graph models the task-graph description this runtime consumes.
//
// The description is produced by the upstream source-to-source compiler: per
// task a kernel reference and an ordered list of formal ports, each tagged
// with kind (stream, mmap, scalar) and direction; per stream a capacity and
// element type; per mmap a length and element type. Type and binding
// correctness of the description is assumed validated upstream; Validate
// checks structure and reference integrity only.
package graph

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"fabricsim/internal/sim"
)

// ElemType is a stream or mmap element type.
type ElemType string

const (
	Int32   ElemType = "int32"
	Int64   ElemType = "int64"
	Uint64  ElemType = "uint64"
	Float32 ElemType = "float32"
	Float64 ElemType = "float64"
)

// Valid reports whether the element type is supported.
func (e ElemType) Valid() bool {
	switch e {
	case Int32, Int64, Uint64, Float32, Float64:
		return true
	default:
		return false
	}
}

// PortKind discriminates what a formal port binds to.
type PortKind string

const (
	PortStream PortKind = "stream"
	PortMmap   PortKind = "mmap"
	PortScalar PortKind = "scalar"
)

// Port is one formal port of a task or of the top-level invocation.
//
// Stream and mmap ports reference a declared resource by name; scalar ports
// carry their value inline.
type Port struct {
	Name  string        `yaml:"name"`
	Kind  PortKind      `yaml:"kind"`
	Dir   sim.Direction `yaml:"dir,omitempty"`
	Ref   string        `yaml:"ref,omitempty"`
	Value any           `yaml:"value,omitempty"`
}

// StreamDecl declares a bounded FIFO channel.
type StreamDecl struct {
	Name     string   `yaml:"name"`
	Type     ElemType `yaml:"type"`
	Capacity int      `yaml:"capacity"`
}

// MmapDecl declares an addressable shared-memory region. Init optionally
// seeds the leading elements; the rest are zero.
type MmapDecl struct {
	Name   string   `yaml:"name"`
	Type   ElemType `yaml:"type"`
	Length int      `yaml:"length"`
	Init   []any    `yaml:"init,omitempty"`
}

// TaskDecl is one child instance of the top-level task.
type TaskDecl struct {
	Name   string `yaml:"name"`
	Kernel string `yaml:"kernel"`
	Detach bool   `yaml:"detach,omitempty"`
	Ports  []Port `yaml:"ports"`
}

// Description is a complete task-graph description.
//
// Args is the ordered binding list of the top-level invocation. Its order is
// the kernel's argument order and must be preserved end to end, so the same
// invocation can later target synthesized hardware without semantic change.
type Description struct {
	Top     string       `yaml:"top"`
	Streams []StreamDecl `yaml:"streams,omitempty"`
	Mmaps   []MmapDecl   `yaml:"mmaps,omitempty"`
	Tasks   []TaskDecl   `yaml:"tasks"`
	Args    []Port       `yaml:"args,omitempty"`
}

// Parse decodes a YAML description. Unknown fields are rejected so
// misspelled keys fail loudly instead of silently dropping semantics.
func Parse(r io.Reader) (*Description, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var d Description
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("parsing graph description: %w", err)
	}
	return &d, nil
}

// Load reads and parses a description file.
func Load(path string) (*Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening graph description: %w", err)
	}
	defer f.Close()

	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}
