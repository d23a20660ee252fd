package kernels

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabricsim/internal/graph"
	"fabricsim/internal/harness"
)

func registry(t *testing.T) *graph.Registry {
	t.Helper()
	r := graph.NewRegistry()
	require.NoError(t, RegisterAll(r))
	return r
}

func runGraph(t *testing.T, src string) *harness.Report {
	t.Helper()
	d, err := graph.Parse(strings.NewReader(src))
	require.NoError(t, err)
	rep, err := harness.Run(context.Background(), d, harness.Options{Registry: registry(t)})
	require.NoError(t, err)
	return rep
}

func TestRegisterAll(t *testing.T) {
	r := registry(t)
	for _, name := range []string{"iota", "mmap_to_stream", "stream_to_mmap", "vadd", "scale", "fanout_sum"} {
		_, ok := r.Lookup(name)
		assert.True(t, ok, "builtin %q missing", name)
	}
	assert.Error(t, RegisterAll(r), "double registration must fail")
}

func TestVecAddPipeline(t *testing.T) {
	rep := runGraph(t, `
top: vecadd
streams:
  - {name: qa, type: int32, capacity: 2}
  - {name: qb, type: int32, capacity: 2}
  - {name: qsum, type: int32, capacity: 2}
mmaps:
  - {name: a, type: int32, length: 4, init: [1, 2, 3, 4]}
  - {name: b, type: int32, length: 4, init: [10, 20, 30, 40]}
  - {name: out, type: int32, length: 4}
tasks:
  - name: load_a
    kernel: mmap_to_stream
    ports:
      - {name: in, kind: mmap, dir: read, ref: a}
      - {name: out, kind: stream, dir: write, ref: qa}
      - {name: n, kind: scalar, value: 4}
  - name: load_b
    kernel: mmap_to_stream
    ports:
      - {name: in, kind: mmap, dir: read, ref: b}
      - {name: out, kind: stream, dir: write, ref: qb}
      - {name: n, kind: scalar, value: 4}
  - name: add
    kernel: vadd
    ports:
      - {name: a, kind: stream, dir: read, ref: qa}
      - {name: b, kind: stream, dir: read, ref: qb}
      - {name: out, kind: stream, dir: write, ref: qsum}
  - name: store
    kernel: stream_to_mmap
    ports:
      - {name: in, kind: stream, dir: read, ref: qsum}
      - {name: out, kind: mmap, dir: write, ref: out}
args:
  - {name: a, kind: mmap, dir: read, ref: a}
  - {name: b, kind: mmap, dir: read, ref: b}
  - {name: out, kind: mmap, dir: write, ref: out}
`)
	require.Equal(t, harness.StatusCompleted, rep.Status, rep.Error)
	for _, m := range rep.Mmaps {
		if m.Name == "out" {
			assert.Equal(t, []int32{11, 22, 33, 44}, m.Contents)
		}
	}
}

func TestScalePipeline(t *testing.T) {
	rep := runGraph(t, `
top: scaled
streams:
  - {name: q, type: int32, capacity: 1}
  - {name: qscaled, type: int32, capacity: 1}
mmaps:
  - {name: out, type: int32, length: 3}
tasks:
  - name: gen
    kernel: iota
    ports:
      - {name: out, kind: stream, dir: write, ref: q}
      - {name: n, kind: scalar, value: 3}
      - {name: base, kind: scalar, value: 1}
  - name: mul
    kernel: scale
    ports:
      - {name: in, kind: stream, dir: read, ref: q}
      - {name: out, kind: stream, dir: write, ref: qscaled}
      - {name: factor, kind: scalar, value: 5}
  - name: store
    kernel: stream_to_mmap
    ports:
      - {name: in, kind: stream, dir: read, ref: qscaled}
      - {name: out, kind: mmap, dir: write, ref: out}
args:
  - {name: out, kind: mmap, dir: write, ref: out}
`)
	require.Equal(t, harness.StatusCompleted, rep.Status, rep.Error)
	require.Len(t, rep.Mmaps, 1)
	assert.Equal(t, []int32{5, 10, 15}, rep.Mmaps[0].Contents)
}

func TestFanoutSum(t *testing.T) {
	rep := runGraph(t, `
top: fold
streams:
  - {name: q, type: int32, capacity: 4}
mmaps:
  - {name: acc, type: int32, length: 1}
tasks:
  - name: gen
    kernel: iota
    ports:
      - {name: out, kind: stream, dir: write, ref: q}
      - {name: n, kind: scalar, value: 5}
      - {name: base, kind: scalar, value: 1}
  - name: fold
    kernel: fanout_sum
    ports:
      - {name: in, kind: stream, dir: read, ref: q}
      - {name: acc, kind: mmap, dir: readwrite, ref: acc}
args:
  - {name: acc, kind: mmap, dir: readwrite, ref: acc}
`)
	require.Equal(t, harness.StatusCompleted, rep.Status, rep.Error)
	require.Len(t, rep.Mmaps, 1)
	assert.Equal(t, []int32{15}, rep.Mmaps[0].Contents, "1+2+3+4+5")

	// One trace entry per dynamically created worker.
	workers := 0
	for _, task := range rep.Tasks {
		if strings.Contains(task.Task, "worker") {
			workers++
		}
	}
	assert.Equal(t, 5, workers)
}
