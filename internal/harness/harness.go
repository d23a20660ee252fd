// Package harness drives one complete simulation of a task graph and turns
// the outcome into a machine-readable report.
//
// The harness owns the pieces a run needs: it materializes declared
// resources, synthesizes the top-level body that instantiates and joins the
// declared children, runs the scheduler, and collects final task states,
// mmap contents and the interleaving hash into a Report.
package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"fabricsim/internal/graph"
	"fabricsim/internal/sim"
	"fabricsim/internal/trace"
)

// Run outcome.
const (
	StatusCompleted = "completed"
	StatusDeadlock  = "deadlock"
	StatusFailed    = "failed"
)

// Options configures a run. Registry is required. RunID overrides the
// generated identifier for reproducible reports.
type Options struct {
	Registry *graph.Registry
	Logger   *slog.Logger
	RunID    string
}

// TaskReport is the final state of one task unit.
type TaskReport struct {
	Task       string `json:"task"`
	Detached   bool   `json:"detached,omitempty"`
	State      string `json:"state"`
	WaitReason string `json:"wait_reason,omitempty"`
}

// MmapReport is the final contents of one declared mmap.
type MmapReport struct {
	Name     string `json:"name"`
	Contents any    `json:"contents"`
}

// Report is the outcome of one simulation run.
//
// InterleaveHash digests the full ordered execution trace; two runs of the
// same graph with the same kernels must produce the same hash.
type Report struct {
	RunID          string       `json:"run_id"`
	Graph          string       `json:"graph"`
	Status         string       `json:"status"`
	Error          string       `json:"error,omitempty"`
	Tasks          []TaskReport `json:"tasks"`
	Mmaps          []MmapReport `json:"mmaps"`
	InterleaveHash string       `json:"interleave_hash"`
}

// JSON renders the report as indented canonical JSON.
func (r *Report) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return append(b, '\n'), nil
}

// WriteJSON writes the rendered report to w.
func (r *Report) WriteJSON(w io.Writer) error {
	b, err := r.JSON()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Run simulates one graph description to completion, deadlock or failure.
//
// The returned error covers setup problems only (invalid description,
// unknown kernels). Simulation outcomes, including deadlocks and fatal task
// errors, are reported through Report.Status and Report.Error so callers can
// persist and inspect them uniformly.
func Run(ctx context.Context, d *graph.Description, opts Options) (*Report, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("harness: registry is required")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	kernels := make(map[string]graph.Kernel, len(d.Tasks))
	for _, decl := range d.Tasks {
		k, ok := opts.Registry.Lookup(decl.Kernel)
		if !ok {
			return nil, fmt.Errorf("harness: task %q: unknown kernel %q", decl.Name, decl.Kernel)
		}
		kernels[decl.Name] = k
	}

	rec := trace.NewRecorder(d.Top)
	sched := sim.New(sim.Options{Logger: logger, Recorder: rec})

	resources, err := graph.BuildResources(sched, d)
	if err != nil {
		return nil, err
	}
	args, err := resources.Bind(d.Args)
	if err != nil {
		return nil, err
	}

	// The synthesized top body reproduces what the compiled top-level task
	// does: instantiate every child with its declared bindings, then join
	// the tracked ones in declaration order.
	top := func(t *sim.Task) {
		handles := make([]sim.Handle, 0, len(d.Tasks))
		for _, decl := range d.Tasks {
			bindings, err := resources.Bind(decl.Ports)
			if err != nil {
				panic(err)
			}
			kernel := kernels[decl.Name]
			ports := graph.NewPorts(bindings)
			h, err := t.Instantiate(decl.Name, func(t *sim.Task) {
				kernel(t, ports)
			}, bindings, decl.Detach)
			if err != nil {
				panic(err)
			}
			if !decl.Detach {
				handles = append(handles, h)
			}
		}
		for _, h := range handles {
			t.Join(h)
		}
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger.Info("simulation starting", "run_id", runID, "graph", d.Top, "tasks", len(d.Tasks))

	runErr := sched.Run(ctx, d.Top, top, args)

	report := &Report{RunID: runID, Graph: d.Top, Status: StatusCompleted}
	var dl *sim.DeadlockError
	switch {
	case runErr == nil:
	case errors.As(runErr, &dl):
		report.Status = StatusDeadlock
		report.Error = runErr.Error()
	default:
		report.Status = StatusFailed
		report.Error = runErr.Error()
	}

	for _, st := range sched.Statuses() {
		report.Tasks = append(report.Tasks, TaskReport{
			Task:       st.Task,
			Detached:   st.Detached,
			State:      string(st.State),
			WaitReason: st.WaitReason,
		})
	}
	for _, decl := range d.Mmaps {
		res, ok := resources.Lookup(decl.Name)
		if !ok {
			continue
		}
		contents, ok := graph.MmapContents(res)
		if !ok {
			continue
		}
		report.Mmaps = append(report.Mmaps, MmapReport{Name: decl.Name, Contents: contents})
	}

	hash, err := rec.Trace().Hash()
	if err != nil {
		return nil, fmt.Errorf("hashing execution trace: %w", err)
	}
	report.InterleaveHash = hash

	switch report.Status {
	case StatusCompleted:
		logger.Info("simulation completed", "run_id", runID, "interleave_hash", hash)
	default:
		logger.Error("simulation did not complete", "run_id", runID,
			"status", report.Status, "error", report.Error)
	}
	return report, nil
}
