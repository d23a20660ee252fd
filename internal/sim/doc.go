// Package sim is the software execution runtime for task-parallel
// accelerator designs.
//
// A design is a hierarchy of communicating tasks connected by bounded
// streams and addressable mmaps. Before committing to hardware synthesis,
// the design runs here in software with the blocking and backpressure
// behavior a synthesized pipeline would exhibit, so functional bugs surface
// pre-synthesis.
//
// It is intentionally split into:
//   - Task model: instantiation, hierarchy, port bindings, completion
//     tracking (task.go), with a validated per-unit state machine (state.go)
//   - Channel abstractions: Stream (bounded FIFO with EOS) and Mmap
//     (unsynchronized random-access region)
//   - Cooperative scheduler: one unit executes at a time, run-queue order is
//     FIFO by submission, and an empty run queue with incomplete units is a
//     detected deadlock, never a hang (scheduler.go)
//
// This is a functional model only: interleavings are reproducible and legal
// but carry no timing information whatsoever.
package sim
