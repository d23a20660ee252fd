package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"fabricsim/internal/trace"
)

// Trace kind aliases keep call sites in this package short.
const (
	traceInstantiated = trace.EventInstantiated
	traceStarted      = trace.EventStarted
	traceBlocked      = trace.EventBlocked
	traceResumed      = trace.EventResumed
	traceYielded      = trace.EventYielded
	traceCompleted    = trace.EventCompleted
)

// abortUnwind is panicked inside parked unit goroutines during teardown so
// their stacks unwind without running any further body code. It never
// escapes this package.
type abortUnwind struct{}

// Scheduler runs every active task body as an independently suspendable
// unit with cooperative, non-preemptive interleaving, so the relative order
// of blocking operations is fully deterministic for a fixed task graph and
// inputs.
//
// Mechanism: each unit's body runs on its own goroutine, but a baton
// guarantees that exactly one goroutine (the dispatch loop or a single
// unit) executes at any instant. Handoff uses per-unit resume channels
// (loop -> unit) and a shared yield channel (unit -> loop). The strict
// alternation establishes happens-before for every field in this struct, so
// no locking is needed anywhere in the package.
//
// One Scheduler serves exactly one run. There is no process-wide state;
// concurrent runs (e.g. parallel test processes) are fully isolated.
type Scheduler struct {
	logger *slog.Logger
	rec    *trace.Recorder

	// units is the arena: append-only, addressed by unitID.
	units []*unit

	// runq holds runnable units in FIFO submission order. Picking always
	// takes the front, so identical inputs produce identical interleavings.
	runq []unitID

	// current is the unit executing user code, or noUnit when the dispatch
	// loop holds the baton.
	current unitID

	// incomplete counts units (tracked and detached alike) that have not
	// reached COMPLETED. The run ends when it hits zero, or deadlocks.
	incomplete int

	yield   chan struct{}
	abort   chan struct{}
	wg      sync.WaitGroup
	fatal   error
	aborted bool
	started bool
}

// Options configures a Scheduler. Zero value is usable: logging is
// discarded and a recorder is created internally.
type Options struct {
	Logger   *slog.Logger
	Recorder *trace.Recorder
}

// New creates a scheduler for a single simulation run.
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	rec := opts.Recorder
	if rec == nil {
		rec = trace.NewRecorder("")
	}
	return &Scheduler{
		logger:  logger,
		rec:     rec,
		current: noUnit,
		yield:   make(chan struct{}),
		abort:   make(chan struct{}),
	}
}

// Run invokes body as the top-level task, bound to bindings in declared
// order, and drives the run queue until every unit completes or a deadlock
// is declared. It is invoked exactly as a synthesized kernel would be: the
// binding list is the kernel's argument list.
//
// Run returns nil on full completion; a *DeadlockError when the run queue
// drains with incomplete units; or the fatal *Error raised by a unit body.
// It never hangs: every exit path tears down all unit goroutines first.
//
// Run must be called at most once per Scheduler.
func (s *Scheduler) Run(ctx context.Context, name string, body Body, bindings []Binding) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.started {
		return usagef("", "scheduler reused; construct one per run")
	}
	s.started = true

	if _, err := s.spawn(noUnit, name, body, bindings, false); err != nil {
		return err
	}

	for len(s.runq) > 0 {
		select {
		case <-ctx.Done():
			s.teardown()
			return fmt.Errorf("simulation cancelled: %w", ctx.Err())
		default:
		}

		s.dispatch()

		if s.fatal != nil {
			s.teardown()
			return s.fatal
		}
	}

	if s.incomplete > 0 {
		dl := s.deadlock()
		s.teardown()
		s.logger.Error("simulation deadlocked", "tasks", len(dl.Waits))
		return dl
	}

	s.wg.Wait()
	s.logger.Debug("simulation completed", "units", len(s.units))
	return nil
}

// dispatch hands the baton to the unit at the front of the run queue and
// waits for it to give the baton back (by blocking, yielding, completing,
// or failing).
func (s *Scheduler) dispatch() {
	id := s.runq[0]
	s.runq = s.runq[1:]
	u := s.units[id]

	u.transition(StateRunnable, StateRunning)
	u.waitReason = ""
	if u.started {
		s.rec.Record(traceResumed, u.path, "")
	} else {
		u.started = true
		s.rec.Record(traceStarted, u.path, "")
	}

	s.current = id
	u.resume <- struct{}{}
	<-s.yield
	s.current = noUnit
}

// spawn registers a new unit. It is called either from the harness
// goroutine before the loop starts (the root) or from a unit goroutine
// holding the baton (dynamic instantiation); both are mutually exclusive
// with the dispatch loop, preserving the single-executor invariant.
func (s *Scheduler) spawn(parent unitID, name string, body Body, bindings []Binding, detached bool) (Handle, error) {
	path := name
	if parent != noUnit {
		path = s.units[parent].path + "/" + name
	}

	id := unitID(len(s.units))
	u := &unit{
		id:       id,
		name:     name,
		path:     path,
		parent:   parent,
		detached: detached,
		state:    StateCreated,
		resume:   make(chan struct{}),
	}

	for i, b := range bindings {
		if b.Res == nil {
			releaseAll(bindings[:i], id)
			return Handle{}, bindingf(path, "port %q: nil resource", b.Port)
		}
		if err := b.Res.acquire(s, id, b.Dir); err != nil {
			releaseAll(bindings[:i], id)
			return Handle{}, bindingf(path, "port %q (%s %s): %v", b.Port, b.Dir, b.Res.ResourceName(), err)
		}
	}
	u.bindings = bindings

	s.units = append(s.units, u)
	s.incomplete++
	u.transition(StateCreated, StateRunnable)
	s.runq = append(s.runq, id)
	s.rec.Record(traceInstantiated, path, "")
	s.logger.Debug("task instantiated", "task", path, "detached", detached)

	s.wg.Add(1)
	go s.exec(u, body)
	return Handle{sched: s, id: id}, nil
}

func releaseAll(bindings []Binding, id unitID) {
	for _, b := range bindings {
		if b.Res != nil {
			b.Res.release(id)
		}
	}
}

// exec is the unit goroutine. It parks until first dispatched, runs the body
// to completion, and converts body panics into the run's fatal error.
func (s *Scheduler) exec(u *unit, body Body) {
	defer s.wg.Done()

	select {
	case <-u.resume:
	case <-s.abort:
		return
	}

	defer func() {
		switch r := recover().(type) {
		case nil:
			s.complete(u)
		case abortUnwind:
			// Torn down mid-run; the loop no longer awaits the baton.
			return
		case *Error:
			if r.Task == "" {
				r.Task = u.path
			}
			s.fatal = r
		case error:
			s.fatal = fmt.Errorf("task %q: %w", u.path, r)
		default:
			s.fatal = fmt.Errorf("task %q: panic: %v", u.path, r)
		}
		s.yield <- struct{}{}
	}()

	body(&Task{sched: s, unit: u})
}

// complete marks a unit finished, releases its resource bindings, and wakes
// any units joined on it.
func (s *Scheduler) complete(u *unit) {
	u.transition(StateRunning, StateCompleted)
	u.waitReason = ""
	releaseAll(u.bindings, u.id)
	s.incomplete--
	s.rec.Record(traceCompleted, u.path, "")

	for _, j := range u.joiners {
		s.wake(j)
	}
	u.joiners = nil
}

// block records reason as the current unit's wait-reason and suspends it.
// Every potentially blocking operation funnels through here, so a suspended
// unit always carries a diagnostic before the baton changes hands.
func (s *Scheduler) block(u *unit, reason string) {
	u.transition(StateRunning, StateBlocked)
	u.waitReason = reason
	s.rec.Record(traceBlocked, u.path, reason)
	s.suspend(u)
}

// suspend surrenders the baton and parks until rescheduled or torn down.
func (s *Scheduler) suspend(u *unit) {
	s.yield <- struct{}{}
	select {
	case <-u.resume:
	case <-s.abort:
		panic(abortUnwind{})
	}
}

// wake moves a blocked unit back onto the run queue.
func (s *Scheduler) wake(id unitID) {
	u := s.units[id]
	u.transition(StateBlocked, StateRunnable)
	s.runq = append(s.runq, id)
}

// deadlock collects the wait-reason of every incomplete unit.
func (s *Scheduler) deadlock() *DeadlockError {
	dl := &DeadlockError{}
	for _, u := range s.units {
		if u.state.Terminal() {
			continue
		}
		dl.Waits = append(dl.Waits, WaitStatus{Task: u.path, Reason: u.waitReason})
	}
	return dl
}

// teardown unwinds every parked unit goroutine and waits for all of them,
// so an aborted run never leaks goroutines.
func (s *Scheduler) teardown() {
	if !s.aborted {
		s.aborted = true
		close(s.abort)
	}
	s.wg.Wait()
}

// running returns the unit currently executing user code. Blocking stream
// operations are only legal inside a task body; anywhere else is a design
// bug in the harness.
func (s *Scheduler) running(op string) *unit {
	if s.current == noUnit {
		panic(usagef("", "%s outside a running task", op))
	}
	return s.units[s.current]
}

// currentPath is the identity used in fatal diagnostics; empty outside a
// task body (non-suspending operations are legal there).
func (s *Scheduler) currentPath() string {
	if s.current == noUnit {
		return ""
	}
	return s.units[s.current].path
}

// isAncestor reports whether a is on b's parent chain. A resource binding
// held by an ancestor is delegated, not conflicting: a parent passes its
// port down to the child that actually drives it.
func (s *Scheduler) isAncestor(a, b unitID) bool {
	for p := s.units[b].parent; p != noUnit; p = s.units[p].parent {
		if p == a {
			return true
		}
	}
	return false
}

// TaskStatus is one unit's final disposition, reported by the harness.
type TaskStatus struct {
	Task       string
	Detached   bool
	State      State
	WaitReason string
}

// Statuses returns the per-unit final states in instantiation order.
// Meaningful after Run has returned.
func (s *Scheduler) Statuses() []TaskStatus {
	out := make([]TaskStatus, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, TaskStatus{
			Task:       u.path,
			Detached:   u.detached,
			State:      u.state,
			WaitReason: u.waitReason,
		})
	}
	return out
}
