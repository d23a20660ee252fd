package sim

import "fmt"

// unitID addresses a unit in the scheduler's arena. Units are stored in an
// append-only slice and addressed by index, so dynamic instantiation during
// a run never invalidates an existing ID or Handle.
type unitID int

// noUnit is the sentinel for "no unit": root's parent, an unbound holder.
const noUnit unitID = -1

// unit is one schedulable execution unit: a task instance together with the
// scheduler bookkeeping needed to suspend and resume its body.
type unit struct {
	id       unitID
	name     string
	path     string // hierarchical identity: parent path + "/" + name
	parent   unitID
	detached bool
	bindings []Binding

	state      State
	waitReason string
	started    bool

	// resume is the unit's half of the baton: the scheduler loop sends on it
	// to hand control to the unit's goroutine.
	resume chan struct{}

	// joiners are units blocked in Join on this unit, woken at completion.
	joiners []unitID
}

// Body is a task body. It runs as an independently suspendable unit; every
// potentially blocking operation inside it (stream reads and writes, Join,
// Yield) suspends the unit and transfers control back to the scheduler.
type Body func(t *Task)

// Direction of a port binding.
type Direction string

const (
	Read      Direction = "read"
	Write     Direction = "write"
	ReadWrite Direction = "readwrite"
)

// Resource is anything bindable to a task port: a Stream, an Mmap, or a
// Scalar. Acquisition enforces the exclusivity invariants at instantiation
// time; release happens automatically when the bound unit completes.
type Resource interface {
	ResourceName() string

	acquire(s *Scheduler, id unitID, dir Direction) error
	release(id unitID)
}

// Binding pairs a task's formal port with an actual resource and a direction.
type Binding struct {
	Port string
	Dir  Direction
	Res  Resource
}

// Scalar is a by-value port binding. It carries no sharing semantics and
// never conflicts with other bindings.
type Scalar struct {
	Name  string
	Value any
}

func (s Scalar) ResourceName() string { return s.Name }

func (s Scalar) acquire(*Scheduler, unitID, Direction) error { return nil }

func (s Scalar) release(unitID) {}

// Handle refers to an instantiated task. Handles stay valid for the whole
// run regardless of how many units are instantiated after them.
type Handle struct {
	sched *Scheduler
	id    unitID
}

// Name returns the task's hierarchical path.
func (h Handle) Name() string { return h.sched.units[h.id].path }

// Detached reports whether the task was instantiated detached.
func (h Handle) Detached() bool { return h.sched.units[h.id].detached }

// Task is a running unit's view of the scheduler. A *Task is only valid on
// the goroutine executing the body it was passed to.
type Task struct {
	sched *Scheduler
	unit  *unit
}

// Name returns this task's hierarchical path.
func (t *Task) Name() string { return t.unit.path }

// Instantiate registers a child task bound to the given resources and makes
// it schedulable. The child does not necessarily start immediately; it is
// appended to the run queue in submission order.
//
// A detached child is never joined by this task but still counts toward
// global completion and deadlock accounting.
//
// Fails with a BindingError if a binding's direction conflicts with another
// live binding already exclusively holding that resource.
func (t *Task) Instantiate(name string, body Body, bindings []Binding, detach bool) (Handle, error) {
	return t.sched.spawn(t.unit.id, name, body, bindings, detach)
}

// Join suspends the caller until the referenced task completes.
//
// Joining a detached handle is a design bug and fails fatally with a
// UsageError: detached completion is by definition not awaitable.
func (t *Task) Join(h Handle) {
	if h.sched != t.sched {
		panic(usagef(t.unit.path, "join on a handle from a different simulation run"))
	}
	target := t.sched.units[h.id]
	if target.detached {
		panic(usagef(t.unit.path, "join on detached task %q", target.path))
	}
	if target.state.Terminal() {
		return
	}
	target.joiners = append(target.joiners, t.unit.id)
	t.sched.block(t.unit, fmt.Sprintf("join %q", target.path))
}

// Yield is an explicit suspension point. The unit records msg as its
// wait-reason for diagnostics and moves to the back of the run queue; unlike
// a stream suspension it stays eligible, so a spin-waiting unit never trips
// deadlock detection on its own.
func (t *Task) Yield(msg string) {
	u := t.unit
	s := t.sched
	u.transition(StateRunning, StateRunnable)
	u.waitReason = msg
	s.rec.Record(traceYielded, u.path, msg)
	s.runq = append(s.runq, u.id)
	s.suspend(u)
}
