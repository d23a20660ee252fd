package trace

// Recorder is an in-memory event collector for one simulation run.
//
// The scheduler guarantees that exactly one goroutine touches the recorder
// at any instant (the baton-holder), so no locking is needed; the recorder
// must not be shared across concurrently executing runs.
//
// Record is inert: a nil recorder is a valid no-op sink, so callers never
// need to guard call sites.
type Recorder struct {
	trace Trace
	seq   int
}

// NewRecorder creates a recorder for the named graph.
func NewRecorder(graph string) *Recorder {
	return &Recorder{trace: Trace{Graph: graph}}
}

// Record appends an event with the next sequence number.
func (r *Recorder) Record(kind EventKind, task, reason string) {
	if r == nil {
		return
	}
	r.trace.Events = append(r.trace.Events, Event{
		Seq:    r.seq,
		Kind:   kind,
		Task:   task,
		Reason: reason,
	})
	r.seq++
}

// Trace returns an independent copy of the recorded trace.
func (r *Recorder) Trace() *Trace {
	if r == nil {
		return &Trace{}
	}
	out := Trace{Graph: r.trace.Graph, Events: make([]Event, len(r.trace.Events))}
	copy(out.Events, r.trace.Events)
	return &out
}
