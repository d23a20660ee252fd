package sim

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabricsim/internal/trace"
)

func TestScheduler_CyclicWaitDeadlock(t *testing.T) {
	s := New(Options{})
	s1, err := NewStream[int](s, "s1", 1)
	require.NoError(t, err)
	s2, err := NewStream[int](s, "s2", 1)
	require.NoError(t, err)

	top := func(tt *Task) {
		a := mustSpawn(tt, "a", func(*Task) {
			v, _ := s1.Read()
			s2.Write(v)
		}, nil, false)
		mustSpawn(tt, "b", func(*Task) {
			v, _ := s2.Read()
			s1.Write(v)
		}, nil, false)
		tt.Join(a)
	}

	err = s.Run(context.Background(), "top", top, nil)
	require.ErrorIs(t, err, ErrDeadlock)

	var dl *DeadlockError
	require.ErrorAs(t, err, &dl)

	reasons := map[string]string{}
	for _, w := range dl.Waits {
		reasons[w.Task] = w.Reason
	}
	assert.Equal(t, `stream "s1" empty`, reasons["top/a"])
	assert.Equal(t, `stream "s2" empty`, reasons["top/b"])
	assert.Equal(t, `join "top/a"`, reasons["top"])
}

func TestScheduler_DetachedTask_CompletesAfterParent(t *testing.T) {
	s := New(Options{})
	q, err := NewStream[int](s, "q", 8)
	require.NoError(t, err)

	wrote := 0

	top := func(tt *Task) {
		mustSpawn(tt, "feeder", func(*Task) {
			for i := 0; i < 3; i++ {
				q.Write(i)
				wrote++
			}
		}, nil, true)
		// Parent returns without joining; the detached feeder must still run
		// to completion before the simulation ends.
	}

	require.NoError(t, s.Run(context.Background(), "top", top, nil))
	assert.Equal(t, 3, wrote)

	for _, st := range s.Statuses() {
		assert.Equal(t, StateCompleted, st.State, "unit %s not completed", st.Task)
	}
}

func TestScheduler_DetachedTask_EndlessWriterIsDeadlockNotHang(t *testing.T) {
	s := New(Options{})
	q, err := NewStream[int](s, "q", 2)
	require.NoError(t, err)

	top := func(tt *Task) {
		mustSpawn(tt, "feeder", func(*Task) {
			for i := 0; ; i++ {
				q.Write(i) // fills the bounded stream, then suspends forever
			}
		}, nil, true)
	}

	err = s.Run(context.Background(), "top", top, nil)
	require.ErrorIs(t, err, ErrDeadlock)

	var dl *DeadlockError
	require.ErrorAs(t, err, &dl)
	require.Len(t, dl.Waits, 1)
	assert.Equal(t, "top/feeder", dl.Waits[0].Task)
	assert.Equal(t, `stream "q" full`, dl.Waits[0].Reason)
}

func TestScheduler_JoinOnDetachedHandle_IsUsageError(t *testing.T) {
	s := New(Options{})

	top := func(tt *Task) {
		h := mustSpawn(tt, "bg", func(*Task) {}, nil, true)
		tt.Join(h)
	}

	err := s.Run(context.Background(), "top", top, nil)
	require.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, err.Error(), "detached")
}

func TestScheduler_DynamicFanOut_HandlesStayValid(t *testing.T) {
	s := New(Options{})
	out, err := NewStream[int](s, "out", 16)
	require.NoError(t, err)

	var sum int

	top := func(tt *Task) {
		// Data-dependent fan-out: the worker count is only known at run
		// time, and instantiating more units must not invalidate handles
		// created earlier.
		handles := make([]Handle, 0, 5)
		for i := 0; i < 5; i++ {
			i := i
			h := mustSpawn(tt, fmt.Sprintf("worker%d", i), func(*Task) {
				out.Write(i * 10)
			}, nil, false)
			handles = append(handles, h)
		}
		cons := mustSpawn(tt, "collector", func(*Task) {
			for {
				v, ok := out.Read()
				if !ok {
					return
				}
				sum += v
			}
		}, nil, false)

		for _, h := range handles {
			tt.Join(h)
		}
		out.Close()
		tt.Join(cons)
	}

	require.NoError(t, s.Run(context.Background(), "top", top, nil))
	assert.Equal(t, 100, sum)
}

func TestScheduler_BindingConflict_SecondWriterRejected(t *testing.T) {
	s := New(Options{})
	q, err := NewStream[int](s, "q", 1)
	require.NoError(t, err)

	var bindErr error

	top := func(tt *Task) {
		mustSpawn(tt, "w1", func(*Task) { q.Close() },
			[]Binding{{Port: "out", Dir: Write, Res: q}}, false)
		_, bindErr = tt.Instantiate("w2", func(*Task) {},
			[]Binding{{Port: "out", Dir: Write, Res: q}}, false)
	}

	require.NoError(t, s.Run(context.Background(), "top", top, nil))
	require.ErrorIs(t, bindErr, ErrBinding)
	assert.Contains(t, bindErr.Error(), `stream "q"`)
}

func TestScheduler_BindingDelegation_AncestorHolderDoesNotConflict(t *testing.T) {
	s := New(Options{})
	q, err := NewStream[int](s, "q", 1)
	require.NoError(t, err)

	var childErr error

	top := func(tt *Task) {
		// The root holds the write side (invocation parity with the kernel
		// signature) and delegates it to the child that actually drives it.
		_, childErr = tt.Instantiate("driver", func(*Task) { q.Close() },
			[]Binding{{Port: "out", Dir: Write, Res: q}}, false)
	}

	rootArgs := []Binding{{Port: "q", Dir: Write, Res: q}}
	require.NoError(t, s.Run(context.Background(), "top", top, rootArgs))
	require.NoError(t, childErr)
}

func TestScheduler_BindingRelease_SuccessorCanRebind(t *testing.T) {
	s := New(Options{})
	q, err := NewStream[int](s, "q", 4)
	require.NoError(t, err)

	var secondErr error

	top := func(tt *Task) {
		first := mustSpawn(tt, "first", func(*Task) { q.Write(1) },
			[]Binding{{Port: "out", Dir: Write, Res: q}}, false)
		tt.Join(first)

		// The writer side is released at completion; a successor stage may
		// acquire it.
		second, err := tt.Instantiate("second", func(*Task) { q.Write(2); q.Close() },
			[]Binding{{Port: "out", Dir: Write, Res: q}}, false)
		secondErr = err
		if err == nil {
			tt.Join(second)
		}
	}

	require.NoError(t, s.Run(context.Background(), "top", top, nil))
	require.NoError(t, secondErr)
}

func TestScheduler_Determinism_IdenticalTraceAndResults(t *testing.T) {
	run := func() (string, []int64) {
		rec := trace.NewRecorder("pipeline")
		s := New(Options{Recorder: rec})
		q, err := NewStream[int64](s, "q", 2)
		require.NoError(t, err)
		m, err := NewMmap[int64](s, "m", 4)
		require.NoError(t, err)

		top := func(tt *Task) {
			prod := mustSpawn(tt, "producer", func(*Task) {
				for i := int64(0); i < 4; i++ {
					q.Write(i * i)
				}
				q.Close()
			}, nil, false)
			cons := mustSpawn(tt, "consumer", func(*Task) {
				for i := 0; ; i++ {
					v, ok := q.Read()
					if !ok {
						return
					}
					m.Write(i, v)
				}
			}, nil, false)
			tt.Join(prod)
			tt.Join(cons)
		}

		require.NoError(t, s.Run(context.Background(), "pipeline", top, nil))
		h, err := rec.Trace().Hash()
		require.NoError(t, err)
		return h, m.Snapshot()
	}

	h1, m1 := run()
	h2, m2 := run()
	assert.Equal(t, h1, h2, "identical graphs produced different interleavings")
	assert.Equal(t, m1, m2)
	assert.Equal(t, []int64{0, 1, 4, 9}, m1)
}

func TestScheduler_BodyPanic_AbortsRunWithTaskIdentity(t *testing.T) {
	s := New(Options{})

	top := func(tt *Task) {
		h := mustSpawn(tt, "broken", func(*Task) {
			panic("unexpected condition")
		}, nil, false)
		tt.Join(h)
	}

	err := s.Run(context.Background(), "top", top, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"top/broken"`)
	assert.Contains(t, err.Error(), "unexpected condition")
}

func TestScheduler_ContextCancellation_AbortsWholeRun(t *testing.T) {
	s := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())

	top := func(tt *Task) {
		mustSpawn(tt, "spinner", func(st *Task) {
			for {
				cancel()
				st.Yield("spinning")
			}
		}, nil, false)
	}

	err := s.Run(ctx, "top", top, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestScheduler_Reuse_IsUsageError(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.Run(context.Background(), "top", func(*Task) {}, nil))

	err := s.Run(context.Background(), "top", func(*Task) {}, nil)
	require.ErrorIs(t, err, ErrUsage)
}
