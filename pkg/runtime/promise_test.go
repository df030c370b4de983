package runtime

import (
	"testing"
	"time"

	"nativert/pkg/config"
	"nativert/pkg/heap"
	"nativert/pkg/value"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestScheduler(opts ...Option) (*Scheduler, *heap.Heap) {
	cfg := config.Default()
	h := heap.New(cfg.Heap)
	return NewScheduler(h, cfg.Scheduler, opts...), h
}

// recorder returns a closure that appends its first argument to *got.
func recorder(h *heap.Heap, got *[]value.Value) value.Value {
	return h.NewClosure(func(_ *heap.Closure, args []value.Value) value.Value {
		*got = append(*got, argAt(args, 0))
		return value.Undefined
	}, 0)
}

func TestPromise_SettleOnce(t *testing.T) {
	s, _ := newTestScheduler()
	p := s.NewPromise()
	if s.State(p) != StatePending {
		t.Fatalf("New promise should be pending")
	}
	s.Resolve(p, value.Number(1))
	s.Resolve(p, value.Number(2))
	s.Reject(p, value.Number(3))
	if s.State(p) != StateFulfilled || s.PromiseValue(p) != value.Number(1) {
		t.Errorf("Expected first value to win, got state %d value %s", s.State(p), s.PromiseValue(p))
	}
	if s.State(value.Number(5)) != StateInvalid {
		t.Errorf("Non-promise should report invalid state")
	}
}

func TestPromise_ThenAfterSettlementFiresOnce(t *testing.T) {
	s, h := newTestScheduler()
	p := s.Resolved(value.Number(7))
	var got []value.Value
	s.Then(p, recorder(h, &got), value.Undefined)
	if len(got) != 0 {
		t.Fatalf("Callbacks must not run before a drain")
	}
	s.Drain()
	s.Drain()
	if len(got) != 1 || got[0] != value.Number(7) {
		t.Errorf("Expected exactly one call with 7, got %v", got)
	}
}

func TestPromise_MultipleThenAllFire(t *testing.T) {
	s, h := newTestScheduler()
	p := s.NewPromise()
	var got []value.Value
	s.Then(p, recorder(h, &got), value.Undefined)
	s.Then(p, recorder(h, &got), value.Undefined)
	s.Resolve(p, value.True)
	s.Drain()
	if len(got) != 2 {
		t.Errorf("Expected both reactions to fire, got %d", len(got))
	}
}

func TestPromise_ChainPropagatesResults(t *testing.T) {
	s, h := newTestScheduler()
	p := s.NewPromise()
	inc := h.NewClosure(func(_ *heap.Closure, args []value.Value) value.Value {
		return value.Number(args[0].ToNumber() + 1)
	}, 0)
	last := s.Then(s.Then(s.Then(p, inc, value.Undefined), inc, value.Undefined), inc, value.Undefined)
	s.Resolve(p, value.Number(0))
	n := s.Drain()
	if s.State(last) != StateFulfilled || s.PromiseValue(last) != value.Number(3) {
		t.Errorf("Expected 3 at the end of the chain, got %s", s.PromiseValue(last))
	}
	if n != 3 {
		t.Errorf("Expected 3 tasks in one drain, got %d", n)
	}
}

func TestPromise_RejectionPassesThrough(t *testing.T) {
	s, h := newTestScheduler()
	p := s.NewPromise()
	var caught []value.Value
	mid := s.Then(p, h.NewClosure(func(*heap.Closure, []value.Value) value.Value {
		t.Errorf("Fulfilment handler must not run on rejection")
		return value.Undefined
	}, 0), value.Undefined)
	end := s.Catch(mid, recorder(h, &caught))
	s.Reject(p, value.Number(42))
	s.Drain()
	if s.State(mid) != StateRejected || s.PromiseReason(mid) != value.Number(42) {
		t.Errorf("Rejection should pass through a then without handler")
	}
	if len(caught) != 1 || caught[0] != value.Number(42) {
		t.Errorf("Catch should receive the reason, got %v", caught)
	}
	if s.State(end) != StateFulfilled {
		t.Errorf("Catch recovers the chain")
	}
}

func TestPromise_ResolveAdoptsPromise(t *testing.T) {
	s, _ := newTestScheduler()
	inner := s.NewPromise()
	outer := s.NewPromise()
	s.Resolve(outer, inner)
	if s.State(outer) != StatePending {
		t.Fatalf("Outer should wait for a pending inner promise")
	}
	s.Resolve(inner, value.Number(5))
	s.Drain()
	if s.State(outer) != StateFulfilled || s.PromiseValue(outer) != value.Number(5) {
		t.Errorf("Outer should adopt inner's value, got %s", s.PromiseValue(outer))
	}

	rejected := s.Rejected(value.Number(9))
	follower := s.NewPromise()
	s.ResolveWithPromise(follower, rejected)
	if s.State(follower) != StateRejected || s.PromiseReason(follower) != value.Number(9) {
		t.Errorf("A settled inner promise should propagate immediately")
	}

	self := s.NewPromise()
	s.Resolve(self, self)
	if s.State(self) != StateRejected {
		t.Errorf("Resolving a promise with itself should reject it")
	}
}

func TestPromise_AdoptionLocksOuter(t *testing.T) {
	s, h := newTestScheduler()
	inner := s.NewPromise()
	outer := s.NewPromise()
	s.Resolve(outer, inner)
	s.Resolve(outer, value.Number(5))
	s.Reject(outer, value.Number(9))
	s.ResolveWithPromise(outer, s.Resolved(value.Number(1)))
	if s.State(outer) != StatePending {
		t.Fatalf("Outer should stay pending until inner settles, got state %d", s.State(outer))
	}
	s.Resolve(inner, value.Number(7))
	s.Drain()
	if s.State(outer) != StateFulfilled || s.PromiseValue(outer) != value.Number(7) {
		t.Errorf("Outer should take inner's value, got state %d value %s", s.State(outer), s.PromiseValue(outer))
	}
	if s.PromiseReason(outer) != value.Undefined {
		t.Errorf("Outer should have no reason, got %s", s.PromiseReason(outer))
	}

	failing := s.NewPromise()
	follower := s.NewPromise()
	s.Resolve(follower, failing)
	s.Resolve(follower, value.Number(5))
	s.Reject(failing, value.Number(3))
	s.Drain()
	if s.State(follower) != StateRejected || s.PromiseReason(follower) != value.Number(3) {
		t.Errorf("Follower should take inner's rejection, got state %d", s.State(follower))
	}

	pending := s.NewPromise()
	exec := h.NewClosure(func(_ *heap.Closure, args []value.Value) value.Value {
		h.CallValue(args[0], pending)
		h.CallValue(args[0], value.Number(5))
		h.CallValue(args[1], value.Number(6))
		return value.Undefined
	}, 0)
	p := s.NewWithExecutor(exec)
	s.Resolve(pending, value.Number(8))
	s.Drain()
	if s.State(p) != StateFulfilled || s.PromiseValue(p) != value.Number(8) {
		t.Errorf("Executor's first resolve should win, got state %d value %s", s.State(p), s.PromiseValue(p))
	}
}

func TestPromise_Finally(t *testing.T) {
	s, h := newTestScheduler()
	calls := 0
	var argc int
	fin := h.NewClosure(func(_ *heap.Closure, args []value.Value) value.Value {
		calls++
		argc = len(args)
		return value.Number(100)
	}, 0)

	ok := s.Finally(s.Resolved(value.Number(1)), fin)
	bad := s.Finally(s.Rejected(value.Number(2)), fin)
	s.Drain()
	if calls != 2 || argc != 0 {
		t.Errorf("finally should run twice with no arguments, got %d calls, %d args", calls, argc)
	}
	if s.PromiseValue(ok) != value.Number(1) {
		t.Errorf("finally should keep the fulfilment value, got %s", s.PromiseValue(ok))
	}
	if s.State(bad) != StateRejected || s.PromiseReason(bad) != value.Number(2) {
		t.Errorf("finally should keep the rejection")
	}

	failing := h.NewClosure(func(*heap.Closure, []value.Value) value.Value {
		return s.Rejected(value.Number(3))
	}, 0)
	overridden := s.Finally(s.Resolved(value.Number(1)), failing)
	s.Drain()
	if s.State(overridden) != StateRejected || s.PromiseReason(overridden) != value.Number(3) {
		t.Errorf("A rejected promise from finally should replace the outcome")
	}
}

func TestPromise_Executor(t *testing.T) {
	s, h := newTestScheduler()
	exec := h.NewClosure(func(_ *heap.Closure, args []value.Value) value.Value {
		h.CallValue(args[0], value.Number(11))
		h.CallValue(args[1], value.Number(12))
		return value.Undefined
	}, 0)
	p := s.NewWithExecutor(exec)
	if s.State(p) != StateFulfilled || s.PromiseValue(p) != value.Number(11) {
		t.Errorf("Executor resolve should settle synchronously and win over reject")
	}
}

func TestPromise_ScheduleResolveFromGoroutine(t *testing.T) {
	s, _ := newTestScheduler()
	p := s.NewPromise()
	q := s.NewPromise()
	s.BeginExternalOp()
	done := make(chan struct{})
	go func() {
		s.ScheduleResolve(p, value.Number(1), false)
		s.ScheduleResolve(q, value.Number(2), true)
		s.EndExternalOp()
		close(done)
	}()
	<-done
	if s.State(p) != StatePending {
		t.Fatalf("Scheduled resolutions apply on drain")
	}
	s.Drain()
	if s.State(p) != StateFulfilled || s.State(q) != StateRejected {
		t.Errorf("Unexpected states %d, %d", s.State(p), s.State(q))
	}
	if s.HasPendingExternalOps() {
		t.Errorf("External op count should be back to zero")
	}
}

func TestScheduler_DrainCap(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.MaxDrainIterations = 5
	s := NewScheduler(heap.New(cfg.Heap), cfg.Scheduler)
	var loop func()
	loop = func() { s.ScheduleMicrotask(loop) }
	s.ScheduleMicrotask(loop)
	if n := s.Drain(); n != 5 {
		t.Errorf("Expected drain to stop after 5 tasks, ran %d", n)
	}
	if s.Pending() != 1 {
		t.Errorf("Expected one task left, got %d", s.Pending())
	}
	s.Reset()
	if s.Pending() != 0 || s.RunUntilIdle() {
		t.Errorf("Reset should clear the queue")
	}
}

func TestScheduler_FIFO(t *testing.T) {
	s, _ := newTestScheduler()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		s.ScheduleMicrotask(func() {
			order = append(order, i)
			if i == 0 {
				s.ScheduleMicrotask(func() { order = append(order, 3) })
			}
		})
	}
	s.Drain()
	want := []int{0, 1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("Expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, order)
			break
		}
	}
}
