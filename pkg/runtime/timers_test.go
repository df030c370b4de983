package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"nativert/pkg/heap"
	"nativert/pkg/value"
)

func newClockedScheduler() (*Scheduler, *heap.Heap, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, h := newTestScheduler(WithClock(clk.Now))
	return s, h, clk
}

func TestTimers_SetTimeoutResolvesWhenDue(t *testing.T) {
	s, _, clk := newClockedScheduler()
	p := s.SetTimeoutValue(50, value.Number(1))
	s.Drain()
	if s.State(p) != StatePending {
		t.Fatalf("Timer fired early")
	}
	clk.Advance(49 * time.Millisecond)
	s.Drain()
	if s.State(p) != StatePending {
		t.Fatalf("Timer fired before its deadline")
	}
	clk.Advance(time.Millisecond)
	s.Drain()
	if s.State(p) != StateFulfilled || s.PromiseValue(p) != value.Number(1) {
		t.Errorf("Timer should have fulfilled the promise")
	}
	if s.HasPendingTimers() {
		t.Errorf("One-shot timer should be gone after firing")
	}
	if got := s.Now(); got != 50 {
		t.Errorf("Now() = %v, want 50", got)
	}
}

func TestTimers_FireInDeadlineOrder(t *testing.T) {
	s, h, clk := newClockedScheduler()
	var order []value.Value
	mark := func(n float64) value.Value {
		return h.NewClosure(func(*heap.Closure, []value.Value) value.Value {
			order = append(order, value.Number(n))
			return value.Undefined
		}, 0)
	}
	s.SetTimeoutCallback(mark(3), 30)
	s.SetTimeoutCallback(mark(1), 10)
	s.SetTimeoutCallback(mark(2), 10)
	clk.Advance(100 * time.Millisecond)
	s.Drain()
	want := []float64{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("Expected %d callbacks, got %d", len(want), len(order))
	}
	for i, w := range want {
		if order[i] != value.Number(w) {
			t.Errorf("callback %d = %s, want %v", i, order[i], w)
		}
	}
}

func TestTimers_IntervalAndClear(t *testing.T) {
	s, h, clk := newClockedScheduler()
	ticks := 0
	id := s.SetInterval(h.NewClosure(func(*heap.Closure, []value.Value) value.Value {
		ticks++
		return value.Undefined
	}, 0), 10)

	for i := 0; i < 3; i++ {
		clk.Advance(10 * time.Millisecond)
		s.Drain()
	}
	if ticks != 3 {
		t.Errorf("Expected 3 ticks, got %d", ticks)
	}

	// a long stall still fires the interval only once
	clk.Advance(time.Second)
	s.Drain()
	if ticks != 4 {
		t.Errorf("Expected 4 ticks after a stall, got %d", ticks)
	}

	if !s.ClearTimer(id) {
		t.Fatalf("ClearTimer should find the interval")
	}
	if s.ClearTimer(id) {
		t.Errorf("Clearing twice should report false")
	}
	clk.Advance(time.Second)
	s.Drain()
	if ticks != 4 {
		t.Errorf("Cleared interval kept firing")
	}
}

func TestTimers_NextDeadline(t *testing.T) {
	s, _, clk := newClockedScheduler()
	if _, ok := s.NextDeadline(); ok {
		t.Fatalf("No timers, no deadline")
	}
	s.SetTimeout(20)
	s.SetTimeout(5)
	next, ok := s.NextDeadline()
	if !ok || !next.Equal(clk.t.Add(5*time.Millisecond)) {
		t.Errorf("NextDeadline = %v, %v", next, ok)
	}
}

func TestRun_CompletesExternalWork(t *testing.T) {
	s, h := newTestScheduler()
	p := s.NewPromise()
	var got []value.Value
	s.Then(p, recorder(h, &got), value.Undefined)

	s.BeginExternalOp()
	go func() {
		time.Sleep(5 * time.Millisecond)
		s.ScheduleResolve(p, value.Number(8), false)
		s.EndExternalOp()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if len(got) != 1 || got[0] != value.Number(8) {
		t.Errorf("Expected the reaction to see 8, got %v", got)
	}
}

func TestRun_WaitsForTimers(t *testing.T) {
	s, _ := newTestScheduler()
	p := s.SetTimeout(2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if s.State(p) != StateFulfilled {
		t.Errorf("Run should return only after the timer fired")
	}
}

func TestRun_Cancelled(t *testing.T) {
	s, _ := newTestScheduler()
	s.BeginExternalOp()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestWait_ExternalOp(t *testing.T) {
	s, _ := newTestScheduler()
	s.BeginExternalOp()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait with a pending op should end with its context, got %v", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		s.EndExternalOp()
	}()
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Wait should return when the op ends, got %v", err)
	}
	if s.HasPendingExternalOps() {
		t.Errorf("Expected no pending external ops")
	}
}
