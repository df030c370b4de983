// Package runtime drives promises: a FIFO microtask queue drained explicitly
// by the embedding program, timers, and hand-off of results produced on
// other goroutines.
package runtime

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nativert/pkg/config"
	"nativert/pkg/heap"
	"nativert/pkg/value"
)

const debugScheduler = false

// AsyncRuntime is the contract between generated code (or the bridge) and
// whatever pumps microtasks.
type AsyncRuntime interface {
	// ScheduleMicrotask queues a callback behind every task already queued.
	ScheduleMicrotask(callback func())

	// RunUntilIdle drains the queue and reports whether any work was done.
	RunUntilIdle() bool

	// Reset drops pending tasks, timers and scheduled resolutions.
	Reset()

	// BeginExternalOp marks the start of work completing outside the queue,
	// such as a goroutine that will call ScheduleResolve.
	BeginExternalOp()

	// EndExternalOp marks that work as finished.
	EndExternalOp()

	HasPendingExternalOps() bool

	// WaitForExternalOp blocks until at least one external operation ends.
	// It returns immediately when none are pending.
	WaitForExternalOp()
}

type scheduledResolve struct {
	promise  value.Value
	val      value.Value
	rejected bool
}

// Scheduler owns the microtask queue of one runtime instance. Tasks run on
// the goroutine that calls Drain; only ScheduleResolve, ScheduleMicrotask
// and the external-op counters may be used from other goroutines.
type Scheduler struct {
	heap   *heap.Heap
	cfg    config.SchedulerConfig
	logger *slog.Logger
	now    func() time.Time
	start  time.Time

	mu              sync.Mutex
	microtasks      []func()
	scheduled       []scheduledResolve
	pendingExternal int
	externalCond    *sync.Cond
	wake            chan struct{}

	timers      map[uint64]*timer
	nextTimerID uint64
}

var _ AsyncRuntime = (*Scheduler)(nil)

type Option func(*Scheduler)

// WithClock replaces time.Now, mostly so tests can move time by hand.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func NewScheduler(h *heap.Heap, cfg config.SchedulerConfig, opts ...Option) *Scheduler {
	if cfg.TimerResolution <= 0 {
		cfg.TimerResolution = config.Default().Scheduler.TimerResolution
	}
	s := &Scheduler{
		heap:       h,
		cfg:        cfg,
		logger:     slog.Default(),
		now:        time.Now,
		microtasks: make([]func(), 0, 16),
		wake:       make(chan struct{}, 1),
		timers:     make(map[uint64]*timer),
	}
	s.externalCond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.now()
	return s
}

func (s *Scheduler) Heap() *heap.Heap { return s.heap }

// ScheduleMicrotask adds a callback to the microtask queue
func (s *Scheduler) ScheduleMicrotask(callback func()) {
	s.mu.Lock()
	s.microtasks = append(s.microtasks, callback)
	s.mu.Unlock()
}

func (s *Scheduler) popMicrotask() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.microtasks) == 0 {
		return nil, false
	}
	task := s.microtasks[0]
	s.microtasks[0] = nil
	s.microtasks = s.microtasks[1:]
	return task, true
}

// Pending returns the number of queued microtasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.microtasks)
}

// Drain fires due timers, applies resolutions handed over by ScheduleResolve
// and then runs microtasks FIFO until the queue is empty. Tasks queued while
// draining run in the same drain. It returns the amount of work done.
func (s *Scheduler) Drain() int {
	ran := s.tickTimers()
	ran += s.processScheduled()

	tasks := 0
	for {
		task, ok := s.popMicrotask()
		if !ok {
			break
		}
		task()
		tasks++
		if max := s.cfg.MaxDrainIterations; max > 0 && tasks >= max {
			s.logger.Warn("microtask drain stopped early", "limit", max, "remaining", s.Pending())
			break
		}
	}
	if debugScheduler && ran+tasks > 0 {
		fmt.Printf("[scheduler] drain: %d timers/resolves, %d tasks\n", ran, tasks)
	}
	return ran + tasks
}

// RunUntilIdle executes all pending microtasks
// Returns true if any microtasks were executed
func (s *Scheduler) RunUntilIdle() bool {
	return s.Drain() > 0
}

// Reset clears all pending microtasks
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.microtasks = make([]func(), 0, 16)
	s.scheduled = nil
	s.pendingExternal = 0
	s.timers = make(map[uint64]*timer)
}

// ScheduleResolve hands a settlement to the scheduler. It is safe to call
// from any goroutine; the promise settles during the next Drain.
func (s *Scheduler) ScheduleResolve(promise, v value.Value, rejected bool) {
	s.mu.Lock()
	s.scheduled = append(s.scheduled, scheduledResolve{promise: promise, val: v, rejected: rejected})
	s.mu.Unlock()
	s.notify()
}

func (s *Scheduler) processScheduled() int {
	s.mu.Lock()
	items := s.scheduled
	s.scheduled = nil
	s.mu.Unlock()

	for _, it := range items {
		if it.rejected {
			s.Reject(it.promise, it.val)
		} else {
			s.Resolve(it.promise, it.val)
		}
	}
	return len(items)
}

func (s *Scheduler) hasScheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled) > 0
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// BeginExternalOp marks the start of an external async operation
func (s *Scheduler) BeginExternalOp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingExternal++
}

// EndExternalOp marks the completion of an external async operation
func (s *Scheduler) EndExternalOp() {
	s.mu.Lock()
	if s.pendingExternal > 0 {
		s.pendingExternal--
	}
	s.externalCond.Broadcast()
	s.mu.Unlock()
	s.notify()
}

// HasPendingExternalOps returns true if there are pending external operations
func (s *Scheduler) HasPendingExternalOps() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingExternal > 0
}

// WaitForExternalOp blocks until at least one external operation completes
func (s *Scheduler) WaitForExternalOp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingExternal > 0 {
		s.externalCond.Wait()
	}
}
