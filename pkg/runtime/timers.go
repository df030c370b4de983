package runtime

import (
	"math"
	"sort"
	"time"

	"nativert/pkg/value"
)

// timer either settles a promise or calls a callback. Intervals re-arm after
// firing until cleared.
type timer struct {
	id       uint64
	deadline time.Time
	interval time.Duration
	callback value.Value
	promise  value.Value
	val      value.Value
}

func msDuration(ms float64) time.Duration {
	if math.IsNaN(ms) || ms <= 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func (s *Scheduler) addTimer(t *timer) uint64 {
	s.nextTimerID++
	t.id = s.nextTimerID
	s.timers[t.id] = t
	return t.id
}

// Now returns milliseconds elapsed since the scheduler was created.
func (s *Scheduler) Now() float64 {
	return float64(s.now().Sub(s.start)) / float64(time.Millisecond)
}

// SetTimeout returns a promise fulfilled with undefined once delayMs passed.
func (s *Scheduler) SetTimeout(delayMs float64) value.Value {
	return s.SetTimeoutValue(delayMs, value.Undefined)
}

func (s *Scheduler) SetTimeoutValue(delayMs float64, v value.Value) value.Value {
	p := s.NewPromise()
	s.addTimer(&timer{
		deadline: s.now().Add(msDuration(delayMs)),
		promise:  p,
		val:      v,
		callback: value.Undefined,
	})
	return p
}

// SetTimeoutCallback calls fn with no arguments once delayMs passed.
func (s *Scheduler) SetTimeoutCallback(fn value.Value, delayMs float64) uint64 {
	return s.addTimer(&timer{
		deadline: s.now().Add(msDuration(delayMs)),
		callback: fn,
		promise:  value.Undefined,
	})
}

// SetInterval calls fn every ms milliseconds. Intervals shorter than the
// timer resolution are raised to it.
func (s *Scheduler) SetInterval(fn value.Value, ms float64) uint64 {
	every := msDuration(ms)
	if every < s.cfg.TimerResolution {
		every = s.cfg.TimerResolution
	}
	return s.addTimer(&timer{
		deadline: s.now().Add(every),
		interval: every,
		callback: fn,
		promise:  value.Undefined,
	})
}

// ClearTimer cancels a callback timer or interval. Unknown ids report false.
func (s *Scheduler) ClearTimer(id uint64) bool {
	if _, ok := s.timers[id]; !ok {
		return false
	}
	delete(s.timers, id)
	return true
}

func (s *Scheduler) HasPendingTimers() bool {
	return len(s.timers) > 0
}

// NextDeadline returns the earliest pending deadline.
func (s *Scheduler) NextDeadline() (time.Time, bool) {
	var next time.Time
	found := false
	for _, t := range s.timers {
		if !found || t.deadline.Before(next) {
			next, found = t.deadline, true
		}
	}
	return next, found
}

// tickTimers fires every due timer in deadline order and returns how many
// fired. Each interval fires at most once per tick.
func (s *Scheduler) tickTimers() int {
	if len(s.timers) == 0 {
		return 0
	}
	now := s.now()
	var due []*timer
	for _, t := range s.timers {
		if !t.deadline.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].id < due[j].id
		}
		return due[i].deadline.Before(due[j].deadline)
	})

	fired := 0
	for _, t := range due {
		// an earlier callback in this tick may have cleared it
		if _, live := s.timers[t.id]; !live {
			continue
		}
		if t.interval > 0 {
			t.deadline = t.deadline.Add(t.interval)
			if !t.deadline.After(now) {
				t.deadline = now.Add(t.interval)
			}
		} else {
			delete(s.timers, t.id)
		}
		if s.heap.IsPromise(t.promise) {
			s.Resolve(t.promise, t.val)
		} else {
			s.heap.CallValue(t.callback)
		}
		fired++
	}
	return fired
}
