package runtime

import (
	"nativert/pkg/heap"
	"nativert/pkg/value"
)

// External promise states as reported by State.
const (
	StateInvalid   = -1
	StatePending   = 0
	StateFulfilled = 1
	StateRejected  = 2
)

func (s *Scheduler) cell(p value.Value) (*heap.PromiseCell, bool) {
	return s.heap.PromiseCellOf(p)
}

func (s *Scheduler) NewPromise() value.Value {
	return s.heap.NewPromiseCell()
}

// Resolved creates a promise already fulfilled with v. A promise v is
// adopted instead.
func (s *Scheduler) Resolved(v value.Value) value.Value {
	p := s.NewPromise()
	s.Resolve(p, v)
	return p
}

func (s *Scheduler) Rejected(reason value.Value) value.Value {
	p := s.NewPromise()
	s.Reject(p, reason)
	return p
}

func (s *Scheduler) IsPromise(v value.Value) bool {
	return s.heap.IsPromise(v)
}

// settleable returns the cell of a pending promise nobody has claimed yet.
func (s *Scheduler) settleable(p value.Value) (*heap.PromiseCell, bool) {
	c, ok := s.cell(p)
	if !ok || c.State != heap.PromisePending || c.Locked {
		return nil, false
	}
	return c, true
}

// Resolve fulfills p with v, or adopts v when it is itself a promise. Only
// the first resolution of a promise counts, including one that adopted a
// promise still pending.
func (s *Scheduler) Resolve(p, v value.Value) {
	c, ok := s.settleable(p)
	if !ok {
		return
	}
	if s.heap.IsPromise(v) {
		if v == p {
			s.Reject(p, s.heap.NewString("TypeError: Chaining cycle detected for promise"))
			return
		}
		s.ResolveWithPromise(p, v)
		return
	}
	s.fulfill(c, v)
}

func (s *Scheduler) fulfill(c *heap.PromiseCell, v value.Value) {
	c.State = heap.PromiseFulfilled
	c.Value = v
	s.triggerReactions(c)
}

// Reject rejects p with reason. Settled or locked promises ignore it.
func (s *Scheduler) Reject(p, reason value.Value) {
	c, ok := s.settleable(p)
	if !ok {
		return
	}
	s.reject(c, reason)
}

func (s *Scheduler) reject(c *heap.PromiseCell, reason value.Value) {
	c.State = heap.PromiseRejected
	c.Reason = reason
	s.triggerReactions(c)
}

// ResolveWithPromise makes outer follow inner. A settled inner propagates
// immediately; a pending one gets forwarding reactions.
func (s *Scheduler) ResolveWithPromise(outer, inner value.Value) {
	oc, ok := s.settleable(outer)
	if !ok {
		return
	}
	ic, ok := s.cell(inner)
	if !ok {
		s.fulfill(oc, inner)
		return
	}
	switch ic.State {
	case heap.PromiseFulfilled:
		s.fulfill(oc, ic.Value)
	case heap.PromiseRejected:
		s.reject(oc, ic.Reason)
	default:
		oc.Locked = true
		ic.Reactions = append(ic.Reactions, heap.PromiseReaction{
			OnFulfilled: s.adoptFunction(outer, false),
			OnRejected:  s.adoptFunction(outer, true),
			Next:        value.Undefined,
		})
	}
}

// adoptFunction settles a locked promise with the outcome of the promise it
// adopted. The promise is in capture slot 0.
func (s *Scheduler) adoptFunction(p value.Value, rejected bool) value.Value {
	fn := s.heap.NewClosure(func(cl *heap.Closure, args []value.Value) value.Value {
		c, ok := s.cell(cl.Capture(0))
		if !ok || c.State != heap.PromisePending {
			return value.Undefined
		}
		c.Locked = false
		if rejected {
			s.reject(c, argAt(args, 0))
		} else {
			s.Resolve(cl.Capture(0), argAt(args, 0))
		}
		return value.Undefined
	}, 1)
	c, _ := s.heap.ClosureOf(fn)
	c.SetCapture(0, p)
	return fn
}

// triggerReactions schedules all reactions for a settled promise
func (s *Scheduler) triggerReactions(c *heap.PromiseCell) {
	reactions := c.Reactions
	c.Reactions = nil
	for _, r := range reactions {
		s.scheduleReaction(r, c.State, c.Value, c.Reason)
	}
}

func (s *Scheduler) scheduleReaction(r heap.PromiseReaction, state heap.PromiseState, val, reason value.Value) {
	fulfilled := state == heap.PromiseFulfilled
	arg := val
	if !fulfilled {
		arg = reason
	}
	s.ScheduleMicrotask(func() {
		if r.Finally {
			s.runFinally(r, fulfilled, arg)
			return
		}
		handler := r.OnFulfilled
		if !fulfilled {
			handler = r.OnRejected
		}
		if !s.heap.IsCallable(handler) {
			// No handler - pass through
			if fulfilled {
				s.Resolve(r.Next, arg)
			} else {
				s.Reject(r.Next, arg)
			}
			return
		}
		result := s.heap.CallValue(handler, arg)
		s.Resolve(r.Next, result)
	})
}

// runFinally calls the callback without arguments. The original outcome
// passes through unless the callback returns a promise that rejects.
func (s *Scheduler) runFinally(r heap.PromiseReaction, fulfilled bool, arg value.Value) {
	passThrough := func() {
		if fulfilled {
			s.Resolve(r.Next, arg)
		} else {
			s.Reject(r.Next, arg)
		}
	}
	result := value.Undefined
	if s.heap.IsCallable(r.OnFulfilled) {
		result = s.heap.CallValue(r.OnFulfilled)
	}
	if !s.heap.IsPromise(result) {
		passThrough()
		return
	}
	onOK := s.heap.NewClosure(func(*heap.Closure, []value.Value) value.Value {
		passThrough()
		return value.Undefined
	}, 0)
	onFail := s.heap.NewClosure(func(_ *heap.Closure, args []value.Value) value.Value {
		s.Reject(r.Next, argAt(args, 0))
		return value.Undefined
	}, 0)
	s.Then(result, onOK, onFail)
}

// Then registers callbacks on p and returns the promise they settle. A
// missing callback passes the outcome through unchanged. Reactions on a
// settled promise are queued immediately.
func (s *Scheduler) Then(p, onFulfilled, onRejected value.Value) value.Value {
	return s.addReaction(p, heap.PromiseReaction{OnFulfilled: onFulfilled, OnRejected: onRejected})
}

func (s *Scheduler) Catch(p, onRejected value.Value) value.Value {
	return s.Then(p, value.Undefined, onRejected)
}

func (s *Scheduler) Finally(p, onFinally value.Value) value.Value {
	return s.addReaction(p, heap.PromiseReaction{OnFulfilled: onFinally, OnRejected: onFinally, Finally: true})
}

func (s *Scheduler) addReaction(p value.Value, r heap.PromiseReaction) value.Value {
	c, ok := s.cell(p)
	if !ok {
		return value.Undefined
	}
	r.Next = s.NewPromise()
	if c.State == heap.PromisePending {
		c.Reactions = append(c.Reactions, r)
	} else {
		s.scheduleReaction(r, c.State, c.Value, c.Reason)
	}
	return r.Next
}

// State returns StateInvalid for anything that is not a live promise.
func (s *Scheduler) State(p value.Value) int {
	c, ok := s.cell(p)
	if !ok {
		return StateInvalid
	}
	switch c.State {
	case heap.PromiseFulfilled:
		return StateFulfilled
	case heap.PromiseRejected:
		return StateRejected
	default:
		return StatePending
	}
}

func (s *Scheduler) PromiseValue(p value.Value) value.Value {
	if c, ok := s.cell(p); ok {
		return c.Value
	}
	return value.Undefined
}

func (s *Scheduler) PromiseReason(p value.Value) value.Value {
	if c, ok := s.cell(p); ok {
		return c.Reason
	}
	return value.Undefined
}

func argAt(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Undefined
}

// resolveFunction returns a closure that resolves p with its first argument.
// The promise lives in capture slot 0.
func (s *Scheduler) resolveFunction(p value.Value) value.Value {
	fn := s.heap.NewClosure(func(c *heap.Closure, args []value.Value) value.Value {
		s.Resolve(c.Capture(0), argAt(args, 0))
		return value.Undefined
	}, 1)
	c, _ := s.heap.ClosureOf(fn)
	c.SetCapture(0, p)
	return fn
}

func (s *Scheduler) rejectFunction(p value.Value) value.Value {
	fn := s.heap.NewClosure(func(c *heap.Closure, args []value.Value) value.Value {
		s.Reject(c.Capture(0), argAt(args, 0))
		return value.Undefined
	}, 1)
	c, _ := s.heap.ClosureOf(fn)
	c.SetCapture(0, p)
	return fn
}

// NewWithExecutor creates a promise and calls executor(resolve, reject)
// synchronously.
func (s *Scheduler) NewWithExecutor(executor value.Value) value.Value {
	p := s.NewPromise()
	s.heap.CallValue(executor, s.resolveFunction(p), s.rejectFunction(p))
	return p
}
