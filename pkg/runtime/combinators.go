package runtime

import (
	"nativert/pkg/heap"
	"nativert/pkg/value"
)

// Capture layout shared by the per-element closures of All and AllSettled.
const (
	capResults = iota
	capState
	capAggregate
	capIndex
)

// Slots of the shared state array.
const (
	stateRemaining = iota
	stateRejected
)

func (s *Scheduler) newCombinatorClosure(fn heap.Func, results, state, aggregate value.Value, index int) value.Value {
	v := s.heap.NewClosure(fn, 4)
	c, _ := s.heap.ClosureOf(v)
	c.SetCapture(capResults, results)
	c.SetCapture(capState, state)
	c.SetCapture(capAggregate, aggregate)
	c.SetCapture(capIndex, value.Int32(int32(index)))
	return v
}

// decrementRemaining lowers the remaining counter and returns the new value.
func (s *Scheduler) decrementRemaining(state value.Value) int {
	n := int(s.heap.ArrayGet(state, stateRemaining).ToNumber()) - 1
	s.heap.ArraySet(state, stateRemaining, value.Number(float64(n)))
	return n
}

func (s *Scheduler) rejectedFlag(state value.Value) bool {
	return s.heap.ArrayGet(state, stateRejected).ToNumber() != 0
}

func (s *Scheduler) fixedArray(n int) value.Value {
	vals := make([]value.Value, n)
	for i := range vals {
		vals[i] = value.Undefined
	}
	return s.heap.ArrayFrom(vals...)
}

// All resolves with an array of every input's value once all inputs fulfil,
// or rejects with the first rejection. Non-promise inputs count as already
// fulfilled. An empty input resolves immediately to an empty array.
func (s *Scheduler) All(arr value.Value) value.Value {
	inputs := s.heap.ArrayValues(arr)
	out := s.NewPromise()
	if len(inputs) == 0 {
		s.Resolve(out, s.heap.NewArray(0))
		return out
	}
	results := s.fixedArray(len(inputs))
	state := s.heap.ArrayFrom(value.Number(float64(len(inputs))), value.Number(0))

	onFulfilled := func(c *heap.Closure, args []value.Value) value.Value {
		results, state := c.Capture(capResults), c.Capture(capState)
		s.heap.ArraySet(results, int(c.Capture(capIndex).AsInt32()), argAt(args, 0))
		if s.decrementRemaining(state) == 0 && !s.rejectedFlag(state) {
			s.Resolve(c.Capture(capAggregate), results)
		}
		return value.Undefined
	}
	onRejected := func(c *heap.Closure, args []value.Value) value.Value {
		state := c.Capture(capState)
		if !s.rejectedFlag(state) {
			s.heap.ArraySet(state, stateRejected, value.Number(1))
			s.Reject(c.Capture(capAggregate), argAt(args, 0))
		}
		return value.Undefined
	}

	for i, in := range inputs {
		if !s.IsPromise(in) {
			s.heap.ArraySet(results, i, in)
			s.decrementRemaining(state)
			continue
		}
		s.Then(in,
			s.newCombinatorClosure(onFulfilled, results, state, out, i),
			s.newCombinatorClosure(onRejected, results, state, out, i))
	}
	if s.heap.ArrayGet(state, stateRemaining).ToNumber() == 0 {
		s.Resolve(out, results)
	}
	return out
}

func (s *Scheduler) settledRecord(status string, key string, v value.Value) value.Value {
	obj := s.heap.AllocObject(0, 0)
	s.heap.SetFieldByName(obj, "status", s.heap.NewString(status))
	s.heap.SetFieldByName(obj, key, v)
	return obj
}

// AllSettled always fulfils, with one {status, value} or {status, reason}
// record per input.
func (s *Scheduler) AllSettled(arr value.Value) value.Value {
	inputs := s.heap.ArrayValues(arr)
	out := s.NewPromise()
	if len(inputs) == 0 {
		s.Resolve(out, s.heap.NewArray(0))
		return out
	}
	results := s.fixedArray(len(inputs))
	state := s.heap.ArrayFrom(value.Number(float64(len(inputs))), value.Number(0))

	settle := func(status, key string) heap.Func {
		return func(c *heap.Closure, args []value.Value) value.Value {
			results, state := c.Capture(capResults), c.Capture(capState)
			rec := s.settledRecord(status, key, argAt(args, 0))
			s.heap.ArraySet(results, int(c.Capture(capIndex).AsInt32()), rec)
			if s.decrementRemaining(state) == 0 {
				s.Resolve(c.Capture(capAggregate), results)
			}
			return value.Undefined
		}
	}
	onFulfilled, onRejected := settle("fulfilled", "value"), settle("rejected", "reason")

	for i, in := range inputs {
		if !s.IsPromise(in) {
			s.heap.ArraySet(results, i, s.settledRecord("fulfilled", "value", in))
			s.decrementRemaining(state)
			continue
		}
		s.Then(in,
			s.newCombinatorClosure(onFulfilled, results, state, out, i),
			s.newCombinatorClosure(onRejected, results, state, out, i))
	}
	if s.heap.ArrayGet(state, stateRemaining).ToNumber() == 0 {
		s.Resolve(out, results)
	}
	return out
}

// Race settles like the first input to settle. Non-promise inputs are
// wrapped as fulfilled promises, so among already-settled inputs the first
// in order wins. An empty input never settles.
func (s *Scheduler) Race(arr value.Value) value.Value {
	out := s.NewPromise()
	resolve, reject := s.resolveFunction(out), s.rejectFunction(out)
	for _, in := range s.heap.ArrayValues(arr) {
		if !s.IsPromise(in) {
			in = s.Resolved(in)
		}
		s.Then(in, resolve, reject)
	}
	return out
}
