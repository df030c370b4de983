package heap

import "nativert/pkg/value"

type PromiseState int8

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

func (s PromiseState) String() string {
	switch s {
	case PromisePending:
		return "pending"
	case PromiseFulfilled:
		return "fulfilled"
	case PromiseRejected:
		return "rejected"
	default:
		return "invalid"
	}
}

// PromiseReaction is one `then` registration. Next is the promise returned by
// that `then`; it settles with the callback's result.
type PromiseReaction struct {
	OnFulfilled value.Value
	OnRejected  value.Value
	Next        value.Value
	Finally     bool
}

// PromiseCell is the heap side of a promise. The scheduler in pkg/runtime
// owns every state transition; the heap only stores it.
type PromiseCell struct {
	State     PromiseState
	Value     value.Value
	Reason    value.Value
	Reactions []PromiseReaction
	// Locked is set once a pending promise has adopted another one. It
	// stays pending but only the adopted promise can settle it.
	Locked bool
}

func (*PromiseCell) objectKind() ObjectKind { return KindPromise }

func (h *Heap) NewPromiseCell() value.Value {
	return h.allocPointer(&PromiseCell{
		State:  PromisePending,
		Value:  value.Undefined,
		Reason: value.Undefined,
	})
}

func (h *Heap) PromiseCellOf(v value.Value) (*PromiseCell, bool) {
	if !v.IsPointer() {
		return nil, false
	}
	c, ok := h.lookup(v)
	if !ok {
		return nil, false
	}
	p, ok := c.(*PromiseCell)
	return p, ok
}

func (h *Heap) IsPromise(v value.Value) bool {
	_, ok := h.PromiseCellOf(v)
	return ok
}
