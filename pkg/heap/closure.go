package heap

import (
	"fmt"

	"nativert/pkg/value"
)

// Func is the native entry point of a closure. The closure is passed back so
// the function can reach its captures.
type Func func(c *Closure, args []value.Value) value.Value

// Closure pairs a function with untyped capture slots. Whether a slot holds a
// Value or a raw word is a convention between the function and whoever
// filled the slot.
type Closure struct {
	fn       Func
	captures []uint64
}

func (*Closure) objectKind() ObjectKind { return KindClosure }

func (c *Closure) CaptureCount() int { return len(c.captures) }

func (c *Closure) Capture(i int) value.Value {
	if i < 0 || i >= len(c.captures) {
		return value.Undefined
	}
	return value.FromBits(c.captures[i])
}

func (c *Closure) SetCapture(i int, v value.Value) {
	if i >= 0 && i < len(c.captures) {
		c.captures[i] = v.Bits()
	}
}

func (c *Closure) CaptureRaw(i int) uint64 {
	if i < 0 || i >= len(c.captures) {
		return 0
	}
	return c.captures[i]
}

func (c *Closure) SetCaptureRaw(i int, raw uint64) {
	if i >= 0 && i < len(c.captures) {
		c.captures[i] = raw
	}
}

// NewClosure allocates a closure with captureCount zeroed slots.
func (h *Heap) NewClosure(fn Func, captureCount int) value.Value {
	if fn == nil {
		panic("heap: closure without a function")
	}
	if captureCount < 0 {
		captureCount = 0
	}
	return h.allocPointer(&Closure{fn: fn, captures: make([]uint64, captureCount)})
}

// ClosureOf returns the closure behind v so callers can fill captures.
func (h *Heap) ClosureOf(v value.Value) (*Closure, bool) {
	return h.closure(v)
}

func (h *Heap) ClosureFunc(v value.Value) Func {
	if c, ok := h.closure(v); ok {
		return c.fn
	}
	return nil
}

func (h *Heap) IsCallable(v value.Value) bool {
	if v.IsHandle() {
		return h.foreign != nil
	}
	_, ok := h.closure(v)
	return ok
}

// CallValue calls a closure or a foreign handle with every argument given.
// Anything else returns undefined.
func (h *Heap) CallValue(fn value.Value, args ...value.Value) value.Value {
	if fn.IsHandle() {
		if h.foreign == nil {
			h.warn("call on foreign handle without a bridge", "handle", fn.Payload())
			return value.Undefined
		}
		return h.foreign.CallHandle(fn.Payload(), args)
	}
	c, ok := h.closure(fn)
	if !ok {
		if debugHeap {
			fmt.Printf("[heap] call on non-callable %s\n", fn)
		}
		return value.Undefined
	}
	return c.fn(c, args)
}

func (h *Heap) Call0(fn value.Value) value.Value { return h.CallValue(fn) }

func (h *Heap) Call1(fn, a0 value.Value) value.Value { return h.CallValue(fn, a0) }

func (h *Heap) Call2(fn, a0, a1 value.Value) value.Value { return h.CallValue(fn, a0, a1) }

func (h *Heap) Call3(fn, a0, a1, a2 value.Value) value.Value {
	return h.CallValue(fn, a0, a1, a2)
}

func (h *Heap) Call4(fn, a0, a1, a2, a3 value.Value) value.Value {
	return h.CallValue(fn, a0, a1, a2, a3)
}

func (h *Heap) Call5(fn, a0, a1, a2, a3, a4 value.Value) value.Value {
	return h.CallValue(fn, a0, a1, a2, a3, a4)
}

func (h *Heap) Call6(fn, a0, a1, a2, a3, a4, a5 value.Value) value.Value {
	return h.CallValue(fn, a0, a1, a2, a3, a4, a5)
}

func (h *Heap) Call7(fn, a0, a1, a2, a3, a4, a5, a6 value.Value) value.Value {
	return h.CallValue(fn, a0, a1, a2, a3, a4, a5, a6)
}

func (h *Heap) Call8(fn, a0, a1, a2, a3, a4, a5, a6, a7 value.Value) value.Value {
	return h.CallValue(fn, a0, a1, a2, a3, a4, a5, a6, a7)
}
