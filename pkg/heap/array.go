package heap

import (
	"math"

	"nativert/pkg/value"
)

type arrayCell struct {
	elems []value.Value
}

func (*arrayCell) objectKind() ObjectKind { return KindArray }

func (h *Heap) newArrayCell(elems []value.Value, capacity int) value.Value {
	if capacity < h.cfg.MinArrayCapacity {
		capacity = h.cfg.MinArrayCapacity
	}
	if capacity < len(elems) {
		capacity = len(elems)
	}
	if uint64(capacity) > math.MaxUint32 {
		panic("heap: array capacity exceeds 32 bits")
	}
	buf := make([]value.Value, len(elems), capacity)
	copy(buf, elems)
	return h.allocPointer(&arrayCell{elems: buf})
}

// NewArray allocates an empty array. Capacity is raised to the configured floor.
func (h *Heap) NewArray(capacity int) value.Value {
	return h.newArrayCell(nil, capacity)
}

func (h *Heap) ArrayFrom(vals ...value.Value) value.Value {
	return h.newArrayCell(vals, len(vals))
}

func (h *Heap) ArrayFromFloats(fs []float64) value.Value {
	elems := make([]value.Value, len(fs))
	for i, f := range fs {
		elems[i] = value.Number(f)
	}
	return h.newArrayCell(elems, len(elems))
}

func (h *Heap) IsArray(v value.Value) bool {
	_, ok := h.arr(v)
	return ok
}

func (h *Heap) ArrayLength(v value.Value) int {
	if a, ok := h.arr(v); ok {
		return len(a.elems)
	}
	return 0
}

func (h *Heap) ArrayCapacity(v value.Value) int {
	if a, ok := h.arr(v); ok {
		return cap(a.elems)
	}
	return 0
}

// ArrayGet returns NaN for an out-of-bounds index or a non-array.
func (h *Heap) ArrayGet(v value.Value, i int) value.Value {
	a, ok := h.arr(v)
	if !ok || i < 0 || i >= len(a.elems) {
		return value.NaN
	}
	return a.elems[i]
}

// ArraySet writes inside the current length only.
func (h *Heap) ArraySet(v value.Value, i int, x value.Value) {
	a, ok := h.arr(v)
	if !ok || i < 0 || i >= len(a.elems) {
		return
	}
	a.elems[i] = x
}

// ArraySetExtend writes index i, growing the array and filling any gap with
// 0.0 first. The returned value replaces v.
func (h *Heap) ArraySetExtend(v value.Value, i int, x value.Value) value.Value {
	a, ok := h.arr(v)
	if !ok || i < 0 {
		return v
	}
	if i < len(a.elems) {
		a.elems[i] = x
		return v
	}
	v = h.Grow(v, i+1)
	a, _ = h.arr(v)
	zero := value.Number(0)
	for len(a.elems) < i {
		a.elems = append(a.elems, zero)
	}
	a.elems = append(a.elems, x)
	return v
}

// Grow ensures capacity for at least min elements. Capacity doubles with the
// configured floor; when it has to move, the old value goes stale.
func (h *Heap) Grow(v value.Value, min int) value.Value {
	a, ok := h.arr(v)
	if !ok || min <= cap(a.elems) {
		return v
	}
	newCap := cap(a.elems) * 2
	if newCap < h.cfg.MinArrayCapacity {
		newCap = h.cfg.MinArrayCapacity
	}
	if newCap < min {
		newCap = min
	}
	if uint64(newCap) > math.MaxUint32 {
		panic("heap: array capacity exceeds 32 bits")
	}
	buf := make([]value.Value, len(a.elems), newCap)
	copy(buf, a.elems)
	return h.replace(v, &arrayCell{elems: buf}, value.Pointer)
}

// Push appends x and returns the (possibly moved) array.
func (h *Heap) Push(v value.Value, x value.Value) value.Value {
	a, ok := h.arr(v)
	if !ok {
		return v
	}
	if len(a.elems) == cap(a.elems) {
		v = h.Grow(v, len(a.elems)+1)
		a, _ = h.arr(v)
	}
	a.elems = append(a.elems, x)
	return v
}

// Pop removes the last element. An empty array yields NaN.
func (h *Heap) Pop(v value.Value) value.Value {
	a, ok := h.arr(v)
	if !ok || len(a.elems) == 0 {
		return value.NaN
	}
	n := len(a.elems) - 1
	x := a.elems[n]
	a.elems = a.elems[:n]
	return x
}

// Shift removes the first element. An empty array yields NaN.
func (h *Heap) Shift(v value.Value) value.Value {
	a, ok := h.arr(v)
	if !ok || len(a.elems) == 0 {
		return value.NaN
	}
	x := a.elems[0]
	copy(a.elems, a.elems[1:])
	a.elems = a.elems[:len(a.elems)-1]
	return x
}

// Unshift inserts x at the front and returns the (possibly moved) array.
func (h *Heap) Unshift(v value.Value, x value.Value) value.Value {
	a, ok := h.arr(v)
	if !ok {
		return v
	}
	if len(a.elems) == cap(a.elems) {
		v = h.Grow(v, len(a.elems)+1)
		a, _ = h.arr(v)
	}
	a.elems = append(a.elems, value.Undefined)
	copy(a.elems[1:], a.elems)
	a.elems[0] = x
	return v
}

// ArrayIndexOf compares with StrictEquals.
func (h *Heap) ArrayIndexOf(v value.Value, x value.Value) int {
	a, ok := h.arr(v)
	if !ok {
		return -1
	}
	for i, e := range a.elems {
		if h.StrictEquals(e, x) {
			return i
		}
	}
	return -1
}

// Includes compares strings by contents and numbers with SameValueZero, so
// NaN is found.
func (h *Heap) Includes(v value.Value, x value.Value) bool {
	a, ok := h.arr(v)
	if !ok {
		return false
	}
	for _, e := range a.elems {
		if h.SameValueZero(e, x) {
			return true
		}
	}
	return false
}

// Splice removes deleteCount elements at start, inserts items in their place
// and returns the (possibly moved) array plus a new array of removed elements.
func (h *Heap) Splice(v value.Value, start, deleteCount int, items ...value.Value) (value.Value, value.Value) {
	a, ok := h.arr(v)
	if !ok {
		return v, h.NewArray(0)
	}
	n := len(a.elems)
	start = relativeIndex(start, n)
	if deleteCount < 0 {
		deleteCount = 0
	}
	if deleteCount > n-start {
		deleteCount = n - start
	}
	removed := h.newArrayCell(a.elems[start:start+deleteCount], deleteCount)

	newLen := n - deleteCount + len(items)
	if newLen > cap(a.elems) {
		v = h.Grow(v, newLen)
		a, _ = h.arr(v)
	}
	tail := append([]value.Value(nil), a.elems[start+deleteCount:]...)
	a.elems = a.elems[:start]
	a.elems = append(a.elems, items...)
	a.elems = append(a.elems, tail...)
	return v, removed
}

// ArraySlice copies [start, end) into a new array. An end of math.MaxInt32
// means the array length.
func (h *Heap) ArraySlice(v value.Value, start, end int) value.Value {
	a, ok := h.arr(v)
	if !ok {
		return h.NewArray(0)
	}
	n := len(a.elems)
	if end == math.MaxInt32 {
		end = n
	}
	s, e := relativeIndex(start, n), relativeIndex(end, n)
	if s >= e {
		return h.NewArray(0)
	}
	return h.newArrayCell(a.elems[s:e], e-s)
}

func (h *Heap) ArrayConcat(x, y value.Value) value.Value {
	xs, ys := h.ArrayValues(x), h.ArrayValues(y)
	return h.newArrayCell(append(xs, ys...), len(xs)+len(ys))
}

// ArrayValues copies the elements out.
func (h *Heap) ArrayValues(v value.Value) []value.Value {
	a, ok := h.arr(v)
	if !ok {
		return nil
	}
	return append([]value.Value(nil), a.elems...)
}
