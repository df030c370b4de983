package heap

import (
	"strings"

	"nativert/pkg/value"
)

// Callbacks receive (element, index) and may be native closures or foreign
// handles; anything else is skipped.

func (h *Heap) ForEach(arr, fn value.Value) {
	for i, e := range h.ArrayValues(arr) {
		h.CallValue(fn, e, value.Number(float64(i)))
	}
}

func (h *Heap) Map(arr, fn value.Value) value.Value {
	src := h.ArrayValues(arr)
	out := make([]value.Value, len(src))
	for i, e := range src {
		out[i] = h.CallValue(fn, e, value.Number(float64(i)))
	}
	return h.newArrayCell(out, len(out))
}

func (h *Heap) Filter(arr, fn value.Value) value.Value {
	var out []value.Value
	for i, e := range h.ArrayValues(arr) {
		if h.Truthy(h.CallValue(fn, e, value.Number(float64(i)))) {
			out = append(out, e)
		}
	}
	return h.newArrayCell(out, len(out))
}

// Find returns the first matching element, or undefined.
func (h *Heap) Find(arr, fn value.Value) value.Value {
	for i, e := range h.ArrayValues(arr) {
		if h.Truthy(h.CallValue(fn, e, value.Number(float64(i)))) {
			return e
		}
	}
	return value.Undefined
}

func (h *Heap) FindIndex(arr, fn value.Value) int {
	for i, e := range h.ArrayValues(arr) {
		if h.Truthy(h.CallValue(fn, e, value.Number(float64(i)))) {
			return i
		}
	}
	return -1
}

// Reduce folds with fn(acc, element). Without an initial value the first
// element seeds the accumulator; an empty array without one yields NaN.
func (h *Heap) Reduce(arr, fn value.Value, initial value.Value, hasInitial bool) value.Value {
	elems := h.ArrayValues(arr)
	if len(elems) == 0 {
		if hasInitial {
			return initial
		}
		return value.NaN
	}
	acc, rest := initial, elems
	if !hasInitial {
		acc, rest = elems[0], elems[1:]
	}
	for _, e := range rest {
		acc = h.CallValue(fn, acc, e)
	}
	return acc
}

// Join renders every element with ToDisplayString. Nullish elements become
// empty strings. A non-string separator means ",".
func (h *Heap) Join(arr, sep value.Value) value.Value {
	s := ","
	if sep.IsString() {
		s, _ = h.GoString(sep)
	}
	return h.NewString(h.joinString(arr, s, 0))
}

func (h *Heap) joinString(arr value.Value, sep string, depth int) string {
	var sb strings.Builder
	for i, e := range h.ArrayValues(arr) {
		if i > 0 {
			sb.WriteString(sep)
		}
		if e.IsNullish() {
			continue
		}
		sb.WriteString(h.displayString(e, depth+1))
	}
	return sb.String()
}
