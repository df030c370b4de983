package heap

import (
	"math"

	"nativert/pkg/value"
)

func arg(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Undefined
}

func intArg(args []value.Value, i int, def int) int {
	if i >= len(args) || args[i].IsUndefined() {
		return def
	}
	f := args[i].ToNumber()
	if math.IsNaN(f) {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

// CallMethod dispatches obj.name(...args) at run time for call sites the
// compiler could not resolve. Foreign handles go to the bridge. Unknown
// methods return undefined.
//
// Methods that grow an array (push, unshift) may move it; the receiver value
// held by the caller goes stale in that case, exactly as with Push.
func (h *Heap) CallMethod(target value.Value, name string, args ...value.Value) value.Value {
	if target.IsHandle() {
		if h.foreign == nil {
			h.warn("method call on foreign handle without a bridge", "handle", target.Payload(), "method", name)
			return value.Undefined
		}
		return h.foreign.CallHandleMethod(target.Payload(), name, args)
	}
	if target.IsString() {
		return h.stringMethod(target, name, args)
	}
	c, ok := h.lookup(target)
	if !ok {
		return value.Undefined
	}
	switch c := c.(type) {
	case *arrayCell:
		return h.arrayMethod(target, name, args)
	case *objectCell:
		if name == "toString" {
			return h.NewString(h.ToDisplayString(target))
		}
		if fn := h.GetFieldByName(target, name); h.IsCallable(fn) {
			return h.CallValue(fn, args...)
		}
	case *Closure:
		switch name {
		case "bind":
			return target
		case "call":
			if len(args) > 0 {
				args = args[1:]
			}
			return c.fn(c, args)
		case "apply":
			return h.CallValue(target, h.ArrayValues(arg(args, 1))...)
		}
	case *regExpCell:
		switch name {
		case "test":
			return value.Bool(h.RegExpTest(target, arg(args, 0)))
		case "toString":
			return h.NewString(h.ToDisplayString(target))
		}
	}
	return value.Undefined
}

func (h *Heap) arrayMethod(arr value.Value, name string, args []value.Value) value.Value {
	switch name {
	case "length":
		return value.Number(float64(h.ArrayLength(arr)))
	case "push":
		for _, a := range args {
			arr = h.Push(arr, a)
		}
		return value.Number(float64(h.ArrayLength(arr)))
	case "pop":
		return h.Pop(arr)
	case "shift":
		return h.Shift(arr)
	case "unshift":
		for i := len(args) - 1; i >= 0; i-- {
			arr = h.Unshift(arr, args[i])
		}
		return value.Number(float64(h.ArrayLength(arr)))
	case "indexOf":
		return value.Number(float64(h.ArrayIndexOf(arr, arg(args, 0))))
	case "includes":
		return value.Bool(h.Includes(arr, arg(args, 0)))
	case "join":
		return h.Join(arr, arg(args, 0))
	case "slice":
		return h.ArraySlice(arr, intArg(args, 0, 0), intArg(args, 1, math.MaxInt32))
	case "concat":
		return h.ArrayConcat(arr, arg(args, 0))
	case "map":
		return h.Map(arr, arg(args, 0))
	case "filter":
		return h.Filter(arr, arg(args, 0))
	case "forEach":
		h.ForEach(arr, arg(args, 0))
		return value.Undefined
	case "find":
		return h.Find(arr, arg(args, 0))
	case "findIndex":
		return value.Number(float64(h.FindIndex(arr, arg(args, 0))))
	case "reduce":
		return h.Reduce(arr, arg(args, 0), arg(args, 1), len(args) > 1)
	case "toString":
		return h.Join(arr, value.Undefined)
	}
	return value.Undefined
}

func (h *Heap) stringMethod(s value.Value, name string, args []value.Value) value.Value {
	switch name {
	case "length":
		return value.Number(float64(h.StringLength(s)))
	case "indexOf":
		if len(args) > 1 {
			return value.Number(float64(h.IndexOfFrom(s, arg(args, 0), intArg(args, 1, 0))))
		}
		return value.Number(float64(h.IndexOf(s, arg(args, 0))))
	case "slice":
		return h.Slice(s, intArg(args, 0, 0), intArg(args, 1, h.StringLength(s)))
	case "substring":
		return h.Substring(s, intArg(args, 0, 0), intArg(args, 1, h.StringLength(s)))
	case "trim":
		return h.Trim(s)
	case "toLowerCase":
		return h.ToLowerCase(s)
	case "toUpperCase":
		return h.ToUpperCase(s)
	case "split":
		return h.Split(s, arg(args, 0))
	case "charCodeAt":
		c := h.CharCodeAt(s, intArg(args, 0, 0))
		if c < 0 {
			return value.NaN
		}
		return value.Number(float64(c))
	case "replace":
		if h.IsRegExp(arg(args, 0)) {
			return h.StringReplaceRegExp(s, args[0], arg(args, 1))
		}
		return h.StringReplace(s, arg(args, 0), arg(args, 1))
	case "match":
		return h.StringMatch(s, arg(args, 0))
	case "toString":
		return s
	}
	return value.Undefined
}
