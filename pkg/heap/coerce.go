package heap

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"nativert/pkg/value"
)

// maxDisplayDepth bounds nested array rendering so cyclic arrays terminate.
const maxDisplayDepth = 8

// ToNumber is the heap-aware numeric coercion. Strings are trimmed and parsed
// the way Number(s) does; BigInts convert by value.
func (h *Heap) ToNumber(v value.Value) float64 {
	switch {
	case v.IsString():
		s, ok := h.GoString(v)
		if !ok {
			return math.NaN()
		}
		return parseNumber(s)
	case v.IsBigInt():
		if n, ok := h.BigIntValue(v); ok {
			return n.ToFloat64()
		}
		return math.NaN()
	default:
		return v.ToNumber()
	}
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9') && c != '.' && c != 'e' && c != 'E' && c != '+' && c != '-' {
			return math.NaN()
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// Truthy extends value.ToBool with the cases that need the heap: the empty
// string and a zero BigInt are falsy.
func (h *Heap) Truthy(v value.Value) bool {
	switch {
	case v.IsString():
		return h.StringLength(v) > 0
	case v.IsBigInt():
		n, ok := h.BigIntValue(v)
		return ok && !n.IsZero()
	default:
		return v.ToBool()
	}
}

// ToDisplayString renders v as String(v) would.
func (h *Heap) ToDisplayString(v value.Value) string {
	return h.displayString(v, 0)
}

func (h *Heap) displayString(v value.Value, depth int) string {
	switch v.Kind() {
	case value.KindNumber:
		return value.FormatNumber(v.Float())
	case value.KindInt32:
		return strconv.Itoa(int(v.AsInt32()))
	case value.KindUndefined:
		return "undefined"
	case value.KindNull:
		return "null"
	case value.KindBool:
		return strconv.FormatBool(v.AsBool())
	case value.KindString:
		s, _ := h.GoString(v)
		return s
	case value.KindBigInt:
		if n, ok := h.BigIntValue(v); ok {
			return n.String()
		}
		return "undefined"
	case value.KindHandle:
		if h.foreign != nil {
			return h.foreign.HandleString(v.Payload())
		}
		return fmt.Sprintf("[foreign %d]", v.Payload())
	case value.KindPointer:
		return h.pointerString(v, depth)
	default:
		return fmt.Sprintf("[invalid %#x]", v.Bits())
	}
}

func (h *Heap) pointerString(v value.Value, depth int) string {
	c, ok := h.lookup(v)
	if !ok {
		return "undefined"
	}
	switch c := c.(type) {
	case *arrayCell:
		if depth >= maxDisplayDepth {
			return ""
		}
		return h.joinString(v, ",", depth)
	case *objectCell:
		if c.classID == ModuleNamespaceClassID {
			return "[object Module]"
		}
		return "[object Object]"
	case *Closure:
		return "function () { [native code] }"
	case *regExpCell:
		return "/" + c.source + "/" + c.flags
	case *PromiseCell:
		return "[object Promise]"
	default:
		return "[object Object]"
	}
}

// StrictEquals is ===: numbers by value across int32 and double, strings by
// bytes, BigInts by value, everything else by identity.
func (h *Heap) StrictEquals(a, b value.Value) bool {
	switch {
	case a.IsNumeric() && b.IsNumeric():
		return a.ToNumber() == b.ToNumber()
	case a.IsString() && b.IsString():
		return a == b || h.StringEquals(a, b)
	case a.IsBigInt() && b.IsBigInt():
		return a == b || h.BigIntEquals(a, b)
	default:
		return a == b
	}
}

// SameValueZero is StrictEquals except that NaN equals NaN.
func (h *Heap) SameValueZero(a, b value.Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		x, y := a.ToNumber(), b.ToNumber()
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	}
	return h.StrictEquals(a, b)
}

// TypeOf returns the typeof string. Foreign handles ask the bridge when it
// can tell functions apart.
func (h *Heap) TypeOf(v value.Value) string {
	switch v.Kind() {
	case value.KindNumber, value.KindInt32:
		return "number"
	case value.KindUndefined:
		return "undefined"
	case value.KindNull:
		return "object"
	case value.KindBool:
		return "boolean"
	case value.KindString:
		return "string"
	case value.KindBigInt:
		return "bigint"
	case value.KindHandle:
		if t, ok := h.foreign.(interface{ HandleTypeOf(uint64) string }); ok {
			return t.HandleTypeOf(v.Payload())
		}
		return "object"
	case value.KindPointer:
		if _, ok := h.closure(v); ok {
			return "function"
		}
		return "object"
	default:
		return "undefined"
	}
}

// Inspect renders v for debugging: the kind, the reference and a preview of
// the contents.
func (h *Heap) Inspect(v value.Value) string {
	switch v.Kind() {
	case value.KindString:
		s, ok := h.GoString(v)
		if !ok {
			return fmt.Sprintf("string %s <stale>", value.Ref(v.Payload()))
		}
		return fmt.Sprintf("string %s %q", value.Ref(v.Payload()), s)
	case value.KindBigInt:
		n, ok := h.BigIntValue(v)
		if !ok {
			return fmt.Sprintf("bigint %s <stale>", value.Ref(v.Payload()))
		}
		return fmt.Sprintf("bigint %s %sn", value.Ref(v.Payload()), n.SignedString())
	case value.KindPointer:
		kind := h.KindOf(v)
		if kind == KindNone {
			return fmt.Sprintf("pointer %s <stale>", value.Ref(v.Payload()))
		}
		preview := h.ToDisplayString(v)
		if kind == KindArray {
			preview = "[" + preview + "]"
		}
		return fmt.Sprintf("%s %s %s", kind, value.Ref(v.Payload()), preview)
	case value.KindHandle:
		return fmt.Sprintf("handle %d %s", v.Payload(), h.ToDisplayString(v))
	default:
		return fmt.Sprintf("%s %s", v.Kind(), h.ToDisplayString(v))
	}
}
