package heap

import (
	"nativert/pkg/bigint"
	"nativert/pkg/value"
)

type bigIntCell struct {
	n bigint.U256
}

func (*bigIntCell) objectKind() ObjectKind { return KindBigInt }

func (h *Heap) NewBigInt(n bigint.U256) value.Value {
	return value.BigInt(h.cells.alloc(&bigIntCell{n: n}))
}

func (h *Heap) BigIntValue(v value.Value) (bigint.U256, bool) {
	if !v.IsBigInt() {
		return bigint.Zero, false
	}
	c, ok := h.lookup(v)
	if !ok {
		return bigint.Zero, false
	}
	b, ok := c.(*bigIntCell)
	if !ok {
		return bigint.Zero, false
	}
	return b.n, true
}

// BigIntFromString parses decimal or 0x hex. Invalid input yields undefined.
func (h *Heap) BigIntFromString(s string) value.Value {
	n, ok := bigint.FromString(s)
	if !ok {
		return value.Undefined
	}
	return h.NewBigInt(n)
}

func (h *Heap) BigIntToString(v value.Value) value.Value {
	n, ok := h.BigIntValue(v)
	if !ok {
		return value.Undefined
	}
	return h.NewString(n.String())
}

func (h *Heap) bigBinary(a, b value.Value, op func(x, y bigint.U256) bigint.U256) value.Value {
	x, ok1 := h.BigIntValue(a)
	y, ok2 := h.BigIntValue(b)
	if !ok1 || !ok2 {
		return value.Undefined
	}
	return h.NewBigInt(op(x, y))
}

func (h *Heap) BigIntAdd(a, b value.Value) value.Value { return h.bigBinary(a, b, bigint.U256.Add) }
func (h *Heap) BigIntSub(a, b value.Value) value.Value { return h.bigBinary(a, b, bigint.U256.Sub) }
func (h *Heap) BigIntMul(a, b value.Value) value.Value { return h.bigBinary(a, b, bigint.U256.Mul) }
func (h *Heap) BigIntAnd(a, b value.Value) value.Value { return h.bigBinary(a, b, bigint.U256.And) }
func (h *Heap) BigIntOr(a, b value.Value) value.Value  { return h.bigBinary(a, b, bigint.U256.Or) }
func (h *Heap) BigIntXor(a, b value.Value) value.Value { return h.bigBinary(a, b, bigint.U256.Xor) }

// BigIntDiv panics when b is zero.
func (h *Heap) BigIntDiv(a, b value.Value) value.Value { return h.bigBinary(a, b, bigint.U256.Div) }

// BigIntMod panics when b is zero.
func (h *Heap) BigIntMod(a, b value.Value) value.Value { return h.bigBinary(a, b, bigint.U256.Mod) }

func (h *Heap) BigIntPow(a, b value.Value) value.Value { return h.bigBinary(a, b, bigint.U256.Pow) }

// BigIntShl and BigIntShr take the shift amount from the low limb of b.
func (h *Heap) BigIntShl(a, b value.Value) value.Value {
	return h.bigBinary(a, b, func(x, y bigint.U256) bigint.U256 { return x.Shl(shiftAmount(y)) })
}

func (h *Heap) BigIntShr(a, b value.Value) value.Value {
	return h.bigBinary(a, b, func(x, y bigint.U256) bigint.U256 { return x.Shr(shiftAmount(y)) })
}

func shiftAmount(y bigint.U256) uint {
	if !y.FitsUint64() || y[0] >= 256 {
		return 256
	}
	return uint(y[0])
}

func (h *Heap) BigIntNegate(v value.Value) value.Value {
	n, ok := h.BigIntValue(v)
	if !ok {
		return value.Undefined
	}
	return h.NewBigInt(n.Negate())
}

// BigIntCmp compares as unsigned 256-bit integers; mismatched kinds yield 0.
func (h *Heap) BigIntCmp(a, b value.Value) int {
	x, ok1 := h.BigIntValue(a)
	y, ok2 := h.BigIntValue(b)
	if !ok1 || !ok2 {
		return 0
	}
	return x.Cmp(y)
}

func (h *Heap) BigIntEquals(a, b value.Value) bool {
	x, ok1 := h.BigIntValue(a)
	y, ok2 := h.BigIntValue(b)
	return ok1 && ok2 && x.Eq(y)
}
