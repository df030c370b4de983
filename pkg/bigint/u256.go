// Package bigint implements a fixed-width 256-bit integer. All arithmetic
// wraps silently modulo 2^256; the value is read as two's complement where a
// sign matters.
package bigint

import "math/bits"

// U256 holds four little-endian 64-bit limbs.
type U256 [4]uint64

var (
	Zero = U256{}
	One  = U256{1, 0, 0, 0}
	Max  = U256{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)}
)

func FromU64(x uint64) U256 { return U256{x, 0, 0, 0} }

// FromI64 sign-extends negative values across all limbs.
func FromI64(x int64) U256 {
	if x < 0 {
		return U256{uint64(x), ^uint64(0), ^uint64(0), ^uint64(0)}
	}
	return U256{uint64(x), 0, 0, 0}
}

func (a U256) IsZero() bool { return a[0]|a[1]|a[2]|a[3] == 0 }

// IsNegative reports whether the two's-complement sign bit is set.
func (a U256) IsNegative() bool { return a[3]>>63 == 1 }

func (a U256) Add(b U256) U256 {
	var r U256
	var carry uint64
	for i := 0; i < 4; i++ {
		r[i], carry = bits.Add64(a[i], b[i], carry)
	}
	return r
}

func (a U256) Sub(b U256) U256 {
	var r U256
	var borrow uint64
	for i := 0; i < 4; i++ {
		r[i], borrow = bits.Sub64(a[i], b[i], borrow)
	}
	return r
}

// Mul is schoolbook multiplication truncated to the low 256 bits.
func (a U256) Mul(b U256) U256 {
	var r U256
	for i := 0; i < 4; i++ {
		if a[i] == 0 {
			continue
		}
		var carry uint64
		for j := 0; i+j < 4; j++ {
			hi, lo := bits.Mul64(a[i], b[j])
			var c uint64
			lo, c = bits.Add64(lo, r[i+j], 0)
			hi += c
			lo, c = bits.Add64(lo, carry, 0)
			hi += c
			r[i+j] = lo
			carry = hi
		}
	}
	return r
}

// DivMod runs a 256-step shift-subtract long division. It panics when b is
// zero.
func (a U256) DivMod(b U256) (q, r U256) {
	if b.IsZero() {
		panic("bigint: division by zero")
	}
	for i := 255; i >= 0; i-- {
		overflow := r[3] >> 63
		r = r.Shl(1)
		r[0] |= a.bit(uint(i))
		if overflow == 1 || r.Cmp(b) >= 0 {
			r = r.Sub(b)
			q[i/64] |= 1 << (uint(i) % 64)
		}
	}
	return q, r
}

func (a U256) Div(b U256) U256 {
	q, _ := a.DivMod(b)
	return q
}

func (a U256) Mod(b U256) U256 {
	_, r := a.DivMod(b)
	return r
}

// CheckedDiv is the value-level alternative to Div: ok is false for a zero
// divisor.
func (a U256) CheckedDiv(b U256) (U256, bool) {
	if b.IsZero() {
		return Zero, false
	}
	return a.Div(b), true
}

// Pow uses binary exponentiation over the low 64 bits of the exponent.
func (a U256) Pow(exp U256) U256 {
	result := One
	base := a
	e := exp[0]
	for e > 0 {
		if e&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
		e >>= 1
	}
	return result
}

func (a U256) bit(i uint) uint64 { return (a[i/64] >> (i % 64)) & 1 }

func (a U256) Shl(n uint) U256 {
	if n >= 256 {
		return Zero
	}
	var r U256
	limbs, rem := n/64, n%64
	for i := 3; i >= int(limbs); i-- {
		r[i] = a[i-int(limbs)] << rem
		if rem > 0 && i-int(limbs)-1 >= 0 {
			r[i] |= a[i-int(limbs)-1] >> (64 - rem)
		}
	}
	return r
}

// Shr is a logical right shift.
func (a U256) Shr(n uint) U256 {
	if n >= 256 {
		return Zero
	}
	var r U256
	limbs, rem := n/64, n%64
	for i := 0; i+int(limbs) < 4; i++ {
		r[i] = a[i+int(limbs)] >> rem
		if rem > 0 && i+int(limbs)+1 < 4 {
			r[i] |= a[i+int(limbs)+1] << (64 - rem)
		}
	}
	return r
}

func (a U256) And(b U256) U256 { return U256{a[0] & b[0], a[1] & b[1], a[2] & b[2], a[3] & b[3]} }
func (a U256) Or(b U256) U256  { return U256{a[0] | b[0], a[1] | b[1], a[2] | b[2], a[3] | b[3]} }
func (a U256) Xor(b U256) U256 { return U256{a[0] ^ b[0], a[1] ^ b[1], a[2] ^ b[2], a[3] ^ b[3]} }
func (a U256) Not() U256       { return U256{^a[0], ^a[1], ^a[2], ^a[3]} }

// Negate is the two's-complement negation.
func (a U256) Negate() U256 { return a.Not().Add(One) }

// Cmp compares as unsigned, most significant limb first.
func (a U256) Cmp(b U256) int {
	for i := 3; i >= 0; i-- {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

func (a U256) Eq(b U256) bool { return a == b }

// ToFloat64 sums limb_k * 2^(64k), reading the value as unsigned.
func (a U256) ToFloat64() float64 {
	f := 0.0
	scale := 1.0
	for i := 0; i < 4; i++ {
		f += float64(a[i]) * scale
		scale *= 18446744073709551616.0
	}
	return f
}

func (a U256) FitsUint64() bool { return a[1]|a[2]|a[3] == 0 }

// FitsInt64 reports whether the two's-complement value lies in int64 range.
func (a U256) FitsInt64() bool {
	if a.IsNegative() {
		return a[1]&a[2]&a[3] == ^uint64(0) && a[0]>>63 == 1
	}
	return a[1]|a[2]|a[3] == 0 && a[0]>>63 == 0
}
