package bigint

import (
	"math"
	"math/big"
	"math/bits"
	"strings"
)

// FromString parses "0x"/"0X"-prefixed hex or plain decimal. Digits beyond
// 256 bits wrap. ok is false for empty input or a bad digit.
func FromString(s string) (U256, bool) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return parseHex(s[2:])
	}
	return parseDecimal(s)
}

// MustFromString panics on malformed input. Intended for constants and tests.
func MustFromString(s string) U256 {
	v, ok := FromString(s)
	if !ok {
		panic("bigint: malformed literal " + s)
	}
	return v
}

func parseHex(s string) (U256, bool) {
	if s == "" {
		return Zero, false
	}
	var r U256
	for i := 0; i < len(s); i++ {
		d, ok := hexDigit(s[i])
		if !ok {
			return Zero, false
		}
		r = r.Shl(4)
		r[0] |= uint64(d)
	}
	return r, true
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// parseDecimal multiplies the accumulator by ten across all limbs with a
// 128-bit intermediate, then adds the digit.
func parseDecimal(s string) (U256, bool) {
	if s == "" {
		return Zero, false
	}
	var r U256
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return Zero, false
		}
		carry := uint64(c - '0')
		for j := 0; j < 4; j++ {
			hi, lo := bits.Mul64(r[j], 10)
			var cc uint64
			lo, cc = bits.Add64(lo, carry, 0)
			r[j] = lo
			carry = hi + cc
		}
	}
	return r, true
}

// divSmall divides by a single 64-bit word, returning quotient and remainder.
func (a U256) divSmall(d uint64) (U256, uint64) {
	var q U256
	var rem uint64
	for i := 3; i >= 0; i-- {
		q[i], rem = bits.Div64(rem, a[i], d)
	}
	return q, rem
}

// String renders the unsigned decimal value by repeated division by ten.
func (a U256) String() string {
	if a.IsZero() {
		return "0"
	}
	digits := make([]byte, 0, 78)
	for !a.IsZero() {
		var rem uint64
		a, rem = a.divSmall(10)
		digits = append(digits, byte('0'+rem))
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}

// SignedString renders the two's-complement reading of the value.
func (a U256) SignedString() string {
	if a.IsNegative() {
		return "-" + a.Negate().String()
	}
	return a.String()
}

// Hex renders lowercase hex without a prefix.
func (a U256) Hex() string {
	if a.IsZero() {
		return "0"
	}
	const digits = "0123456789abcdef"
	out := make([]byte, 0, 64)
	started := false
	for i := 3; i >= 0; i-- {
		for shift := 60; shift >= 0; shift -= 4 {
			d := (a[i] >> uint(shift)) & 0xF
			if d == 0 && !started {
				continue
			}
			started = true
			out = append(out, digits[d])
		}
	}
	return string(out)
}

// FromFloat64 truncates toward zero; negative inputs wrap through Negate.
// NaN and infinities map to zero.
func FromFloat64(f float64) U256 {
	if f != f || math.IsInf(f, 0) {
		return Zero
	}
	i, _ := new(big.Float).SetFloat64(math.Trunc(f)).Int(nil)
	return FromBig(i)
}

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// FromBig reduces an arbitrary-precision integer modulo 2^256.
func FromBig(x *big.Int) U256 {
	m := new(big.Int).Mod(x, twoTo256)
	var r U256
	words := m.Bits()
	if bits.UintSize == 64 {
		for i := 0; i < len(words) && i < 4; i++ {
			r[i] = uint64(words[i])
		}
		return r
	}
	b := m.FillBytes(make([]byte, 32))
	for i := 0; i < 4; i++ {
		for j := 0; j < 8; j++ {
			r[i] |= uint64(b[31-(i*8+j)]) << (8 * j)
		}
	}
	return r
}

// ToBig returns the unsigned reading.
func (a U256) ToBig() *big.Int {
	r := new(big.Int)
	for i := 3; i >= 0; i-- {
		r.Lsh(r, 64)
		r.Or(r, new(big.Int).SetUint64(a[i]))
	}
	return r
}

// ToSignedBig returns the two's-complement reading.
func (a U256) ToSignedBig() *big.Int {
	if a.IsNegative() {
		return new(big.Int).Neg(a.Negate().ToBig())
	}
	return a.ToBig()
}

// ToSignWords converts to sign and magnitude with the magnitude as
// little-endian words, trailing zero words trimmed. Zero has no words.
func (a U256) ToSignWords() (negative bool, words []uint64) {
	mag := a
	if a.IsNegative() {
		negative = true
		mag = a.Negate()
	}
	n := 4
	for n > 0 && mag[n-1] == 0 {
		n--
	}
	words = make([]uint64, n)
	copy(words, mag[:n])
	return negative, words
}

// FromSignWords is the inverse of ToSignWords. Words beyond the fourth are
// dropped.
func FromSignWords(negative bool, words []uint64) U256 {
	var r U256
	for i := 0; i < len(words) && i < 4; i++ {
		r[i] = words[i]
	}
	if negative {
		return r.Negate()
	}
	return r
}
