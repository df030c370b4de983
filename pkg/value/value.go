package value

import (
	"fmt"
	"math"
)

// Value is a NaN-boxed 64-bit datum. Any bit pattern whose top 16 bits are
// not one of the reserved tags below is an IEEE-754 double.
type Value uint64

const (
	TagMask     uint64 = 0xFFFF_0000_0000_0000
	PayloadMask uint64 = 0x0000_FFFF_FFFF_FFFF
	Int32Mask   uint64 = 0x0000_0000_FFFF_FFFF

	TagBigInt  uint64 = 0x7FFA_0000_0000_0000
	TagHandle  uint64 = 0x7FFB_0000_0000_0000
	TagSpecial uint64 = 0x7FFC_0000_0000_0000
	TagPointer uint64 = 0x7FFD_0000_0000_0000
	TagInt32   uint64 = 0x7FFE_0000_0000_0000
	TagString  uint64 = 0x7FFF_0000_0000_0000

	// lowest reserved prefix; everything from here up to TagString is not a number
	firstReservedTag uint64 = TagBigInt

	canonicalNaN uint64 = 0x7FF8_0000_0000_0000
)

const (
	Undefined Value = Value(TagSpecial | 1)
	Null      Value = Value(TagSpecial | 2)
	False     Value = Value(TagSpecial | 3)
	True      Value = Value(TagSpecial | 4)
)

// NaN is the canonical quiet NaN. Out-of-bounds reads return it.
var NaN = Value(canonicalNaN)

// --- Construction ---

func FromBits(bits uint64) Value { return Value(bits) }

func (v Value) Bits() uint64 { return uint64(v) }

// FromFloat reinterprets the ABI double view of a value.
func FromFloat(f float64) Value { return Value(math.Float64bits(f)) }

// Float returns the raw double view, which is a NaN for every non-number.
func (v Value) Float() float64 { return math.Float64frombits(uint64(v)) }

// Number boxes a double. NaNs are canonicalized so that no computed NaN can
// collide with a reserved tag.
func Number(f float64) Value {
	if f != f {
		return Value(canonicalNaN)
	}
	return Value(math.Float64bits(f))
}

func Int32(i int32) Value {
	return Value(TagInt32 | (uint64(uint32(i)) & Int32Mask))
}

func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func Pointer(r Ref) Value { return Value(TagPointer | (uint64(r) & PayloadMask)) }

func String(r Ref) Value { return Value(TagString | (uint64(r) & PayloadMask)) }

func BigInt(r Ref) Value { return Value(TagBigInt | (uint64(r) & PayloadMask)) }

// Handle boxes an opaque foreign handle ID. Only the low 48 bits are kept.
func Handle(id uint64) Value { return Value(TagHandle | (id & PayloadMask)) }

// --- Predicates ---

func (v Value) tag() uint64 { return uint64(v) & TagMask }

func (v Value) Payload() uint64 { return uint64(v) & PayloadMask }

// IsNumber is true for every pattern outside the six reserved prefixes,
// including the quiet NaN itself and all negative numbers.
func (v Value) IsNumber() bool {
	t := v.tag()
	return t < firstReservedTag || t > TagString
}

func (v Value) IsInt32() bool     { return v.tag() == TagInt32 }
func (v Value) IsNumeric() bool   { return v.IsNumber() || v.IsInt32() }
func (v Value) IsUndefined() bool { return v == Undefined }
func (v Value) IsNull() bool      { return v == Null }
func (v Value) IsNullish() bool   { return v == Undefined || v == Null }
func (v Value) IsBool() bool      { return v == True || v == False }
func (v Value) IsPointer() bool   { return v.tag() == TagPointer }
func (v Value) IsString() bool    { return v.tag() == TagString }
func (v Value) IsBigInt() bool    { return v.tag() == TagBigInt }
func (v Value) IsHandle() bool    { return v.tag() == TagHandle }

// IsHeap reports whether the payload addresses a heap container.
func (v Value) IsHeap() bool {
	switch v.tag() {
	case TagPointer, TagString, TagBigInt:
		return true
	}
	return false
}

// --- Narrow accessors ---

func (v Value) AsNumber() float64 {
	if !v.IsNumber() {
		panic("value is not a number")
	}
	return math.Float64frombits(uint64(v))
}

func (v Value) AsInt32() int32 {
	if !v.IsInt32() {
		panic("value is not an int32")
	}
	return int32(uint32(uint64(v) & Int32Mask))
}

func (v Value) AsBool() bool {
	if !v.IsBool() {
		panic("value is not a boolean")
	}
	return v == True
}

func (v Value) AsRef() Ref {
	if !v.IsHeap() {
		panic("value is not a heap reference")
	}
	return Ref(v.Payload())
}

func (v Value) AsHandle() uint64 {
	if !v.IsHandle() {
		panic("value is not a foreign handle")
	}
	return v.Payload()
}

// --- Coercions over the tagged subset ---

// ToNumber coerces without heap access: heap kinds and handles become NaN.
func (v Value) ToNumber() float64 {
	switch {
	case v.IsNumber():
		return v.Float()
	case v.IsInt32():
		return float64(v.AsInt32())
	case v == True:
		return 1
	case v == False, v == Null:
		return 0
	}
	return math.NaN()
}

// ToBool implements truthiness for everything that does not need the heap.
// Heap containers and handles are truthy.
func (v Value) ToBool() bool {
	switch {
	case v.IsNumber():
		f := v.Float()
		return f != 0 && f == f
	case v.IsInt32():
		return v.AsInt32() != 0
	case v == True:
		return true
	case v.tag() == TagSpecial:
		return false
	}
	return true
}

// ToInt32 truncates a numeric value; non-numeric values yield 0.
func (v Value) ToInt32() int32 {
	if v.IsInt32() {
		return v.AsInt32()
	}
	f := v.ToNumber()
	if f != f || math.IsInf(f, 0) {
		return 0
	}
	return int32(int64(f))
}

func (v Value) String() string {
	switch v.Kind() {
	case KindNumber:
		return FormatNumber(v.Float())
	case KindInt32:
		return fmt.Sprintf("%d", v.AsInt32())
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KindPointer:
		return fmt.Sprintf("<pointer %s>", Ref(v.Payload()))
	case KindString:
		return fmt.Sprintf("<string %s>", Ref(v.Payload()))
	case KindBigInt:
		return fmt.Sprintf("<bigint %s>", Ref(v.Payload()))
	case KindHandle:
		return fmt.Sprintf("<handle %d>", v.Payload())
	}
	return fmt.Sprintf("<invalid 0x%016X>", uint64(v))
}
