package value

import "fmt"

// Kind is the closed discriminant of a Value.
type Kind uint8

const (
	KindNumber Kind = iota
	KindInt32
	KindUndefined
	KindNull
	KindBool
	KindPointer
	KindString
	KindBigInt
	KindHandle
	KindInvalid // special tag carrying an unknown payload
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindInt32:
		return "int32"
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindPointer:
		return "pointer"
	case KindString:
		return "string"
	case KindBigInt:
		return "bigint"
	case KindHandle:
		return "handle"
	case KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("<unknown kind: %d>", k)
	}
}

func (v Value) Kind() Kind {
	switch v.tag() {
	case TagBigInt:
		return KindBigInt
	case TagHandle:
		return KindHandle
	case TagPointer:
		return KindPointer
	case TagInt32:
		return KindInt32
	case TagString:
		return KindString
	case TagSpecial:
		switch v {
		case Undefined:
			return KindUndefined
		case Null:
			return KindNull
		case True, False:
			return KindBool
		}
		return KindInvalid
	}
	return KindNumber
}

// Ref addresses a heap slot: low 32 bits are the slot index, the next 16 bits
// the slot generation. The zero Ref never addresses a live slot.
type Ref uint64

func MakeRef(index uint32, gen uint16) Ref {
	return Ref(uint64(index) | uint64(gen)<<32)
}

func (r Ref) Index() uint32 { return uint32(r) }
func (r Ref) Gen() uint16   { return uint16(r >> 32) }

func (r Ref) String() string { return fmt.Sprintf("#%d.%d", r.Index(), r.Gen()) }

// Variant is the decoded, exhaustively matchable form of a Value. The set of
// implementations is closed to this package.
type Variant interface {
	Kind() Kind
	variant()
}

type (
	NumberVariant    struct{ F float64 }
	Int32Variant     struct{ I int32 }
	UndefinedVariant struct{}
	NullVariant      struct{}
	BoolVariant      struct{ B bool }
	PointerVariant   struct{ Ref Ref }
	StringVariant    struct{ Ref Ref }
	BigIntVariant    struct{ Ref Ref }
	HandleVariant    struct{ ID uint64 }
	InvalidVariant   struct{ Bits uint64 }
)

func (NumberVariant) Kind() Kind    { return KindNumber }
func (Int32Variant) Kind() Kind     { return KindInt32 }
func (UndefinedVariant) Kind() Kind { return KindUndefined }
func (NullVariant) Kind() Kind      { return KindNull }
func (BoolVariant) Kind() Kind      { return KindBool }
func (PointerVariant) Kind() Kind   { return KindPointer }
func (StringVariant) Kind() Kind    { return KindString }
func (BigIntVariant) Kind() Kind    { return KindBigInt }
func (HandleVariant) Kind() Kind    { return KindHandle }
func (InvalidVariant) Kind() Kind   { return KindInvalid }

func (NumberVariant) variant()    {}
func (Int32Variant) variant()     {}
func (UndefinedVariant) variant() {}
func (NullVariant) variant()      {}
func (BoolVariant) variant()      {}
func (PointerVariant) variant()   {}
func (StringVariant) variant()    {}
func (BigIntVariant) variant()    {}
func (HandleVariant) variant()    {}
func (InvalidVariant) variant()   {}

// Decode lifts the wire encoding into its variant.
func Decode(v Value) Variant {
	switch v.Kind() {
	case KindNumber:
		return NumberVariant{F: v.Float()}
	case KindInt32:
		return Int32Variant{I: v.AsInt32()}
	case KindUndefined:
		return UndefinedVariant{}
	case KindNull:
		return NullVariant{}
	case KindBool:
		return BoolVariant{B: v.AsBool()}
	case KindPointer:
		return PointerVariant{Ref: Ref(v.Payload())}
	case KindString:
		return StringVariant{Ref: Ref(v.Payload())}
	case KindBigInt:
		return BigIntVariant{Ref: Ref(v.Payload())}
	case KindHandle:
		return HandleVariant{ID: v.Payload()}
	}
	return InvalidVariant{Bits: v.Bits()}
}

// Encode lowers a variant back to its wire encoding. Numbers keep their exact
// bits so Decode/Encode round-trips every number pattern.
func Encode(x Variant) Value {
	switch x := x.(type) {
	case NumberVariant:
		return FromFloat(x.F)
	case Int32Variant:
		return Int32(x.I)
	case UndefinedVariant:
		return Undefined
	case NullVariant:
		return Null
	case BoolVariant:
		return Bool(x.B)
	case PointerVariant:
		return Pointer(x.Ref)
	case StringVariant:
		return String(x.Ref)
	case BigIntVariant:
		return BigInt(x.Ref)
	case HandleVariant:
		return Handle(x.ID)
	case InvalidVariant:
		return Value(x.Bits)
	}
	panic(fmt.Sprintf("unknown variant %T", x))
}
