package heap

import "nativert/pkg/value"

// ObjectKind identifies the container stored in a heap slot.
type ObjectKind uint8

const (
	KindNone ObjectKind = iota
	KindString
	KindArray
	KindObject
	KindClosure
	KindBigInt
	KindRegExp
	KindPromise
)

func (k ObjectKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindClosure:
		return "closure"
	case KindBigInt:
		return "bigint"
	case KindRegExp:
		return "regexp"
	case KindPromise:
		return "promise"
	default:
		return "unknown"
	}
}

type cell interface {
	objectKind() ObjectKind
}

type slot struct {
	gen uint16
	obj cell // nil when the slot is free
}

// arena stores containers in generation-checked slots. Releasing a slot bumps
// its generation, so every Ref minted before the release stops resolving.
// Slot 0 is never handed out, which keeps the zero Ref invalid.
type arena struct {
	slots []slot
	free  []uint32
	live  int
}

func newArena(capacity int) arena {
	a := arena{slots: make([]slot, 1, capacity+1)}
	a.slots[0].gen = 1
	return a
}

func (a *arena) alloc(obj cell) value.Ref {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot{gen: 1})
	}
	a.slots[idx].obj = obj
	a.live++
	return value.MakeRef(idx, a.slots[idx].gen)
}

func (a *arena) get(r value.Ref) (cell, bool) {
	idx := r.Index()
	if idx == 0 || int(idx) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[idx]
	if s.obj == nil || s.gen != r.Gen() {
		return nil, false
	}
	return s.obj, true
}

func (a *arena) release(r value.Ref) bool {
	if _, ok := a.get(r); !ok {
		return false
	}
	s := &a.slots[r.Index()]
	s.obj = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, r.Index())
	a.live--
	return true
}
