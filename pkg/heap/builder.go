package heap

import (
	"fmt"
	"strings"

	"nativert/pkg/errors"
	"nativert/pkg/value"
)

// ObjectBuilder is the uninitialized-allocation path for constructors that
// write every field up front. It has no read method; Build refuses to hand
// out the object until each slot has been written once.
type ObjectBuilder struct {
	h        *Heap
	classID  uint32
	parentID uint32
	fields   []value.Value
	written  []bool
	built    bool
}

func (h *Heap) AllocUninitialized(classID, parentID uint32, fieldCount int) *ObjectBuilder {
	if fieldCount < 0 {
		fieldCount = 0
	}
	return &ObjectBuilder{
		h:        h,
		classID:  classID,
		parentID: parentID,
		fields:   make([]value.Value, fieldCount),
		written:  make([]bool, fieldCount),
	}
}

// Set writes slot i. Out-of-range writes are ignored and reported by Build.
func (b *ObjectBuilder) Set(i int, v value.Value) *ObjectBuilder {
	if i >= 0 && i < len(b.fields) {
		b.fields[i] = v
		b.written[i] = true
	}
	return b
}

func (b *ObjectBuilder) Build() (value.Value, error) {
	if b.built {
		return value.Undefined, &errors.HeapError{Op: "build", Msg: "builder already used"}
	}
	var missing []string
	for i, ok := range b.written {
		if !ok {
			missing = append(missing, fmt.Sprint(i))
		}
	}
	if len(missing) > 0 {
		return value.Undefined, &errors.HeapError{
			Op:  "build",
			Msg: fmt.Sprintf("class %d: unwritten fields [%s]", b.classID, strings.Join(missing, ", ")),
		}
	}
	b.built = true
	if b.parentID != 0 {
		b.h.classes.Register(b.classID, b.parentID)
	}
	return b.h.allocPointer(&objectCell{
		classID:  b.classID,
		parentID: b.parentID,
		fields:   b.fields,
		keys:     value.Undefined,
	}), nil
}
