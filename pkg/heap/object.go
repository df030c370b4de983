package heap

import (
	"nativert/pkg/value"
)

// objectCell is a fixed-shape object. When keys is a live array, field i is
// named by the i-th string in it.
type objectCell struct {
	classID  uint32
	parentID uint32
	fields   []value.Value
	keys     value.Value // array or Undefined
}

func (*objectCell) objectKind() ObjectKind { return KindObject }

// AllocObject allocates an object with every field set to undefined.
func (h *Heap) AllocObject(classID uint32, fieldCount int) value.Value {
	return h.AllocObjectWithParent(classID, 0, fieldCount)
}

// AllocObjectWithParent also registers classID under parentID the first time
// a non-root parent is seen.
func (h *Heap) AllocObjectWithParent(classID, parentID uint32, fieldCount int) value.Value {
	if fieldCount < 0 {
		fieldCount = 0
	}
	if parentID != 0 {
		if p, ok := h.classes.Parent(classID); !ok || p != parentID {
			h.classes.Register(classID, parentID)
		}
	}
	fields := make([]value.Value, fieldCount)
	for i := range fields {
		fields[i] = value.Undefined
	}
	return h.allocPointer(&objectCell{classID: classID, parentID: parentID, fields: fields, keys: value.Undefined})
}

func (h *Heap) IsObject(v value.Value) bool {
	_, ok := h.obj(v)
	return ok
}

// GetField reads by index; out of range or a non-object reads undefined.
func (h *Heap) GetField(v value.Value, i int) value.Value {
	o, ok := h.obj(v)
	if !ok || i < 0 || i >= len(o.fields) {
		return value.Undefined
	}
	return o.fields[i]
}

// SetField writes by index; out of range is a no-op.
func (h *Heap) SetField(v value.Value, i int, x value.Value) {
	o, ok := h.obj(v)
	if !ok || i < 0 || i >= len(o.fields) {
		return
	}
	o.fields[i] = x
}

func (h *Heap) ClassID(v value.Value) uint32 {
	if o, ok := h.obj(v); ok {
		return o.classID
	}
	return 0
}

func (h *Heap) ParentClassID(v value.Value) uint32 {
	if o, ok := h.obj(v); ok {
		return o.parentID
	}
	return 0
}

func (h *Heap) FieldCount(v value.Value) int {
	if o, ok := h.obj(v); ok {
		return len(o.fields)
	}
	return 0
}

// SetKeys attaches a keys array. The object takes over keys: later growth of
// the key list may move it.
func (h *Heap) SetKeys(v, keys value.Value) {
	o, ok := h.obj(v)
	if !ok {
		return
	}
	if !h.IsArray(keys) {
		keys = value.Undefined
	}
	o.keys = keys
}

// Keys returns a copy of the key list, or an empty array.
func (h *Heap) Keys(v value.Value) value.Value {
	o, ok := h.obj(v)
	if !ok || !h.IsArray(o.keys) {
		return h.NewArray(0)
	}
	return h.ArraySlice(o.keys, 0, h.ArrayLength(o.keys))
}

func (h *Heap) ObjectValues(v value.Value) value.Value {
	o, ok := h.obj(v)
	if !ok {
		return h.NewArray(0)
	}
	return h.newArrayCell(o.fields, len(o.fields))
}

// Entries returns [key, value] pairs for every field. Fields without a key
// get an empty string key.
func (h *Heap) Entries(v value.Value) value.Value {
	o, ok := h.obj(v)
	if !ok {
		return h.NewArray(0)
	}
	keys := h.ArrayValues(o.keys)
	pairs := make([]value.Value, len(o.fields))
	for i, f := range o.fields {
		var k value.Value
		if i < len(keys) {
			k = keys[i]
		} else {
			k = h.NewString("")
		}
		pairs[i] = h.ArrayFrom(k, f)
	}
	return h.newArrayCell(pairs, len(pairs))
}

// keyIndex scans the key list for name. Non-string keys never match.
func (h *Heap) keyIndex(o *objectCell, name []byte) int {
	ka, ok := h.arr(o.keys)
	if !ok {
		return -1
	}
	for i, k := range ka.elems {
		if s, ok := h.str(k); ok && string(s.data) == string(name) {
			return i
		}
	}
	return -1
}

// HasProperty implements `key in obj` for string keys.
func (h *Heap) HasProperty(v, key value.Value) bool {
	o, ok := h.obj(v)
	if !ok || !key.IsString() {
		return false
	}
	return h.keyIndex(o, h.stringBytes(key)) >= 0
}

func (h *Heap) GetFieldByName(v value.Value, name string) value.Value {
	o, ok := h.obj(v)
	if !ok {
		return value.Undefined
	}
	i := h.keyIndex(o, []byte(name))
	if i < 0 || i >= len(o.fields) {
		return value.Undefined
	}
	return o.fields[i]
}

// SetFieldByName updates the named field, or appends the key and a new slot
// when the name is not present.
func (h *Heap) SetFieldByName(v value.Value, name string, x value.Value) {
	o, ok := h.obj(v)
	if !ok {
		return
	}
	i := h.keyIndex(o, []byte(name))
	if i < 0 {
		if !h.IsArray(o.keys) {
			o.keys = h.NewArray(4)
		}
		i = h.ArrayLength(o.keys)
		o.keys = h.Push(o.keys, h.NewString(name))
	}
	for len(o.fields) <= i {
		o.fields = append(o.fields, value.Undefined)
	}
	o.fields[i] = x
}

// DeleteField sets the named field to undefined. It always reports success,
// including for missing keys.
func (h *Heap) DeleteField(v value.Value, name string) bool {
	o, ok := h.obj(v)
	if !ok {
		return true
	}
	if i := h.keyIndex(o, []byte(name)); i >= 0 && i < len(o.fields) {
		o.fields[i] = value.Undefined
	}
	return true
}

// DeleteDynamic deletes by string key on objects or by numeric index on
// arrays, where the element becomes undefined. Always true.
func (h *Heap) DeleteDynamic(target, key value.Value) bool {
	switch {
	case key.IsString():
		name, _ := h.GoString(key)
		return h.DeleteField(target, name)
	case key.IsNumeric():
		if a, ok := h.arr(target); ok {
			if i := int(key.ToNumber()); i >= 0 && i < len(a.elems) {
				a.elems[i] = value.Undefined
			}
		}
	}
	return true
}

// InstanceOf checks the object's class and then walks the registry.
func (h *Heap) InstanceOf(v value.Value, classID uint32) bool {
	o, ok := h.obj(v)
	if !ok {
		return false
	}
	if o.classID == classID || (o.parentID != 0 && o.parentID == classID) {
		return true
	}
	return h.classes.IsSubclass(o.classID, classID)
}
