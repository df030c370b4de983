package bridge

import (
	"github.com/dop251/goja"

	"nativert/pkg/value"
)

// Store keeps an engine value alive and returns its handle id. Ids start at
// 1 and are never reused.
func (b *Bridge) Store(v goja.Value) uint64 {
	b.nextHandle++
	id := b.nextHandle & value.PayloadMask
	b.handles[id] = v
	return id
}

// Lookup returns the engine value behind a handle id.
func (b *Bridge) Lookup(id uint64) (goja.Value, bool) {
	v, ok := b.handles[id]
	return v, ok
}

// Release forgets a handle. It reports whether the id was live.
func (b *Bridge) Release(id uint64) bool {
	v, ok := b.handles[id]
	if !ok {
		return false
	}
	if obj, isObj := v.(*goja.Object); isObj && b.objectHandles[obj] == id {
		delete(b.objectHandles, obj)
	}
	delete(b.handles, id)
	return true
}

// Len returns the number of live handles.
func (b *Bridge) Len() int { return len(b.handles) }

func IsHandle(v value.Value) bool { return v.IsHandle() }

// HandleID extracts the id of a handle-tagged value.
func HandleID(v value.Value) (uint64, bool) {
	if !v.IsHandle() {
		return 0, false
	}
	return v.AsHandle(), true
}

func HandleValue(id uint64) value.Value { return value.Handle(id) }

func (b *Bridge) lookupValue(v value.Value) (goja.Value, bool) {
	id, ok := HandleID(v)
	if !ok {
		return nil, false
	}
	return b.Lookup(id)
}

// storeValue hands out one handle per engine object, so passing the same
// object across again does not grow the table.
func (b *Bridge) storeValue(v goja.Value) value.Value {
	obj, isObj := v.(*goja.Object)
	if isObj {
		if id, ok := b.objectHandles[obj]; ok {
			return value.Handle(id)
		}
	}
	id := b.Store(v)
	if isObj {
		b.objectHandles[obj] = id
	}
	return value.Handle(id)
}
