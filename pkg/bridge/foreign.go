package bridge

import (
	"github.com/dop251/goja"

	"nativert/pkg/heap"
	"nativert/pkg/value"
)

// The methods below make the bridge a heap.Foreign. The heap has no error
// channel, so failures become undefined and are logged.

var _ heap.Foreign = (*Bridge)(nil)

func (b *Bridge) CallHandle(id uint64, args []value.Value) value.Value {
	res, err := b.CallValue(value.Handle(id), args...)
	if err != nil {
		b.logger.Warn("foreign call failed", "handle", id, "error", err)
		return value.Undefined
	}
	return res
}

func (b *Bridge) CallHandleMethod(id uint64, name string, args []value.Value) value.Value {
	res, err := b.CallMethod(value.Handle(id), name, args...)
	if err != nil {
		b.logger.Warn("foreign method call failed", "handle", id, "method", name, "error", err)
		return value.Undefined
	}
	return res
}

func (b *Bridge) HandleString(id uint64) string {
	return b.ToString(value.Handle(id))
}

// HandleTypeOf reports the engine's typeof for a handle.
func (b *Bridge) HandleTypeOf(id uint64) string {
	gv, ok := b.Lookup(id)
	if !ok {
		return "undefined"
	}
	res, err := b.typeOf(goja.Undefined(), gv)
	if err != nil {
		return "object"
	}
	return res.String()
}
