package bridge

import (
	"strconv"

	"github.com/dop251/goja"

	"nativert/pkg/errors"
	"nativert/pkg/source"
	"nativert/pkg/value"
)

// object returns the engine object behind a handle-tagged value.
func (b *Bridge) object(op string, v value.Value) (*goja.Object, error) {
	gv, ok := b.lookupValue(v)
	if !ok {
		if id, isHandle := HandleID(v); isHandle {
			return nil, &errors.HandleError{ID: id}
		}
		return nil, &errors.BridgeError{Op: op, Msg: "value is not a foreign handle"}
	}
	obj, ok := gv.(*goja.Object)
	if !ok {
		return nil, &errors.BridgeError{Op: op, Msg: "handle does not refer to an object"}
	}
	return obj, nil
}

func (b *Bridge) jsArgs(args []value.Value) []goja.Value {
	out := make([]goja.Value, len(args))
	for i, a := range args {
		out[i] = b.ToJS(a)
	}
	return out
}

// Eval runs a script in the global scope and converts its completion value.
func (b *Bridge) Eval(src string) (value.Value, error) {
	return b.EvalSource(source.NewEvalSource(src))
}

// EvalSource is Eval for a named script, so errors can point into it.
func (b *Bridge) EvalSource(src *source.SourceFile) (value.Value, error) {
	b.sources[src.DisplayPath()] = src
	var res goja.Value
	err := b.try("eval", func() error {
		v, err := b.vm.RunScript(src.DisplayPath(), src.Content)
		res = v
		return err
	})
	if err != nil {
		return value.Undefined, err
	}
	return b.ToNative(res), nil
}

// GetExport reads a named export from a module loaded with LoadModule.
func (b *Bridge) GetExport(module value.Value, name string) (value.Value, error) {
	return b.GetProperty(module, name)
}

// CallFunction calls an exported function of a module.
func (b *Bridge) CallFunction(module value.Value, name string, args ...value.Value) (value.Value, error) {
	return b.CallMethod(module, name, args...)
}

// CallMethod calls target[name] with target as the receiver.
func (b *Bridge) CallMethod(target value.Value, name string, args ...value.Value) (value.Value, error) {
	obj, err := b.object("call", target)
	if err != nil {
		return value.Undefined, err
	}
	var res goja.Value
	err = b.try("call", func() error {
		fn, ok := goja.AssertFunction(obj.Get(name))
		if !ok {
			return &errors.BridgeError{Op: "call", Msg: name + " is not a function"}
		}
		v, err := fn(obj, b.jsArgs(args)...)
		res = v
		return err
	})
	if err != nil {
		return value.Undefined, err
	}
	return b.ToNative(res), nil
}

// CallValue calls a foreign function handle with an undefined receiver.
func (b *Bridge) CallValue(fn value.Value, args ...value.Value) (value.Value, error) {
	obj, err := b.object("call", fn)
	if err != nil {
		return value.Undefined, err
	}
	callable, ok := goja.AssertFunction(obj)
	if !ok {
		return value.Undefined, &errors.BridgeError{Op: "call", Msg: "handle is not callable"}
	}
	var res goja.Value
	err = b.try("call", func() error {
		v, err := callable(goja.Undefined(), b.jsArgs(args)...)
		res = v
		return err
	})
	if err != nil {
		return value.Undefined, err
	}
	return b.ToNative(res), nil
}

// NewInstance constructs module[className] with new.
func (b *Bridge) NewInstance(module value.Value, className string, args ...value.Value) (value.Value, error) {
	obj, err := b.object("new", module)
	if err != nil {
		return value.Undefined, err
	}
	return b.construct(obj.Get(className), args)
}

// NewFromHandle constructs an instance of the constructor behind a handle.
func (b *Bridge) NewFromHandle(ctor value.Value, args ...value.Value) (value.Value, error) {
	obj, err := b.object("new", ctor)
	if err != nil {
		return value.Undefined, err
	}
	return b.construct(obj, args)
}

func (b *Bridge) construct(ctor goja.Value, args []value.Value) (value.Value, error) {
	var res *goja.Object
	err := b.try("new", func() error {
		v, err := b.vm.New(ctor, b.jsArgs(args)...)
		res = v
		return err
	})
	if err != nil {
		return value.Undefined, err
	}
	return b.ToNative(res), nil
}

// GetProperty reads a property of a foreign object.
func (b *Bridge) GetProperty(target value.Value, name string) (value.Value, error) {
	obj, err := b.object("get", target)
	if err != nil {
		return value.Undefined, err
	}
	var res goja.Value
	err = b.try("get", func() error {
		res = obj.Get(name)
		return nil
	})
	if err != nil {
		return value.Undefined, err
	}
	return b.ToNative(res), nil
}

// SetProperty writes a property of a foreign object.
func (b *Bridge) SetProperty(target value.Value, name string, v value.Value) error {
	obj, err := b.object("set", target)
	if err != nil {
		return err
	}
	return b.try("set", func() error {
		return obj.Set(name, b.ToJS(v))
	})
}

// CreateCallback exposes a native closure to the engine. The result is a
// handle to an engine function that converts its arguments, calls the
// closure and converts the result back.
func (b *Bridge) CreateCallback(closure value.Value) value.Value {
	return b.storeValue(b.closureToJS(closure))
}

// ArrayGet reads element i of a foreign array. Anything that is not an
// array reads as undefined.
func (b *Bridge) ArrayGet(arr value.Value, i int) value.Value {
	gv, ok := b.lookupValue(arr)
	if !ok || !b.engineIsArray(gv) {
		return value.Undefined
	}
	return b.ToNative(gv.(*goja.Object).Get(strconv.Itoa(i)))
}

// ArrayLength returns the length of a foreign array, or 0.
func (b *Bridge) ArrayLength(arr value.Value) int {
	gv, ok := b.lookupValue(arr)
	if !ok || !b.engineIsArray(gv) {
		return 0
	}
	return int(gv.(*goja.Object).Get("length").ToInteger())
}

// ToString renders a foreign value the way String(v) would in the engine.
func (b *Bridge) ToString(v value.Value) string {
	if !v.IsHandle() {
		return b.heap.ToDisplayString(v)
	}
	gv, ok := b.Lookup(v.AsHandle())
	if !ok {
		return "undefined"
	}
	var s string
	if err := b.try("string", func() error {
		s = gv.String()
		return nil
	}); err != nil {
		b.logger.Warn("foreign toString failed", "error", err)
		return ""
	}
	return s
}

// Materialize copies the engine array or plain object behind a handle into
// native values, nested containers included up to the conversion depth.
// Anything else is returned unchanged.
func (b *Bridge) Materialize(v value.Value) value.Value {
	gv, ok := b.lookupValue(v)
	if !ok || !b.isContainer(gv) {
		return v
	}
	return b.materialize(gv, 0)
}

func (b *Bridge) isContainer(gv goja.Value) bool {
	obj, ok := gv.(*goja.Object)
	return ok && (obj.ClassName() == "Object" || b.engineIsArray(gv))
}

func (b *Bridge) materialize(gv goja.Value, depth int) value.Value {
	if depth >= b.cfg.MaxConversionDepth || !b.isContainer(gv) {
		return b.ToNative(gv)
	}
	obj := gv.(*goja.Object)
	if b.engineIsArray(gv) {
		out := make([]value.Value, int(obj.Get("length").ToInteger()))
		for i := range out {
			out[i] = b.materialize(obj.Get(strconv.Itoa(i)), depth+1)
		}
		return b.heap.ArrayFrom(out...)
	}
	if ref := obj.Get(nativePtrKey); ref != nil {
		return b.ToNative(gv)
	}
	keys := obj.Keys()
	res := b.heap.AllocObject(0, len(keys))
	names := make([]value.Value, len(keys))
	for i, k := range keys {
		names[i] = b.heap.NewString(k)
		b.heap.SetField(res, i, b.materialize(obj.Get(k), depth+1))
	}
	b.heap.SetKeys(res, b.heap.ArrayFrom(names...))
	return res
}
