package bridge

import (
	"math"
	"math/big"
	"strconv"

	"github.com/dop251/goja"

	"nativert/pkg/bigint"
	"nativert/pkg/heap"
	"nativert/pkg/value"
)

// ToNative converts an engine value. Primitives convert by value and strings
// are copied into the heap. Functions, arrays and objects become handles,
// except objects created by ToJS, which give back their native original.
func (b *Bridge) ToNative(v goja.Value) value.Value {
	if v == nil || goja.IsUndefined(v) {
		return value.Undefined
	}
	if goja.IsNull(v) {
		return value.Null
	}

	if obj, ok := v.(*goja.Object); ok {
		if ref := obj.Get(nativePtrKey); ref != nil {
			if r, ok := ref.Export().(*nativeRef); ok && b.heap.Valid(r.v) {
				return r.v
			}
		}
		if obj.ClassName() == "Promise" {
			if p, ok := obj.Export().(*goja.Promise); ok {
				return b.promiseToNative(v, p)
			}
		}
		return b.storeValue(v)
	}

	switch x := v.Export().(type) {
	case bool:
		return value.Bool(x)
	case int64:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return value.Int32(int32(x))
		}
		return value.Number(float64(x))
	case float64:
		return value.Number(x)
	case string:
		return b.heap.NewString(x)
	case *big.Int:
		return b.heap.NewBigInt(bigFromEngine(x))
	}

	// symbols and anything else the engine keeps for itself
	return b.storeValue(v)
}

// bigFromEngine maps an arbitrary precision integer onto 256-bit two's
// complement, taking the machine word fast paths when the value fits.
func bigFromEngine(x *big.Int) bigint.U256 {
	if x.IsInt64() {
		return bigint.FromI64(x.Int64())
	}
	if x.IsUint64() {
		return bigint.FromU64(x.Uint64())
	}
	mag := new(big.Int).Abs(x)
	words := make([]uint64, 0, 4)
	for _, w := range mag.Bits() {
		words = append(words, uint64(w))
	}
	return bigint.FromSignWords(x.Sign() < 0, words)
}

// ToNativeArray converts engine arrays into native arrays, recursing into
// nested arrays up to the configured depth. Everything else converts like
// ToNative.
func (b *Bridge) ToNativeArray(v goja.Value) value.Value {
	return b.toNativeArray(v, 0)
}

func (b *Bridge) toNativeArray(v goja.Value, depth int) value.Value {
	if depth >= b.cfg.MaxConversionDepth || !b.engineIsArray(v) {
		return b.ToNative(v)
	}
	obj := v.(*goja.Object)
	n := int(obj.Get("length").ToInteger())
	out := make([]value.Value, n)
	for i := 0; i < n; i++ {
		out[i] = b.toNativeArray(obj.Get(strconv.Itoa(i)), depth+1)
	}
	return b.heap.ArrayFrom(out...)
}

func (b *Bridge) engineIsArray(v goja.Value) bool {
	if _, ok := v.(*goja.Object); !ok {
		return false
	}
	res, err := b.isArray(goja.Undefined(), v)
	return err == nil && res.ToBoolean()
}

// ToJS converts a native value for the engine. Handles unwrap to the value
// they stand for, closures become callable functions, arrays are copied and
// objects become shallow engine objects that remember their native origin.
func (b *Bridge) ToJS(v value.Value) goja.Value {
	return b.toJS(v, 0)
}

func (b *Bridge) toJS(v value.Value, depth int) goja.Value {
	switch v.Kind() {
	case value.KindUndefined, value.KindInvalid:
		return goja.Undefined()
	case value.KindNull:
		return goja.Null()
	case value.KindBool:
		return b.vm.ToValue(v.AsBool())
	case value.KindInt32:
		return b.vm.ToValue(int64(v.AsInt32()))
	case value.KindNumber:
		return b.vm.ToValue(v.AsNumber())
	case value.KindHandle:
		if gv, ok := b.Lookup(v.AsHandle()); ok {
			return gv
		}
		b.logger.Warn("stale foreign handle", "handle", v.AsHandle())
		return goja.Undefined()
	case value.KindString:
		s, _ := b.heap.GoString(v)
		return b.vm.ToValue(s)
	case value.KindBigInt:
		n, ok := b.heap.BigIntValue(v)
		if !ok {
			return goja.Undefined()
		}
		res, err := b.toBigInt(goja.Undefined(), b.vm.ToValue(n.SignedString()))
		if err != nil {
			b.logger.Warn("bigint conversion failed", "error", err)
			return goja.Undefined()
		}
		return res
	case value.KindPointer:
		return b.pointerToJS(v, depth)
	}
	return goja.Undefined()
}

func (b *Bridge) pointerToJS(v value.Value, depth int) goja.Value {
	switch b.heap.KindOf(v) {
	case heap.KindClosure:
		return b.closureToJS(v)
	case heap.KindArray:
		if depth >= b.cfg.MaxConversionDepth {
			return b.backReference(v)
		}
		elems := b.heap.ArrayValues(v)
		items := make([]interface{}, len(elems))
		for i, e := range elems {
			items[i] = b.toJS(e, depth+1)
		}
		return b.vm.NewArray(items...)
	case heap.KindPromise:
		return b.promiseToJS(v)
	case heap.KindRegExp:
		ctor := b.vm.Get("RegExp")
		re, err := b.vm.New(ctor, b.vm.ToValue(b.heap.RegExpSource(v)), b.vm.ToValue(b.heap.RegExpFlags(v)))
		if err != nil {
			return goja.Undefined()
		}
		return re
	case heap.KindObject:
		if b.heap.IsModuleNamespace(v) {
			return b.namespaceToJS(v, depth)
		}
		return b.objectToJS(v)
	}
	return goja.Undefined()
}

// namespaceToJS copies every export, nested values included. Namespaces are
// export bags, so there is no native original to hand back.
func (b *Bridge) namespaceToJS(v value.Value, depth int) goja.Value {
	obj := b.vm.NewObject()
	keyArr := b.heap.Keys(v)
	defer b.heap.Free(keyArr)
	for i, k := range b.heap.ArrayValues(keyArr) {
		name, ok := b.heap.GoString(k)
		if !ok || name == moduleNameKey {
			continue
		}
		field := b.heap.GetField(v, i)
		if b.heap.IsObject(field) && !b.heap.IsModuleNamespace(field) && depth+1 < b.cfg.MaxConversionDepth {
			obj.Set(name, b.plainObjectToJS(field, depth+1))
			continue
		}
		obj.Set(name, b.toJS(field, depth+1))
	}
	return obj
}

// plainObjectToJS copies an object's fields into a fresh engine object.
func (b *Bridge) plainObjectToJS(v value.Value, depth int) goja.Value {
	obj := b.vm.NewObject()
	keyArr := b.heap.Keys(v)
	defer b.heap.Free(keyArr)
	for i, k := range b.heap.ArrayValues(keyArr) {
		if name, ok := b.heap.GoString(k); ok {
			obj.Set(name, b.toJS(b.heap.GetField(v, i), depth+1))
		}
	}
	return obj
}

func (b *Bridge) backReference(v value.Value) *goja.Object {
	obj := b.vm.NewObject()
	obj.DefineDataProperty(nativePtrKey, b.vm.ToValue(&nativeRef{v: v}), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	return obj
}

// objectToJS copies named fields holding primitives; nested heap values stay
// behind the back-reference.
func (b *Bridge) objectToJS(v value.Value) goja.Value {
	obj := b.backReference(v)
	keyArr := b.heap.Keys(v)
	defer b.heap.Free(keyArr)
	for i, k := range b.heap.ArrayValues(keyArr) {
		name, ok := b.heap.GoString(k)
		if !ok {
			continue
		}
		field := b.heap.GetField(v, i)
		if field.IsPointer() && b.heap.KindOf(field) != heap.KindClosure {
			continue
		}
		obj.Set(name, b.toJS(field, b.cfg.MaxConversionDepth))
	}
	return obj
}

func (b *Bridge) closureToJS(fn value.Value) goja.Value {
	return b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		args := make([]value.Value, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = b.ToNative(a)
		}
		return b.ToJS(b.heap.CallValue(fn, args...))
	})
}

// promiseToNative mirrors an engine promise as a native promise. Settled
// promises convert immediately; pending ones settle when the engine runs
// their reactions.
func (b *Bridge) promiseToNative(v goja.Value, p *goja.Promise) value.Value {
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return b.sched.Resolved(b.ToNative(p.Result()))
	case goja.PromiseStateRejected:
		return b.sched.Rejected(b.ToNative(p.Result()))
	}
	out := b.sched.NewPromise()
	then, ok := goja.AssertFunction(v.(*goja.Object).Get("then"))
	if !ok {
		return out
	}
	onOK := b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		b.sched.Resolve(out, b.ToNative(call.Argument(0)))
		return goja.Undefined()
	})
	onFail := b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		b.sched.Reject(out, b.ToNative(call.Argument(0)))
		return goja.Undefined()
	})
	if _, err := then(v, onOK, onFail); err != nil {
		b.sched.Reject(out, b.heap.NewString(err.Error()))
	}
	return out
}

// promiseToJS returns an engine promise that follows a native one.
func (b *Bridge) promiseToJS(p value.Value) goja.Value {
	d, err := b.deferred(goja.Undefined())
	if err != nil {
		return goja.Undefined()
	}
	obj := d.(*goja.Object)
	resolve, _ := goja.AssertFunction(obj.Get("resolve"))
	reject, _ := goja.AssertFunction(obj.Get("reject"))

	onOK := b.heap.NewClosure(func(_ *heap.Closure, args []value.Value) value.Value {
		resolve(goja.Undefined(), b.ToJS(argAt(args, 0)))
		return value.Undefined
	}, 0)
	onFail := b.heap.NewClosure(func(_ *heap.Closure, args []value.Value) value.Value {
		reject(goja.Undefined(), b.ToJS(argAt(args, 0)))
		return value.Undefined
	}, 0)
	b.sched.Then(p, onOK, onFail)
	return obj.Get("promise")
}

func argAt(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Undefined
}
