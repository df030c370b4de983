package driver

import (
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strings"

	"nativert/pkg/bigint"
	"nativert/pkg/heap"
	"nativert/pkg/runtime"
	"nativert/pkg/value"
)

// Class ids handed to native module classes start here, well above the ids
// generated code allocates from.
const firstNativeClassID = 0x10000

var (
	valueType = reflect.TypeOf(value.Value(0))
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	bigType   = reflect.TypeOf((*big.Int)(nil))
)

// converter maps Go values onto heap values and back using reflection.
type converter struct {
	heap      *heap.Heap
	sched     *runtime.Scheduler
	logger    *slog.Logger
	nextClass uint32

	// materialize copies engine containers behind handles into the heap.
	materialize func(value.Value) value.Value
}

func (c *converter) registerClass() uint32 {
	id := firstNativeClassID + c.nextClass
	c.nextClass++
	c.heap.Classes().Register(id, 0)
	return id
}

// newObject allocates an object whose keys are names, in order.
func (c *converter) newObject(classID uint32, names []string, values map[string]value.Value) value.Value {
	obj := c.heap.AllocObject(classID, len(names))
	keys := make([]value.Value, len(names))
	for i, n := range names {
		keys[i] = c.heap.NewString(n)
		c.heap.SetField(obj, i, values[n])
	}
	c.heap.SetKeys(obj, c.heap.ArrayFrom(keys...))
	return obj
}

// toValue converts a Go value. Unsupported kinds become undefined.
func (c *converter) toValue(rv reflect.Value) value.Value {
	if !rv.IsValid() {
		return value.Null
	}
	if rv.Type() == valueType {
		return rv.Interface().(value.Value)
	}
	if rv.Type() == bigType {
		if rv.IsNil() {
			return value.Null
		}
		return c.heap.NewBigInt(bigint.FromBig(rv.Interface().(*big.Int)))
	}
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return value.Null
		}
		return c.toValue(rv.Elem())
	}
	if rv.Type().Implements(errorType) && !(rv.Kind() == reflect.Ptr && rv.IsNil()) {
		return c.heap.NewString(rv.Interface().(error).Error())
	}

	switch rv.Kind() {
	case reflect.String:
		return c.heap.NewString(rv.String())
	case reflect.Bool:
		return value.Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return value.Int32(int32(n))
		}
		return value.Number(float64(n))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		if n <= math.MaxInt32 {
			return value.Int32(int32(n))
		}
		return value.Number(float64(n))
	case reflect.Float32, reflect.Float64:
		return value.Number(rv.Float())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return value.Null
		}
		elems := make([]value.Value, rv.Len())
		for i := range elems {
			elems[i] = c.toValue(rv.Index(i))
		}
		return c.heap.ArrayFrom(elems...)
	case reflect.Map:
		if rv.IsNil() {
			return value.Null
		}
		keys := rv.MapKeys()
		names := make([]string, len(keys))
		values := make(map[string]value.Value, len(keys))
		for i, k := range keys {
			names[i] = fmt.Sprint(k.Interface())
			values[names[i]] = c.toValue(rv.MapIndex(k))
		}
		sort.Strings(names)
		return c.newObject(0, names, values)
	case reflect.Func:
		if rv.IsNil() {
			return value.Null
		}
		return c.wrapFunc("func", rv)
	case reflect.Ptr:
		if rv.IsNil() {
			return value.Null
		}
		if rv.Elem().Kind() == reflect.Struct {
			return c.instance(0, rv)
		}
		return c.toValue(rv.Elem())
	case reflect.Struct:
		return c.instance(0, rv)
	}
	return value.Undefined
}

// instance builds an object from a struct: exported fields as properties
// named by their json tag, then exported methods as closures bound to the
// Go value.
func (c *converter) instance(classID uint32, rv reflect.Value) value.Value {
	sv := rv
	for sv.Kind() == reflect.Ptr || sv.Kind() == reflect.Interface {
		sv = sv.Elem()
	}
	if sv.Kind() != reflect.Struct {
		return c.toValue(rv)
	}

	var names []string
	values := make(map[string]value.Value)
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if !field.IsExported() {
			continue
		}
		name := jsonPropertyName(field)
		if name == "" {
			continue
		}
		names = append(names, name)
		values[name] = c.toValue(sv.Field(i))
	}

	for i := 0; i < rv.NumMethod(); i++ {
		method := rv.Type().Method(i)
		if _, taken := values[method.Name]; taken {
			continue
		}
		names = append(names, method.Name)
		values[method.Name] = c.wrapFunc(st.Name()+"."+method.Name, rv.Method(i))
	}
	return c.newObject(classID, names, values)
}

// jsonPropertyName extracts the property name from the json tag, or uses
// the field name. Fields tagged "-" are skipped.
func jsonPropertyName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name := strings.TrimSpace(strings.Split(tag, ",")[0])
	switch name {
	case "-":
		return ""
	case "":
		return field.Name
	}
	return name
}

// callArgs converts native arguments to the parameter types of fnType.
// Missing arguments become zero values; surplus arguments feed a variadic
// parameter or are dropped.
func (c *converter) callArgs(fnType reflect.Type, args []value.Value) []reflect.Value {
	n := fnType.NumIn()
	fixed := n
	if fnType.IsVariadic() {
		fixed = n - 1
	}
	in := make([]reflect.Value, 0, n)
	for i := 0; i < fixed; i++ {
		if i < len(args) {
			in = append(in, c.fromValue(args[i], fnType.In(i)))
		} else {
			in = append(in, reflect.Zero(fnType.In(i)))
		}
	}
	if fnType.IsVariadic() {
		elem := fnType.In(n - 1).Elem()
		for i := fixed; i < len(args); i++ {
			in = append(in, c.fromValue(args[i], elem))
		}
	}
	return in
}

// results converts a call's results: the first is the value, a trailing
// error is returned as such.
func (c *converter) results(out []reflect.Value) (value.Value, error) {
	if len(out) == 0 {
		return value.Undefined, nil
	}
	last := out[len(out)-1]
	if last.Type() == errorType {
		if !last.IsNil() {
			return value.Undefined, last.Interface().(error)
		}
		out = out[:len(out)-1]
		if len(out) == 0 {
			return value.Undefined, nil
		}
	}
	return c.toValue(out[0]), nil
}

// fromValue converts a native value to t. Values that cannot convert give
// the zero value of t.
func (c *converter) fromValue(v value.Value, t reflect.Type) reflect.Value {
	if t == valueType {
		return reflect.ValueOf(v)
	}
	if t == bigType {
		if n, ok := c.heap.BigIntValue(v); ok {
			return reflect.ValueOf(n.ToSignedBig())
		}
		return reflect.ValueOf(big.NewInt(int64(c.heap.ToNumber(v))))
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Map, reflect.Interface:
		if v.IsHandle() && c.materialize != nil {
			v = c.materialize(v)
		}
	}

	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(c.heap.ToDisplayString(v)).Convert(t)
	case reflect.Bool:
		return reflect.ValueOf(c.heap.Truthy(v)).Convert(t)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f := c.heap.ToNumber(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return reflect.Zero(t)
		}
		return reflect.ValueOf(int64(f)).Convert(t)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f := c.heap.ToNumber(v)
		if math.IsNaN(f) || f < 0 || math.IsInf(f, 0) {
			return reflect.Zero(t)
		}
		return reflect.ValueOf(uint64(f)).Convert(t)
	case reflect.Float32, reflect.Float64:
		return reflect.ValueOf(c.heap.ToNumber(v)).Convert(t)
	case reflect.Slice:
		if !c.heap.IsArray(v) {
			return reflect.Zero(t)
		}
		elems := c.heap.ArrayValues(v)
		out := reflect.MakeSlice(t, len(elems), len(elems))
		for i, e := range elems {
			out.Index(i).Set(c.fromValue(e, t.Elem()))
		}
		return out
	case reflect.Map:
		if t.Key().Kind() != reflect.String || !c.heap.IsObject(v) {
			return reflect.Zero(t)
		}
		out := reflect.MakeMap(t)
		keyArr := c.heap.Keys(v)
		defer c.heap.Free(keyArr)
		for i, k := range c.heap.ArrayValues(keyArr) {
			name, ok := c.heap.GoString(k)
			if !ok {
				continue
			}
			out.SetMapIndex(reflect.ValueOf(name).Convert(t.Key()), c.fromValue(c.heap.GetField(v, i), t.Elem()))
		}
		return out
	case reflect.Interface:
		g := c.toGo(v)
		if g == nil {
			return reflect.Zero(t)
		}
		gv := reflect.ValueOf(g)
		if !gv.Type().AssignableTo(t) {
			return reflect.Zero(t)
		}
		return gv.Convert(t)
	case reflect.Func:
		return c.funcFromValue(v, t)
	}
	return reflect.Zero(t)
}

// funcFromValue lets Go code call a native callable. Results are converted
// to the function's first result type.
func (c *converter) funcFromValue(v value.Value, t reflect.Type) reflect.Value {
	if !c.heap.IsCallable(v) {
		return reflect.Zero(t)
	}
	return reflect.MakeFunc(t, func(in []reflect.Value) []reflect.Value {
		args := make([]value.Value, len(in))
		for i, a := range in {
			args[i] = c.toValue(a)
		}
		res := c.heap.CallValue(v, args...)
		out := make([]reflect.Value, t.NumOut())
		for i := range out {
			if i == 0 && t.Out(0) != errorType {
				out[i] = c.fromValue(res, t.Out(0))
			} else {
				out[i] = reflect.Zero(t.Out(i))
			}
		}
		return out
	})
}

// toGo converts a native value to a plain Go value: nil, bool, float64,
// string, *big.Int, []interface{} or map[string]interface{}. Closures and
// handles stay value.Value.
func (c *converter) toGo(v value.Value) interface{} {
	switch v.Kind() {
	case value.KindUndefined, value.KindNull, value.KindInvalid:
		return nil
	case value.KindBool:
		return v.AsBool()
	case value.KindInt32, value.KindNumber:
		return v.ToNumber()
	case value.KindString:
		s, _ := c.heap.GoString(v)
		return s
	case value.KindBigInt:
		n, _ := c.heap.BigIntValue(v)
		return n.ToSignedBig()
	}
	switch c.heap.KindOf(v) {
	case heap.KindArray:
		elems := c.heap.ArrayValues(v)
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			out[i] = c.toGo(e)
		}
		return out
	case heap.KindObject:
		out := make(map[string]interface{})
		keyArr := c.heap.Keys(v)
		defer c.heap.Free(keyArr)
		for i, k := range c.heap.ArrayValues(keyArr) {
			if name, ok := c.heap.GoString(k); ok {
				out[name] = c.toGo(c.heap.GetField(v, i))
			}
		}
		return out
	}
	return v
}
