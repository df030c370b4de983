package driver

import (
	"fmt"
	"reflect"
	"sync"

	"nativert/pkg/errors"
	"nativert/pkg/heap"
	"nativert/pkg/value"
)

// ModuleBuilder provides the declarative API for building native modules.
// Exports keep their declaration order.
type ModuleBuilder struct {
	rt     *Runtime
	names  []string
	values map[string]value.Value
}

// NamespaceBuilder builds a plain object nested inside a module.
type NamespaceBuilder struct {
	ModuleBuilder
}

// NativeModule is a module declared in Go. Its namespace object is built
// once.
type NativeModule struct {
	name    string
	builder func(*ModuleBuilder)
	once    sync.Once
	ns      value.Value
}

func newModuleBuilder(rt *Runtime) *ModuleBuilder {
	return &ModuleBuilder{rt: rt, values: make(map[string]value.Value)}
}

func (m *ModuleBuilder) set(name string, v value.Value) {
	if _, exists := m.values[name]; !exists {
		m.names = append(m.names, name)
	}
	m.values[name] = v
}

// Const adds a constant to the module
func (m *ModuleBuilder) Const(name string, v interface{}) *ModuleBuilder {
	m.set(name, m.rt.conv.toValue(reflect.ValueOf(v)))
	return m
}

// Function adds a Go function to the module. Arguments are converted to the
// parameter types; a trailing error result is logged and yields undefined.
func (m *ModuleBuilder) Function(name string, fn interface{}) *ModuleBuilder {
	m.set(name, m.rt.conv.wrapFunc(name, reflect.ValueOf(fn)))
	return m
}

// AsyncFunction adds a function that runs on its own goroutine. Callers get
// a promise that settles with the result, or rejects with the error text.
func (m *ModuleBuilder) AsyncFunction(name string, fn interface{}) *ModuleBuilder {
	m.set(name, m.rt.conv.wrapAsync(name, reflect.ValueOf(fn)))
	return m
}

// Class adds a constructor. Instances are heap objects of a freshly
// registered class carrying the struct's exported fields (json tags
// respected) and its exported methods bound to the Go value.
//
//	m.Class("Point", (*Point)(nil), func(x, y float64) *Point { return &Point{X: x, Y: y} })
func (m *ModuleBuilder) Class(name string, goStruct interface{}, constructor interface{}) *ModuleBuilder {
	m.set(name, m.rt.conv.wrapConstructor(name, reflect.TypeOf(goStruct), reflect.ValueOf(constructor)))
	return m
}

// Namespace creates a nested object within the module
func (m *ModuleBuilder) Namespace(name string, build func(ns *NamespaceBuilder)) *ModuleBuilder {
	ns := &NamespaceBuilder{ModuleBuilder: *newModuleBuilder(m.rt)}
	build(ns)
	m.set(name, ns.object(0))
	return m
}

func (ns *NamespaceBuilder) Const(name string, v interface{}) *NamespaceBuilder {
	ns.ModuleBuilder.Const(name, v)
	return ns
}

func (ns *NamespaceBuilder) Function(name string, fn interface{}) *NamespaceBuilder {
	ns.ModuleBuilder.Function(name, fn)
	return ns
}

// object builds a heap object holding the exports in order.
func (m *ModuleBuilder) object(classID uint32) value.Value {
	return m.rt.conv.newObject(classID, m.names, m.values)
}

// namespace builds the module namespace object for name.
func (m *ModuleBuilder) namespace(name string) value.Value {
	h := m.rt.heap
	ns := h.CreateModuleNamespace(name)
	for _, key := range m.names {
		h.SetFieldByName(ns, key, m.values[key])
	}
	return ns
}

// DeclareModule registers a native module under name. Scripts reach it with
// require(name), native code with Import(name).
func (r *Runtime) DeclareModule(name string, builder func(m *ModuleBuilder)) *NativeModule {
	nm := &NativeModule{name: name, builder: builder}
	r.natives[name] = nm
	r.bridge.RegisterNative(name, nm.Exports(r))
	debugPrintf("[driver] declared native module %s\n", name)
	return nm
}

func (nm *NativeModule) Name() string { return nm.name }

// Exports returns the module namespace object, building it on first call.
func (nm *NativeModule) Exports(r *Runtime) value.Value {
	nm.once.Do(func() {
		m := newModuleBuilder(r)
		nm.builder(m)
		nm.ns = m.namespace(nm.name)
	})
	return nm.ns
}

// Import returns the namespace object of a declared native module.
func (r *Runtime) Import(name string) (value.Value, error) {
	nm, ok := r.natives[name]
	if !ok {
		return value.Undefined, &errors.ModuleError{Specifier: name, Msg: "unknown native module"}
	}
	return nm.Exports(r), nil
}

// wrapFunc turns a Go function into a native closure.
func (c *converter) wrapFunc(name string, fn reflect.Value) value.Value {
	if fn.Kind() != reflect.Func {
		return value.Undefined
	}
	return c.heap.NewClosure(func(_ *heap.Closure, args []value.Value) (ret value.Value) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Warn("native function panicked", "function", name, "panic", fmt.Sprint(r))
				ret = value.Undefined
			}
		}()
		results := fn.Call(c.callArgs(fn.Type(), args))
		v, err := c.results(results)
		if err != nil {
			c.logger.Warn("native function failed", "function", name, "error", err)
			return value.Undefined
		}
		return v
	}, 0)
}

// wrapAsync converts arguments on the calling goroutine, runs fn on a new
// goroutine, and converts the result back on the scheduler's goroutine.
func (c *converter) wrapAsync(name string, fn reflect.Value) value.Value {
	if fn.Kind() != reflect.Func {
		return value.Undefined
	}
	return c.heap.NewClosure(func(_ *heap.Closure, args []value.Value) value.Value {
		p := c.sched.NewPromise()
		in := c.callArgs(fn.Type(), args)
		c.sched.BeginExternalOp()
		go func() {
			defer c.sched.EndExternalOp()
			var results []reflect.Value
			var failure error
			func() {
				defer func() {
					if r := recover(); r != nil {
						failure = fmt.Errorf("%s panicked: %v", name, r)
					}
				}()
				results = fn.Call(in)
			}()
			c.sched.ScheduleMicrotask(func() {
				if failure != nil {
					c.sched.Reject(p, c.heap.NewString(failure.Error()))
					return
				}
				v, err := c.results(results)
				if err != nil {
					c.sched.Reject(p, c.heap.NewString(err.Error()))
					return
				}
				c.sched.Resolve(p, v)
			})
		}()
		return p
	}, 0)
}

// wrapConstructor builds a closure creating class instances from the
// constructor's first result.
func (c *converter) wrapConstructor(name string, structType reflect.Type, ctor reflect.Value) value.Value {
	if ctor.Kind() != reflect.Func || ctor.Type().NumOut() == 0 {
		return value.Undefined
	}
	if structType != nil && ctor.Type().Out(0) != structType {
		c.logger.Warn("constructor result does not match class type", "class", name,
			"want", structType.String(), "got", ctor.Type().Out(0).String())
	}
	classID := c.registerClass()
	return c.heap.NewClosure(func(_ *heap.Closure, args []value.Value) value.Value {
		results := ctor.Call(c.callArgs(ctor.Type(), args))
		if len(results) == 0 {
			return value.Undefined
		}
		inst := results[0]
		if len(results) > 1 {
			if err, ok := results[len(results)-1].Interface().(error); ok && err != nil {
				c.logger.Warn("constructor failed", "class", name, "error", err)
				return value.Undefined
			}
		}
		if (inst.Kind() == reflect.Ptr || inst.Kind() == reflect.Interface) && inst.IsNil() {
			return value.Undefined
		}
		return c.instance(classID, inst)
	}, 0)
}
