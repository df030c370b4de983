// Package bridge connects native values to an embedded goja engine. Engine
// objects never enter the native heap: they stay in a handle table and cross
// over as handle-tagged values.
package bridge

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"nativert/pkg/config"
	"nativert/pkg/errors"
	"nativert/pkg/heap"
	"nativert/pkg/modules"
	"nativert/pkg/runtime"
	"nativert/pkg/source"
	"nativert/pkg/value"
)

const debugBridge = false

const (
	// nativePtrKey marks engine objects created from native objects so they
	// convert back to the original native value.
	nativePtrKey = "__native_ptr__"
	// moduleNameKey is the namespace field naming its module.
	moduleNameKey = "__module__"
)

// nativeRef wraps a native value stored on an engine object.
type nativeRef struct {
	v value.Value
}

// Bridge owns one goja runtime. It is not safe for concurrent use: like the
// heap and the scheduler it belongs to a single goroutine.
type Bridge struct {
	heap   *heap.Heap
	sched  *runtime.Scheduler
	loader *modules.Loader
	cfg    config.BridgeConfig
	logger *slog.Logger

	vm         *goja.Runtime
	handles    map[uint64]goja.Value
	nextHandle uint64

	// live handle of each engine object that crossed over
	objectHandles map[*goja.Object]uint64

	// exports of evaluated CommonJS modules by resolved path, and modules
	// still running their body (for require cycles)
	exports map[string]goja.Value
	loading map[string]*goja.Object
	natives map[string]value.Value

	// scripts by the name the engine reports in stack frames
	sources map[string]*source.SourceFile
	// module text read ahead of evaluation, by resolved path
	prefetched map[string]string

	typeOf   goja.Callable
	toBigInt goja.Callable
	deferred goja.Callable
	isArray  goja.Callable
}

// New creates a goja runtime and installs the bridge as the heap's foreign
// dispatcher. loader may be nil, in which case LoadModule fails.
func New(h *heap.Heap, s *runtime.Scheduler, loader *modules.Loader, cfg config.BridgeConfig) (*Bridge, error) {
	if cfg.MaxConversionDepth <= 0 {
		cfg.MaxConversionDepth = config.Default().Bridge.MaxConversionDepth
	}
	b := &Bridge{
		heap:    h,
		sched:   s,
		loader:  loader,
		cfg:     cfg,
		logger:  slog.Default(),
		vm:      goja.New(),
		handles: make(map[uint64]goja.Value),
		exports: make(map[string]goja.Value),
		loading: make(map[string]*goja.Object),
		natives: make(map[string]value.Value),
		sources: make(map[string]*source.SourceFile),

		objectHandles: make(map[*goja.Object]uint64),
		prefetched:    make(map[string]string),
	}
	if err := b.installHelpers(); err != nil {
		return nil, err
	}
	if err := b.installGlobals(); err != nil {
		return nil, err
	}
	h.SetForeign(b)
	return b, nil
}

func (b *Bridge) installHelpers() error {
	helpers := []struct {
		name string
		src  string
		dst  *goja.Callable
	}{
		{"typeof", `(v) => typeof v`, &b.typeOf},
		{"bigint", `(s) => BigInt(s)`, &b.toBigInt},
		{"deferred", `() => { const d = {}; d.promise = new Promise((res, rej) => { d.resolve = res; d.reject = rej; }); return d; }`, &b.deferred},
		{"isArray", `(v) => Array.isArray(v)`, &b.isArray},
	}
	for _, hp := range helpers {
		v, err := b.vm.RunString(hp.src)
		if err != nil {
			return (&errors.BridgeError{Op: "init", Msg: fmt.Sprintf("compile %s helper", hp.name)}).CausedBy(err)
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return &errors.BridgeError{Op: "init", Msg: fmt.Sprintf("%s helper is not a function", hp.name)}
		}
		*hp.dst = fn
	}
	return nil
}

// installGlobals exposes the scheduler's timers and a top-level require to
// scripts.
func (b *Bridge) installGlobals() error {
	globals := map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout": func(call goja.FunctionCall) goja.Value {
			fn := b.ToNative(call.Argument(0))
			return b.vm.ToValue(b.sched.SetTimeoutCallback(fn, call.Argument(1).ToFloat()))
		},
		"setInterval": func(call goja.FunctionCall) goja.Value {
			fn := b.ToNative(call.Argument(0))
			return b.vm.ToValue(b.sched.SetInterval(fn, call.Argument(1).ToFloat()))
		},
		"clearTimeout": func(call goja.FunctionCall) goja.Value {
			b.sched.ClearTimer(uint64(call.Argument(0).ToInteger()))
			return goja.Undefined()
		},
	}
	for name, fn := range globals {
		if err := b.vm.Set(name, fn); err != nil {
			return (&errors.BridgeError{Op: "init", Msg: "install " + name}).CausedBy(err)
		}
	}
	if err := b.vm.Set("require", b.requireFunc("")); err != nil {
		return (&errors.BridgeError{Op: "init", Msg: "install require"}).CausedBy(err)
	}
	return b.vm.Set("clearInterval", b.vm.Get("clearTimeout"))
}

func (b *Bridge) SetLogger(l *slog.Logger) {
	if l != nil {
		b.logger = l
	}
}

// Runtime returns the underlying goja runtime.
func (b *Bridge) Runtime() *goja.Runtime { return b.vm }

func (b *Bridge) Heap() *heap.Heap { return b.heap }

// RegisterNative makes a native value available to scripts through
// require(name).
func (b *Bridge) RegisterNative(name string, v value.Value) {
	b.natives[name] = v
}

// try runs f and turns a thrown engine exception into a BridgeError.
func (b *Bridge) try(op string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = b.wrapError(op, r)
		}
	}()
	if err := f(); err != nil {
		return b.wrapError(op, err)
	}
	return nil
}

func (b *Bridge) wrapError(op string, cause any) error {
	switch c := cause.(type) {
	case *errors.BridgeError:
		return c
	case *goja.Exception:
		return (&errors.BridgeError{Op: op, Msg: c.Value().String(), Position: b.position(c.String())}).CausedBy(c)
	case *goja.InterruptedError:
		return (&errors.BridgeError{Op: op, Msg: "interrupted"}).CausedBy(c)
	case error:
		return (&errors.BridgeError{Op: op, Msg: c.Error()}).CausedBy(c)
	default:
		return &errors.BridgeError{Op: op, Msg: fmt.Sprint(c)}
	}
}

// Close drops every handle and interrupts any script still running.
func (b *Bridge) Close() {
	b.vm.Interrupt("bridge closed")
	b.handles = make(map[uint64]goja.Value)
	b.objectHandles = make(map[*goja.Object]uint64)
	b.exports = make(map[string]goja.Value)
	b.loading = make(map[string]*goja.Object)
	b.sources = make(map[string]*source.SourceFile)
	b.prefetched = make(map[string]string)
}

// position maps the innermost script frame of an engine stack trace onto
// the source it came from.
func (b *Bridge) position(stack string) errors.Position {
	name, line, col, ok := framePosition(stack)
	if !ok {
		return errors.Position{}
	}
	sf, known := b.sources[name]
	if !known {
		return errors.Position{Line: line, Column: col}
	}
	return errors.Position{Line: line, Column: sf.Column(line, col), Source: sf}
}

// framePosition finds the first "at name:line:col" frame in a stack trace.
// Frames look like "at <eval>:1:7(3)" or "at fn (main.js:2:9(4))".
func framePosition(stack string) (name string, line, col int, ok bool) {
	for _, l := range strings.Split(stack, "\n") {
		loc, found := strings.CutPrefix(strings.TrimSpace(l), "at ")
		if !found {
			continue
		}
		if i := strings.LastIndex(loc, " ("); i >= 0 && strings.HasSuffix(loc, ")") {
			loc = loc[i+2 : len(loc)-1]
		}
		if i := strings.LastIndexByte(loc, '('); i >= 0 {
			loc = loc[:i]
		}
		ci := strings.LastIndexByte(loc, ':')
		if ci < 0 {
			continue
		}
		li := strings.LastIndexByte(loc[:ci], ':')
		if li < 0 {
			continue
		}
		var err1, err2 error
		line, err1 = strconv.Atoi(loc[li+1 : ci])
		col, err2 = strconv.Atoi(loc[ci+1:])
		if err1 != nil || err2 != nil {
			continue
		}
		return loc[:li], line, col, true
	}
	return "", 0, 0, false
}
