package bridge

import (
	stderrors "errors"
	"math"
	"math/big"
	"strings"
	"testing"
	"time"

	"nativert/pkg/bigint"
	"nativert/pkg/config"
	"nativert/pkg/errors"
	"nativert/pkg/heap"
	"nativert/pkg/modules"
	"nativert/pkg/runtime"
	"nativert/pkg/value"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

type fixture struct {
	b     *Bridge
	h     *heap.Heap
	s     *runtime.Scheduler
	mem   *modules.MemoryResolver
	clock *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := heap.New(config.HeapConfig{})
	s := runtime.NewScheduler(h, config.SchedulerConfig{}, runtime.WithClock(clk.now))
	mem := modules.NewMemoryResolver("")
	loader := modules.NewLoader(config.ModulesConfig{}, mem)
	b, err := New(h, s, loader, config.BridgeConfig{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(b.Close)
	return &fixture{b: b, h: h, s: s, mem: mem, clock: clk}
}

func (f *fixture) eval(t *testing.T, src string) value.Value {
	t.Helper()
	v, err := f.b.Eval(src)
	if err != nil {
		t.Fatalf("Eval(%q) failed: %v", src, err)
	}
	return v
}

func (f *fixture) str(t *testing.T, v value.Value) string {
	t.Helper()
	s, ok := f.h.GoString(v)
	if !ok {
		t.Fatalf("expected a string, got %s", f.h.Inspect(v))
	}
	return s
}

func TestBridge_Primitives(t *testing.T) {
	f := newFixture(t)

	if v := f.eval(t, "40 + 2"); v != value.Int32(42) {
		t.Errorf("40 + 2 = %s, want int32 42", f.h.Inspect(v))
	}
	if v := f.eval(t, "1.5"); !v.IsNumber() || v.AsNumber() != 1.5 {
		t.Errorf("1.5 converted to %s", f.h.Inspect(v))
	}
	if v := f.eval(t, "2 ** 40"); !v.IsNumber() || v.AsNumber() != math.Pow(2, 40) {
		t.Errorf("2 ** 40 should be a double, got %s", f.h.Inspect(v))
	}
	if v := f.eval(t, "NaN"); !v.IsNumber() || !math.IsNaN(v.AsNumber()) {
		t.Errorf("NaN converted to %s", f.h.Inspect(v))
	}
	if f.eval(t, "1 < 2") != value.True {
		t.Errorf("true did not convert")
	}
	if f.eval(t, "null") != value.Null || f.eval(t, "undefined") != value.Undefined {
		t.Errorf("nullish values did not convert")
	}
	if s := f.str(t, f.eval(t, "'na' + 'tive'")); s != "native" {
		t.Errorf("string converted to %q", s)
	}
	if f.b.Len() != 0 {
		t.Errorf("primitives should not allocate handles, have %d", f.b.Len())
	}
}

func TestBridge_PrimitivesToJS(t *testing.T) {
	f := newFixture(t)
	vm := f.b.Runtime()
	vm.Set("i", f.b.ToJS(value.Int32(-7)))
	vm.Set("d", f.b.ToJS(value.Number(math.NaN())))
	vm.Set("s", f.b.ToJS(f.h.NewString("héllo")))
	vm.Set("n", f.b.ToJS(value.Null))

	if s := f.str(t, f.eval(t, "`${i}|${Number.isNaN(d)}|${s.length}|${n === null}`")); s != "-7|true|5|true" {
		t.Errorf("unexpected rendering %q", s)
	}
}

func TestBridge_BigInt(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		src  string
		want *big.Int
	}{
		{"-5n", big.NewInt(-5)},
		{"18446744073709551615n", new(big.Int).SetUint64(math.MaxUint64)},
		{"2n ** 200n", new(big.Int).Lsh(big.NewInt(1), 200)},
		{"-(2n ** 100n) - 3n", new(big.Int).Sub(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 100)), big.NewInt(3))},
	}
	for _, tc := range cases {
		v := f.eval(t, tc.src)
		n, ok := f.h.BigIntValue(v)
		if !ok {
			t.Errorf("%s: expected a bigint, got %s", tc.src, f.h.Inspect(v))
			continue
		}
		if n.ToSignedBig().Cmp(tc.want) != 0 {
			t.Errorf("%s = %s, want %s", tc.src, n.SignedString(), tc.want)
		}
	}

	f.b.Runtime().Set("x", f.b.ToJS(f.h.NewBigInt(bigint.FromI64(-12345678901234))))
	if s := f.str(t, f.eval(t, "typeof x + ':' + (x * 2n)")); s != "bigint:-24691357802468" {
		t.Errorf("bigint to engine gave %q", s)
	}
}

func TestBridge_HandlesAndProperties(t *testing.T) {
	f := newFixture(t)

	obj := f.eval(t, "({ a: 1, nested: { b: 'two' } })")
	if !IsHandle(obj) {
		t.Fatalf("objects should convert to handles, got %s", f.h.Inspect(obj))
	}
	if f.b.Len() != 1 {
		t.Errorf("expected 1 handle, got %d", f.b.Len())
	}

	a, err := f.b.GetProperty(obj, "a")
	if err != nil || a != value.Int32(1) {
		t.Errorf("GetProperty(a) = %s, %v", f.h.Inspect(a), err)
	}
	nested, err := f.b.GetProperty(obj, "nested")
	if err != nil || !IsHandle(nested) {
		t.Fatalf("nested object should be a handle, got %s, %v", f.h.Inspect(nested), err)
	}
	if err := f.b.SetProperty(obj, "c", f.h.NewString("set")); err != nil {
		t.Fatalf("SetProperty failed: %v", err)
	}
	f.b.Runtime().Set("o", f.b.ToJS(obj))
	if s := f.str(t, f.eval(t, "o.c + o.nested.b")); s != "settwo" {
		t.Errorf("handle did not unwrap to the same object: %q", s)
	}

	id, _ := HandleID(obj)
	if !f.b.Release(id) || f.b.Release(id) {
		t.Errorf("Release should succeed exactly once")
	}
	_, err = f.b.GetProperty(obj, "a")
	var handleErr *errors.HandleError
	if !stderrors.As(err, &handleErr) || handleErr.ID != id {
		t.Errorf("expected HandleError for released handle, got %v", err)
	}
	if _, err := f.b.GetProperty(value.Int32(3), "a"); err == nil {
		t.Errorf("GetProperty on a non-handle should fail")
	}
}

func TestBridge_HandlesReusedPerObject(t *testing.T) {
	f := newFixture(t)
	seen := 0
	cb := f.h.NewClosure(func(_ *heap.Closure, args []value.Value) value.Value {
		seen++
		return value.Undefined
	}, 0)
	f.b.Runtime().Set("cb", f.b.ToJS(cb))
	f.eval(t, "globalThis.state = { n: 0 }; for (let i = 0; i < 100; i++) cb(state, i)")
	if seen != 100 {
		t.Fatalf("callback ran %d times", seen)
	}
	if f.b.Len() != 1 {
		t.Errorf("passing one object repeatedly should keep one handle, have %d", f.b.Len())
	}

	a := f.eval(t, "state")
	b := f.eval(t, "state")
	if a != b || !IsHandle(a) {
		t.Errorf("same engine object should give the same handle, got %s and %s", f.h.Inspect(a), f.h.Inspect(b))
	}

	id, _ := HandleID(a)
	f.b.Release(id)
	again := f.eval(t, "state")
	if again == a {
		t.Errorf("a released handle should not be handed out again")
	}
	if _, err := f.b.GetProperty(again, "n"); err != nil {
		t.Errorf("fresh handle should be live: %v", err)
	}
}

func TestBridge_HandleIDsAreMonotonic(t *testing.T) {
	f := newFixture(t)
	first := f.b.Store(f.b.Runtime().NewObject())
	f.b.Release(first)
	second := f.b.Store(f.b.Runtime().NewObject())
	if first != 1 || second != 2 {
		t.Errorf("handle ids = %d, %d, want 1, 2", first, second)
	}
	if HandleValue(second) != value.Handle(2) {
		t.Errorf("HandleValue mismatch")
	}
}

func TestBridge_CallValue(t *testing.T) {
	f := newFixture(t)
	add := f.eval(t, "(a, b) => a + b")

	res, err := f.b.CallValue(add, value.Int32(2), value.Int32(3))
	if err != nil || res != value.Int32(5) {
		t.Errorf("CallValue = %s, %v", f.h.Inspect(res), err)
	}

	// the heap dispatches handle calls to the bridge
	if res := f.h.CallValue(add, value.Int32(20), value.Int32(22)); res != value.Int32(42) {
		t.Errorf("heap CallValue = %s", f.h.Inspect(res))
	}
	if res := f.h.CallMethod(f.eval(t, "[3, 1, 2]"), "join", f.h.NewString("-")); f.str(t, res) != "3-1-2" {
		t.Errorf("heap CallMethod = %s", f.h.Inspect(res))
	}
	if got := f.h.TypeOf(add); got != "function" {
		t.Errorf("TypeOf(handle) = %q", got)
	}
	if got := f.h.ToDisplayString(f.eval(t, "[1, [2, 3]]")); got != "1,2,3" {
		t.Errorf("ToDisplayString(handle) = %q", got)
	}
}

func TestBridge_ErrorsBecomeBridgeErrors(t *testing.T) {
	f := newFixture(t)
	thrower := f.eval(t, "() => { throw new Error('boom') }")

	_, err := f.b.CallValue(thrower)
	var bridgeErr *errors.BridgeError
	if !stderrors.As(err, &bridgeErr) {
		t.Fatalf("expected BridgeError, got %T %v", err, err)
	}
	if bridgeErr.Op != "call" || !strings.Contains(bridgeErr.Msg, "boom") {
		t.Errorf("unexpected error %+v", bridgeErr)
	}

	// the foreign dispatcher absorbs the failure
	if res := f.h.CallValue(thrower); res != value.Undefined {
		t.Errorf("heap call of a throwing function = %s, want undefined", f.h.Inspect(res))
	}

	if _, err := f.b.Eval("let = ;"); err == nil {
		t.Errorf("syntax errors should be reported")
	}
	if _, err := f.b.CallMethod(f.eval(t, "({})"), "missing"); err == nil {
		t.Errorf("calling a missing method should fail")
	}
}

func TestBridge_Construct(t *testing.T) {
	f := newFixture(t)
	mod := f.eval(t, `({ Point: class { constructor(x, y) { this.x = x; this.y = y } sum() { return this.x + this.y } } })`)

	p, err := f.b.NewInstance(mod, "Point", value.Int32(3), value.Int32(4))
	if err != nil {
		t.Fatalf("NewInstance failed: %v", err)
	}
	if sum, err := f.b.CallMethod(p, "sum"); err != nil || sum != value.Int32(7) {
		t.Errorf("sum() = %s, %v", f.h.Inspect(sum), err)
	}

	ctor, _ := f.b.GetProperty(mod, "Point")
	q, err := f.b.NewFromHandle(ctor, value.Int32(1), value.Int32(1))
	if err != nil {
		t.Fatalf("NewFromHandle failed: %v", err)
	}
	if y, _ := f.b.GetProperty(q, "y"); y != value.Int32(1) {
		t.Errorf("y = %s", f.h.Inspect(y))
	}
	if _, err := f.b.NewInstance(mod, "Missing"); err == nil {
		t.Errorf("constructing undefined should fail")
	}
}

func TestBridge_CreateCallback(t *testing.T) {
	f := newFixture(t)
	var seen []value.Value
	mul := f.h.NewClosure(func(_ *heap.Closure, args []value.Value) value.Value {
		seen = append(seen, args...)
		return value.Number(args[0].ToNumber() * args[1].ToNumber())
	}, 0)

	cb := f.b.CreateCallback(mul)
	if !IsHandle(cb) {
		t.Fatalf("CreateCallback should return a handle")
	}
	f.b.Runtime().Set("mul", f.b.ToJS(cb))
	if v := f.eval(t, "mul(6, 7)"); v.ToNumber() != 42 {
		t.Errorf("mul(6, 7) = %s", f.h.Inspect(v))
	}
	if len(seen) != 2 || seen[0] != value.Int32(6) {
		t.Errorf("closure saw %v", seen)
	}

	// closures converted directly are callable as well
	f.b.Runtime().Set("direct", f.b.ToJS(mul))
	if v := f.eval(t, "[1, 2, 3].map(x => direct(x, 2)).join()"); f.str(t, v) != "2,4,6" {
		t.Errorf("direct closure calls gave %s", f.h.Inspect(v))
	}
}

func TestBridge_NativeObjectBackReference(t *testing.T) {
	f := newFixture(t)
	obj := f.h.AllocObject(7, 3)
	f.h.SetKeys(obj, f.h.ArrayFrom(f.h.NewString("x"), f.h.NewString("label"), f.h.NewString("list")))
	f.h.SetFieldByName(obj, "x", value.Int32(10))
	f.h.SetFieldByName(obj, "label", f.h.NewString("point"))
	f.h.SetFieldByName(obj, "list", f.h.ArrayFrom(value.Int32(1)))

	f.b.Runtime().Set("o", f.b.ToJS(obj))
	if s := f.str(t, f.eval(t, "Object.keys(o).join() + '|' + o.x + '|' + o.label")); s != "x,label|10|point" {
		t.Errorf("shallow conversion gave %q", s)
	}
	if back := f.eval(t, "o"); back != obj {
		t.Errorf("object should convert back to the native original, got %s", f.h.Inspect(back))
	}
	if f.b.Len() != 0 {
		t.Errorf("back-referenced objects should not allocate handles")
	}
}

func TestBridge_Arrays(t *testing.T) {
	f := newFixture(t)

	f.b.Runtime().Set("arr", f.b.ToJS(f.h.ArrayFrom(value.Int32(1), f.h.NewString("b"), f.h.ArrayFrom(value.True))))
	if s := f.str(t, f.eval(t, "arr.length + ':' + arr[1] + ':' + arr[2][0]")); s != "3:b:true" {
		t.Errorf("array to engine gave %q", s)
	}

	handle := f.eval(t, "[7, 8, 9]")
	if n := f.b.ArrayLength(handle); n != 3 {
		t.Errorf("ArrayLength = %d", n)
	}
	if v := f.b.ArrayGet(handle, 1); v != value.Int32(8) {
		t.Errorf("ArrayGet(1) = %s", f.h.Inspect(v))
	}
	if v := f.b.ArrayGet(handle, 5); v != value.Undefined {
		t.Errorf("ArrayGet past the end = %s", f.h.Inspect(v))
	}

	notArray := f.eval(t, "({ length: 4 })")
	if f.b.ArrayLength(notArray) != 0 || f.b.ArrayGet(notArray, 0) != value.Undefined {
		t.Errorf("non-arrays should read as empty")
	}
	if f.b.ArrayLength(value.Int32(1)) != 0 {
		t.Errorf("non-handles should read as empty")
	}

	gv, err := f.b.Runtime().RunString("[[1, 2], [3], 'x']")
	if err != nil {
		t.Fatal(err)
	}
	native := f.b.ToNativeArray(gv)
	if !f.h.IsArray(native) || f.h.ArrayLength(native) != 3 {
		t.Fatalf("ToNativeArray gave %s", f.h.Inspect(native))
	}
	inner := f.h.ArrayGet(native, 0)
	if !f.h.IsArray(inner) || f.h.ArrayGet(inner, 1) != value.Int32(2) {
		t.Errorf("nested arrays should convert, got %s", f.h.Inspect(inner))
	}
	if f.str(t, f.h.ArrayGet(native, 2)) != "x" {
		t.Errorf("string element lost")
	}
}

func TestBridge_ToNativeArrayDepth(t *testing.T) {
	h := heap.New(config.HeapConfig{})
	s := runtime.NewScheduler(h, config.SchedulerConfig{})
	b, err := New(h, s, nil, config.BridgeConfig{MaxConversionDepth: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	gv, _ := b.Runtime().RunString("[[1]]")
	native := b.ToNativeArray(gv)
	if !h.IsArray(native) || !IsHandle(h.ArrayGet(native, 0)) {
		t.Errorf("arrays past the depth limit should stay handles, got %s", h.Inspect(native))
	}
}

func TestBridge_RegExpToJS(t *testing.T) {
	f := newFixture(t)
	re, err := f.h.NewRegExp("a+b", "gi")
	if err != nil {
		t.Fatal(err)
	}
	f.b.Runtime().Set("re", f.b.ToJS(re))
	if s := f.str(t, f.eval(t, "re.source + '/' + re.flags + '/' + 'xAABaab'.match(re).length")); s != "a+b/gi/2" {
		t.Errorf("regexp conversion gave %q", s)
	}
}

func TestBridge_EnginePromiseToNative(t *testing.T) {
	f := newFixture(t)

	done := f.eval(t, "Promise.resolve(7)")
	if f.s.State(done) != 1 || f.s.PromiseValue(done) != value.Int32(7) {
		t.Errorf("settled promise state %d value %s", f.s.State(done), f.h.Inspect(f.s.PromiseValue(done)))
	}
	failed := f.eval(t, "Promise.reject('no')")
	if f.s.State(failed) != 2 || f.str(t, f.s.PromiseReason(failed)) != "no" {
		t.Errorf("rejected promise state %d", f.s.State(failed))
	}

	pending := f.eval(t, "new Promise(r => { globalThis.finish = r })")
	if f.s.State(pending) != 0 {
		t.Fatalf("expected pending promise, state %d", f.s.State(pending))
	}
	f.eval(t, "finish(9)")
	if f.s.State(pending) != 1 || f.s.PromiseValue(pending) != value.Int32(9) {
		t.Errorf("pending promise did not follow the engine, state %d", f.s.State(pending))
	}
}

func TestBridge_NativePromiseToJS(t *testing.T) {
	f := newFixture(t)
	p := f.s.NewPromise()
	f.b.Runtime().Set("p", f.b.ToJS(p))
	f.eval(t, "globalThis.got = 'none'; p.then(v => { globalThis.got = v })")

	f.s.Resolve(p, f.h.NewString("ready"))
	f.s.Drain()
	if s := f.str(t, f.eval(t, "got")); s != "ready" {
		t.Errorf("engine saw %q", s)
	}
}

func TestBridge_Timers(t *testing.T) {
	f := newFixture(t)
	f.eval(t, `
		globalThis.log = [];
		setTimeout(() => log.push('late'), 20);
		setTimeout(() => log.push('early'), 5);
		const cancelled = setTimeout(() => log.push('never'), 1);
		clearTimeout(cancelled);
	`)

	f.clock.t = f.clock.t.Add(10 * time.Millisecond)
	f.s.Drain()
	f.clock.t = f.clock.t.Add(10 * time.Millisecond)
	f.s.Drain()

	if s := f.str(t, f.eval(t, "log.join()")); s != "early,late" {
		t.Errorf("timers fired as %q", s)
	}
}

func TestBridge_Close(t *testing.T) {
	f := newFixture(t)
	f.eval(t, "({})")
	f.b.Close()
	if f.b.Len() != 0 {
		t.Errorf("Close should drop handles")
	}
}

func TestBridge_Materialize(t *testing.T) {
	f := newFixture(t)

	v := f.b.Materialize(f.eval(t, "({name: 'cfg', sizes: [1, 2], nested: {on: true}, fn() {}})"))
	if !f.h.IsObject(v) {
		t.Fatalf("expected a native object, got %s", f.h.Inspect(v))
	}
	if s := f.str(t, f.h.GetFieldByName(v, "name")); s != "cfg" {
		t.Errorf("name = %q", s)
	}
	sizes := f.h.GetFieldByName(v, "sizes")
	if !f.h.IsArray(sizes) || f.h.ArrayLength(sizes) != 2 || f.h.ArrayGet(sizes, 1) != value.Int32(2) {
		t.Errorf("sizes = %s", f.h.Inspect(sizes))
	}
	if on := f.h.GetFieldByName(f.h.GetFieldByName(v, "nested"), "on"); on != value.True {
		t.Errorf("nested.on = %s", f.h.Inspect(on))
	}
	if fn := f.h.GetFieldByName(v, "fn"); !fn.IsHandle() {
		t.Errorf("functions should stay handles, got %s", f.h.Inspect(fn))
	}

	fn := f.eval(t, "(() => 1)")
	if f.b.Materialize(fn) != fn {
		t.Errorf("non-containers should be returned unchanged")
	}
	if f.b.Materialize(value.Int32(3)) != value.Int32(3) {
		t.Errorf("native values should be returned unchanged")
	}
}

func TestBridge_ErrorPositions(t *testing.T) {
	f := newFixture(t)

	_, err := f.b.Eval("let a = 1;\nnotDefined(a);")
	var bridgeErr *errors.BridgeError
	if !stderrors.As(err, &bridgeErr) {
		t.Fatalf("expected BridgeError, got %v", err)
	}
	if bridgeErr.Line != 2 || bridgeErr.Source == nil || bridgeErr.Source.Name != "<eval>" {
		t.Errorf("unexpected position %+v", bridgeErr.Position)
	}

	f.mem.AddModule("boom.js", "exports.x = 1;\nthrow new Error('boom');")
	_, err = f.b.LoadModule("./boom", "")
	if !stderrors.As(err, &bridgeErr) {
		t.Fatalf("expected BridgeError, got %v", err)
	}
	if bridgeErr.Line != 2 || bridgeErr.Source == nil || bridgeErr.Source.DisplayPath() != "boom.js" {
		t.Errorf("unexpected module position %+v", bridgeErr.Position)
	}
	if line, _ := bridgeErr.Source.Line(bridgeErr.Line); line != "throw new Error('boom');" {
		t.Errorf("position should point at the throwing line, got %q", line)
	}
}

func TestFramePosition(t *testing.T) {
	tests := []struct {
		stack     string
		name      string
		line, col int
		ok        bool
	}{
		{"Error: boom\n\tat <eval>:1:7(3)\n", "<eval>", 1, 7, true},
		{"Error: x\n\tat native\n\tat run (lib/main.js:12:3(40))\n", "lib/main.js", 12, 3, true},
		{"Error: x\n\tat native\n", "", 0, 0, false},
		{"no stack at all", "", 0, 0, false},
	}
	for _, tt := range tests {
		name, line, col, ok := framePosition(tt.stack)
		if name != tt.name || line != tt.line || col != tt.col || ok != tt.ok {
			t.Errorf("framePosition(%q) = %q, %d, %d, %v", tt.stack, name, line, col, ok)
		}
	}
}
