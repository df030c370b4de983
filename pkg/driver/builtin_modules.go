package driver

import (
	"fmt"
	"io"
	"os"
	goruntime "runtime"
	"sort"
	"strings"

	"nativert/pkg/value"
)

// declareBuiltins registers the process and console modules and exposes them
// as globals, the way Node scripts expect to find them.
func (r *Runtime) declareBuiltins(opts Options) {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	exit := opts.Exit
	if exit == nil {
		exit = os.Exit
	}

	process := r.DeclareModule("process", func(m *ModuleBuilder) {
		m.Const("argv", append([]string{}, opts.Argv...))
		m.Const("execArgv", []string{})
		m.Const("platform", goruntime.GOOS)
		m.Const("arch", goruntime.GOARCH)
		m.Const("version", goruntime.Version())
		m.Const("pid", os.Getpid())
		m.Const("env", environ())
		m.Function("cwd", func() string {
			cwd, err := os.Getwd()
			if err != nil {
				return ""
			}
			return cwd
		})
		m.Function("exit", func(code int) { exit(code) })
		m.Function("nextTick", func(fn value.Value, args ...value.Value) {
			r.sched.ScheduleMicrotask(func() { r.heap.CallValue(fn, args...) })
		})
		m.Function("memoryUsage", func() map[string]float64 {
			var ms goruntime.MemStats
			goruntime.ReadMemStats(&ms)
			return map[string]float64{
				"heapUsed":  float64(ms.HeapAlloc),
				"heapTotal": float64(ms.HeapSys),
				"rss":       float64(ms.Sys),
				"cells":     float64(r.heap.Live()),
			}
		})
		m.Namespace("stdout", func(ns *NamespaceBuilder) {
			ns.Function("write", writer(r, stdout))
		})
		m.Namespace("stderr", func(ns *NamespaceBuilder) {
			ns.Function("write", writer(r, stderr))
		})
	})

	console := r.DeclareModule("console", func(m *ModuleBuilder) {
		m.Function("log", printer(r, stdout))
		m.Function("info", printer(r, stdout))
		m.Function("debug", printer(r, stdout))
		m.Function("warn", printer(r, stderr))
		m.Function("error", printer(r, stderr))
	})

	for _, nm := range []*NativeModule{process, console} {
		if err := r.bridge.Runtime().Set(nm.Name(), r.bridge.ToJS(nm.Exports(r))); err != nil {
			r.logger.Warn("install global failed", "global", nm.Name(), "error", err)
		}
	}
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func writer(r *Runtime, w io.Writer) func(value.Value) bool {
	return func(v value.Value) bool {
		_, err := io.WriteString(w, r.heap.ToDisplayString(v))
		return err == nil
	}
}

func printer(r *Runtime, w io.Writer) func(...value.Value) {
	return func(args ...value.Value) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = r.heap.ToDisplayString(a)
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
	}
}

// Natives lists the declared native module names.
func (r *Runtime) Natives() []string {
	names := make([]string, 0, len(r.natives))
	for name := range r.natives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
