// Package driver assembles a runtime instance: configuration, heap,
// scheduler, module loader and engine bridge, plus native modules declared
// in Go.
package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"nativert/pkg/bridge"
	"nativert/pkg/config"
	"nativert/pkg/errors"
	"nativert/pkg/heap"
	"nativert/pkg/modules"
	"nativert/pkg/runtime"
	"nativert/pkg/source"
	"nativert/pkg/value"
)

const debugDriver = false

func debugPrintf(format string, args ...interface{}) {
	if debugDriver {
		fmt.Printf(format, args...)
	}
}

// Options configures New. The zero value gives a runtime with the default
// configuration resolving modules from the working directory.
type Options struct {
	// Config wins over ConfigPath; with neither the defaults apply.
	Config     *config.Config
	ConfigPath string

	Logger *slog.Logger

	// Resolvers replaces the default file system and node_modules chain.
	Resolvers []modules.ModuleResolver

	// Argv is exposed through the process module.
	Argv []string

	// Stdout and Stderr back console and process output; the os streams by
	// default. Exit replaces os.Exit for process.exit.
	Stdout io.Writer
	Stderr io.Writer
	Exit   func(code int)
}

// Runtime is one independent runtime instance. Apart from the class
// registry and the scheduler's hand-off methods it must be used from a
// single goroutine.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	heap   *heap.Heap
	sched  *runtime.Scheduler
	loader *modules.Loader
	bridge *bridge.Bridge
	conv   *converter

	natives map[string]*NativeModule
}

// New builds a runtime from opts.
func New(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil && opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := heap.New(cfg.Heap)
	h.SetLogger(logger)
	sched := runtime.NewScheduler(h, cfg.Scheduler, runtime.WithLogger(logger))

	resolvers := opts.Resolvers
	if len(resolvers) == 0 {
		baseDir := cfg.Modules.BaseDir
		if baseDir == "" {
			baseDir = "."
		}
		resolvers = modules.DefaultResolvers(baseDir, cfg.Bridge.Extensions)
	}
	loader := modules.NewLoader(cfg.Modules, resolvers...)
	loader.SetLogger(logger)

	b, err := bridge.New(h, sched, loader, cfg.Bridge)
	if err != nil {
		return nil, err
	}
	b.SetLogger(logger)

	r := &Runtime{
		cfg:     cfg,
		logger:  logger,
		heap:    h,
		sched:   sched,
		loader:  loader,
		bridge:  b,
		conv:    &converter{heap: h, sched: sched, logger: logger, materialize: b.Materialize},
		natives: make(map[string]*NativeModule),
	}
	r.declareBuiltins(opts)
	return r, nil
}

func (r *Runtime) Heap() *heap.Heap              { return r.heap }
func (r *Runtime) Scheduler() *runtime.Scheduler { return r.sched }
func (r *Runtime) Bridge() *bridge.Bridge        { return r.bridge }
func (r *Runtime) Loader() *modules.Loader       { return r.loader }
func (r *Runtime) Classes() *heap.ClassRegistry  { return r.heap.Classes() }
func (r *Runtime) Config() *config.Config        { return r.cfg }
func (r *Runtime) Logger() *slog.Logger          { return r.logger }

// RunMicrotasks drains the scheduler once and returns the work done.
func (r *Runtime) RunMicrotasks() int { return r.sched.Drain() }

// Run drives the scheduler until no work is left or ctx ends.
func (r *Runtime) Run(ctx context.Context) error { return r.sched.Run(ctx) }

// RunString evaluates a script and drains the microtasks it queued.
func (r *Runtime) RunString(src string) (value.Value, error) {
	return r.RunSource(source.NewEvalSource(src))
}

// RunSource is RunString for a named script.
func (r *Runtime) RunSource(src *source.SourceFile) (value.Value, error) {
	v, err := r.bridge.EvalSource(src)
	r.RunMicrotasks()
	return v, err
}

// RunModule loads a module file and returns its exports. Bare file names
// are treated as relative to the module base directory.
func (r *Runtime) RunModule(path string) (value.Value, error) {
	spec := path
	if !filepath.IsAbs(spec) && !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		spec = "./" + filepath.ToSlash(spec)
	}
	v, err := r.bridge.LoadModule(spec, "")
	r.RunMicrotasks()
	return v, err
}

// Await drives the scheduler until p settles or ctx ends. Non-promises are
// returned as they are.
func (r *Runtime) Await(ctx context.Context, p value.Value) (value.Value, error) {
	if !r.sched.IsPromise(p) {
		return p, nil
	}
	for r.sched.State(p) == 0 {
		if err := ctx.Err(); err != nil {
			return value.Undefined, err
		}
		if r.sched.Drain() > 0 {
			continue
		}
		if !r.sched.HasPendingTimers() && !r.sched.HasPendingExternalOps() {
			break
		}
		if err := r.sched.Wait(ctx); err != nil {
			return value.Undefined, err
		}
	}
	switch r.sched.State(p) {
	case 1:
		return r.sched.PromiseValue(p), nil
	case 2:
		reason := r.sched.PromiseReason(p)
		return value.Undefined, &errors.BridgeError{Op: "await", Msg: "promise rejected: " + r.bridge.ToString(reason)}
	}
	return value.Undefined, &errors.BridgeError{Op: "await", Msg: "promise never settles"}
}

// DisplayResult prints a value the way the REPL shows it, or the error.
// It reports whether there was no error.
func (r *Runtime) DisplayResult(w io.Writer, v value.Value, err error) bool {
	if err != nil {
		errors.DisplayErrors(w, []error{err})
		return false
	}
	if v.IsString() {
		fmt.Fprintf(w, "%q\n", r.heap.ToDisplayString(v))
		return true
	}
	fmt.Fprintln(w, r.heap.ToDisplayString(v))
	return true
}

// Close releases the engine and drops pending work.
func (r *Runtime) Close() {
	r.sched.Reset()
	r.bridge.Close()
}
