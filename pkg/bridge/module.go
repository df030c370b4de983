package bridge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/dop251/goja"

	"nativert/pkg/errors"
	"nativert/pkg/modules"
	"nativert/pkg/source"
	"nativert/pkg/value"
)

const moduleWrapperPrefix = "(function (exports, require, module, __filename, __dirname) {"

// LoadModule evaluates a CommonJS module, or returns a registered native
// module, and hands back its exports. Exports are cached by resolved path so
// loading the same module twice yields the same handle.
func (b *Bridge) LoadModule(specifier, fromPath string) (value.Value, error) {
	if nv, ok := b.natives[specifier]; ok {
		return nv, nil
	}
	exp, path, err := b.require(specifier, fromPath)
	if err != nil {
		return value.Undefined, err
	}

	rec := b.loader.Cached(path)
	if rec == nil {
		return b.ToNative(exp), nil
	}
	if rec.Exports.IsHandle() {
		if _, ok := b.Lookup(rec.Exports.AsHandle()); ok {
			return rec.Exports, nil
		}
	}
	rec.Exports = b.ToNative(exp)
	return rec.Exports, nil
}

// require resolves and evaluates a module, returning its exports object and
// resolved path. A module that is still running its body (a require cycle)
// yields its partial exports.
func (b *Bridge) require(specifier, fromPath string) (goja.Value, string, error) {
	if b.loader == nil {
		return nil, "", &errors.ModuleError{Specifier: specifier, Msg: "no module loader configured"}
	}
	resolved, err := b.loader.Resolve(specifier, fromPath)
	if err != nil {
		return nil, "", err
	}
	defer resolved.Source.Close()
	path := resolved.ResolvedPath

	if fromPath != "" {
		b.loader.Registry().AddDependency(fromPath, path)
	}
	if exp, ok := b.exports[path]; ok {
		return exp, path, nil
	}
	if m, ok := b.loading[path]; ok {
		return m.Get("exports"), path, nil
	}

	content, err := b.readModule(path, resolved.Source)
	if err != nil {
		return nil, "", (&errors.ModuleError{Specifier: specifier, Msg: "read failed"}).CausedBy(err)
	}
	b.prefetch(path, string(content))

	rec := &modules.ModuleRecord{
		Specifier:    specifier,
		ResolvedPath: path,
		State:        modules.ModuleEvaluating,
		Source:       string(content),
		LoadTime:     time.Now(),
	}
	if debugBridge {
		fmt.Printf("[bridge] evaluating %s via %s\n", path, resolved.Resolver)
	}
	// registered before the body runs so its requires are recorded
	b.loader.Registry().Set(path, rec)

	exp, err := b.evaluate(path, string(content))
	rec.CompleteTime = time.Now()
	if err != nil {
		rec.State = modules.ModuleError
		rec.Error = err
		b.loader.Registry().Set(path, rec)
		return nil, "", (&errors.ModuleError{Specifier: specifier, Msg: "evaluation failed"}).CausedBy(err)
	}
	rec.State = modules.ModuleEvaluated
	b.exports[path] = exp
	b.loader.Registry().Set(path, rec)
	return exp, path, nil
}

func (b *Bridge) readModule(path string, r io.Reader) ([]byte, error) {
	if content, ok := b.prefetched[path]; ok {
		delete(b.prefetched, path)
		return []byte(content), nil
	}
	return io.ReadAll(r)
}

var staticRequire = regexp2.MustCompile(`\brequire\(\s*(['"])(\.{1,2}/[^'"]+)\1\s*\)`, regexp2.None)

// staticRequires lists the relative specifiers a module requires with a
// string literal, in order of first appearance.
func staticRequires(content string) []string {
	var specs []string
	seen := make(map[string]bool)
	m, _ := staticRequire.FindStringMatch(content)
	for m != nil {
		if spec := m.GroupByNumber(2).String(); !seen[spec] {
			seen[spec] = true
			specs = append(specs, spec)
		}
		m, _ = staticRequire.FindNextMatch(m)
	}
	return specs
}

// prefetch reads the static relative requires of a module concurrently so
// evaluating them does not wait on the resolvers one file at a time. A
// failure only costs the head start: require reports it when it runs.
func (b *Bridge) prefetch(path, content string) {
	if b.cfg.Prefetch <= 0 || strings.HasSuffix(path, ".json") {
		return
	}
	var pending []string
	paths := make(map[string]bool)
	for _, spec := range staticRequires(content) {
		resolved, err := b.loader.Resolve(spec, path)
		if err != nil {
			continue
		}
		resolved.Source.Close()
		p := resolved.ResolvedPath
		if _, done := b.exports[p]; done || paths[p] {
			continue
		}
		if _, read := b.prefetched[p]; read {
			continue
		}
		paths[p] = true
		pending = append(pending, spec)
	}
	if len(pending) < 2 {
		return
	}
	srcs, err := b.loader.Prefetch(context.Background(), pending, path, b.cfg.Prefetch)
	if err != nil {
		b.logger.Debug("prefetch skipped", "module", path, "error", err)
		return
	}
	for _, src := range srcs {
		b.prefetched[src.Path] = src.Content
	}
}

func (b *Bridge) evaluate(path, content string) (goja.Value, error) {
	if strings.HasSuffix(path, ".json") {
		var out goja.Value
		err := b.try("load", func() error {
			parse, _ := goja.AssertFunction(b.vm.Get("JSON").ToObject(b.vm).Get("parse"))
			v, err := parse(goja.Undefined(), b.vm.ToValue(content))
			out = v
			return err
		})
		return out, err
	}

	module := b.vm.NewObject()
	exports := b.vm.NewObject()
	module.Set("exports", exports)
	module.Set("id", path)
	b.loading[path] = module
	defer delete(b.loading, path)

	sf := source.FromFile(path, content)
	sf.Offset = len(moduleWrapperPrefix)
	b.sources[path] = sf

	wrapped := moduleWrapperPrefix + content + "\n})"
	err := b.try("load", func() error {
		fnVal, err := b.vm.RunScript(path, wrapped)
		if err != nil {
			return err
		}
		fn, ok := goja.AssertFunction(fnVal)
		if !ok {
			return fmt.Errorf("module wrapper for %s is not callable", path)
		}
		_, err = fn(goja.Undefined(), exports, b.requireFunc(path), module,
			b.vm.ToValue(path), b.vm.ToValue(filepath.Dir(path)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return module.Get("exports"), nil
}

// requireFunc builds the require function handed to a module body. Failures
// are thrown into the engine so scripts can catch them.
func (b *Bridge) requireFunc(from string) goja.Value {
	return b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		if nv, ok := b.natives[spec]; ok {
			return b.ToJS(nv)
		}
		exp, _, err := b.require(spec, from)
		if err != nil {
			panic(b.vm.NewGoError(err))
		}
		return exp
	})
}

// ShouldUseRuntime reports whether a module path needs the embedded engine
// rather than native compilation: plain JavaScript sources, and packages
// under node_modules that ship no TypeScript entry point.
func ShouldUseRuntime(path string) bool {
	switch filepath.Ext(path) {
	case ".js", ".mjs", ".cjs":
		return true
	}
	if !strings.Contains(filepath.ToSlash(path), "node_modules/") {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	for _, entry := range []string{"index.ts", "index.tsx", filepath.Join("src", "index.ts")} {
		if _, err := os.Stat(filepath.Join(path, entry)); err == nil {
			return false
		}
	}
	return true
}
