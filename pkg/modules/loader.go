// Package modules resolves JavaScript module specifiers to source files and
// caches the evaluated result.
package modules

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"nativert/pkg/config"
	"nativert/pkg/errors"
)

// Loader runs an ordered chain of resolvers and owns the module registry.
// Evaluation belongs to the engine binding; the loader only finds and reads
// sources.
type Loader struct {
	mu        sync.RWMutex
	resolvers []ModuleResolver
	registry  ModuleRegistry
	logger    *slog.Logger
}

// NewLoader creates a loader with the given resolvers, tried in priority
// order.
func NewLoader(cfg config.ModulesConfig, resolvers ...ModuleResolver) *Loader {
	l := &Loader{
		registry: NewRegistry(cfg),
		logger:   slog.Default(),
	}
	for _, r := range resolvers {
		l.AddResolver(r)
	}
	return l
}

// DefaultResolvers returns the on-disk chain rooted at baseDir: relative and
// absolute paths first, then node_modules packages.
func DefaultResolvers(baseDir string, extensions []string) []ModuleResolver {
	fsr := NewOSFileSystemResolver(baseDir)
	nmr := NewOSNodeModulesResolver(baseDir)
	if len(extensions) > 0 {
		exts := withJSON(extensions)
		fsr.SetExtensions(exts)
		nmr.SetExtensions(exts)
	}
	return []ModuleResolver{fsr, nmr}
}

func withJSON(extensions []string) []string {
	for _, ext := range extensions {
		if ext == ".json" {
			return extensions
		}
	}
	return append(append([]string(nil), extensions...), ".json")
}

func (l *Loader) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// AddResolver adds a module resolver to the chain
func (l *Loader) AddResolver(resolver ModuleResolver) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resolvers = append(l.resolvers, resolver)
	sort.SliceStable(l.resolvers, func(i, j int) bool {
		return l.resolvers[i].Priority() < l.resolvers[j].Priority()
	})
}

func (l *Loader) Resolvers() []ModuleResolver {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]ModuleResolver(nil), l.resolvers...)
}

func (l *Loader) Registry() ModuleRegistry { return l.registry }

// Resolve asks each resolver that accepts the specifier in turn. The first
// success wins; when all fail the last resolver error is the cause.
func (l *Loader) Resolve(specifier, fromPath string) (*ResolvedModule, error) {
	var lastErr error
	tried := 0
	for _, r := range l.Resolvers() {
		if !r.CanResolve(specifier) {
			continue
		}
		tried++
		resolved, err := r.Resolve(specifier, fromPath)
		if err == nil {
			return resolved, nil
		}
		if debugModules {
			fmt.Printf("[modules] %s rejected %q: %v\n", r.Name(), specifier, err)
		}
		lastErr = err
	}
	if tried == 0 {
		return nil, &errors.ModuleError{Specifier: specifier, Msg: "no resolver accepts this specifier"}
	}
	return nil, (&errors.ModuleError{Specifier: specifier, Msg: "cannot find module"}).CausedBy(lastErr)
}

// ReadSource resolves a specifier and reads the whole module text.
func (l *Loader) ReadSource(specifier, fromPath string) (*Source, error) {
	resolved, err := l.Resolve(specifier, fromPath)
	if err != nil {
		return nil, err
	}
	defer resolved.Source.Close()

	var sb strings.Builder
	if _, err := io.Copy(&sb, resolved.Source); err != nil {
		return nil, (&errors.ModuleError{Specifier: specifier, Msg: "read failed"}).CausedBy(err)
	}
	return &Source{
		Specifier: specifier,
		Path:      resolved.ResolvedPath,
		Content:   sb.String(),
		Resolver:  resolved.Resolver,
	}, nil
}

// Cached returns the registry record for a resolved path, if any.
func (l *Loader) Cached(resolvedPath string) *ModuleRecord {
	return l.registry.Get(resolvedPath)
}

func (l *Loader) ClearCache() {
	l.registry.Clear()
	l.logger.Debug("module cache cleared")
}
