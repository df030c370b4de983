package modules

import (
	"io/fs"
)

// ModuleFS extends Go's standard io/fs interfaces for module loading
type ModuleFS interface {
	fs.FS
	fs.ReadFileFS // Required for reading module content
}

// ModuleResolver resolves module specifiers to concrete modules
type ModuleResolver interface {
	// Name returns a human-readable name for this resolver
	Name() string

	// CanResolve returns true if this resolver can handle the given specifier
	CanResolve(specifier string) bool

	// Resolve attempts to resolve a module specifier to a concrete module
	// fromPath is the path of the module that is importing (for relative resolution)
	Resolve(specifier string, fromPath string) (*ResolvedModule, error)

	// Priority returns the priority of this resolver (lower = higher priority)
	Priority() int
}

// ModuleRegistry caches evaluated modules by resolved path
type ModuleRegistry interface {
	Get(key string) *ModuleRecord
	Set(key string, record *ModuleRecord)
	Remove(key string)
	Clear()
	List() []string
	Size() int
	Stats() RegistryStats

	// AddDependency records that from required to
	AddDependency(from, to string)

	// Dependents returns the cached modules that required key
	Dependents(key string) []string
}
