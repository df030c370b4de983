package modules

import (
	"io"
	"time"

	"nativert/pkg/value"
)

// ModuleState represents the current state of a module during loading
type ModuleState int

const (
	ModuleUnknown    ModuleState = iota // Initial state
	ModuleResolved                      // Specifier resolved to path
	ModuleLoading                       // Source being read
	ModuleEvaluating                    // Module body running in the engine
	ModuleEvaluated                     // Exports available
	ModuleError                         // Error occurred
)

func (s ModuleState) String() string {
	switch s {
	case ModuleUnknown:
		return "unknown"
	case ModuleResolved:
		return "resolved"
	case ModuleLoading:
		return "loading"
	case ModuleEvaluating:
		return "evaluating"
	case ModuleEvaluated:
		return "evaluated"
	case ModuleError:
		return "error"
	default:
		return "invalid"
	}
}

// ModuleRecord represents a module in the registry with all its metadata
type ModuleRecord struct {
	Specifier    string      // Original require specifier
	ResolvedPath string      // Resolved path (registry key)
	State        ModuleState // Current loading state
	Source       string      // Module source text

	// Exports is the value handed back to native code, normally a foreign
	// handle to the module's exports object.
	Exports value.Value

	Dependencies []string // Resolved paths this module required
	Error        error    // Loading or evaluation error

	LoadTime     time.Time // When loading started
	CompleteTime time.Time // When evaluation finished
}

// ResolvedModule represents a module that has been resolved by a resolver
type ResolvedModule struct {
	Specifier    string        // Original specifier
	ResolvedPath string        // Resolved path (canonical)
	Source       io.ReadCloser // Source content (must be closed by caller)
	FS           ModuleFS      // File system context
	Resolver     string        // Name of resolver that resolved this
}

// Source is a resolved module with its content read.
type Source struct {
	Specifier string
	Path      string
	Content   string
	Resolver  string
}

// RegistryStats contains statistics about the module registry
type RegistryStats struct {
	TotalModules  int   // Total modules in registry
	LoadedModules int   // Modules successfully evaluated
	FailedModules int   // Modules that failed to load
	CacheHits     int   // Number of cache hits
	CacheMisses   int   // Number of cache misses
	Evictions     int   // Records dropped for size or age
	MemoryUsage   int64 // Approximate memory usage in bytes
}
