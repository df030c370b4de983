package modules

import (
	"sort"
	"sync"
	"time"

	"nativert/pkg/config"
)

// registry implements the ModuleRegistry interface
type registry struct {
	modules map[string]*ModuleRecord // Map of resolved path -> module record
	mutex   sync.Mutex               // Protects concurrent access
	stats   RegistryStats            // Performance statistics
	config  config.ModulesConfig
	now     func() time.Time
}

// NewRegistry creates a new module registry bounded by cfg.CacheSize and
// cfg.CacheTTL (zero means unbounded).
func NewRegistry(cfg config.ModulesConfig) ModuleRegistry {
	return &registry{
		modules: make(map[string]*ModuleRecord),
		config:  cfg,
		now:     time.Now,
	}
}

// Get retrieves a module record. Expired records are dropped and count as a
// miss.
func (r *registry) Get(key string) *ModuleRecord {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	record := r.modules[key]
	if record == nil {
		r.stats.CacheMisses++
		return nil
	}
	if r.expired(record) {
		r.removeLocked(key)
		r.stats.Evictions++
		r.stats.CacheMisses++
		return nil
	}
	r.stats.CacheHits++
	return record
}

func (r *registry) expired(record *ModuleRecord) bool {
	return r.config.CacheTTL > 0 && r.now().Sub(record.LoadTime) > r.config.CacheTTL
}

// Set stores a module record
func (r *registry) Set(key string, record *ModuleRecord) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if old := r.modules[key]; old != nil {
		r.removeLocked(key)
	} else if r.config.CacheSize > 0 && len(r.modules) >= r.config.CacheSize {
		r.evictOldest()
	}
	if record.LoadTime.IsZero() {
		record.LoadTime = r.now()
	}

	r.stats.TotalModules++
	switch record.State {
	case ModuleEvaluated:
		r.stats.LoadedModules++
	case ModuleError:
		r.stats.FailedModules++
	}
	r.modules[key] = record
}

// Remove removes a module from the cache
func (r *registry) Remove(key string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.removeLocked(key)
}

func (r *registry) removeLocked(key string) {
	record := r.modules[key]
	if record == nil {
		return
	}
	delete(r.modules, key)
	r.stats.TotalModules--
	switch record.State {
	case ModuleEvaluated:
		r.stats.LoadedModules--
	case ModuleError:
		r.stats.FailedModules--
	}
}

// Clear clears all cached modules
func (r *registry) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.modules = make(map[string]*ModuleRecord)
	r.stats = RegistryStats{}
}

// List returns all cached keys, sorted
func (r *registry) List() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	keys := make([]string, 0, len(r.modules))
	for key := range r.modules {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Size returns the number of cached modules
func (r *registry) Size() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.modules)
}

// Stats returns current registry statistics
func (r *registry) Stats() RegistryStats {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Calculate approximate memory usage
	memoryUsage := int64(len(r.modules) * 256) // Rough estimate per record
	for _, record := range r.modules {
		memoryUsage += int64(len(record.Source))
	}

	stats := r.stats
	stats.MemoryUsage = memoryUsage
	return stats
}

func (r *registry) AddDependency(from, to string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	record := r.modules[from]
	if record == nil {
		return
	}
	for _, dep := range record.Dependencies {
		if dep == to {
			return
		}
	}
	record.Dependencies = append(record.Dependencies, to)
}

// Dependents returns all modules that depend on the given module
func (r *registry) Dependents(key string) []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var dependents []string
	for k, record := range r.modules {
		for _, dep := range record.Dependencies {
			if dep == key {
				dependents = append(dependents, k)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// evictOldest removes the oldest module from the cache (called with lock held)
func (r *registry) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	first := true
	for key, record := range r.modules {
		if first || record.LoadTime.Before(oldestTime) {
			oldestKey = key
			oldestTime = record.LoadTime
			first = false
		}
	}

	if !first {
		r.removeLocked(oldestKey)
		r.stats.Evictions++
	}
}
