package modules

import (
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"nativert/pkg/errors"
)

// MemoryResolver serves module sources held in memory. Lookups go through
// the same probe as the file system resolver, so "./lib" finds lib.js or
// lib/index.js alike. Safe for concurrent use.
type MemoryResolver struct {
	name     string
	priority int

	mu      sync.RWMutex
	modules map[string]*MemoryModule
	probe   probe
}

type MemoryModule struct {
	Path     string
	Content  string
	Created  time.Time
	Modified time.Time
}

func NewMemoryResolver(name string) *MemoryResolver {
	if name == "" {
		name = "Memory"
	}
	r := &MemoryResolver{
		name:     name,
		priority: 50, // ahead of the file system chain
		modules:  make(map[string]*MemoryModule),
	}
	r.probe = newProbe(&memoryFS{resolver: r})
	return r
}

func (r *MemoryResolver) Name() string { return r.name }

func (r *MemoryResolver) Priority() int { return r.priority }

func (r *MemoryResolver) SetPriority(priority int) { r.priority = priority }

// CanResolve accepts relative specifiers, whose target depends on the
// importer, and any other specifier naming a stored module.
func (r *MemoryResolver) CanResolve(specifier string) bool {
	if isRelative(specifier) {
		return true
	}
	_, err := r.locate(specifier, "")
	return err == nil
}

func (r *MemoryResolver) Resolve(specifier string, fromPath string) (*ResolvedModule, error) {
	path, err := r.locate(specifier, fromPath)
	if err != nil {
		return nil, err
	}
	content, ok := r.content(path)
	if !ok {
		// removed between the probe and the read
		return nil, &errors.ModuleError{Specifier: specifier, Msg: "module not found in " + r.name}
	}
	return &ResolvedModule{
		Specifier:    specifier,
		ResolvedPath: path,
		Source:       io.NopCloser(strings.NewReader(content)),
		FS:           &memoryFS{resolver: r},
		Resolver:     r.name,
	}, nil
}

// locate maps a specifier onto a stored path. Without an importer "./x"
// names a top-level module.
func (r *MemoryResolver) locate(specifier, fromPath string) (string, error) {
	target := specifier
	if isRelative(specifier) {
		switch {
		case fromPath != "":
			target = filepath.Join(filepath.Dir(fromPath), specifier)
		case strings.HasPrefix(specifier, "./"):
			target = strings.TrimPrefix(specifier, "./")
		default:
			return "", &errors.ModuleError{Specifier: specifier, Msg: "relative import needs an importer"}
		}
	}
	path, err := r.probe.tryResolve(target)
	if err != nil {
		return "", (&errors.ModuleError{Specifier: specifier, Msg: "module not found in " + r.name}).CausedBy(err)
	}
	return path, nil
}

func (r *MemoryResolver) content(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[path]
	if !ok {
		return "", false
	}
	return m.Content, true
}

// AddModule stores content under path, replacing any earlier module there.
func (r *MemoryResolver) AddModule(path string, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path = filepath.Clean(path)
	now := time.Now()
	r.modules[path] = &MemoryModule{Path: path, Content: content, Created: now, Modified: now}
}

// UpdateModule replaces the content of a stored module.
func (r *MemoryResolver) UpdateModule(path string, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[filepath.Clean(path)]
	if !ok {
		return &errors.ModuleError{Specifier: path, Msg: "no such module in " + r.name}
	}
	m.Content = content
	m.Modified = time.Now()
	return nil
}

func (r *MemoryResolver) RemoveModule(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, filepath.Clean(path))
}

// ListModules returns the stored paths in sorted order.
func (r *MemoryResolver) ListModules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.modules))
	for path := range r.modules {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (r *MemoryResolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = make(map[string]*MemoryModule)
}

// memoryFS is the ModuleFS view of a MemoryResolver's store.
type memoryFS struct {
	resolver *MemoryResolver
}

func (mfs *memoryFS) lookup(op, name string) (*MemoryModule, error) {
	mfs.resolver.mu.RLock()
	defer mfs.resolver.mu.RUnlock()
	m, ok := mfs.resolver.modules[name]
	if !ok {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return m, nil
}

func (mfs *memoryFS) Open(name string) (fs.File, error) {
	m, err := mfs.lookup("open", name)
	if err != nil {
		return nil, err
	}
	return &memoryFile{module: m, reader: strings.NewReader(m.Content)}, nil
}

func (mfs *memoryFS) ReadFile(name string) ([]byte, error) {
	m, err := mfs.lookup("read", name)
	if err != nil {
		return nil, err
	}
	return []byte(m.Content), nil
}

type memoryFile struct {
	module *MemoryModule
	reader io.Reader
	closed bool
}

func (f *memoryFile) Stat() (fs.FileInfo, error) {
	return memoryFileInfo{f.module}, nil
}

func (f *memoryFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	return f.reader.Read(p)
}

func (f *memoryFile) Close() error {
	f.closed = true
	return nil
}

type memoryFileInfo struct{ m *MemoryModule }

func (i memoryFileInfo) Name() string       { return filepath.Base(i.m.Path) }
func (i memoryFileInfo) Size() int64        { return int64(len(i.m.Content)) }
func (i memoryFileInfo) Mode() fs.FileMode  { return 0644 }
func (i memoryFileInfo) ModTime() time.Time { return i.m.Modified }
func (i memoryFileInfo) IsDir() bool        { return false }
func (i memoryFileInfo) Sys() interface{}   { return nil }
