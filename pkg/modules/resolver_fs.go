package modules

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const debugModules = false

var (
	defaultExtensions = []string{".js", ".mjs", ".cjs", ".json"}
	defaultIndexFiles = []string{"index.js", "index.mjs", "index.cjs"}
)

// probe finds the file a target path refers to: the exact file, the path
// plus one of the extensions, or an index file inside the directory.
type probe struct {
	fs         ModuleFS
	extensions []string
	indexFiles []string
}

func newProbe(filesystem ModuleFS) probe {
	return probe{
		fs:         filesystem,
		extensions: append([]string(nil), defaultExtensions...),
		indexFiles: append([]string(nil), defaultIndexFiles...),
	}
}

func (p *probe) tryResolve(targetPath string) (string, error) {
	targetPath = filepath.Clean(targetPath)

	if p.isFile(targetPath) {
		return targetPath, nil
	}
	for _, ext := range p.extensions {
		if candidate := targetPath + ext; p.isFile(candidate) {
			return candidate, nil
		}
	}
	for _, indexFile := range p.indexFiles {
		if candidate := filepath.Join(targetPath, indexFile); p.isFile(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("module not found: %s", targetPath)
}

// isFile checks if a path exists and is a file (not a directory)
func (p *probe) isFile(path string) bool {
	info, err := fs.Stat(p.fs, path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func (p *probe) isDir(path string) bool {
	info, err := fs.Stat(p.fs, path)
	return err == nil && info.IsDir()
}

// FileSystemResolver resolves relative and absolute specifiers from a file
// system
type FileSystemResolver struct {
	probe
	name     string // Human-readable name
	priority int    // Resolution priority
	baseDir  string // Base directory for resolution
}

// NewFileSystemResolver creates a new file system resolver
func NewFileSystemResolver(filesystem fs.FS, baseDir string) *FileSystemResolver {
	return &FileSystemResolver{
		probe:    newProbe(wrapFS(filesystem)),
		name:     "FileSystem",
		priority: 100, // Lower priority than specialized resolvers
		baseDir:  baseDir,
	}
}

// NewOSFileSystemResolver creates a resolver that uses the OS file system
func NewOSFileSystemResolver(baseDir string) *FileSystemResolver {
	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		absBaseDir = baseDir
	}

	return &FileSystemResolver{
		probe:    newProbe(&osFS{baseDir: absBaseDir}),
		name:     "OSFileSystem",
		priority: 100,
		baseDir:  absBaseDir,
	}
}

func (r *FileSystemResolver) Name() string { return r.name }

func (r *FileSystemResolver) Priority() int { return r.priority }

func isRelative(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}

func isPathSpecifier(specifier string) bool {
	return isRelative(specifier) || strings.HasPrefix(specifier, "/") || filepath.IsAbs(specifier)
}

// CanResolve returns true for relative and absolute paths
func (r *FileSystemResolver) CanResolve(specifier string) bool {
	return isPathSpecifier(specifier)
}

// Resolve resolves a module specifier to a concrete module
func (r *FileSystemResolver) Resolve(specifier string, fromPath string) (*ResolvedModule, error) {
	targetPath, err := r.calculateTargetPath(specifier, fromPath)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate target path: %w", err)
	}

	resolvedPath, err := r.tryResolve(targetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", specifier, err)
	}

	source, err := r.fs.Open(resolvedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", resolvedPath, err)
	}
	if debugModules {
		fmt.Printf("[modules] %s: %s -> %s\n", r.name, specifier, resolvedPath)
	}

	return &ResolvedModule{
		Specifier:    specifier,
		ResolvedPath: resolvedPath,
		Source:       source,
		FS:           r.fs,
		Resolver:     r.name,
	}, nil
}

// calculateTargetPath calculates the target path from specifier and fromPath
func (r *FileSystemResolver) calculateTargetPath(specifier string, fromPath string) (string, error) {
	if isRelative(specifier) {
		if fromPath == "" {
			// Without an importer "./x" is relative to the base directory
			if strings.HasPrefix(specifier, "./") {
				return strings.TrimPrefix(specifier, "./"), nil
			}
			return "", fmt.Errorf("relative import %s requires fromPath", specifier)
		}
		return filepath.Join(filepath.Dir(fromPath), specifier), nil
	}

	if strings.HasPrefix(specifier, "/") || filepath.IsAbs(specifier) {
		// Absolute specifiers are rooted at the base directory
		if r.baseDir != "" {
			if rel, err := filepath.Rel(r.baseDir, specifier); err == nil && !strings.HasPrefix(rel, "..") {
				return rel, nil
			}
			return strings.TrimPrefix(specifier, "/"), nil
		}
		return specifier, nil
	}

	return "", fmt.Errorf("unsupported specifier format: %s", specifier)
}

// SetExtensions sets the file extensions to try during resolution
func (r *FileSystemResolver) SetExtensions(extensions []string) {
	r.extensions = append([]string(nil), extensions...)
}

// SetIndexFiles sets the index file names to try during resolution
func (r *FileSystemResolver) SetIndexFiles(indexFiles []string) {
	r.indexFiles = append([]string(nil), indexFiles...)
}

// SetPriority sets the resolver priority
func (r *FileSystemResolver) SetPriority(priority int) {
	r.priority = priority
}

func wrapFS(filesystem fs.FS) ModuleFS {
	if mfs, ok := filesystem.(ModuleFS); ok {
		return mfs
	}
	return &fsWrapper{filesystem}
}

// fsWrapper wraps a generic fs.FS to implement ModuleFS
type fsWrapper struct {
	fs.FS
}

func (w *fsWrapper) ReadFile(name string) ([]byte, error) {
	file, err := w.FS.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// osFS implements ModuleFS using the OS file system
type osFS struct {
	baseDir string
}

func (osfs *osFS) Open(name string) (fs.File, error) {
	return os.Open(filepath.Join(osfs.baseDir, name))
}

func (osfs *osFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(osfs.baseDir, name))
}

func (osfs *osFS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(filepath.Join(osfs.baseDir, name))
}

func (osfs *osFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(filepath.Join(osfs.baseDir, name))
}
