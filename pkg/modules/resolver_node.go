package modules

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// NodeModulesResolver resolves bare specifiers ("lodash", "@scope/pkg/sub")
// by walking up from the importer through node_modules directories.
type NodeModulesResolver struct {
	probe
	name     string
	priority int
}

func NewNodeModulesResolver(filesystem fs.FS) *NodeModulesResolver {
	return &NodeModulesResolver{
		probe:    newProbe(wrapFS(filesystem)),
		name:     "NodeModules",
		priority: 150,
	}
}

// NewOSNodeModulesResolver searches node_modules below baseDir on disk.
func NewOSNodeModulesResolver(baseDir string) *NodeModulesResolver {
	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		absBaseDir = baseDir
	}
	return &NodeModulesResolver{
		probe:    newProbe(&osFS{baseDir: absBaseDir}),
		name:     "OSNodeModules",
		priority: 150,
	}
}

func (r *NodeModulesResolver) Name() string  { return r.name }
func (r *NodeModulesResolver) Priority() int { return r.priority }

func (r *NodeModulesResolver) SetPriority(priority int) { r.priority = priority }

func (r *NodeModulesResolver) SetExtensions(extensions []string) {
	r.extensions = append([]string(nil), extensions...)
}

func (r *NodeModulesResolver) CanResolve(specifier string) bool {
	return specifier != "" && !isPathSpecifier(specifier)
}

// splitPackage separates the package name from the subpath.
func splitPackage(specifier string) (pkg, sub string) {
	parts := strings.Split(specifier, "/")
	n := 1
	if strings.HasPrefix(specifier, "@") && len(parts) > 1 {
		n = 2
	}
	return strings.Join(parts[:n], "/"), strings.Join(parts[n:], "/")
}

func (r *NodeModulesResolver) Resolve(specifier string, fromPath string) (*ResolvedModule, error) {
	if !r.CanResolve(specifier) {
		return nil, fmt.Errorf("not a package specifier: %s", specifier)
	}
	pkg, sub := splitPackage(specifier)

	dir := "."
	if fromPath != "" {
		dir = filepath.Dir(filepath.Clean(fromPath))
	}
	for {
		if filepath.Base(dir) != "node_modules" {
			pkgDir := filepath.Join(dir, "node_modules", pkg)
			if r.isDir(pkgDir) {
				resolvedPath, err := r.resolvePackage(pkgDir, sub)
				if err != nil {
					return nil, fmt.Errorf("failed to resolve %s: %w", specifier, err)
				}
				source, err := r.fs.Open(resolvedPath)
				if err != nil {
					return nil, fmt.Errorf("failed to open file %s: %w", resolvedPath, err)
				}
				return &ResolvedModule{
					Specifier:    specifier,
					ResolvedPath: resolvedPath,
					Source:       source,
					FS:           r.fs,
					Resolver:     r.name,
				}, nil
			}
		}
		if dir == "." || dir == "/" || dir == filepath.Dir(dir) {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil, fmt.Errorf("package not found: %s", pkg)
}

// resolvePackage picks the entry file of a package directory: the subpath
// when given, else package.json "main", else an index file.
func (r *NodeModulesResolver) resolvePackage(pkgDir, sub string) (string, error) {
	if sub != "" {
		return r.tryResolve(filepath.Join(pkgDir, sub))
	}
	if data, err := r.fs.ReadFile(filepath.Join(pkgDir, "package.json")); err == nil {
		var manifest struct {
			Main string `json:"main"`
		}
		if err := json.Unmarshal(data, &manifest); err != nil {
			return "", fmt.Errorf("invalid package.json in %s: %w", pkgDir, err)
		}
		if manifest.Main != "" {
			return r.tryResolve(filepath.Join(pkgDir, manifest.Main))
		}
	}
	return r.tryResolve(pkgDir)
}
