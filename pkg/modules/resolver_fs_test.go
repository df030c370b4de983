package modules

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func readAll(t *testing.T, resolved *ResolvedModule) string {
	t.Helper()
	defer resolved.Source.Close()
	data, err := io.ReadAll(resolved.Source)
	if err != nil {
		t.Fatalf("Failed to read source: %v", err)
	}
	return string(data)
}

func TestFileSystemResolverBasic(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{}, "")

	if resolver.Name() != "FileSystem" {
		t.Errorf("Expected name 'FileSystem', got '%s'", resolver.Name())
	}
	if resolver.Priority() != 100 {
		t.Errorf("Expected priority 100, got %d", resolver.Priority())
	}
}

func TestFileSystemResolverCanResolve(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{}, "")

	tests := []struct {
		specifier  string
		canResolve bool
	}{
		{"./relative.js", true},
		{"../parent.js", true},
		{"/absolute.js", true},
		{"bare-module", false},
		{"@scoped/module", false},
	}

	for _, test := range tests {
		if got := resolver.CanResolve(test.specifier); got != test.canResolve {
			t.Errorf("CanResolve('%s') = %v, expected %v", test.specifier, got, test.canResolve)
		}
	}
}

func TestFileSystemResolverStrategies(t *testing.T) {
	testFS := fstest.MapFS{
		"exact.js":            {Data: []byte("exact")},
		"noext.mjs":           {Data: []byte("noext")},
		"lib/index.js":        {Data: []byte("index")},
		"lib/util/helpers.js": {Data: []byte("helpers")},
		"data.json":           {Data: []byte(`{"a":1}`)},
	}
	resolver := NewFileSystemResolver(testFS, "")

	tests := []struct {
		specifier string
		fromPath  string
		path      string
		content   string
	}{
		{"./exact.js", "", "exact.js", "exact"},
		{"./noext", "", "noext.mjs", "noext"},
		{"./lib", "", "lib/index.js", "index"},
		{"./util/helpers", "lib/index.js", "lib/util/helpers.js", "helpers"},
		{"../../exact", "lib/util/helpers.js", "exact.js", "exact"},
		{"./data", "", "data.json", `{"a":1}`},
	}
	for _, test := range tests {
		resolved, err := resolver.Resolve(test.specifier, test.fromPath)
		if err != nil {
			t.Errorf("Resolve(%q, %q) failed: %v", test.specifier, test.fromPath, err)
			continue
		}
		if resolved.ResolvedPath != test.path {
			t.Errorf("Resolve(%q) path = %q, want %q", test.specifier, resolved.ResolvedPath, test.path)
		}
		if got := readAll(t, resolved); got != test.content {
			t.Errorf("Resolve(%q) content = %q, want %q", test.specifier, got, test.content)
		}
		if resolved.Resolver != "FileSystem" {
			t.Errorf("Expected resolver 'FileSystem', got '%s'", resolved.Resolver)
		}
	}
}

func TestFileSystemResolverErrors(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{"lib/a.js": {Data: []byte("a")}}, "")

	if _, err := resolver.Resolve("./missing", ""); err == nil {
		t.Errorf("Expected error for missing module")
	}
	if _, err := resolver.Resolve("../a", ""); err == nil {
		t.Errorf("Expected error for parent import without fromPath")
	}
	if _, err := resolver.Resolve("./lib", ""); err == nil {
		t.Errorf("A directory without index file must not resolve")
	}
}

func TestFileSystemResolverCustomExtensions(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{"mod.ts": {Data: []byte("ts")}}, "")
	if _, err := resolver.Resolve("./mod", ""); err == nil {
		t.Fatalf(".ts is not a default extension")
	}
	resolver.SetExtensions([]string{".ts"})
	if _, err := resolver.Resolve("./mod", ""); err != nil {
		t.Errorf("Expected resolution with custom extension, got %v", err)
	}
}

func TestOSFileSystemResolver(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "main.js"), []byte("module.exports = 1"), 0644); err != nil {
		t.Fatal(err)
	}

	resolver := NewOSFileSystemResolver(dir)
	resolved, err := resolver.Resolve("./src/main", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.ResolvedPath != filepath.Join("src", "main.js") {
		t.Errorf("Unexpected path %q", resolved.ResolvedPath)
	}
	if got := readAll(t, resolved); got != "module.exports = 1" {
		t.Errorf("Unexpected content %q", got)
	}

	abs, err := resolver.Resolve(filepath.Join(dir, "src", "main.js"), "")
	if err != nil {
		t.Fatalf("Absolute path inside the base dir should resolve: %v", err)
	}
	abs.Source.Close()
}
