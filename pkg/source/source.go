// Package source names the scripts handed to the engine and maps error
// positions back to their text.
package source

import (
	"path/filepath"
	"strings"
)

// SourceFile represents a source file with its content and metadata
type SourceFile struct {
	Name    string // Display name (e.g., "main.js", "<repl>", "<eval>")
	Path    string // Full file path (empty for REPL/eval)
	Content string

	// Offset is the number of bytes the engine sees on line 1 before
	// Content starts, such as a module wrapper.
	Offset int

	lines []string
}

func NewSourceFile(name, path, content string) *SourceFile {
	return &SourceFile{Name: name, Path: path, Content: content}
}

// NewEvalSource creates a source file for code run through Eval.
func NewEvalSource(content string) *SourceFile {
	return &SourceFile{Name: "<eval>", Content: content}
}

// NewReplSource creates a source file for REPL input
func NewReplSource(content string) *SourceFile {
	return &SourceFile{Name: "<repl>", Content: content}
}

// FromFile creates a SourceFile from a file path and content
func FromFile(filePath, content string) *SourceFile {
	return NewSourceFile(filepath.Base(filePath), filePath, content)
}

// Lines returns the source split into lines (cached)
func (sf *SourceFile) Lines() []string {
	if sf.lines == nil {
		sf.lines = strings.Split(sf.Content, "\n")
	}
	return sf.lines
}

// Line returns 1-based line n without its line ending, or false when out
// of range.
func (sf *SourceFile) Line(n int) (string, bool) {
	lines := sf.Lines()
	if n < 1 || n > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[n-1], "\r"), true
}

// Column maps an engine column on line to a column within Content.
func (sf *SourceFile) Column(line, col int) int {
	if line == 1 && col > sf.Offset {
		return col - sf.Offset
	}
	return col
}

// DisplayPath returns the best path for display (prefers Path, falls back to Name)
func (sf *SourceFile) DisplayPath() string {
	if sf.Path != "" {
		return sf.Path
	}
	return sf.Name
}

// IsFile returns true if this represents an actual file (has a path)
func (sf *SourceFile) IsFile() bool {
	return sf.Path != ""
}
