package errors

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// RuntimeError is the interface implemented by all runtime errors.
type RuntimeError interface {
	error
	Kind() string // e.g., "Bridge", "Handle", "Module", "Config", "Heap"
	// Message returns the specific error message without the kind prefix.
	Message() string
	Unwrap() error
}

// --- Concrete Error Types ---

// BridgeError reports a failure inside the embedded engine or while
// converting a value across the bridge.
type BridgeError struct {
	Op    string // interop operation, e.g. "call", "load"
	Msg   string
	Cause error
	Position
}

func (e *BridgeError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("Bridge Error: %s", e.Msg)
	}
	return fmt.Sprintf("Bridge Error in %s: %s", e.Op, e.Msg)
}
func (e *BridgeError) Pos() Position   { return e.Position }
func (e *BridgeError) Kind() string    { return "Bridge" }
func (e *BridgeError) Message() string { return e.Msg }
func (e *BridgeError) Unwrap() error   { return e.Cause }
func (e *BridgeError) CausedBy(cause error) *BridgeError {
	e.Cause = cause
	return e
}

// HandleError reports an unknown or already released foreign handle.
type HandleError struct {
	ID  uint64
	Msg string
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("Handle Error: %s (handle %d)", e.Message(), e.ID)
}
func (e *HandleError) Kind() string { return "Handle" }
func (e *HandleError) Message() string {
	if e.Msg == "" {
		return "invalid handle"
	}
	return e.Msg
}
func (e *HandleError) Unwrap() error { return nil }

// ModuleError reports a module that could not be resolved or evaluated.
type ModuleError struct {
	Specifier string
	Msg       string
	Cause     error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("Module Error for %q: %s", e.Specifier, e.Msg)
}
func (e *ModuleError) Kind() string    { return "Module" }
func (e *ModuleError) Message() string { return e.Msg }
func (e *ModuleError) Unwrap() error   { return e.Cause }
func (e *ModuleError) CausedBy(cause error) *ModuleError {
	e.Cause = cause
	return e
}

// ConfigError reports an unreadable or invalid configuration.
type ConfigError struct {
	Path  string // empty when parsed from memory
	Msg   string
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("Config Error: %s", e.Msg)
	}
	return fmt.Sprintf("Config Error in %s: %s", e.Path, e.Msg)
}
func (e *ConfigError) Kind() string    { return "Config" }
func (e *ConfigError) Message() string { return e.Msg }
func (e *ConfigError) Unwrap() error   { return e.Cause }
func (e *ConfigError) CausedBy(cause error) *ConfigError {
	e.Cause = cause
	return e
}

// HeapError reports misuse of an error-returning heap API, such as building
// an object before every slot was written.
type HeapError struct {
	Op  string
	Msg string
}

func (e *HeapError) Error() string {
	return fmt.Sprintf("Heap Error in %s: %s", e.Op, e.Msg)
}
func (e *HeapError) Kind() string    { return "Heap" }
func (e *HeapError) Message() string { return e.Msg }
func (e *HeapError) Unwrap() error   { return nil }

// KindOf returns the kind of the first RuntimeError in err's chain, or "".
func KindOf(err error) string {
	var re RuntimeError
	if errors.As(err, &re) {
		return re.Kind()
	}
	return ""
}

// --- Error Reporting ---

// DisplayErrors prints errors one per line, with the cause chain indented
// underneath. Errors pointing into known source also print the source line
// and a position marker.
func DisplayErrors(w io.Writer, errs []error) {
	for _, err := range errs {
		if err == nil {
			continue
		}
		var re RuntimeError
		if !errors.As(err, &re) {
			fmt.Fprintf(w, "Error: %s\n", err)
			continue
		}
		if !displayExcerpt(w, re) {
			fmt.Fprintf(w, "%s Error: %s\n", re.Kind(), re.Message())
		}
		for cause := re.Unwrap(); cause != nil; cause = errors.Unwrap(cause) {
			fmt.Fprintf(w, "  caused by: %s\n", cause)
		}
	}
}

func displayExcerpt(w io.Writer, re RuntimeError) bool {
	var pe Positioned
	if !errors.As(re, &pe) {
		return false
	}
	pos := pe.Pos()
	if !pos.IsValid() || pos.Source == nil {
		return false
	}
	line, ok := pos.Source.Line(pos.Line)
	if !ok {
		return false
	}
	fmt.Fprintf(w, "%s Error at %s:%d:%d: %s\n", re.Kind(), pos.Source.DisplayPath(), pos.Line, pos.Column, re.Message())
	fmt.Fprintf(w, "  %s\n", strings.TrimRight(line, "\t "))
	col := pos.Column - 1
	if col < 0 {
		col = 0
	}
	fmt.Fprintf(w, "  %s^\n", strings.Repeat(" ", col))
	return true
}
