// Package heap owns the containers addressed by boxed values: strings,
// arrays, objects, closures, boxed bigints, regular expressions and promise
// cells. A Heap is single-threaded; only its class registry is safe for
// concurrent use.
package heap

import (
	"fmt"
	"log/slog"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"nativert/pkg/config"
	"nativert/pkg/value"
)

const debugHeap = false

// Foreign receives operations on values owned by the embedded engine.
type Foreign interface {
	CallHandle(id uint64, args []value.Value) value.Value
	CallHandleMethod(id uint64, name string, args []value.Value) value.Value
	HandleString(id uint64) string
}

type Heap struct {
	cells   arena
	classes *ClassRegistry
	cfg     config.HeapConfig
	foreign Foreign
	logger  *slog.Logger

	lower cases.Caser
	upper cases.Caser
}

// New creates a heap. Zero fields in cfg fall back to the defaults.
func New(cfg config.HeapConfig) *Heap {
	def := config.Default().Heap
	if cfg.MinArrayCapacity <= 0 {
		cfg.MinArrayCapacity = def.MinArrayCapacity
	}
	if cfg.StringBuilderCapacity <= 0 {
		cfg.StringBuilderCapacity = def.StringBuilderCapacity
	}
	if cfg.StringGrowthFloor <= 0 {
		cfg.StringGrowthFloor = def.StringGrowthFloor
	}
	return &Heap{
		cells:   newArena(256),
		classes: NewClassRegistry(),
		cfg:     cfg,
		logger:  slog.Default(),
		lower:   cases.Lower(language.Und),
		upper:   cases.Upper(language.Und),
	}
}

func (h *Heap) SetForeign(f Foreign)         { h.foreign = f }
func (h *Heap) SetLogger(l *slog.Logger)     { h.logger = l }
func (h *Heap) Classes() *ClassRegistry      { return h.classes }
func (h *Heap) Config() config.HeapConfig    { return h.cfg }
func (h *Heap) Live() int                    { return h.cells.live }

func (h *Heap) lookup(v value.Value) (cell, bool) {
	if !v.IsHeap() {
		return nil, false
	}
	c, ok := h.cells.get(value.Ref(v.Payload()))
	if !ok && debugHeap {
		fmt.Printf("[heap] stale or unknown reference %s\n", v)
	}
	return c, ok
}

// Valid reports whether v addresses a live container.
func (h *Heap) Valid(v value.Value) bool {
	_, ok := h.lookup(v)
	return ok
}

// KindOf returns the container kind behind v, or KindNone.
func (h *Heap) KindOf(v value.Value) ObjectKind {
	if c, ok := h.lookup(v); ok {
		return c.objectKind()
	}
	return KindNone
}

// Free releases the container behind v. Every copy of v becomes stale.
func (h *Heap) Free(v value.Value) bool {
	if !v.IsHeap() {
		return false
	}
	return h.cells.release(value.Ref(v.Payload()))
}

func (h *Heap) allocPointer(c cell) value.Value { return value.Pointer(h.cells.alloc(c)) }

// replace moves a grown container to a fresh slot and retires the old one.
func (h *Heap) replace(old value.Value, c cell, box func(value.Ref) value.Value) value.Value {
	h.cells.release(value.Ref(old.Payload()))
	return box(h.cells.alloc(c))
}

func (h *Heap) str(v value.Value) (*stringCell, bool) {
	if !v.IsString() {
		return nil, false
	}
	c, ok := h.lookup(v)
	if !ok {
		return nil, false
	}
	s, ok := c.(*stringCell)
	return s, ok
}

func (h *Heap) arr(v value.Value) (*arrayCell, bool) {
	if !v.IsPointer() {
		return nil, false
	}
	c, ok := h.lookup(v)
	if !ok {
		return nil, false
	}
	a, ok := c.(*arrayCell)
	return a, ok
}

func (h *Heap) obj(v value.Value) (*objectCell, bool) {
	if !v.IsPointer() {
		return nil, false
	}
	c, ok := h.lookup(v)
	if !ok {
		return nil, false
	}
	o, ok := c.(*objectCell)
	return o, ok
}

func (h *Heap) closure(v value.Value) (*Closure, bool) {
	if !v.IsPointer() {
		return nil, false
	}
	c, ok := h.lookup(v)
	if !ok {
		return nil, false
	}
	cl, ok := c.(*Closure)
	return cl, ok
}

func (h *Heap) warn(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}
