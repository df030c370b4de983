package heap

import (
	"bytes"
	"math"
	"strings"
	"unicode/utf8"

	"nativert/pkg/value"
)

// stringCell keeps length in len(data) and capacity in cap(data). The byte
// slice is never appended to past its capacity; growth moves the cell.
type stringCell struct {
	data []byte
}

func (*stringCell) objectKind() ObjectKind { return KindString }

func (h *Heap) newStringCell(b []byte, capacity int) value.Value {
	if capacity < len(b) {
		capacity = len(b)
	}
	if uint64(capacity) > math.MaxUint32 {
		panic("heap: string capacity exceeds 32 bits")
	}
	data := make([]byte, len(b), capacity)
	copy(data, b)
	return value.String(h.cells.alloc(&stringCell{data: data}))
}

// NewString copies s into a string with exact capacity.
func (h *Heap) NewString(s string) value.Value {
	return h.newStringCell([]byte(s), len(s))
}

func (h *Heap) StringFromBytes(b []byte) value.Value {
	return h.newStringCell(b, len(b))
}

// StringWithCapacity copies b into a string with room for capacity bytes.
func (h *Heap) StringWithCapacity(b []byte, capacity int) value.Value {
	return h.newStringCell(b, capacity)
}

// StringBuilder returns an empty string with at least the builder floor as
// capacity, ready for in-place appends.
func (h *Heap) StringBuilder(capacity int) value.Value {
	if capacity < h.cfg.StringBuilderCapacity {
		capacity = h.cfg.StringBuilderCapacity
	}
	return h.newStringCell(nil, capacity)
}

// GoString returns the contents of a string value.
func (h *Heap) GoString(v value.Value) (string, bool) {
	s, ok := h.str(v)
	if !ok {
		return "", false
	}
	return string(s.data), true
}

func (h *Heap) stringBytes(v value.Value) []byte {
	if s, ok := h.str(v); ok {
		return s.data
	}
	return nil
}

func (h *Heap) StringLength(v value.Value) int {
	return len(h.stringBytes(v))
}

func (h *Heap) StringCapacity(v value.Value) int {
	if s, ok := h.str(v); ok {
		return cap(s.data)
	}
	return 0
}

// Append appends src to dst. When dst has room the bytes are written in
// place and dst is returned unchanged; otherwise the contents move to a new
// string of capacity max(2*newLen, floor) and dst is retired. Callers must
// always continue with the returned value.
func (h *Heap) Append(dst, src value.Value) value.Value {
	return h.appendBytes(dst, h.stringBytes(src))
}

func (h *Heap) AppendString(dst value.Value, s string) value.Value {
	return h.appendBytes(dst, []byte(s))
}

func (h *Heap) appendBytes(dst value.Value, add []byte) value.Value {
	d, ok := h.str(dst)
	if !ok {
		return h.StringFromBytes(add)
	}
	oldLen := len(d.data)
	newLen := oldLen + len(add)
	if newLen <= cap(d.data) {
		d.data = d.data[:newLen]
		copy(d.data[oldLen:], add)
		return dst
	}
	newCap := newLen * 2
	if newCap < h.cfg.StringGrowthFloor {
		newCap = h.cfg.StringGrowthFloor
	}
	if uint64(newCap) > math.MaxUint32 {
		panic("heap: string capacity exceeds 32 bits")
	}
	data := make([]byte, newLen, newCap)
	copy(data, d.data)
	copy(data[oldLen:], add)
	return h.replace(dst, &stringCell{data: data}, value.String)
}

// Concat returns a new string with exactly the combined length as capacity.
func (h *Heap) Concat(a, b value.Value) value.Value {
	ab, bb := h.stringBytes(a), h.stringBytes(b)
	data := make([]byte, 0, len(ab)+len(bb))
	data = append(data, ab...)
	data = append(data, bb...)
	return value.String(h.cells.alloc(&stringCell{data: data}))
}

func (h *Heap) StringEquals(a, b value.Value) bool {
	as, ok1 := h.str(a)
	bs, ok2 := h.str(b)
	if !ok1 || !ok2 {
		return false
	}
	return bytes.Equal(as.data, bs.data)
}

// relativeIndex resolves a JS slice bound: negatives count from the end and
// the result is clamped to [0, length].
func relativeIndex(i, length int) int {
	if i < 0 {
		i += length
		if i < 0 {
			return 0
		}
		return i
	}
	if i > length {
		return length
	}
	return i
}

// Slice follows String.prototype.slice.
func (h *Heap) Slice(v value.Value, start, end int) value.Value {
	data := h.stringBytes(v)
	s := relativeIndex(start, len(data))
	e := relativeIndex(end, len(data))
	if s >= e {
		return h.NewString("")
	}
	return h.StringFromBytes(data[s:e])
}

// Substring follows String.prototype.substring: negatives become 0 and
// reversed bounds are swapped.
func (h *Heap) Substring(v value.Value, start, end int) value.Value {
	data := h.stringBytes(v)
	clamp := func(i int) int {
		if i < 0 {
			return 0
		}
		if i > len(data) {
			return len(data)
		}
		return i
	}
	s, e := clamp(start), clamp(end)
	if s > e {
		s, e = e, s
	}
	return h.StringFromBytes(data[s:e])
}

func (h *Heap) Trim(v value.Value) value.Value {
	return h.StringFromBytes(bytes.TrimSpace(h.stringBytes(v)))
}

func (h *Heap) ToLowerCase(v value.Value) value.Value {
	return h.NewString(h.lower.String(string(h.stringBytes(v))))
}

func (h *Heap) ToUpperCase(v value.Value) value.Value {
	return h.NewString(h.upper.String(string(h.stringBytes(v))))
}

// IndexOf returns the byte offset of the first occurrence of search, or -1.
func (h *Heap) IndexOf(v, search value.Value) int {
	return bytes.Index(h.stringBytes(v), h.stringBytes(search))
}

func (h *Heap) IndexOfFrom(v, search value.Value, from int) int {
	data := h.stringBytes(v)
	if from < 0 {
		from = 0
	}
	if from > len(data) {
		from = len(data)
	}
	i := bytes.Index(data[from:], h.stringBytes(search))
	if i < 0 {
		return -1
	}
	return i + from
}

// CharCodeAt returns the byte at index, or -1 when out of range.
func (h *Heap) CharCodeAt(v value.Value, index int) int {
	data := h.stringBytes(v)
	if index < 0 || index >= len(data) {
		return -1
	}
	return int(data[index])
}

// Split returns an array of strings. An empty delimiter yields one string per
// character.
func (h *Heap) Split(v, delim value.Value) value.Value {
	s := string(h.stringBytes(v))
	d := string(h.stringBytes(delim))
	var parts []string
	if d == "" {
		parts = make([]string, 0, utf8.RuneCountInString(s))
		for len(s) > 0 {
			_, size := utf8.DecodeRuneInString(s)
			parts = append(parts, s[:size])
			s = s[size:]
		}
	} else {
		parts = strings.Split(s, d)
	}
	out := h.NewArray(len(parts))
	a, _ := h.arr(out)
	for _, p := range parts {
		a.elems = append(a.elems, h.NewString(p))
	}
	return out
}

// StringReplace replaces the first literal occurrence of pattern.
func (h *Heap) StringReplace(v, pattern, replacement value.Value) value.Value {
	s := string(h.stringBytes(v))
	return h.NewString(strings.Replace(s, string(h.stringBytes(pattern)), string(h.stringBytes(replacement)), 1))
}

// NumberToString formats f as JavaScript would.
func (h *Heap) NumberToString(f float64) value.Value {
	return h.NewString(value.FormatNumber(f))
}
