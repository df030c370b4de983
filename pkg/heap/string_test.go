package heap

import (
	"testing"

	"nativert/pkg/config"
	"nativert/pkg/value"
)

func newTestHeap() *Heap {
	return New(config.Default().Heap)
}

func goStr(t *testing.T, h *Heap, v value.Value) string {
	t.Helper()
	s, ok := h.GoString(v)
	if !ok {
		t.Fatalf("Expected a live string, got %s", h.Inspect(v))
	}
	return s
}

func TestString_ConcatLengthAndPrefix(t *testing.T) {
	h := newTestHeap()
	pairs := [][2]string{{"", ""}, {"foo", "bar"}, {"héllo", " wörld"}, {"a", ""}}
	for _, p := range pairs {
		a, b := h.NewString(p[0]), h.NewString(p[1])
		c := h.Concat(a, b)
		if h.StringLength(c) != len(p[0])+len(p[1]) {
			t.Errorf("Concat(%q, %q) length = %d", p[0], p[1], h.StringLength(c))
		}
		if h.StringCapacity(c) != h.StringLength(c) {
			t.Errorf("Concat should allocate exact capacity, got %d for length %d", h.StringCapacity(c), h.StringLength(c))
		}
		prefix := h.Slice(c, 0, len(p[0]))
		if !h.StringEquals(prefix, a) {
			t.Errorf("Slice of concat = %q, want %q", goStr(t, h, prefix), p[0])
		}
	}
}

func TestString_AppendInPlace(t *testing.T) {
	h := newTestHeap()
	s := h.StringBuilder(0)
	if h.StringCapacity(s) != 16 {
		t.Fatalf("Expected builder capacity 16, got %d", h.StringCapacity(s))
	}
	s2 := h.AppendString(s, "hello")
	if s2 != s {
		t.Errorf("Append within capacity should return the same value")
	}
	if goStr(t, h, s2) != "hello" {
		t.Errorf("Expected 'hello', got %q", goStr(t, h, s2))
	}
}

func TestString_AppendGrows(t *testing.T) {
	h := newTestHeap()
	s := h.NewString("abc")
	grown := h.AppendString(s, "defg")
	if grown == s {
		t.Fatalf("Append past capacity should move the string")
	}
	if h.Valid(s) {
		t.Errorf("Old string should be stale after growth")
	}
	if got := goStr(t, h, grown); got != "abcdefg" {
		t.Errorf("Expected 'abcdefg', got %q", got)
	}
	// max(7*2, 32)
	if h.StringCapacity(grown) != 32 {
		t.Errorf("Expected capacity 32, got %d", h.StringCapacity(grown))
	}

	long := h.AppendString(grown, string(make([]byte, 40)))
	if h.StringCapacity(long) != 94 {
		t.Errorf("Expected capacity 94, got %d", h.StringCapacity(long))
	}
}

func TestString_SliceAndSubstring(t *testing.T) {
	h := newTestHeap()
	s := h.NewString("hello world")
	tests := []struct {
		name       string
		start, end int
		slice, sub string
	}{
		{"plain", 0, 5, "hello", "hello"},
		{"negative", -5, 11, "world", "hello world"},
		{"reversed", 5, 0, "", "hello"},
		{"clamped", 6, 100, "world", "world"},
		{"both negative", -5, -1, "worl", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := goStr(t, h, h.Slice(s, tt.start, tt.end)); got != tt.slice {
				t.Errorf("Slice(%d, %d) = %q, want %q", tt.start, tt.end, got, tt.slice)
			}
			if got := goStr(t, h, h.Substring(s, tt.start, tt.end)); got != tt.sub {
				t.Errorf("Substring(%d, %d) = %q, want %q", tt.start, tt.end, got, tt.sub)
			}
		})
	}
}

func TestString_Search(t *testing.T) {
	h := newTestHeap()
	s := h.NewString("abcabc")
	if i := h.IndexOf(s, h.NewString("ca")); i != 2 {
		t.Errorf("IndexOf = %d, want 2", i)
	}
	if i := h.IndexOfFrom(s, h.NewString("abc"), 1); i != 3 {
		t.Errorf("IndexOfFrom = %d, want 3", i)
	}
	if i := h.IndexOf(s, h.NewString("zz")); i != -1 {
		t.Errorf("IndexOf missing = %d, want -1", i)
	}
	if c := h.CharCodeAt(s, 1); c != 'b' {
		t.Errorf("CharCodeAt = %d, want %d", c, 'b')
	}
	if c := h.CharCodeAt(s, 10); c != -1 {
		t.Errorf("CharCodeAt out of range = %d, want -1", c)
	}
}

func TestString_Split(t *testing.T) {
	h := newTestHeap()
	parts := h.Split(h.NewString("a,b,,c"), h.NewString(","))
	want := []string{"a", "b", "", "c"}
	if h.ArrayLength(parts) != len(want) {
		t.Fatalf("Expected %d parts, got %d", len(want), h.ArrayLength(parts))
	}
	for i, w := range want {
		if got := goStr(t, h, h.ArrayGet(parts, i)); got != w {
			t.Errorf("part %d = %q, want %q", i, got, w)
		}
	}

	chars := h.Split(h.NewString("hé!"), h.NewString(""))
	if h.ArrayLength(chars) != 3 {
		t.Fatalf("Expected 3 characters, got %d", h.ArrayLength(chars))
	}
	if got := goStr(t, h, h.ArrayGet(chars, 1)); got != "é" {
		t.Errorf("Expected 'é', got %q", got)
	}
}

func TestString_CaseTrimReplace(t *testing.T) {
	h := newTestHeap()
	if got := goStr(t, h, h.ToUpperCase(h.NewString("héllo"))); got != "HÉLLO" {
		t.Errorf("ToUpperCase = %q", got)
	}
	if got := goStr(t, h, h.ToLowerCase(h.NewString("ÀBC"))); got != "àbc" {
		t.Errorf("ToLowerCase = %q", got)
	}
	if got := goStr(t, h, h.Trim(h.NewString("  x y \n"))); got != "x y" {
		t.Errorf("Trim = %q", got)
	}
	got := goStr(t, h, h.StringReplace(h.NewString("a-b-c"), h.NewString("-"), h.NewString("+")))
	if got != "a+b-c" {
		t.Errorf("StringReplace = %q, want first occurrence only", got)
	}
	if got := goStr(t, h, h.NumberToString(1.5)); got != "1.5" {
		t.Errorf("NumberToString = %q", got)
	}
}

func TestString_StaleReference(t *testing.T) {
	h := newTestHeap()
	s := h.NewString("gone")
	if !h.Free(s) {
		t.Fatalf("Free should succeed on a live string")
	}
	if h.Free(s) {
		t.Errorf("Second Free should fail")
	}
	if h.StringLength(s) != 0 {
		t.Errorf("Stale string should read as empty")
	}
	reused := h.NewString("new")
	if reused.Payload()&0xFFFFFFFF != s.Payload()&0xFFFFFFFF {
		t.Errorf("Expected slot reuse")
	}
	if h.Valid(s) {
		t.Errorf("Stale reference must not resolve to the reused slot")
	}
}
