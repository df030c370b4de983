package heap

import (
	"strings"

	"github.com/dlclark/regexp2"

	"nativert/pkg/value"
)

// regExpCell holds a compiled pattern with its JavaScript flags cached.
type regExpCell struct {
	re         *regexp2.Regexp
	source     string
	flags      string
	global     bool
	ignoreCase bool
	multiline  bool
	dotAll     bool
}

func (*regExpCell) objectKind() ObjectKind { return KindRegExp }

// regexpOptions maps JavaScript flags onto regexp2 options. ECMAScript mode
// only combines with IgnoreCase and Multiline, so dotAll patterns compile in
// the default dialect.
func regexpOptions(flags string) regexp2.RegexOptions {
	var opts regexp2.RegexOptions
	if strings.Contains(flags, "i") {
		opts |= regexp2.IgnoreCase
	}
	if strings.Contains(flags, "m") {
		opts |= regexp2.Multiline
	}
	if strings.Contains(flags, "s") {
		opts |= regexp2.Singleline
	} else {
		opts |= regexp2.ECMAScript
	}
	return opts
}

// NewRegExp compiles pattern. Compile errors are returned as-is.
func (h *Heap) NewRegExp(pattern, flags string) (value.Value, error) {
	re, err := regexp2.Compile(pattern, regexpOptions(flags))
	if err != nil {
		return value.Undefined, err
	}
	return h.allocPointer(&regExpCell{
		re:         re,
		source:     pattern,
		flags:      flags,
		global:     strings.Contains(flags, "g"),
		ignoreCase: strings.Contains(flags, "i"),
		multiline:  strings.Contains(flags, "m"),
		dotAll:     strings.Contains(flags, "s"),
	}), nil
}

func (h *Heap) regexp(v value.Value) (*regExpCell, bool) {
	if !v.IsPointer() {
		return nil, false
	}
	c, ok := h.lookup(v)
	if !ok {
		return nil, false
	}
	r, ok := c.(*regExpCell)
	return r, ok
}

func (h *Heap) IsRegExp(v value.Value) bool {
	_, ok := h.regexp(v)
	return ok
}

func (h *Heap) RegExpSource(v value.Value) string {
	if r, ok := h.regexp(v); ok {
		return r.source
	}
	return ""
}

func (h *Heap) RegExpFlags(v value.Value) string {
	if r, ok := h.regexp(v); ok {
		return r.flags
	}
	return ""
}

// RegExpTest reports whether re matches anywhere in s. Match timeouts and
// other engine errors count as no match.
func (h *Heap) RegExpTest(re, s value.Value) bool {
	r, ok := h.regexp(re)
	if !ok {
		return false
	}
	input, _ := h.GoString(s)
	matched, err := r.re.MatchString(input)
	if err != nil {
		h.warn("regexp match failed", "pattern", r.source, "err", err)
		return false
	}
	return matched
}

// StringMatch follows String.prototype.match: a global pattern yields every
// matched substring, otherwise the first match followed by its groups
// (undefined for groups that did not participate). No match yields null.
func (h *Heap) StringMatch(s, re value.Value) value.Value {
	r, ok := h.regexp(re)
	if !ok {
		return value.Null
	}
	input, _ := h.GoString(s)
	m, err := r.re.FindStringMatch(input)
	if err != nil {
		h.warn("regexp match failed", "pattern", r.source, "err", err)
		return value.Null
	}
	if m == nil {
		return value.Null
	}
	if !r.global {
		groups := m.Groups()
		out := make([]value.Value, len(groups))
		for i, g := range groups {
			if len(g.Captures) == 0 {
				out[i] = value.Undefined
				continue
			}
			out[i] = h.NewString(g.String())
		}
		return h.newArrayCell(out, len(out))
	}
	var out []value.Value
	for m != nil {
		out = append(out, h.NewString(m.String()))
		m, err = r.re.FindNextMatch(m)
		if err != nil {
			h.warn("regexp match failed", "pattern", r.source, "err", err)
			break
		}
	}
	return h.newArrayCell(out, len(out))
}

// StringReplaceRegExp replaces every match for a global pattern and only the
// first otherwise. The replacement may refer to groups as $1, $2 and so on.
func (h *Heap) StringReplaceRegExp(s, re, replacement value.Value) value.Value {
	r, ok := h.regexp(re)
	if !ok {
		return s
	}
	input, _ := h.GoString(s)
	repl, _ := h.GoString(replacement)
	count := 1
	if r.global {
		count = -1
	}
	out, err := r.re.Replace(input, repl, -1, count)
	if err != nil {
		h.warn("regexp replace failed", "pattern", r.source, "err", err)
		return h.NewString(input)
	}
	return h.NewString(out)
}
