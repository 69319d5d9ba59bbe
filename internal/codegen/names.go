package codegen

import (
	"strconv"
	"strings"
	"unicode"
)

// sanitize maps s to a JavaScript identifier fragment. Runs of other
// characters collapse to one underscore. The result never contains '$',
// which claim reserves for its suffixes.
func sanitize(s string) string {
	var b strings.Builder
	under := false
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) || r == '_' {
			b.WriteRune(r)
			under = false
			continue
		}
		if !under {
			b.WriteByte('_')
			under = true
		}
	}
	out := b.String()
	if out == "" {
		return "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// reserved holds identifiers generated code must not declare: ECMAScript
// reserved words, strict-mode restricted names, and the globals the block
// templates and the bundle reference.
var reserved = map[string]bool{
	"await": true, "break": true, "case": true, "catch": true, "class": true,
	"const": true, "continue": true, "debugger": true, "default": true,
	"delete": true, "do": true, "else": true, "enum": true, "export": true,
	"extends": true, "false": true, "finally": true, "for": true,
	"function": true, "if": true, "implements": true, "import": true,
	"in": true, "instanceof": true, "interface": true, "let": true,
	"new": true, "null": true, "package": true, "private": true,
	"protected": true, "public": true, "return": true, "static": true,
	"super": true, "switch": true, "this": true, "throw": true, "true": true,
	"try": true, "typeof": true, "var": true, "void": true, "while": true,
	"with": true, "yield": true,
	"arguments": true, "eval": true, "undefined": true, "NaN": true,
	"Infinity": true,
	"scene": true, "entity": true, "console": true,
}

// nameTable hands out names unique within one pass. Variables and
// functions share one table, so neither can shadow the other.
type nameTable struct {
	used map[string]bool
}

func newNameTable() *nameTable {
	return &nameTable{used: make(map[string]bool)}
}

// claim returns base, or base$2, base$3, ... if base is taken or reserved,
// and reserves the result. Sanitized fragments carry no '$', so a suffixed
// name never equals another base.
func (t *nameTable) claim(base string) string {
	name := base
	for n := 2; t.used[name] || reserved[name]; n++ {
		name = base + "$" + strconv.Itoa(n)
	}
	t.used[name] = true
	return name
}
