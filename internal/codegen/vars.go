package codegen

import (
	"strings"

	"github.com/roach88/geckode/internal/ir"
)

// varTable maps variables to identifiers. Variables with the same display
// name in different workspaces share one identifier; names that sanitize
// alike, or clash with a reserved word, get suffixed. Identifiers come
// from the pass's name table, so function names never reuse them.
type varTable struct {
	names  *nameTable
	byName map[string]string
	byID   map[ir.VarID]string
	order  []string
}

func newVarTable(names *nameTable) *varTable {
	return &varTable{
		names:  names,
		byName: make(map[string]string),
		byID:   make(map[ir.VarID]string),
	}
}

func (t *varTable) declare(vars []ir.VariableView) {
	for _, v := range vars {
		ident, ok := t.byName[v.Name]
		if !ok {
			ident = t.names.claim(sanitize(v.Name))
			t.byName[v.Name] = ident
			t.order = append(t.order, ident)
		}
		t.byID[v.ID] = ident
	}
}

func (t *varTable) ident(id ir.VarID) (string, bool) {
	ident, ok := t.byID[id]
	return ident, ok
}

func (t *varTable) prelude() string {
	var b strings.Builder
	for _, ident := range t.order {
		b.WriteString("let ")
		b.WriteString(ident)
		b.WriteString(" = 0;\n")
	}
	return b.String()
}
