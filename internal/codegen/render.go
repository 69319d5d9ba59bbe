package codegen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/geckode/internal/catalog"
	"github.com/roach88/geckode/internal/graph"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/registry"
)

// renderer emits one scope. The first failure wins; template errors from
// later frames only echo it.
type renderer struct {
	snap     *graph.Snapshot
	ctx      Context
	registry *registry.View
	vars     *varTable
	function string

	err *renderError
}

func (r *renderer) fail(node ir.NodeID, format string, args ...any) *renderError {
	if r.err == nil {
		r.err = &renderError{node: node, reason: fmt.Sprintf(format, args...)}
	}
	return r.err
}

func (r *renderer) render(root ir.NodeView) (string, *renderError) {
	src, err := r.node(root)
	if err != nil {
		return "", r.err
	}
	return src + "\n", nil
}

// node executes the block template of n.
func (r *renderer) node(n ir.NodeView) (string, error) {
	if r.snap.InCycle(n.ID) {
		return "", r.fail(n.ID, "part of a structural cycle")
	}
	def, ok := r.ctx.Catalog.Lookup(n.Kind)
	if !ok {
		return "", r.fail(n.ID, "unknown kind %q", n.Kind)
	}
	var buf bytes.Buffer
	if err := def.Template.Execute(&buf, &nodeContext{r: r, n: n, def: def}); err != nil {
		if r.err != nil {
			return "", r.err
		}
		return "", r.fail(n.ID, "template: %v", err)
	}
	return buf.String(), nil
}

// chain emits the statement chain starting at id as a braced block.
func (r *renderer) chain(owner, id ir.NodeID) (string, error) {
	var b strings.Builder
	b.WriteString("{\n")
	seen := make(map[ir.NodeID]bool)
	for id != "" {
		if seen[id] {
			return "", r.fail(id, "statement chain loops")
		}
		seen[id] = true
		n, ok := r.snap.Read(id)
		if !ok {
			break
		}
		def, ok := r.ctx.Catalog.Lookup(n.Kind)
		if !ok {
			return "", r.fail(n.ID, "unknown kind %q", n.Kind)
		}
		switch def.Category {
		case catalog.CategoryStatement:
		case catalog.CategoryValue, catalog.CategoryEvent:
			return "", r.fail(n.ID, "%s block %q cannot run as a statement in %s", def.Category, n.Kind, owner)
		default:
			return "", r.fail(n.ID, "unknown category %q", def.Category)
		}
		code, err := r.node(n)
		if err != nil {
			return "", err
		}
		indent(&b, terminate(code))
		id = n.Next
	}
	b.WriteString("}")
	return b.String(), nil
}

func terminate(code string) string {
	code = strings.TrimRight(code, " \n")
	if strings.HasSuffix(code, "}") || strings.HasSuffix(code, ";") {
		return code
	}
	return code + ";"
}

func indent(b *strings.Builder, code string) {
	for _, line := range strings.Split(code, "\n") {
		if line != "" {
			b.WriteString("  ")
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
}

// quote renders s as a JavaScript string literal.
func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// nodeContext is the dot of a block template.
type nodeContext struct {
	r   *renderer
	n   ir.NodeView
	def *catalog.BlockDef
}

func (c *nodeContext) Name() string {
	return c.r.function
}

func (c *nodeContext) field(name string) (catalog.FieldDef, ir.IRValue, error) {
	fd, ok := c.def.Field(name)
	if !ok {
		return fd, nil, c.r.fail(c.n.ID, "%s has no field %s", c.n.Kind, name)
	}
	return fd, c.n.Field(name), nil
}

func (c *nodeContext) Field(name string) (string, error) {
	fd, v, err := c.field(name)
	if err != nil {
		return "", err
	}
	if ir.IsNull(v) {
		if fd.Required {
			return "", c.r.fail(c.n.ID, "required field %s is empty", name)
		}
		return fd.Default, nil
	}
	switch fd.Type {
	case catalog.FieldNumber:
		if n, ok := v.(ir.IRInt); ok {
			return strconv.FormatInt(int64(n), 10), nil
		}
	case catalog.FieldOption:
		if s, ok := v.(ir.IRString); ok && fd.HasOption(string(s)) {
			return string(s), nil
		}
	case catalog.FieldText, catalog.FieldEntity, catalog.FieldVariable:
		if s, ok := v.(ir.IRString); ok {
			return string(s), nil
		}
	}
	return "", c.r.fail(c.n.ID, "field %s holds an invalid %s value", name, fd.Type)
}

func (c *nodeContext) Str(name string) (string, error) {
	s, err := c.Field(name)
	if err != nil {
		return "", err
	}
	return quote(s), nil
}

func (c *nodeContext) Entity(name string) (string, error) {
	_, v, err := c.field(name)
	if err != nil {
		return "", err
	}
	id, _ := v.(ir.IRString)
	return quote(c.r.registry.Resolve(string(id))), nil
}

func (c *nodeContext) Var(name string) (string, error) {
	_, v, err := c.field(name)
	if err != nil {
		return "", err
	}
	id, ok := v.(ir.IRString)
	if !ok || id == "" {
		return "", c.r.fail(c.n.ID, "variable field %s is empty", name)
	}
	ident, ok := c.r.vars.ident(ir.VarID(id))
	if !ok {
		return "", c.r.fail(c.n.ID, "variable %s does not exist", id)
	}
	return ident, nil
}

func (c *nodeContext) Value(slot string) (string, error) {
	sd, ok := c.def.Slot(slot)
	if !ok || sd.Kind != catalog.SlotValue {
		return "", c.r.fail(c.n.ID, "%s has no value input %s", c.n.Kind, slot)
	}
	child, ok := c.r.snap.Read(c.n.Slots[slot])
	if !ok {
		switch {
		case sd.Required:
			return "", c.r.fail(c.n.ID, "required input %s is empty", slot)
		case sd.Default != "":
			return sd.Default, nil
		}
		return "null", nil
	}
	def, ok := c.r.ctx.Catalog.Lookup(child.Kind)
	if !ok {
		return "", c.r.fail(child.ID, "unknown kind %q", child.Kind)
	}
	switch def.Category {
	case catalog.CategoryValue:
		return c.r.node(child)
	case catalog.CategoryStatement, catalog.CategoryEvent:
		return "", c.r.fail(child.ID, "%s block %q cannot be used as a value", def.Category, child.Kind)
	default:
		return "", c.r.fail(child.ID, "unknown category %q", def.Category)
	}
}

func (c *nodeContext) Block(slot string) (string, error) {
	sd, ok := c.def.Slot(slot)
	if !ok || sd.Kind != catalog.SlotStatement {
		return "", c.r.fail(c.n.ID, "%s has no statement input %s", c.n.Kind, slot)
	}
	first := c.n.Slots[slot]
	if first == "" && sd.Required {
		return "", c.r.fail(c.n.ID, "required input %s is empty", slot)
	}
	return c.r.chain(c.n.ID, first)
}
