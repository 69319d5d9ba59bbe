package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/geckode/internal/engine"
	"github.com/roach88/geckode/internal/ir"
)

// intentArgs lists the argument keys each edit accepts.
var intentArgs = map[string][]string{
	"create_node":        {"id", "kind", "fields", "parent", "slot", "after"},
	"delete_node":        {"id"},
	"set_field":          {"node", "name", "value"},
	"connect":            {"parent", "slot", "child"},
	"connect_next":       {"prev", "next"},
	"disconnect":         {"child"},
	"create_variable":    {"id", "name"},
	"rename_variable":    {"id", "name"},
	"delete_variable":    {"id", "cascade"},
	"set_variable_field": {"node", "name", "var_name"},
}

// buildIntent turns a step's action and arguments into an engine intent.
func buildIntent(do string, args map[string]any) (engine.Intent, error) {
	allowed, ok := intentArgs[do]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", do)
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !slices.Contains(allowed, k) {
			return nil, fmt.Errorf("%s: unknown argument %q (allowed: %s)", do, k, strings.Join(allowed, ", "))
		}
	}

	a := argReader{do: do, args: args}
	var in engine.Intent
	switch do {
	case "create_node":
		fields, err := a.fields("fields")
		if err != nil {
			return nil, err
		}
		in = engine.CreateNode{
			ID:     ir.NodeID(a.str("id")),
			Kind:   a.str("kind"),
			Fields: fields,
			Parent: ir.NodeID(a.str("parent")),
			Slot:   a.str("slot"),
			After:  ir.NodeID(a.str("after")),
		}
	case "delete_node":
		in = engine.DeleteNode{ID: ir.NodeID(a.str("id"))}
	case "set_field":
		v, err := ir.FromAny(args["value"])
		if err != nil {
			return nil, fmt.Errorf("%s: value: %w", do, err)
		}
		in = engine.SetField{Node: ir.NodeID(a.str("node")), Name: a.str("name"), Value: v}
	case "connect":
		in = engine.Connect{Parent: ir.NodeID(a.str("parent")), Slot: a.str("slot"), Child: ir.NodeID(a.str("child"))}
	case "connect_next":
		in = engine.ConnectNext{Prev: ir.NodeID(a.str("prev")), Next: ir.NodeID(a.str("next"))}
	case "disconnect":
		in = engine.Disconnect{Child: ir.NodeID(a.str("child"))}
	case "create_variable":
		in = engine.CreateVariable{ID: ir.VarID(a.str("id")), Name: a.str("name")}
	case "rename_variable":
		in = engine.RenameVariable{ID: ir.VarID(a.str("id")), Name: a.str("name")}
	case "delete_variable":
		in = engine.DeleteVariable{ID: ir.VarID(a.str("id")), Cascade: a.boolean("cascade")}
	case "set_variable_field":
		in = engine.SetVariableField{Node: ir.NodeID(a.str("node")), Name: a.str("name"), VarName: a.str("var_name")}
	}
	if a.err != nil {
		return nil, a.err
	}
	return in, nil
}

// argReader reads typed arguments and keeps the first type error.
type argReader struct {
	do   string
	args map[string]any
	err  error
}

func (a *argReader) str(key string) string {
	v, ok := a.args[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok && a.err == nil {
		a.err = fmt.Errorf("%s: %s must be a string, got %T", a.do, key, v)
	}
	return s
}

func (a *argReader) boolean(key string) bool {
	v, ok := a.args[key]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok && a.err == nil {
		a.err = fmt.Errorf("%s: %s must be a boolean, got %T", a.do, key, v)
	}
	return b
}

func (a *argReader) fields(key string) (map[string]ir.IRValue, error) {
	v, ok := a.args[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: %s must be a mapping, got %T", a.do, key, v)
	}
	out := make(map[string]ir.IRValue, len(m))
	for name, raw := range m {
		iv, err := ir.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %s.%s: %w", a.do, key, name, err)
		}
		out[name] = iv
	}
	return out, nil
}
