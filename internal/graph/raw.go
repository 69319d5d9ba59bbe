package graph

import "github.com/roach88/geckode/internal/ir"

// RawNode exposes a node's registers without structural resolution. The
// mutation engine reads it to build exact inverses.
type RawNode struct {
	Kind     string
	Inserted bool
	Alive    bool
	Fields   map[string]ir.IRValue
	Slots    map[string]ir.NodeID
	Next     ir.NodeID
}

// Raw returns the registers of a node, live or not.
func (g *Graph) Raw(id ir.NodeID) (RawNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return RawNode{}, false
	}
	raw := RawNode{
		Kind:     n.kind,
		Inserted: n.inserted,
		Alive:    n.alive.value,
		Fields:   make(map[string]ir.IRValue, len(n.fields)),
		Slots:    make(map[string]ir.NodeID, len(n.slots)),
		Next:     n.next.value,
	}
	for name, r := range n.fields {
		raw.Fields[name] = r.value
	}
	for name, r := range n.slots {
		raw.Slots[name] = r.value
	}
	return raw, true
}

// RawVariable exposes a variable's registers.
type RawVariable struct {
	Name     string
	Inserted bool
	Alive    bool
}

// RawVariable returns the registers of a variable, live or not.
func (g *Graph) RawVariable(id ir.VarID) (RawVariable, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vars[id]
	if !ok {
		return RawVariable{}, false
	}
	return RawVariable{Name: v.name.value, Inserted: v.inserted, Alive: v.alive.value}, true
}

// VariableAlive reports whether id names a live variable.
func (g *Graph) VariableAlive(id ir.VarID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vars[id]
	return ok && v.visible()
}

// Holds reports whether the register d writes was last written by actor
// and still carries d's value. Node and variable liveness are judged by
// their liveness register alone.
func (g *Graph) Holds(d ir.Delta, actor ir.ActorID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	switch d.Op {
	case ir.OpCreateVariable, ir.OpDeleteVariable:
		v, ok := g.vars[d.Var]
		return ok && heldBy(v.alive, actor) && v.alive.value == (d.Op == ir.OpCreateVariable)
	case ir.OpRenameVariable:
		v, ok := g.vars[d.Var]
		return ok && heldBy(v.name, actor) && v.name.value == d.Name
	}

	n, ok := g.nodes[d.Node]
	if !ok {
		return false
	}
	switch d.Op {
	case ir.OpInsertNode, ir.OpRemoveNode:
		return heldBy(n.alive, actor) && n.alive.value == (d.Op == ir.OpInsertNode)
	case ir.OpSetField:
		r, ok := n.fields[d.Name]
		return ok && heldBy(*r, actor) && ir.EqualValues(r.value, d.Value)
	case ir.OpSetSlot:
		r, ok := n.slots[d.Name]
		return ok && heldBy(*r, actor) && r.value == d.Target
	case ir.OpSetNext:
		return heldBy(n.next, actor) && n.next.value == d.Target
	}
	return false
}

func heldBy[T any](r register[T], actor ir.ActorID) bool {
	return r.set && r.at.stamp.Actor == actor
}
