package engine

import (
	"slices"

	"github.com/roach88/geckode/internal/catalog"
	"github.com/roach88/geckode/internal/ir"
)

type fieldKey struct {
	node ir.NodeID
	name string
}

// overlay tracks register values written earlier in the batch being
// inverted, so later deltas see the state their predecessors produce.
type overlay struct {
	alive   map[ir.NodeID]bool
	kind    map[ir.NodeID]string
	fields  map[fieldKey]ir.IRValue
	slots   map[fieldKey]ir.NodeID
	next    map[ir.NodeID]ir.NodeID
	varLive map[ir.VarID]bool
	varName map[ir.VarID]string
}

func newOverlay() *overlay {
	return &overlay{
		alive:   make(map[ir.NodeID]bool),
		kind:    make(map[ir.NodeID]string),
		fields:  make(map[fieldKey]ir.IRValue),
		slots:   make(map[fieldKey]ir.NodeID),
		next:    make(map[ir.NodeID]ir.NodeID),
		varLive: make(map[ir.VarID]bool),
		varName: make(map[ir.VarID]string),
	}
}

// invert computes the batch that restores the state the forward batch
// overwrites. Node liveness, kinds, fields and variable registers come
// from the raw registers; slot and next links come from the resolved
// structure, so an inverse never revives a link that was already
// shadowed by a newer claim.
func (e *Engine) invert(batch []ir.Delta) []ir.Delta {
	ov := newOverlay()
	inverse := make([]ir.Delta, 0, len(batch))

	for _, d := range batch {
		switch d.Op {
		case ir.OpInsertNode, ir.OpRemoveNode:
			wasAlive, kind := e.priorNode(ov, d.Node)
			if wasAlive {
				inverse = append(inverse, ir.Delta{Op: ir.OpInsertNode, Node: d.Node, Kind: kind})
			} else {
				inverse = append(inverse, ir.Delta{Op: ir.OpRemoveNode, Node: d.Node})
			}
			ov.alive[d.Node] = d.Op == ir.OpInsertNode
			if d.Op == ir.OpInsertNode {
				if _, ok := ov.kind[d.Node]; !ok && kind == "" {
					ov.kind[d.Node] = d.Kind
				}
			}

		case ir.OpSetField:
			k := fieldKey{d.Node, d.Name}
			prior, ok := ov.fields[k]
			if !ok {
				prior = ir.IRNull{}
				if raw, found := e.graph.Raw(d.Node); found {
					if v, set := raw.Fields[d.Name]; set && v != nil {
						prior = v
					}
				}
			}
			inverse = append(inverse, ir.Delta{Op: ir.OpSetField, Node: d.Node, Name: d.Name, Value: prior})
			ov.fields[k] = d.Value

		case ir.OpSetSlot:
			k := fieldKey{d.Node, d.Name}
			prior, ok := ov.slots[k]
			if !ok {
				if v, found := e.graph.Read(d.Node); found {
					prior = v.Slots[d.Name]
				}
			}
			inverse = append(inverse, ir.Delta{Op: ir.OpSetSlot, Node: d.Node, Name: d.Name, Target: prior})
			ov.slots[k] = d.Target

		case ir.OpSetNext:
			prior, ok := ov.next[d.Node]
			if !ok {
				if v, found := e.graph.Read(d.Node); found {
					prior = v.Next
				}
			}
			inverse = append(inverse, ir.Delta{Op: ir.OpSetNext, Node: d.Node, Target: prior})
			ov.next[d.Node] = d.Target

		case ir.OpCreateVariable, ir.OpDeleteVariable:
			wasAlive, name := e.priorVariable(ov, d.Var)
			if wasAlive {
				inverse = append(inverse, ir.Delta{Op: ir.OpCreateVariable, Var: d.Var, Name: name})
			} else {
				inverse = append(inverse, ir.Delta{Op: ir.OpDeleteVariable, Var: d.Var})
			}
			ov.varLive[d.Var] = d.Op == ir.OpCreateVariable
			if d.Op == ir.OpCreateVariable {
				ov.varName[d.Var] = d.Name
			}

		case ir.OpRenameVariable:
			_, name := e.priorVariable(ov, d.Var)
			inverse = append(inverse, ir.Delta{Op: ir.OpRenameVariable, Var: d.Var, Name: name})
			ov.varName[d.Var] = d.Name
		}
	}

	slices.Reverse(inverse)
	return inverse
}

func (e *Engine) priorNode(ov *overlay, id ir.NodeID) (bool, string) {
	raw, _ := e.graph.Raw(id)
	alive := raw.Inserted && raw.Alive
	if a, ok := ov.alive[id]; ok {
		alive = a
	}
	kind := raw.Kind
	if k, ok := ov.kind[id]; ok {
		kind = k
	}
	return alive, kind
}

func (e *Engine) priorVariable(ov *overlay, id ir.VarID) (bool, string) {
	raw, _ := e.graph.RawVariable(id)
	alive := raw.Inserted && raw.Alive
	if a, ok := ov.varLive[id]; ok {
		alive = a
	}
	name := raw.Name
	if n, ok := ov.varName[id]; ok {
		name = n
	}
	return alive, name
}

// registerKey names the register a delta writes.
type registerKey struct {
	op   ir.Op
	node ir.NodeID
	v    ir.VarID
	name string
}

func registerOf(d ir.Delta) registerKey {
	switch d.Op {
	case ir.OpInsertNode, ir.OpRemoveNode:
		return registerKey{op: ir.OpInsertNode, node: d.Node}
	case ir.OpSetField, ir.OpSetSlot:
		return registerKey{op: d.Op, node: d.Node, name: d.Name}
	case ir.OpSetNext:
		return registerKey{op: d.Op, node: d.Node}
	case ir.OpCreateVariable, ir.OpDeleteVariable:
		return registerKey{op: ir.OpCreateVariable, v: d.Var}
	default:
		return registerKey{op: d.Op, v: d.Var}
	}
}

// unclaimed drops the revert deltas for registers that no longer hold what
// rec applied, because a peer has written them since.
func (e *Engine) unclaimed(rec record) []ir.Delta {
	last := make(map[registerKey]ir.Delta, len(rec.applied))
	for _, d := range rec.applied {
		last[registerOf(d)] = d
	}
	lost := make(map[registerKey]bool)
	for k, d := range last {
		if !e.graph.Holds(d, e.actor) {
			lost[k] = true
		}
	}

	out := make([]ir.Delta, 0, len(rec.revert))
	for _, d := range rec.revert {
		if !lost[registerOf(d)] {
			out = append(out, d)
		}
	}
	return out
}

// keepReferences extends batch so that no node it leaves live points at a
// dead variable. Such a reference is repointed at the live variable with
// the same name if there is one; otherwise the variable is revived.
func (e *Engine) keepReferences(batch []ir.Delta) []ir.Delta {
	nodeAlive := make(map[ir.NodeID]bool)
	kinds := make(map[ir.NodeID]string)
	fields := make(map[fieldKey]ir.IRValue)
	varAlive := make(map[ir.VarID]bool)
	var touched []ir.NodeID
	touch := func(id ir.NodeID) {
		if !slices.Contains(touched, id) {
			touched = append(touched, id)
		}
	}

	for _, d := range batch {
		switch d.Op {
		case ir.OpInsertNode:
			nodeAlive[d.Node] = true
			kinds[d.Node] = d.Kind
			touch(d.Node)
		case ir.OpRemoveNode:
			nodeAlive[d.Node] = false
		case ir.OpSetField:
			fields[fieldKey{d.Node, d.Name}] = d.Value
			touch(d.Node)
		case ir.OpCreateVariable:
			varAlive[d.Var] = true
		case ir.OpDeleteVariable:
			varAlive[d.Var] = false
		}
	}

	var fixes []ir.Delta
	for _, id := range touched {
		alive, ok := nodeAlive[id]
		if !ok {
			alive = e.graph.Alive(id)
		}
		if !alive {
			continue
		}
		raw, _ := e.graph.Raw(id)
		kind := raw.Kind
		if kind == "" {
			kind = kinds[id]
		}
		def, ok := e.catalog.Lookup(kind)
		if !ok {
			continue
		}
		for _, fd := range def.Fields {
			if fd.Type != catalog.FieldVariable {
				continue
			}
			value, ok := fields[fieldKey{id, fd.Name}]
			if !ok {
				value = raw.Fields[fd.Name]
			}
			s, ok := value.(ir.IRString)
			if !ok {
				continue
			}
			v := ir.VarID(s)
			live, ok := varAlive[v]
			if !ok {
				live = e.graph.VariableAlive(v)
			}
			if live {
				continue
			}
			dead, found := e.graph.RawVariable(v)
			if !found {
				continue
			}
			if other, ok := e.graph.VariableByName(dead.Name); ok {
				fixes = append(fixes, ir.Delta{Op: ir.OpSetField, Node: id, Name: fd.Name, Value: ir.IRString(other.ID)})
				continue
			}
			fixes = append(fixes, ir.Delta{Op: ir.OpCreateVariable, Var: v, Name: dead.Name})
			varAlive[v] = true
			e.logger.Debug("reviving variable referenced by restored node", "var", v, "node", id)
		}
	}
	return append(batch, fixes...)
}
