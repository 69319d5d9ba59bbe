package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/geckode/internal/catalog"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/registry"
)

// plan validates an intent and builds its unstamped forward batch.
func (e *Engine) plan(in Intent) ([]ir.Delta, error) {
	switch it := in.(type) {
	case CreateNode:
		return e.planCreateNode(it)
	case DeleteNode:
		return e.planDeleteNode(it)
	case SetField:
		return e.planSetField(it)
	case Connect:
		return e.planConnect(it)
	case ConnectNext:
		return e.planConnectNext(it)
	case Disconnect:
		return e.planDisconnect(it)
	case CreateVariable:
		return e.planCreateVariable(it)
	case RenameVariable:
		return e.planRenameVariable(it)
	case DeleteVariable:
		return e.planDeleteVariable(it)
	case SetVariableField:
		return e.planSetVariableField(it)
	default:
		return nil, &EditError{Code: ErrCodeRejectedEdit, Message: fmt.Sprintf("unknown intent %T", in)}
	}
}

// live returns the view and definition of a live node.
func (e *Engine) live(in Intent, id ir.NodeID) (ir.NodeView, *catalog.BlockDef, error) {
	v, ok := e.graph.Read(id)
	if !ok {
		return ir.NodeView{}, nil, rejected(in, "node %s does not exist", id)
	}
	def, ok := e.catalog.Lookup(v.Kind)
	if !ok {
		return ir.NodeView{}, nil, rejected(in, "node %s has unknown kind %q", id, v.Kind)
	}
	return v, def, nil
}

func (e *Engine) checkFieldValue(in Intent, def *catalog.BlockDef, name string, value ir.IRValue) error {
	fd, ok := def.Field(name)
	if !ok {
		return rejected(in, "%s has no field %s", def.Type, name)
	}
	if err := catalog.CheckField(fd, value); err != nil {
		return rejectedBy(in, err)
	}
	if ir.IsNull(value) {
		return nil
	}
	switch fd.Type {
	case catalog.FieldVariable:
		if id := ir.VarID(value.(ir.IRString)); !e.graph.VariableAlive(id) {
			return rejected(in, "variable %s does not exist", id)
		}
	case catalog.FieldEntity:
		id := string(value.(ir.IRString))
		if e.registry != nil && id != registry.FallbackEntityID {
			if _, ok := e.registry.View().Lookup(id); !ok {
				return rejected(in, "entity %s is not registered", id)
			}
		}
	}
	return nil
}

func (e *Engine) planCreateNode(in CreateNode) ([]ir.Delta, error) {
	def, ok := e.catalog.Lookup(in.Kind)
	if !ok {
		return nil, rejected(in, "unknown kind %q", in.Kind)
	}
	if in.Parent != "" && in.After != "" {
		return nil, rejected(in, "parent and after are mutually exclusive")
	}
	id := in.ID
	if id == "" {
		id = ir.NodeID(e.ids.Generate())
	}
	if raw, ok := e.graph.Raw(id); ok && raw.Inserted {
		return nil, rejected(in, "node id %s already in use", id)
	}

	batch := []ir.Delta{{Op: ir.OpInsertNode, Node: id, Kind: in.Kind}}

	names := make([]string, 0, len(in.Fields))
	for name := range in.Fields {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := e.checkFieldValue(in, def, name, in.Fields[name]); err != nil {
			return nil, err
		}
		batch = append(batch, ir.Delta{Op: ir.OpSetField, Node: id, Name: name, Value: in.Fields[name]})
	}

	switch {
	case in.Parent != "":
		parent, pdef, err := e.live(in, in.Parent)
		if err != nil {
			return nil, err
		}
		if err := catalog.CheckSlot(pdef, in.Slot, def); err != nil {
			return nil, rejectedBy(in, err)
		}
		batch = append(batch, e.place(nil, ir.NodeView{ID: id, Kind: in.Kind}, ir.NodeRef{ID: parent.ID, Slot: in.Slot}, parent, pdef)...)
	case in.After != "":
		prev, pdef, err := e.live(in, in.After)
		if err != nil {
			return nil, err
		}
		if err := catalog.CheckNext(pdef, def); err != nil {
			return nil, rejectedBy(in, err)
		}
		batch = append(batch, e.place(nil, ir.NodeView{ID: id, Kind: in.Kind}, ir.NodeRef{ID: prev.ID, Next: true}, prev, pdef)...)
	}
	return batch, nil
}

func (e *Engine) planDeleteNode(in DeleteNode) ([]ir.Delta, error) {
	v, _, err := e.live(in, in.ID)
	if err != nil {
		return nil, err
	}

	var batch []ir.Delta
	for _, id := range e.subtree(v) {
		batch = append(batch, ir.Delta{Op: ir.OpRemoveNode, Node: id})
	}
	if v.Parent != nil && v.Next != "" {
		batch = append(batch, setPosition(*v.Parent, v.Next))
	}
	return batch, nil
}

// subtree lists a node and everything nested in its slots, slot chains
// included. The node's own next chain is not part of it.
func (e *Engine) subtree(root ir.NodeView) []ir.NodeID {
	seen := make(map[ir.NodeID]bool)
	var out []ir.NodeID
	var walk func(v ir.NodeView, withNext bool)
	walk = func(v ir.NodeView, withNext bool) {
		if seen[v.ID] {
			return
		}
		seen[v.ID] = true
		out = append(out, v.ID)
		slots := make([]string, 0, len(v.Slots))
		for s := range v.Slots {
			slots = append(slots, s)
		}
		slices.Sort(slots)
		for _, s := range slots {
			if child, ok := e.graph.Read(v.Slots[s]); ok {
				walk(child, true)
			}
		}
		if withNext && v.Next != "" {
			if next, ok := e.graph.Read(v.Next); ok {
				walk(next, true)
			}
		}
	}
	walk(root, false)
	return out
}

func (e *Engine) planSetField(in SetField) ([]ir.Delta, error) {
	_, def, err := e.live(in, in.Node)
	if err != nil {
		return nil, err
	}
	value := in.Value
	if value == nil {
		value = ir.IRNull{}
	}
	if err := e.checkFieldValue(in, def, in.Name, value); err != nil {
		return nil, err
	}
	return []ir.Delta{{Op: ir.OpSetField, Node: in.Node, Name: in.Name, Value: value}}, nil
}

func (e *Engine) planConnect(in Connect) ([]ir.Delta, error) {
	parent, pdef, err := e.live(in, in.Parent)
	if err != nil {
		return nil, err
	}
	child, cdef, err := e.live(in, in.Child)
	if err != nil {
		return nil, err
	}
	if err := catalog.CheckSlot(pdef, in.Slot, cdef); err != nil {
		return nil, rejectedBy(in, err)
	}
	if child.ID == parent.ID || e.graph.IsAncestor(child.ID, parent.ID) {
		return nil, rejected(in, "connecting %s into %s would create a cycle", child.ID, parent.ID)
	}
	return e.place(&child, child, ir.NodeRef{ID: parent.ID, Slot: in.Slot}, parent, pdef), nil
}

func (e *Engine) planConnectNext(in ConnectNext) ([]ir.Delta, error) {
	prev, pdef, err := e.live(in, in.Prev)
	if err != nil {
		return nil, err
	}
	next, ndef, err := e.live(in, in.Next)
	if err != nil {
		return nil, err
	}
	if err := catalog.CheckNext(pdef, ndef); err != nil {
		return nil, rejectedBy(in, err)
	}
	if next.ID == prev.ID || e.graph.IsAncestor(next.ID, prev.ID) {
		return nil, rejected(in, "connecting %s after %s would create a cycle", next.ID, prev.ID)
	}
	return e.place(&next, next, ir.NodeRef{ID: prev.ID, Next: true}, prev, pdef), nil
}

func (e *Engine) planDisconnect(in Disconnect) ([]ir.Delta, error) {
	child, _, err := e.live(in, in.Child)
	if err != nil {
		return nil, err
	}
	if child.Parent == nil {
		return nil, rejected(in, "node %s is not connected", child.ID)
	}
	return []ir.Delta{setPosition(*child.Parent, "")}, nil
}

// place builds the deltas that put child (with its chain) at pos. existing
// is nil for a node created in the same batch. A statement displaced from
// pos is re-attached after the moved chain's tail when the tail allows a
// next link; otherwise it is left detached.
func (e *Engine) place(existing *ir.NodeView, child ir.NodeView, pos ir.NodeRef, holder ir.NodeView, holderDef *catalog.BlockDef) []ir.Delta {
	var batch []ir.Delta
	if existing != nil && existing.Parent != nil {
		if *existing.Parent == pos {
			return nil
		}
		batch = append(batch, setPosition(*existing.Parent, ""))
	}

	var occupant ir.NodeID
	statementPos := pos.Next
	if pos.Next {
		occupant = holder.Next
	} else {
		occupant = holder.Slots[pos.Slot]
		if sd, ok := holderDef.Slot(pos.Slot); ok && sd.Kind == catalog.SlotStatement {
			statementPos = true
		}
	}
	batch = append(batch, setPosition(pos, child.ID))

	if occupant == "" || occupant == child.ID || !statementPos {
		return batch
	}
	tail, tailKind := e.chainTail(existing, child)
	if tailDef, ok := e.catalog.Lookup(tailKind); ok && tailDef.HasNext {
		batch = append(batch, ir.Delta{Op: ir.OpSetNext, Node: tail, Target: occupant})
	}
	return batch
}

// chainTail follows next links from child to the last statement.
func (e *Engine) chainTail(existing *ir.NodeView, child ir.NodeView) (ir.NodeID, string) {
	if existing == nil {
		return child.ID, child.Kind
	}
	cur := child
	seen := map[ir.NodeID]bool{cur.ID: true}
	for cur.Next != "" {
		next, ok := e.graph.Read(cur.Next)
		if !ok || seen[next.ID] {
			break
		}
		seen[next.ID] = true
		cur = next
	}
	return cur.ID, cur.Kind
}

func setPosition(pos ir.NodeRef, target ir.NodeID) ir.Delta {
	if pos.Next {
		return ir.Delta{Op: ir.OpSetNext, Node: pos.ID, Target: target}
	}
	return ir.Delta{Op: ir.OpSetSlot, Node: pos.ID, Name: pos.Slot, Target: target}
}

// nameInUse reports whether name is displayed by, or is the base name of,
// any live variable other than except.
func (e *Engine) nameInUse(name string, except ir.VarID) bool {
	for _, v := range e.graph.Variables() {
		if v.ID != except && (v.Name == name || v.Base == name) {
			return true
		}
	}
	return false
}

func (e *Engine) planCreateVariable(in CreateVariable) ([]ir.Delta, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, rejected(in, "variable name is empty")
	}
	if e.nameInUse(name, "") {
		return nil, rejected(in, "variable name %q already in use", name)
	}
	id := in.ID
	if id == "" {
		id = ir.VarID(e.ids.Generate())
	}
	if raw, ok := e.graph.RawVariable(id); ok && raw.Inserted {
		return nil, rejected(in, "variable id %s already in use", id)
	}
	return []ir.Delta{{Op: ir.OpCreateVariable, Var: id, Name: name}}, nil
}

func (e *Engine) planRenameVariable(in RenameVariable) ([]ir.Delta, error) {
	if !e.graph.VariableAlive(in.ID) {
		return nil, rejected(in, "variable %s does not exist", in.ID)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, rejected(in, "variable name is empty")
	}
	if e.nameInUse(name, in.ID) {
		return nil, rejected(in, "variable name %q already in use", name)
	}
	return []ir.Delta{{Op: ir.OpRenameVariable, Var: in.ID, Name: name}}, nil
}

func (e *Engine) planDeleteVariable(in DeleteVariable) ([]ir.Delta, error) {
	if !e.graph.VariableAlive(in.ID) {
		return nil, rejected(in, "variable %s does not exist", in.ID)
	}
	refs := e.References(in.ID)
	if len(refs) > 0 && !in.Cascade {
		return nil, rejected(in, "variable %s is referenced by %d field(s)", in.ID, len(refs))
	}

	batch := make([]ir.Delta, 0, len(refs)+1)
	for _, ref := range refs {
		batch = append(batch, ir.Delta{Op: ir.OpSetField, Node: ref.Node, Name: ref.Field, Value: ir.IRNull{}})
	}
	return append(batch, ir.Delta{Op: ir.OpDeleteVariable, Var: in.ID}), nil
}

func (e *Engine) planSetVariableField(in SetVariableField) ([]ir.Delta, error) {
	_, def, err := e.live(in, in.Node)
	if err != nil {
		return nil, err
	}
	fd, ok := def.Field(in.Name)
	if !ok || fd.Type != catalog.FieldVariable {
		return nil, rejected(in, "%s has no variable field %s", def.Type, in.Name)
	}
	name := strings.TrimSpace(in.VarName)
	if name == "" {
		return nil, rejected(in, "variable name is empty")
	}

	if v, ok := e.graph.VariableByName(name); ok {
		return []ir.Delta{{Op: ir.OpSetField, Node: in.Node, Name: in.Name, Value: ir.IRString(v.ID)}}, nil
	}
	if e.nameInUse(name, "") {
		return nil, rejected(in, "variable name %q already in use", name)
	}
	id := ir.VarID(e.ids.Generate())
	return []ir.Delta{
		{Op: ir.OpCreateVariable, Var: id, Name: name},
		{Op: ir.OpSetField, Node: in.Node, Name: in.Name, Value: ir.IRString(id)},
	}, nil
}

// Reference is one variable field pointing at a variable.
type Reference struct {
	Node  ir.NodeID
	Field string
}

// References lists the live variable fields that point at id, in node
// creation order.
func (e *Engine) References(id ir.VarID) []Reference {
	var refs []Reference
	for _, n := range e.graph.Nodes() {
		def, ok := e.catalog.Lookup(n.Kind)
		if !ok {
			continue
		}
		for _, fd := range def.Fields {
			if fd.Type != catalog.FieldVariable {
				continue
			}
			if s, ok := n.Fields[fd.Name].(ir.IRString); ok && ir.VarID(s) == id {
				refs = append(refs, Reference{Node: n.ID, Field: fd.Name})
			}
		}
	}
	return refs
}
