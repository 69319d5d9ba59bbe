package ir

import "cmp"

// ActorID identifies one editing peer. Stable for the lifetime of a replica.
type ActorID string

// NodeID identifies a program node. Assigned once at creation, never reused.
type NodeID string

// VarID identifies a workspace variable. Stable across renames.
type VarID string

// Stamp is the causal token carried by every delta: a Lamport timestamp
// with the originating actor as tie-break.
type Stamp struct {
	Lamport int64   `json:"lamport" msgpack:"l"`
	Actor   ActorID `json:"actor" msgpack:"a"`
}

// Compare orders stamps by Lamport, then actor.
func (s Stamp) Compare(o Stamp) int {
	if c := cmp.Compare(s.Lamport, o.Lamport); c != 0 {
		return c
	}
	return cmp.Compare(s.Actor, o.Actor)
}

// Less reports whether s sorts before o.
func (s Stamp) Less(o Stamp) bool {
	return s.Compare(o) < 0
}

// IsZero reports whether s was never assigned.
func (s Stamp) IsZero() bool {
	return s.Lamport == 0 && s.Actor == ""
}

// Op names a replicated operation.
type Op string

const (
	OpInsertNode     Op = "insert_node"
	OpRemoveNode     Op = "remove_node"
	OpSetField       Op = "set_field"
	OpSetSlot        Op = "set_slot"
	OpSetNext        Op = "set_next"
	OpCreateVariable Op = "create_variable"
	OpRenameVariable Op = "rename_variable"
	OpDeleteVariable Op = "delete_variable"
)

// Valid reports whether op is one of the known operations.
func (op Op) Valid() bool {
	switch op {
	case OpInsertNode, OpRemoveNode, OpSetField, OpSetSlot, OpSetNext,
		OpCreateVariable, OpRenameVariable, OpDeleteVariable:
		return true
	}
	return false
}

// Delta is one atomic, replicable change to the program graph.
//
// Which payload fields are meaningful depends on Op:
//
//	insert_node      Node, Kind
//	remove_node      Node
//	set_field        Node, Name (field), Value (IRNull clears)
//	set_slot         Node, Name (slot), Target (empty clears)
//	set_next         Node, Target (empty clears)
//	create_variable  Var, Name
//	rename_variable  Var, Name
//	delete_variable  Var
type Delta struct {
	Actor   ActorID `json:"actor"`
	Seq     int64   `json:"seq"`
	Lamport int64   `json:"lamport"`
	Op      Op      `json:"op"`
	Node    NodeID  `json:"node,omitempty"`
	Kind    string  `json:"kind,omitempty"`
	Name    string  `json:"name,omitempty"`
	Value   IRValue `json:"value,omitempty"`
	Target  NodeID  `json:"target,omitempty"`
	Var     VarID   `json:"var,omitempty"`
}

// Stamp returns the delta's causal token.
func (d Delta) Stamp() Stamp {
	return Stamp{Lamport: d.Lamport, Actor: d.Actor}
}

// Key returns the delta's identity.
func (d Delta) Key() DeltaKey {
	return DeltaKey{Actor: d.Actor, Seq: d.Seq}
}

// Unstamped returns a copy with actor, seq and Lamport cleared.
// Undo records keep their batches in this form.
func (d Delta) Unstamped() Delta {
	d.Actor, d.Seq, d.Lamport = "", 0, 0
	return d
}

// DeltaKey is the identity of a delta: (Actor, Seq).
type DeltaKey struct {
	Actor ActorID
	Seq   int64
}

// CompareDeltas orders deltas by (Lamport, Actor, Seq). This is the order
// DiffSince returns and the order replay uses.
func CompareDeltas(a, b Delta) int {
	if c := a.Stamp().Compare(b.Stamp()); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// Version is a version vector: for each actor, the highest Seq such that
// every delta 1..Seq from that actor has been applied.
type Version map[ActorID]int64

// Clone returns an independent copy.
func (v Version) Clone() Version {
	out := make(Version, len(v))
	for a, s := range v {
		out[a] = s
	}
	return out
}

// Covers reports whether the delta identified by (actor, seq) is included.
func (v Version) Covers(actor ActorID, seq int64) bool {
	return seq <= v[actor]
}

// Dominates reports whether v includes everything o includes.
func (v Version) Dominates(o Version) bool {
	for a, s := range o {
		if v[a] < s {
			return false
		}
	}
	return true
}

// NodeRef points at the slot (or next link) holding a node.
type NodeRef struct {
	ID   NodeID `json:"id"`
	Slot string `json:"slot,omitempty"`
	Next bool   `json:"next,omitempty"`
}

// NodeView is a resolved, read-only view of one live node.
// Fields holds only non-cleared values; Slots only occupied slots.
type NodeView struct {
	ID      NodeID             `json:"id"`
	Kind    string             `json:"kind"`
	Fields  map[string]IRValue `json:"fields,omitempty"`
	Slots   map[string]NodeID  `json:"slots,omitempty"`
	Next    NodeID             `json:"next,omitempty"`
	Parent  *NodeRef           `json:"parent,omitempty"`
	Created Stamp              `json:"created"`
}

// Field returns the named field value or IRNull.
func (n NodeView) Field(name string) IRValue {
	if v, ok := n.Fields[name]; ok {
		return v
	}
	return IRNull{}
}

// VariableView is the resolved state of one live variable.
// Name is the display name after collision resolution; Base is the
// replicated name register.
type VariableView struct {
	ID   VarID  `json:"id"`
	Name string `json:"name"`
	Base string `json:"base,omitempty"`
}

// Presence is ephemeral per-actor UI state. Never part of program state.
type Presence struct {
	Actor    ActorID `json:"actor" msgpack:"actor"`
	Seq      int64   `json:"seq" msgpack:"seq"`
	Selected NodeID  `json:"selected,omitempty" msgpack:"selected,omitempty"`
	CursorX  int64   `json:"cursor_x" msgpack:"x"`
	CursorY  int64   `json:"cursor_y" msgpack:"y"`
	Gone     bool    `json:"gone,omitempty" msgpack:"gone,omitempty"`
}
