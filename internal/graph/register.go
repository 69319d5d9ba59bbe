package graph

import (
	"cmp"

	"github.com/roach88/geckode/internal/ir"
)

// tag totally orders register writes. Seq breaks ties between two deltas
// from the same actor that share a Lamport value.
type tag struct {
	stamp ir.Stamp
	seq   int64
}

func tagOf(d ir.Delta) tag {
	return tag{stamp: d.Stamp(), seq: d.Seq}
}

func (t tag) compare(o tag) int {
	if c := t.stamp.Compare(o.stamp); c != 0 {
		return c
	}
	return cmp.Compare(t.seq, o.seq)
}

// register is a last-writer-wins cell.
type register[T any] struct {
	at    tag
	value T
	set   bool
}

// write stores v if t is newer than the current write.
func (r *register[T]) write(t tag, v T) bool {
	if r.set && r.at.compare(t) >= 0 {
		return false
	}
	r.at, r.value, r.set = t, v, true
	return true
}

type nodeState struct {
	kind     string
	created  tag
	inserted bool
	alive    register[bool]
	fields   map[string]*register[ir.IRValue]
	slots    map[string]*register[ir.NodeID]
	next     register[ir.NodeID]
}

func newNodeState() *nodeState {
	return &nodeState{
		fields: make(map[string]*register[ir.IRValue]),
		slots:  make(map[string]*register[ir.NodeID]),
	}
}

// visible reports whether the node has been inserted and not removed.
func (n *nodeState) visible() bool {
	return n.inserted && n.alive.value
}

// noteInsert records the earliest insert as the creation stamp.
func (n *nodeState) noteInsert(t tag, kind string) {
	if !n.inserted || t.compare(n.created) < 0 {
		n.created = t
		n.kind = kind
	}
	n.inserted = true
}

type varState struct {
	created  tag
	inserted bool
	name     register[string]
	alive    register[bool]
}

func (v *varState) visible() bool {
	return v.inserted && v.alive.value
}

func (v *varState) noteCreate(t tag) {
	if !v.inserted || t.compare(v.created) < 0 {
		v.created = t
	}
	v.inserted = true
}
