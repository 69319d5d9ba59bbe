package graph

import (
	"github.com/roach88/geckode/internal/ir"
)

// Snapshot is an immutable, fully resolved copy of the graph. The code
// generator reads one per pass and never observes a concurrent write.
type Snapshot struct {
	nodes   map[ir.NodeID]ir.NodeView
	order   []ir.NodeID
	vars    []ir.VariableView
	version ir.Version
	cycles  [][]ir.NodeID
	inCycle map[ir.NodeID]bool
}

// Snapshot copies the current resolved state.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	views := g.liveViews()
	vars := g.variableViews()
	version := g.version.Clone()
	g.mu.RUnlock()

	s := &Snapshot{
		nodes:   make(map[ir.NodeID]ir.NodeView, len(views)),
		order:   make([]ir.NodeID, 0, len(views)),
		vars:    vars,
		version: version,
		inCycle: make(map[ir.NodeID]bool),
	}
	for _, v := range views {
		s.nodes[v.ID] = v
		s.order = append(s.order, v.ID)
	}
	s.cycles = detectCycles(edgesOf(s.nodes))
	for _, c := range s.cycles {
		for _, id := range c {
			s.inCycle[id] = true
		}
	}
	return s
}

// Read returns a live node.
func (s *Snapshot) Read(id ir.NodeID) (ir.NodeView, bool) {
	v, ok := s.nodes[id]
	return v, ok
}

// Nodes returns live nodes in creation order.
func (s *Snapshot) Nodes() []ir.NodeView {
	out := make([]ir.NodeView, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id])
	}
	return out
}

// Roots returns live nodes without a parent, in creation order.
func (s *Snapshot) Roots() []ir.NodeView {
	var out []ir.NodeView
	for _, id := range s.order {
		if v := s.nodes[id]; v.Parent == nil {
			out = append(out, v)
		}
	}
	return out
}

// Variables returns live variables with resolved display names.
func (s *Snapshot) Variables() []ir.VariableView {
	out := make([]ir.VariableView, len(s.vars))
	copy(out, s.vars)
	return out
}

// Variable returns a live variable by id.
func (s *Snapshot) Variable(id ir.VarID) (ir.VariableView, bool) {
	for _, v := range s.vars {
		if v.ID == id {
			return v, true
		}
	}
	return ir.VariableView{}, false
}

// Version returns the version vector the snapshot was taken at.
func (s *Snapshot) Version() ir.Version {
	return s.version.Clone()
}

// Cycles returns structural cycles, each sorted, in sorted order.
func (s *Snapshot) Cycles() [][]ir.NodeID {
	return s.cycles
}

// InCycle reports whether id is part of a structural cycle.
func (s *Snapshot) InCycle(id ir.NodeID) bool {
	return s.inCycle[id]
}
