package graph

import (
	"slices"

	"github.com/roach88/geckode/internal/ir"
)

// edges maps parent -> resolved children (slots and next).
type edges map[ir.NodeID][]ir.NodeID

func edgesOf(nodes map[ir.NodeID]ir.NodeView) edges {
	e := make(edges, len(nodes))
	for id, v := range nodes {
		children := make([]ir.NodeID, 0, len(v.Slots)+1)
		for _, c := range v.Slots {
			children = append(children, c)
		}
		if v.Next != "" {
			children = append(children, v.Next)
		}
		slices.Sort(children)
		e[id] = children
	}
	return e
}

// detectCycles returns the strongly connected components of the resolved
// structure that form cycles. Concurrent moves can produce them (A into B
// on one peer, B into A on another); nodes in a cycle are unreachable from
// any root and are skipped by traversal.
func detectCycles(e edges) [][]ir.NodeID {
	var cycles [][]ir.NodeID
	for _, scc := range tarjanSCC(e) {
		if len(scc) > 1 || slices.Contains(e[scc[0]], scc[0]) {
			slices.Sort(scc)
			cycles = append(cycles, scc)
		}
	}
	slices.SortFunc(cycles, func(a, b []ir.NodeID) int {
		return slices.Compare(a, b)
	})
	return cycles
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
func tarjanSCC(e edges) [][]ir.NodeID {
	var (
		index   = 0
		stack   []ir.NodeID
		indices = make(map[ir.NodeID]int)
		lowlink = make(map[ir.NodeID]int)
		onStack = make(map[ir.NodeID]bool)
		sccs    [][]ir.NodeID
	)

	var strongConnect func(ir.NodeID)
	strongConnect = func(v ir.NodeID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range e[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []ir.NodeID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	ids := make([]ir.NodeID, 0, len(e))
	for id := range e {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}
	return sccs
}

// DetectCycles reports cycles in the current resolved structure.
func (g *Graph) DetectCycles() [][]ir.NodeID {
	return g.Snapshot().Cycles()
}

// IsAncestor reports whether anc lies on the parent chain of id. Used by
// the mutation engine to refuse connections that would close a loop.
func (g *Graph) IsAncestor(anc, id ir.NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[ir.NodeID]bool)
	for cur := id; cur != "" && !seen[cur]; {
		if cur == anc {
			return true
		}
		seen[cur] = true
		p, ok := g.parents[cur]
		if !ok {
			return false
		}
		cur = p.ID
	}
	return false
}
