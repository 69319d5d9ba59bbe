package codegen

import (
	"fmt"

	"github.com/roach88/geckode/internal/ir"
)

// ScopeError reports a scope that could not be generated. Only that scope
// is dropped from the output.
type ScopeError struct {
	Entity   string
	Event    string
	Function string
	Root     ir.NodeID
	// Node is the node that failed, which may be a descendant of Root.
	Node   ir.NodeID
	Reason string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("generate %s (%s/%s): node %s: %s", e.Function, e.Entity, e.Event, e.Node, e.Reason)
}

// renderError is raised inside template execution and turned into a
// ScopeError by the pass.
type renderError struct {
	node   ir.NodeID
	reason string
}

func (e *renderError) Error() string {
	return fmt.Sprintf("node %s: %s", e.node, e.reason)
}
