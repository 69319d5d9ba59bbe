package engine

import "github.com/roach88/geckode/internal/ir"

// Intent is a sealed interface over local editing intents. One intent is
// one undoable step.
type Intent interface {
	Op() string
	intent()
}

// CreateNode inserts a node, optionally with initial field values and a
// placement. With Parent and Slot set the node goes into that slot; with
// After set it follows that statement. ID is generated when empty.
type CreateNode struct {
	ID     ir.NodeID
	Kind   string
	Fields map[string]ir.IRValue
	Parent ir.NodeID
	Slot   string
	After  ir.NodeID
}

// DeleteNode removes a node and everything nested in its slots. The
// statement that followed it takes its place.
type DeleteNode struct {
	ID ir.NodeID
}

// SetField writes one field. ir.IRNull clears it.
type SetField struct {
	Node  ir.NodeID
	Name  string
	Value ir.IRValue
}

// Connect moves Child, with the statements chained after it, into
// Parent's slot. A statement already in the slot is re-attached after the
// moved chain when possible; otherwise it is detached.
type Connect struct {
	Parent ir.NodeID
	Slot   string
	Child  ir.NodeID
}

// ConnectNext moves Next, with its chain, to follow Prev.
type ConnectNext struct {
	Prev ir.NodeID
	Next ir.NodeID
}

// Disconnect detaches Child (and its chain) from its parent.
type Disconnect struct {
	Child ir.NodeID
}

// CreateVariable adds a workspace variable. ID is generated when empty.
type CreateVariable struct {
	ID   ir.VarID
	Name string
}

// RenameVariable changes a variable's display name.
type RenameVariable struct {
	ID   ir.VarID
	Name string
}

// DeleteVariable removes a variable. Without Cascade it is refused while
// any node references the variable; with Cascade every reference is
// cleared in the same step.
type DeleteVariable struct {
	ID      ir.VarID
	Cascade bool
}

// SetVariableField points a variable field at the variable displayed as
// VarName, creating the variable first if none exists.
type SetVariableField struct {
	Node    ir.NodeID
	Name    string
	VarName string
}

func (CreateNode) Op() string       { return "create_node" }
func (DeleteNode) Op() string       { return "delete_node" }
func (SetField) Op() string         { return "set_field" }
func (Connect) Op() string          { return "connect" }
func (ConnectNext) Op() string      { return "connect_next" }
func (Disconnect) Op() string       { return "disconnect" }
func (CreateVariable) Op() string   { return "create_variable" }
func (RenameVariable) Op() string   { return "rename_variable" }
func (DeleteVariable) Op() string   { return "delete_variable" }
func (SetVariableField) Op() string { return "set_variable_field" }

func (CreateNode) intent()       {}
func (DeleteNode) intent()       {}
func (SetField) intent()         {}
func (Connect) intent()          {}
func (ConnectNext) intent()      {}
func (Disconnect) intent()       {}
func (CreateVariable) intent()   {}
func (RenameVariable) intent()   {}
func (DeleteVariable) intent()   {}
func (SetVariableField) intent() {}
