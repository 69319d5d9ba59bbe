package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geckode/internal/catalog"
	"github.com/roach88/geckode/internal/graph"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/registry"
)

func newEngine(t *testing.T, actor ir.ActorID, opts ...Option) (*Engine, *graph.Graph) {
	t.Helper()
	g := graph.New()
	return New(g, catalog.MustLoad(), actor, opts...), g
}

func perform(t *testing.T, e *Engine, in Intent) []ir.Delta {
	t.Helper()
	out, err := e.Perform(in)
	require.NoError(t, err)
	return out
}

// syncGraphs ships everything dst is missing from src.
func syncGraphs(t *testing.T, src, dst *graph.Graph) {
	t.Helper()
	_, err := dst.ApplyRemote(src.DiffSince(dst.Version()))
	require.NoError(t, err)
}

func read(t *testing.T, g *graph.Graph, id ir.NodeID) ir.NodeView {
	t.Helper()
	v, ok := g.Read(id)
	require.True(t, ok, "node %s should be live", id)
	return v
}

func TestCreateNodeIntoSlot(t *testing.T) {
	e, g := newEngine(t, "alice")
	perform(t, e, CreateNode{ID: "e1", Kind: "onStart"})
	out := perform(t, e, CreateNode{
		ID:     "s1",
		Kind:   "setProperty",
		Fields: map[string]ir.IRValue{"PROPERTY": ir.IRString("X")},
		Parent: "e1",
		Slot:   "INNER",
	})

	for i, d := range out {
		assert.Equal(t, ir.ActorID("alice"), d.Actor)
		assert.Equal(t, int64(i+2), d.Seq)
	}
	assert.Equal(t, ir.NodeID("s1"), read(t, g, "e1").Slots["INNER"])
	s1 := read(t, g, "s1")
	require.NotNil(t, s1.Parent)
	assert.Equal(t, ir.NodeRef{ID: "e1", Slot: "INNER"}, *s1.Parent)
	assert.Equal(t, ir.IRString("X"), s1.Field("PROPERTY"))
}

func TestRejectedEditsLeaveGraphUntouched(t *testing.T) {
	e, g := newEngine(t, "alice")
	perform(t, e, CreateNode{ID: "e1", Kind: "onStart"})
	perform(t, e, CreateNode{ID: "n1", Kind: "math_number"})

	tests := []struct {
		name string
		in   Intent
	}{
		{"unknown kind", CreateNode{ID: "x", Kind: "teleport"}},
		{"duplicate id", CreateNode{ID: "n1", Kind: "math_number"}},
		{"parent and after", CreateNode{ID: "x", Kind: "consoleLog", Parent: "e1", Slot: "INNER", After: "e1"}},
		{"event into slot", CreateNode{ID: "x", Kind: "onUpdate", Parent: "e1", Slot: "INNER"}},
		{"value into statement slot", Connect{Parent: "e1", Slot: "INNER", Child: "n1"}},
		{"unknown option", CreateNode{ID: "x", Kind: "setProperty", Fields: map[string]ir.IRValue{"PROPERTY": ir.IRString("Z")}}},
		{"wrong field type", SetField{Node: "n1", Name: "NUM", Value: ir.IRString("one")}},
		{"unknown field", SetField{Node: "n1", Name: "NOPE", Value: ir.IRInt(1)}},
		{"missing node", SetField{Node: "ghost", Name: "NUM", Value: ir.IRInt(1)}},
		{"missing variable", CreateNode{ID: "x", Kind: "variables_get", Fields: map[string]ir.IRValue{"VAR": ir.IRString("v9")}}},
		{"disconnect root", Disconnect{Child: "e1"}},
		{"empty variable name", CreateVariable{ID: "v1", Name: "  "}},
		{"rename missing variable", RenameVariable{ID: "v9", Name: "score"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := g.Version()
			_, err := e.Perform(tt.in)
			require.Error(t, err)
			assert.True(t, IsRejectedEdit(err), "got %v", err)
			assert.Equal(t, before, g.Version())
		})
	}
}

func TestEntityFieldChecksRegistry(t *testing.T) {
	reg := registry.New()
	reg.Update([]registry.Entity{{ID: "e-hero", Label: "Hero"}})
	e, _ := newEngine(t, "alice", WithRegistry(reg))

	perform(t, e, CreateNode{ID: "p1", Kind: "getPropertyOf", Fields: map[string]ir.IRValue{"ENTITY": ir.IRString("e-hero")}})
	perform(t, e, SetField{Node: "p1", Name: "ENTITY", Value: ir.IRString(registry.FallbackEntityID)})

	_, err := e.Perform(SetField{Node: "p1", Name: "ENTITY", Value: ir.IRString("e-ghost")})
	assert.True(t, IsRejectedEdit(err))
}

func TestInsertingIntoOccupiedSlotChainsOccupant(t *testing.T) {
	e, g := newEngine(t, "alice")
	perform(t, e, CreateNode{ID: "e1", Kind: "onStart"})
	perform(t, e, CreateNode{ID: "s1", Kind: "consoleLog", Parent: "e1", Slot: "INNER"})
	perform(t, e, CreateNode{ID: "s2", Kind: "runJS", Parent: "e1", Slot: "INNER"})

	assert.Equal(t, ir.NodeID("s2"), read(t, g, "e1").Slots["INNER"])
	assert.Equal(t, ir.NodeID("s1"), read(t, g, "s2").Next)
}

func TestConnectMovesChainAndKeepsDisplacedStatement(t *testing.T) {
	e, g := newEngine(t, "alice")
	perform(t, e, CreateNode{ID: "e1", Kind: "onStart"})
	perform(t, e, CreateNode{ID: "a", Kind: "consoleLog", Parent: "e1", Slot: "INNER"})
	perform(t, e, CreateNode{ID: "x", Kind: "runJS"})
	perform(t, e, CreateNode{ID: "y", Kind: "runJS", After: "x"})

	perform(t, e, Connect{Parent: "e1", Slot: "INNER", Child: "x"})

	assert.Equal(t, ir.NodeID("x"), read(t, g, "e1").Slots["INNER"])
	assert.Equal(t, ir.NodeID("y"), read(t, g, "x").Next)
	assert.Equal(t, ir.NodeID("a"), read(t, g, "y").Next)
}

func TestConnectSamePositionIsNoop(t *testing.T) {
	e, _ := newEngine(t, "alice")
	perform(t, e, CreateNode{ID: "e1", Kind: "onStart"})
	perform(t, e, CreateNode{ID: "s1", Kind: "consoleLog", Parent: "e1", Slot: "INNER"})

	out, err := e.Perform(Connect{Parent: "e1", Slot: "INNER", Child: "s1"})
	require.NoError(t, err)
	assert.Nil(t, out)

	require.True(t, e.Undo())
	require.True(t, e.Undo())
	assert.False(t, e.Undo())
}

func TestConnectRejectsCycles(t *testing.T) {
	e, _ := newEngine(t, "alice")
	perform(t, e, CreateNode{ID: "c1", Kind: "controls_if"})
	perform(t, e, CreateNode{ID: "c2", Kind: "controls_if", Parent: "c1", Slot: "DO0"})
	perform(t, e, CreateNode{ID: "s1", Kind: "consoleLog", After: "c2"})

	_, err := e.Perform(Connect{Parent: "c2", Slot: "DO0", Child: "c1"})
	assert.True(t, IsRejectedEdit(err))

	_, err = e.Perform(ConnectNext{Prev: "s1", Next: "c1"})
	assert.True(t, IsRejectedEdit(err))

	_, err = e.Perform(ConnectNext{Prev: "s1", Next: "s1"})
	assert.True(t, IsRejectedEdit(err))
}

func TestDeleteNodeRemovesSubtreeAndHealsChain(t *testing.T) {
	e, g := newEngine(t, "alice")
	perform(t, e, CreateNode{ID: "e1", Kind: "onStart"})
	perform(t, e, CreateNode{ID: "s1", Kind: "consoleLog", Parent: "e1", Slot: "INNER"})
	perform(t, e, CreateNode{ID: "c1", Kind: "controls_if", After: "s1"})
	perform(t, e, CreateNode{ID: "inner", Kind: "runJS", Parent: "c1", Slot: "DO0"})
	perform(t, e, CreateNode{ID: "cond", Kind: "keyPressed", Parent: "c1", Slot: "IF0"})
	perform(t, e, CreateNode{ID: "s3", Kind: "runJS", After: "c1"})

	perform(t, e, DeleteNode{ID: "c1"})

	for _, id := range []ir.NodeID{"c1", "inner", "cond"} {
		assert.False(t, g.Alive(id), "%s should be removed", id)
	}
	assert.Equal(t, ir.NodeID("s3"), read(t, g, "s1").Next)

	require.True(t, e.Undo())
	for _, id := range []ir.NodeID{"c1", "inner", "cond"} {
		assert.True(t, g.Alive(id), "%s should be restored", id)
	}
	assert.Equal(t, ir.NodeID("c1"), read(t, g, "s1").Next)
	assert.Equal(t, ir.NodeID("s3"), read(t, g, "c1").Next)
	assert.Equal(t, ir.NodeID("inner"), read(t, g, "c1").Slots["DO0"])
}

func TestUndoRedoRestoresExactState(t *testing.T) {
	e, g := newEngine(t, "alice", WithIDGenerator(NewFixedGenerator("v-gen")))

	steps := []Intent{
		CreateNode{ID: "e1", Kind: "onUpdate"},
		CreateNode{ID: "s1", Kind: "variables_set", Parent: "e1", Slot: "INNER"},
		SetVariableField{Node: "s1", Name: "VAR", VarName: "score"},
		CreateNode{ID: "n1", Kind: "math_number", Fields: map[string]ir.IRValue{"NUM": ir.IRInt(3)}, Parent: "s1", Slot: "VALUE"},
		SetField{Node: "n1", Name: "NUM", Value: ir.IRInt(7)},
		RenameVariable{ID: "v-gen", Name: "points"},
		Disconnect{Child: "n1"},
		CreateNode{ID: "s2", Kind: "runJS", Parent: "e1", Slot: "INNER"},
		DeleteNode{ID: "s1"},
	}

	type state struct {
		nodes []ir.NodeView
		vars  []ir.VariableView
	}
	capture := func() state { return state{g.Nodes(), g.Variables()} }

	history := []state{capture()}
	for _, in := range steps {
		perform(t, e, in)
		history = append(history, capture())
	}

	for i := len(steps) - 1; i >= 0; i-- {
		require.True(t, e.Undo())
		assert.Equal(t, history[i], capture(), "after undoing %s", steps[i].Op())
	}
	assert.False(t, e.Undo())

	for i := range steps {
		require.True(t, e.Redo())
		assert.Equal(t, history[i+1], capture(), "after redoing %s", steps[i].Op())
	}
	assert.False(t, e.Redo())
}

func TestUndoOnlyRevertsOwnEditUnderConcurrentRemoteEdit(t *testing.T) {
	alice, ga := newEngine(t, "alice")
	bob, gb := newEngine(t, "bob")

	perform(t, bob, CreateNode{ID: "m", Kind: "math_number"})
	syncGraphs(t, gb, ga)

	perform(t, alice, CreateNode{ID: "n", Kind: "math_number"})
	perform(t, alice, SetField{Node: "n", Name: "NUM", Value: ir.IRInt(1)})

	perform(t, bob, SetField{Node: "m", Name: "NUM", Value: ir.IRInt(5)})
	syncGraphs(t, gb, ga)

	require.True(t, alice.Undo())
	syncGraphs(t, ga, gb)

	for _, g := range []*graph.Graph{ga, gb} {
		assert.Equal(t, ir.IRNull{}, read(t, g, "n").Field("NUM"))
		assert.Equal(t, ir.IRInt(5), read(t, g, "m").Field("NUM"))
	}

	require.True(t, alice.Undo())
	syncGraphs(t, ga, gb)
	assert.False(t, gb.Alive("n"))
	assert.True(t, gb.Alive("m"))
	assert.Equal(t, ga.Version(), gb.Version())
}

func TestUndoIsNoopWhenPeerDeletedTarget(t *testing.T) {
	alice, ga := newEngine(t, "alice")
	bob, gb := newEngine(t, "bob")

	perform(t, alice, CreateNode{ID: "n", Kind: "math_number"})
	perform(t, alice, SetField{Node: "n", Name: "NUM", Value: ir.IRInt(1)})
	syncGraphs(t, ga, gb)

	perform(t, bob, DeleteNode{ID: "n"})
	syncGraphs(t, gb, ga)

	before := ga.Version()
	assert.True(t, alice.Undo())
	assert.Equal(t, before, ga.Version())
	assert.False(t, alice.CanRedo())
	assert.False(t, ga.Alive("n"))
}

func TestUndoKeepsNewerRemoteWrite(t *testing.T) {
	alice, ga := newEngine(t, "alice")
	bob, gb := newEngine(t, "bob")

	perform(t, alice, CreateNode{ID: "n", Kind: "math_number"})
	perform(t, alice, SetField{Node: "n", Name: "NUM", Value: ir.IRInt(1)})
	syncGraphs(t, ga, gb)
	perform(t, bob, SetField{Node: "n", Name: "NUM", Value: ir.IRInt(7)})
	syncGraphs(t, gb, ga)

	before := ga.Version()
	require.True(t, alice.Undo())
	assert.Equal(t, before, ga.Version(), "nothing of alice's edit is left to revert")
	assert.Equal(t, ir.IRInt(7), read(t, ga, "n").Field("NUM"))
	assert.False(t, alice.Redo())
	assert.Equal(t, ir.IRInt(7), read(t, ga, "n").Field("NUM"))
}

func TestUndoRedoRoundTripUnderRemoteEdits(t *testing.T) {
	alice, ga := newEngine(t, "alice")
	bob, gb := newEngine(t, "bob")

	perform(t, alice, CreateNode{ID: "n", Kind: "math_number"})
	perform(t, alice, CreateNode{ID: "m", Kind: "math_number"})
	syncGraphs(t, ga, gb)
	perform(t, alice, CreateNode{ID: "c1", Kind: "consoleLog"})
	perform(t, alice, Connect{Parent: "c1", Slot: "VALUE", Child: "n"})

	perform(t, bob, SetField{Node: "n", Name: "NUM", Value: ir.IRInt(4)})
	syncGraphs(t, gb, ga)

	preUndo := ga.Nodes()
	require.True(t, alice.Undo())
	assert.Empty(t, read(t, ga, "c1").Slots["VALUE"])
	assert.Equal(t, ir.IRInt(4), read(t, ga, "n").Field("NUM"))

	perform(t, bob, SetField{Node: "m", Name: "NUM", Value: ir.IRInt(9)})
	syncGraphs(t, gb, ga)

	require.True(t, alice.Redo())
	assert.Equal(t, ir.NodeID("n"), read(t, ga, "c1").Slots["VALUE"])
	assert.Equal(t, ir.IRInt(9), read(t, ga, "m").Field("NUM"))

	m := read(t, ga, "m")
	for i, n := range preUndo {
		if n.ID == "m" {
			preUndo[i] = m
		}
	}
	assert.Equal(t, preUndo, ga.Nodes())
}

func TestUndoRevivesVariableDeletedByPeer(t *testing.T) {
	alice, ga := newEngine(t, "alice")
	bob, gb := newEngine(t, "bob")

	perform(t, alice, CreateVariable{ID: "v1", Name: "score"})
	perform(t, alice, CreateNode{ID: "s1", Kind: "variables_set", Fields: map[string]ir.IRValue{"VAR": ir.IRString("v1")}})
	perform(t, alice, DeleteNode{ID: "s1"})
	syncGraphs(t, ga, gb)

	perform(t, bob, DeleteVariable{ID: "v1"})
	syncGraphs(t, gb, ga)
	require.False(t, ga.VariableAlive("v1"))

	require.True(t, alice.Undo())
	assert.Equal(t, ir.IRString("v1"), read(t, ga, "s1").Field("VAR"))
	v, ok := ga.Variable("v1")
	require.True(t, ok, "restored reference must point at a live variable")
	assert.Equal(t, "score", v.Name)

	require.True(t, alice.Redo())
	assert.False(t, ga.Alive("s1"))
	assert.False(t, ga.VariableAlive("v1"))
}

func TestUndoRepointsToVariableWithSameName(t *testing.T) {
	alice, ga := newEngine(t, "alice")
	bob, gb := newEngine(t, "bob")

	perform(t, alice, CreateVariable{ID: "v1", Name: "score"})
	perform(t, alice, CreateNode{ID: "s1", Kind: "variables_set", Fields: map[string]ir.IRValue{"VAR": ir.IRString("v1")}})
	perform(t, alice, DeleteNode{ID: "s1"})
	syncGraphs(t, ga, gb)

	perform(t, bob, DeleteVariable{ID: "v1"})
	perform(t, bob, CreateVariable{ID: "v2", Name: "score"})
	syncGraphs(t, gb, ga)

	require.True(t, alice.Undo())
	assert.Equal(t, ir.IRString("v2"), read(t, ga, "s1").Field("VAR"))
	assert.False(t, ga.VariableAlive("v1"))
}

func TestDeleteVariableReferentialIntegrity(t *testing.T) {
	e, g := newEngine(t, "alice")
	perform(t, e, CreateVariable{ID: "v1", Name: "score"})
	perform(t, e, CreateNode{ID: "s1", Kind: "variables_set", Fields: map[string]ir.IRValue{"VAR": ir.IRString("v1")}})
	perform(t, e, CreateNode{ID: "g1", Kind: "variables_get", Fields: map[string]ir.IRValue{"VAR": ir.IRString("v1")}})

	assert.Equal(t, []Reference{{Node: "s1", Field: "VAR"}, {Node: "g1", Field: "VAR"}}, e.References("v1"))

	_, err := e.Perform(DeleteVariable{ID: "v1"})
	require.True(t, IsRejectedEdit(err))
	assert.True(t, g.VariableAlive("v1"))

	perform(t, e, DeleteVariable{ID: "v1", Cascade: true})
	assert.False(t, g.VariableAlive("v1"))
	assert.Equal(t, ir.IRNull{}, read(t, g, "s1").Field("VAR"))
	assert.Equal(t, ir.IRNull{}, read(t, g, "g1").Field("VAR"))

	require.True(t, e.Undo())
	assert.True(t, g.VariableAlive("v1"))
	assert.Equal(t, ir.IRString("v1"), read(t, g, "s1").Field("VAR"))
	assert.Equal(t, ir.IRString("v1"), read(t, g, "g1").Field("VAR"))
}

func TestVariableNamesStayUnique(t *testing.T) {
	e, g := newEngine(t, "alice", WithIDGenerator(NewFixedGenerator("v-gen")))
	perform(t, e, CreateVariable{ID: "v1", Name: "score"})
	perform(t, e, CreateVariable{ID: "v2", Name: "lives"})

	_, err := e.Perform(CreateVariable{ID: "v3", Name: "score"})
	assert.True(t, IsRejectedEdit(err))
	_, err = e.Perform(RenameVariable{ID: "v2", Name: " score "})
	assert.True(t, IsRejectedEdit(err))

	perform(t, e, RenameVariable{ID: "v2", Name: " health "})
	v, ok := g.Variable("v2")
	require.True(t, ok)
	assert.Equal(t, "health", v.Name)

	perform(t, e, CreateNode{ID: "s1", Kind: "math_change"})
	perform(t, e, SetVariableField{Node: "s1", Name: "VAR", VarName: "score"})
	assert.Equal(t, ir.IRString("v1"), read(t, g, "s1").Field("VAR"))

	perform(t, e, SetVariableField{Node: "s1", Name: "VAR", VarName: "speed"})
	assert.Equal(t, ir.IRString("v-gen"), read(t, g, "s1").Field("VAR"))
	_, ok = g.VariableByName("speed")
	assert.True(t, ok)
}

func TestUndoDepthIsBounded(t *testing.T) {
	e, g := newEngine(t, "alice", WithUndoDepth(2))
	perform(t, e, CreateNode{ID: "a", Kind: "math_number"})
	perform(t, e, CreateNode{ID: "b", Kind: "math_number"})
	perform(t, e, CreateNode{ID: "c", Kind: "math_number"})

	assert.True(t, e.Undo())
	assert.True(t, e.Undo())
	assert.False(t, e.Undo())
	assert.True(t, g.Alive("a"))
	assert.False(t, g.Alive("b"))
}

func TestNewEditClearsRedo(t *testing.T) {
	e, _ := newEngine(t, "alice")
	perform(t, e, CreateNode{ID: "a", Kind: "math_number"})
	require.True(t, e.Undo())
	require.True(t, e.CanRedo())

	perform(t, e, CreateNode{ID: "b", Kind: "math_number"})
	assert.False(t, e.CanRedo())
	assert.False(t, e.Redo())
}

func TestSeqResumesAfterOwnDeltasArriveRemotely(t *testing.T) {
	first, g1 := newEngine(t, "alice")
	perform(t, first, CreateNode{ID: "a", Kind: "math_number"})
	perform(t, first, CreateNode{ID: "b", Kind: "math_number"})

	g2 := graph.New()
	syncGraphs(t, g1, g2)
	second := New(g2, catalog.MustLoad(), "alice")

	out := perform(t, second, CreateNode{ID: "c", Kind: "math_number"})
	require.Len(t, out, 1)
	assert.Equal(t, int64(3), out[0].Seq)
	assert.Greater(t, out[0].Lamport, g1.MaxLamport())
}
