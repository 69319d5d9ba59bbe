package engine

import (
	"log/slog"
	"sync"

	"github.com/roach88/geckode/internal/catalog"
	"github.com/roach88/geckode/internal/graph"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/registry"
)

// DefaultUndoDepth bounds each stack. The oldest record is discarded first.
const DefaultUndoDepth = 200

// record is one undoable step: the stamped deltas it applied and the
// unstamped batch that reverts them. Reverting a record yields a new
// record for the opposite stack.
type record struct {
	intent  string
	applied []ir.Delta
	revert  []ir.Delta
}

// Engine turns local intents into deltas and owns the local undo history.
//
// Thread-safety: all methods are safe for concurrent use. The engine
// serializes its own calls; the graph serializes writes between the
// engine and the synchronization channel.
type Engine struct {
	mu       sync.Mutex
	graph    *graph.Graph
	catalog  *catalog.Catalog
	registry *registry.Registry
	actor    ir.ActorID
	clock    *Clock
	ids      IDGenerator
	seq      int64
	depth    int
	undo     []record
	redo     []record
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator sets the node/variable id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the Lamport clock. Default: NewClock().
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithUndoDepth bounds the undo and redo stacks. Values < 1 are ignored.
func WithUndoDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.depth = depth
		}
	}
}

// WithRegistry makes entity fields accept only entities the registry
// currently lists (or the fallback entity).
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine editing g as actor.
func New(g *graph.Graph, cat *catalog.Catalog, actor ir.ActorID, opts ...Option) *Engine {
	e := &Engine{
		graph:   g,
		catalog: cat,
		actor:   actor,
		clock:   NewClock(),
		ids:     UUIDv7Generator{},
		depth:   DefaultUndoDepth,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Actor returns the local actor id.
func (e *Engine) Actor() ir.ActorID {
	return e.actor
}

// Perform validates an intent and applies it as one undoable step. The
// returned deltas are stamped and already applied; the caller hands them
// to nobody, since graph subscribers see them as local changes.
//
// A nil slice with a nil error means the intent changed nothing (for
// example connecting a block where it already is); no record is pushed.
func (e *Engine) Perform(in Intent) ([]ir.Delta, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch, err := e.plan(in)
	if err != nil {
		e.logger.Debug("edit rejected", "intent", in.Op(), "error", err)
		return nil, err
	}
	if len(batch) == 0 {
		return nil, nil
	}

	inverse := e.invert(batch)
	applied, err := e.commit(in.Op(), batch)
	if err != nil {
		return nil, err
	}

	e.undo = pushBounded(e.undo, record{intent: in.Op(), applied: applied, revert: inverse}, e.depth)
	e.redo = nil
	e.logger.Debug("edit applied", "intent", in.Op(), "deltas", len(applied))
	return applied, nil
}

// Undo reverts the most recent local step by applying its inverse as a new
// edit. Registers a peer has written since the step keep the peer's value.
// It returns false only when there is nothing to undo. A step with nothing
// left to revert is dropped without effect and still counts as undone.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.undo) == 0 {
		return false
	}
	rec := e.undo[len(e.undo)-1]
	e.undo = e.undo[:len(e.undo)-1]

	if next, ok := e.revert("undo", rec); ok {
		e.redo = pushBounded(e.redo, next, e.depth)
	}
	return true
}

// Redo reverts the most recent undo, restoring the state it replaced. It
// returns false when there is nothing to redo.
func (e *Engine) Redo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.redo) == 0 {
		return false
	}
	rec := e.redo[len(e.redo)-1]
	e.redo = e.redo[:len(e.redo)-1]

	if next, ok := e.revert("redo", rec); ok {
		e.undo = pushBounded(e.undo, next, e.depth)
	}
	return true
}

// revert applies the part of rec's revert batch that still makes sense and
// returns the record that reverts it in turn.
func (e *Engine) revert(label string, rec record) (record, bool) {
	batch := e.applicable(e.unclaimed(rec))
	batch = e.keepReferences(batch)
	if len(batch) == 0 {
		e.logger.Debug(label+" noop: nothing left to revert", "intent", rec.intent)
		return record{}, false
	}

	inverse := e.invert(batch)
	applied, err := e.commit(label+" "+rec.intent, batch)
	if err != nil {
		e.logger.Error(label+" failed", "intent", rec.intent, "error", err)
		return record{}, false
	}
	return record{intent: rec.intent, applied: applied, revert: inverse}, true
}

// CanUndo reports whether Undo has a record to consume.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.undo) > 0
}

// CanRedo reports whether Redo has a record to consume.
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.redo) > 0
}

func pushBounded(stack []record, r record, depth int) []record {
	stack = append(stack, r)
	if over := len(stack) - depth; over > 0 {
		stack = append(stack[:0:0], stack[over:]...)
	}
	return stack
}

// commit stamps a batch and applies it. The seq counter only advances
// when the graph accepts the batch, so a failure never leaves a gap.
func (e *Engine) commit(label string, batch []ir.Delta) ([]ir.Delta, error) {
	e.clock.Observe(e.graph.MaxLamport())
	seq := max(e.seq, e.graph.Version()[e.actor])

	stamped := make([]ir.Delta, 0, len(batch))
	for _, d := range batch {
		seq++
		d.Actor = e.actor
		d.Seq = seq
		d.Lamport = e.clock.Next()
		stamped = append(stamped, d)
	}

	if err := e.graph.ApplyLocal(stamped); err != nil {
		return nil, &EditError{Code: ErrCodeApplyFailed, Intent: label, Message: err.Error(), Err: err}
	}
	e.seq = seq
	return stamped, nil
}

// applicable drops deltas whose target is gone and not restored by the
// same batch.
func (e *Engine) applicable(batch []ir.Delta) []ir.Delta {
	restoredNodes := make(map[ir.NodeID]bool)
	restoredVars := make(map[ir.VarID]bool)
	for _, d := range batch {
		switch d.Op {
		case ir.OpInsertNode:
			restoredNodes[d.Node] = true
		case ir.OpCreateVariable:
			restoredVars[d.Var] = true
		}
	}

	out := make([]ir.Delta, 0, len(batch))
	for _, d := range batch {
		switch d.Op {
		case ir.OpInsertNode, ir.OpCreateVariable:
		case ir.OpRenameVariable, ir.OpDeleteVariable:
			if !restoredVars[d.Var] && !e.graph.VariableAlive(d.Var) {
				continue
			}
		default:
			if !restoredNodes[d.Node] && !e.graph.Alive(d.Node) {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}
