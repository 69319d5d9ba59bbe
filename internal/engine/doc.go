// Package engine implements the mutation and undo engine.
//
// Local editing intents enter through Perform. Each intent is validated
// against the block catalog and the current graph before any delta exists;
// a refused intent returns a REJECTED_EDIT error and leaves the graph
// untouched. An accepted intent becomes a batch of deltas stamped with the
// local actor, a contiguous seq and fresh Lamport values, applied to the
// graph in one atomic step.
//
// UNDO MODEL:
//
// Each accepted intent pushes a record holding its stamped forward batch
// and the unstamped inverse batch. Undo applies the inverse as a new local
// edit with fresh stamps; it never rewinds the graph. Undo is selective: a
// register whose last write is no longer ours (a peer overwrote it) is left
// alone, so remote edits made in the meantime survive. Deltas whose target
// node or variable has disappeared and is not restored by the same batch
// are dropped; a record left empty is discarded silently. The redo record
// is the inverse of what undo actually wrote, computed before it is
// applied, so undo followed by redo restores the exact pre-undo state of
// every register it touched.
//
// A restored node never points at a dead variable: the reference is moved
// to a live variable with the same name, or the variable is revived.
//
// Remote deltas never pass through the engine. The stacks are local and
// never replicated.
package engine
