// Package graph implements the Replicated Program Graph.
//
// Every field, slot, next link, node liveness flag, variable name and
// variable liveness flag is an independent last-writer-wins register
// ordered by (Lamport, actor, seq). Concurrent edits to different registers
// of one node both survive. Deletion flips a liveness register and keeps a
// tombstone, so late edits to a deleted node are absorbed invisibly.
//
// Structure is resolved at read time: only live nodes claim children, and
// when two registers claim the same child the newest claim wins. Cycles
// that concurrent moves can produce are detected and never traversed.
//
// Writes are serialized by a mutex. Subscribers are notified after the
// lock is released, on the writer's goroutine.
package graph
