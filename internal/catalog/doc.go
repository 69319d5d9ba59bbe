// Package catalog holds the closed set of block kinds.
//
// Definitions are authored in CUE (blocks.cue, embedded) and compiled once
// per process into BlockDef values. Each definition fixes a kind's category,
// its slots and fields, its output type and its code template. The
// connection checker here is the single authority on which child may occupy
// which slot; the mutation engine consults it before any delta exists.
package catalog
