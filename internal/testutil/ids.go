package testutil

import (
	"strconv"
	"sync"
)

// SequentialIDs is an engine.IDGenerator yielding prefix-1, prefix-2, ...
//
// Unlike engine.FixedGenerator it never runs out, and it can be reset so a
// scenario replays with identical ids.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. The first id is prefix-1.
func NewSequentialIDs(prefix string) *SequentialIDs {
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.prefix + "-" + strconv.Itoa(g.n)
}

// Issued returns how many ids were handed out.
func (g *SequentialIDs) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts the sequence at prefix-1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
