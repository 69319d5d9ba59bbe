package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geckode/internal/catalog"
	"github.com/roach88/geckode/internal/engine"
	"github.com/roach88/geckode/internal/ir"
)

func TestSequentialIDs(t *testing.T) {
	ids := NewSequentialIDs("alice")
	assert.Equal(t, "alice-1", ids.Generate())
	assert.Equal(t, "alice-2", ids.Generate())
	assert.Equal(t, 2, ids.Issued())

	ids.Reset()
	assert.Equal(t, "alice-1", ids.Generate())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	ids := NewSequentialIDs("n")
	const workers, per = 20, 50

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				id := ids.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*per)
}

func TestMeshConverges(t *testing.T) {
	cat := catalog.MustLoad()
	alice := NewPeer("alice", cat)
	bob := NewPeer("bob", cat)
	m := NewMesh(alice, bob)

	_, err := alice.Engine.Perform(engine.CreateNode{Kind: "onStart"})
	require.NoError(t, err)
	_, err = bob.Engine.Perform(engine.CreateNode{Kind: "onUpdate"})
	require.NoError(t, err)

	ok, err := m.Converged()
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := m.DeliverShuffled("alice", "bob", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	moved, err := m.SyncAll()
	require.NoError(t, err)
	assert.Equal(t, 1, moved, "only bob's node was still missing at alice")

	ok, err = m.Converged()
	require.NoError(t, err)
	assert.True(t, ok)
	_, found := bob.Graph.Read(ir.NodeID("alice-1"))
	assert.True(t, found)

	_, err = m.Deliver("alice", "carol")
	assert.Error(t, err)
}
