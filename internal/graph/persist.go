package graph

import (
	"fmt"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/wire"
)

// persistedState is the opaque export format: the full delta log in
// replay order. Replaying it into an empty graph rebuilds every register,
// tombstones included.
type persistedState struct {
	Format string       `msgpack:"format"`
	Deltas []wire.Delta `msgpack:"deltas"`
}

// ExportState serializes the graph for external storage.
func (g *Graph) ExportState() ([]byte, error) {
	g.mu.RLock()
	deltas := make([]ir.Delta, 0, len(g.log))
	for _, e := range g.log {
		deltas = append(deltas, e.delta)
	}
	g.mu.RUnlock()
	slices.SortFunc(deltas, ir.CompareDeltas)

	ws, err := wire.FromDeltas(deltas)
	if err != nil {
		return nil, fmt.Errorf("export state: %w", err)
	}
	data, err := msgpack.Marshal(&persistedState{Format: ir.FormatVersion, Deltas: ws})
	if err != nil {
		return nil, fmt.Errorf("export state: %w", err)
	}
	return data, nil
}

// ImportState replaces the graph's content with an exported state.
// Subscribers see the loaded deltas with OriginRemote.
func (g *Graph) ImportState(data []byte) error {
	deltas, err := DecodeState(data)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.reset()
	g.mu.Unlock()

	if _, err := g.ApplyRemote(deltas); err != nil {
		return fmt.Errorf("import state: %w", err)
	}
	return nil
}

// DecodeState parses an exported state into its delta log.
func DecodeState(data []byte) ([]ir.Delta, error) {
	var ps persistedState
	if err := msgpack.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("import state: %w", err)
	}
	if ps.Format != ir.FormatVersion {
		return nil, fmt.Errorf("import state: unsupported format %q", ps.Format)
	}
	deltas, err := wire.ToDeltas(ps.Deltas)
	if err != nil {
		return nil, fmt.Errorf("import state: %w", err)
	}
	return deltas, nil
}

// StateHash hashes the applied delta log. Two replicas holding the same
// deltas produce the same hash.
func (g *Graph) StateHash() (string, error) {
	return ir.SnapshotHash(g.DiffSince(nil))
}
