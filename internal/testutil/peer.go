// Package testutil builds deterministic collaborating replicas for tests
// and scenarios.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/roach88/geckode/internal/catalog"
	"github.com/roach88/geckode/internal/engine"
	"github.com/roach88/geckode/internal/graph"
	"github.com/roach88/geckode/internal/ir"
)

// Discard is a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Peer is one replica: a graph and the engine editing it.
type Peer struct {
	Actor  ir.ActorID
	Graph  *graph.Graph
	Engine *engine.Engine
	IDs    *SequentialIDs
}

// NewPeer creates a replica whose generated ids are <actor>-1, <actor>-2, ...
// Extra options are applied after the defaults.
func NewPeer(actor ir.ActorID, cat *catalog.Catalog, opts ...engine.Option) *Peer {
	ids := NewSequentialIDs(string(actor))
	g := graph.New(graph.WithLogger(Discard()))
	all := append([]engine.Option{engine.WithIDGenerator(ids), engine.WithLogger(Discard())}, opts...)
	return &Peer{
		Actor:  actor,
		Graph:  g,
		Engine: engine.New(g, cat, actor, all...),
		IDs:    ids,
	}
}

// Mesh delivers deltas between peers on demand, the way a relay would,
// but under the caller's control.
type Mesh struct {
	peers map[ir.ActorID]*Peer
	order []ir.ActorID
}

// NewMesh connects peers.
func NewMesh(peers ...*Peer) *Mesh {
	m := &Mesh{peers: make(map[ir.ActorID]*Peer, len(peers))}
	for _, p := range peers {
		m.peers[p.Actor] = p
		m.order = append(m.order, p.Actor)
	}
	return m
}

// Peer returns the peer for actor.
func (m *Mesh) Peer(actor ir.ActorID) (*Peer, bool) {
	p, ok := m.peers[actor]
	return p, ok
}

// Peers returns every peer in the order given to NewMesh.
func (m *Mesh) Peers() []*Peer {
	out := make([]*Peer, 0, len(m.order))
	for _, a := range m.order {
		out = append(out, m.peers[a])
	}
	return out
}

// Deliver ships everything to is missing from from and returns the number
// of deltas that were new to it.
func (m *Mesh) Deliver(from, to ir.ActorID) (int, error) {
	src, dst, err := m.pair(from, to)
	if err != nil {
		return 0, err
	}
	fresh, err := dst.Graph.ApplyRemote(src.Graph.DiffSince(dst.Graph.Version()))
	if err != nil {
		return 0, fmt.Errorf("deliver %s -> %s: %w", from, to, err)
	}
	return len(fresh), nil
}

// DeliverShuffled is Deliver with one delta at a time in a random order
// drawn from seed.
func (m *Mesh) DeliverShuffled(from, to ir.ActorID, seed uint64) (int, error) {
	src, dst, err := m.pair(from, to)
	if err != nil {
		return 0, err
	}
	ds := src.Graph.DiffSince(dst.Graph.Version())
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r.Shuffle(len(ds), func(i, j int) { ds[i], ds[j] = ds[j], ds[i] })

	n := 0
	for _, d := range ds {
		fresh, err := dst.Graph.ApplyRemote([]ir.Delta{d})
		if err != nil {
			return n, fmt.Errorf("deliver %s -> %s: %w", from, to, err)
		}
		n += len(fresh)
	}
	return n, nil
}

func (m *Mesh) pair(from, to ir.ActorID) (*Peer, *Peer, error) {
	src, ok := m.peers[from]
	if !ok {
		return nil, nil, fmt.Errorf("unknown peer %q", from)
	}
	dst, ok := m.peers[to]
	if !ok {
		return nil, nil, fmt.Errorf("unknown peer %q", to)
	}
	return src, dst, nil
}

// SyncAll delivers between every ordered pair until nothing new moves and
// returns the number of deltas applied across all peers.
func (m *Mesh) SyncAll() (int, error) {
	total := 0
	for {
		moved := 0
		for _, from := range m.order {
			for _, to := range m.order {
				if from == to {
					continue
				}
				n, err := m.Deliver(from, to)
				if err != nil {
					return total, err
				}
				moved += n
			}
		}
		total += moved
		if moved == 0 {
			return total, nil
		}
	}
}

// Converged reports whether every peer holds the same delta log.
func (m *Mesh) Converged() (bool, error) {
	var want string
	for i, p := range m.Peers() {
		h, err := p.Graph.StateHash()
		if err != nil {
			return false, err
		}
		if i == 0 {
			want = h
		} else if h != want {
			return false, nil
		}
	}
	return true, nil
}
