package graph

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/geckode/internal/ir"
)

// Origin says where a batch of deltas came from.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Change is delivered to subscribers after a batch is applied. Deltas
// holds only the newly applied ones; duplicates are filtered out.
type Change struct {
	Origin Origin
	Deltas []ir.Delta
}

type logEntry struct {
	delta ir.Delta
	hash  string
}

// Graph is the replicated program graph of one peer.
type Graph struct {
	mu         sync.RWMutex
	nodes      map[ir.NodeID]*nodeState
	vars       map[ir.VarID]*varState
	log        map[ir.DeltaKey]logEntry
	version    ir.Version
	maxLamport int64

	// Resolved structure, rebuilt after every applied batch.
	parents map[ir.NodeID]ir.NodeRef

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int

	logger *slog.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = l
	}
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		logger: slog.Default(),
		subs:   make(map[int]func(Change)),
	}
	g.reset()
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Graph) reset() {
	g.nodes = make(map[ir.NodeID]*nodeState)
	g.vars = make(map[ir.VarID]*varState)
	g.log = make(map[ir.DeltaKey]logEntry)
	g.version = make(ir.Version)
	g.maxLamport = 0
	g.parents = make(map[ir.NodeID]ir.NodeRef)
}

// Subscribe registers fn for every applied batch. The returned function
// removes the subscription.
func (g *Graph) Subscribe(fn func(Change)) (unsubscribe func()) {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	id := g.nextID
	g.nextID++
	g.subs[id] = fn
	return func() {
		g.subMu.Lock()
		defer g.subMu.Unlock()
		delete(g.subs, id)
	}
}

func (g *Graph) notify(c Change) {
	if len(c.Deltas) == 0 {
		return
	}
	g.subMu.Lock()
	ids := make([]int, 0, len(g.subs))
	for id := range g.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, g.subs[id])
	}
	g.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Apply applies one locally produced delta.
func (g *Graph) Apply(d ir.Delta) error {
	return g.ApplyLocal([]ir.Delta{d})
}

// ApplyLocal applies a batch of locally produced deltas atomically: either
// every delta is accepted or none is.
func (g *Graph) ApplyLocal(deltas []ir.Delta) error {
	_, err := g.apply(deltas, OriginLocal)
	return err
}

// ApplyRemote applies deltas received from a peer and returns the ones
// that were new. Subscribers see them with OriginRemote, so they are never
// mistaken for local edits and re-sent.
func (g *Graph) ApplyRemote(deltas []ir.Delta) ([]ir.Delta, error) {
	return g.apply(deltas, OriginRemote)
}

// Admit checks deltas the way ApplyRemote would and returns the ones the
// graph does not hold yet, without applying anything.
func (g *Graph) Admit(deltas []ir.Delta) ([]ir.Delta, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fresh, err := g.admit(deltas)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Delta, len(fresh))
	for i, e := range fresh {
		out[i] = e.delta
	}
	return out, nil
}

func (g *Graph) apply(deltas []ir.Delta, origin Origin) ([]ir.Delta, error) {
	g.mu.Lock()
	fresh, err := g.admit(deltas)
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	for _, e := range fresh {
		g.applyOne(e)
	}
	if len(fresh) > 0 {
		g.resolve()
	}
	g.mu.Unlock()

	applied := make([]ir.Delta, len(fresh))
	for i, e := range fresh {
		applied[i] = e.delta
	}
	if skipped := len(deltas) - len(fresh); skipped > 0 {
		g.logger.Debug("skipped duplicate deltas", "origin", origin, "count", skipped)
	}
	g.notify(Change{Origin: origin, Deltas: applied})
	return applied, nil
}

// admit validates a batch and filters duplicates. Nothing is mutated.
func (g *Graph) admit(deltas []ir.Delta) ([]logEntry, error) {
	batch := make(map[ir.DeltaKey]string, len(deltas))
	var fresh []logEntry
	for _, d := range deltas {
		if err := validateDelta(d); err != nil {
			return nil, err
		}
		if d.Op == ir.OpSetField && d.Value == nil {
			d.Value = ir.IRNull{}
		}
		h, err := ir.DeltaHash(d)
		if err != nil {
			return nil, &RejectedDeltaError{Key: d.Key(), Op: d.Op, Reason: err.Error()}
		}
		prior, inLog := g.log[d.Key()]
		priorHash, inBatch := batch[d.Key()]
		switch {
		case inLog && prior.hash != h, inBatch && priorHash != h:
			g.logger.Warn("conflicting delta identity", "actor", d.Actor, "seq", d.Seq)
			return nil, fmt.Errorf("%w: %s/%d", ErrDeltaConflict, d.Actor, d.Seq)
		case inLog, inBatch:
			continue
		}
		batch[d.Key()] = h
		fresh = append(fresh, logEntry{delta: d, hash: h})
	}
	return fresh, nil
}

func (g *Graph) applyOne(e logEntry) {
	d := e.delta
	t := tagOf(d)

	switch d.Op {
	case ir.OpInsertNode:
		n := g.node(d.Node)
		n.noteInsert(t, d.Kind)
		n.alive.write(t, true)
	case ir.OpRemoveNode:
		g.node(d.Node).alive.write(t, false)
	case ir.OpSetField:
		n := g.node(d.Node)
		r, ok := n.fields[d.Name]
		if !ok {
			r = &register[ir.IRValue]{}
			n.fields[d.Name] = r
		}
		r.write(t, d.Value)
	case ir.OpSetSlot:
		n := g.node(d.Node)
		r, ok := n.slots[d.Name]
		if !ok {
			r = &register[ir.NodeID]{}
			n.slots[d.Name] = r
		}
		r.write(t, d.Target)
	case ir.OpSetNext:
		g.node(d.Node).next.write(t, d.Target)
	case ir.OpCreateVariable:
		v := g.variable(d.Var)
		v.noteCreate(t)
		v.name.write(t, d.Name)
		v.alive.write(t, true)
	case ir.OpRenameVariable:
		g.variable(d.Var).name.write(t, d.Name)
	case ir.OpDeleteVariable:
		g.variable(d.Var).alive.write(t, false)
	}

	g.log[d.Key()] = e
	if d.Lamport > g.maxLamport {
		g.maxLamport = d.Lamport
	}
	for g.log[ir.DeltaKey{Actor: d.Actor, Seq: g.version[d.Actor] + 1}].hash != "" {
		g.version[d.Actor]++
	}
}

func (g *Graph) node(id ir.NodeID) *nodeState {
	n, ok := g.nodes[id]
	if !ok {
		n = newNodeState()
		g.nodes[id] = n
	}
	return n
}

func (g *Graph) variable(id ir.VarID) *varState {
	v, ok := g.vars[id]
	if !ok {
		v = &varState{}
		g.vars[id] = v
	}
	return v
}

type claim struct {
	ref ir.NodeRef
	at  tag
}

// resolve rebuilds the child -> parent index. Only visible nodes claim
// children and only visible children can be claimed. The newest claim on a
// child wins; the losing slots read as empty.
func (g *Graph) resolve() {
	best := make(map[ir.NodeID]claim)
	offer := func(child ir.NodeID, c claim) {
		if child == "" {
			return
		}
		if n, ok := g.nodes[child]; !ok || !n.visible() {
			return
		}
		if cur, ok := best[child]; !ok || cur.at.compare(c.at) < 0 {
			best[child] = c
		}
	}

	for id, n := range g.nodes {
		if !n.visible() {
			continue
		}
		for slot, r := range n.slots {
			offer(r.value, claim{ref: ir.NodeRef{ID: id, Slot: slot}, at: r.at})
		}
		if n.next.set {
			offer(n.next.value, claim{ref: ir.NodeRef{ID: id, Next: true}, at: n.next.at})
		}
	}

	g.parents = make(map[ir.NodeID]ir.NodeRef, len(best))
	for child, c := range best {
		g.parents[child] = c.ref
	}
}

// childAt returns the resolved occupant of a slot (or next link when
// slot is empty and next is true).
func (g *Graph) childAt(id ir.NodeID, ref ir.NodeRef) ir.NodeID {
	var target ir.NodeID
	n := g.nodes[id]
	if ref.Next {
		target = n.next.value
	} else if r, ok := n.slots[ref.Slot]; ok {
		target = r.value
	}
	if target == "" {
		return ""
	}
	if p, ok := g.parents[target]; ok && p == ref {
		return target
	}
	return ""
}

func (g *Graph) view(id ir.NodeID) ir.NodeView {
	n := g.nodes[id]
	v := ir.NodeView{
		ID:      id,
		Kind:    n.kind,
		Created: n.created.stamp,
	}
	for name, r := range n.fields {
		if ir.IsNull(r.value) {
			continue
		}
		if v.Fields == nil {
			v.Fields = make(map[string]ir.IRValue)
		}
		v.Fields[name] = r.value
	}
	for slot := range n.slots {
		if child := g.childAt(id, ir.NodeRef{ID: id, Slot: slot}); child != "" {
			if v.Slots == nil {
				v.Slots = make(map[string]ir.NodeID)
			}
			v.Slots[slot] = child
		}
	}
	v.Next = g.childAt(id, ir.NodeRef{ID: id, Next: true})
	if p, ok := g.parents[id]; ok {
		v.Parent = &p
	}
	return v
}

// Read returns the resolved view of a live node.
func (g *Graph) Read(id ir.NodeID) (ir.NodeView, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok || !n.visible() {
		return ir.NodeView{}, false
	}
	return g.view(id), true
}

// Alive reports whether id names a live node.
func (g *Graph) Alive(id ir.NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return ok && n.visible()
}

// Nodes returns every live node in creation order.
func (g *Graph) Nodes() []ir.NodeView {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.liveViews()
}

func (g *Graph) liveViews() []ir.NodeView {
	var out []ir.NodeView
	for id, n := range g.nodes {
		if n.visible() {
			out = append(out, g.view(id))
		}
	}
	sortByCreation(out)
	return out
}

func sortByCreation(views []ir.NodeView) {
	slices.SortFunc(views, func(a, b ir.NodeView) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Variables returns live variables ordered by when their name was written,
// with display names made unique: the earliest holder keeps a name, later
// holders read as name2, name3, ...
func (g *Graph) Variables() []ir.VariableView {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.variableViews()
}

func (g *Graph) variableViews() []ir.VariableView {
	type entry struct {
		id ir.VarID
		vs *varState
	}
	var live []entry
	bases := make(map[string]bool)
	for id, v := range g.vars {
		if v.visible() {
			live = append(live, entry{id, v})
			bases[v.name.value] = true
		}
	}
	slices.SortFunc(live, func(a, b entry) int {
		if c := a.vs.name.at.compare(b.vs.name.at); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	taken := make(map[string]bool, len(live))
	out := make([]ir.VariableView, 0, len(live))
	for i, e := range live {
		base := e.vs.name.value
		name := base
		if taken[base] {
			used := make(map[string]bool, len(bases)+i)
			for n := range bases {
				used[n] = true
			}
			for n := range taken {
				used[n] = true
			}
			name = ir.UniqueName(base, used)
		}
		taken[name] = true
		out = append(out, ir.VariableView{ID: e.id, Name: name, Base: base})
	}
	return out
}

// Variable returns a live variable by id.
func (g *Graph) Variable(id ir.VarID) (ir.VariableView, bool) {
	for _, v := range g.Variables() {
		if v.ID == id {
			return v, true
		}
	}
	return ir.VariableView{}, false
}

// VariableByName returns the live variable currently displayed as name.
func (g *Graph) VariableByName(name string) (ir.VariableView, bool) {
	for _, v := range g.Variables() {
		if v.Name == name {
			return v, true
		}
	}
	return ir.VariableView{}, false
}

// Version returns the applied version vector.
func (g *Graph) Version() ir.Version {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version.Clone()
}

// MaxLamport returns the highest Lamport value applied so far.
func (g *Graph) MaxLamport() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.maxLamport
}

// HighestSeq returns the highest seq applied for actor, gaps included.
func (g *Graph) HighestSeq(actor ir.ActorID) int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var hi int64
	for k := range g.log {
		if k.Actor == actor && k.Seq > hi {
			hi = k.Seq
		}
	}
	return hi
}

// DiffSince returns every applied delta not covered by v, ordered by
// (Lamport, actor, seq).
func (g *Graph) DiffSince(v ir.Version) []ir.Delta {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []ir.Delta
	for k, e := range g.log {
		if !v.Covers(k.Actor, k.Seq) {
			out = append(out, e.delta)
		}
	}
	slices.SortFunc(out, ir.CompareDeltas)
	return out
}

// Len returns the number of applied deltas.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.log)
}
