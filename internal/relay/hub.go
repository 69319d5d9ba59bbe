// Package relay is the named-channel pub/sub server peers synchronize
// through.
//
// Each channel is a room holding the authoritative graph for that
// project. A joining member receives what it lacks, then every accepted
// batch is persisted, acknowledged to its sender and forwarded to the
// other members. View members may send presence but not deltas.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/geckode/internal/graph"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/store"
	"github.com/roach88/geckode/internal/transport"
	"github.com/roach88/geckode/internal/wire"
)

// Hub owns the rooms.
//
// Thread-safety: all methods are safe for concurrent use. The hub lock
// guards room lifetime; each room serializes its own writes.
type Hub struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *metrics

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
	done   chan struct{}
	active sync.WaitGroup
}

// ErrHubClosed is returned by Serve once Close has been called.
var ErrHubClosed = errors.New("relay hub closed")

// Option configures a Hub.
type Option func(*hubConfig)

type hubConfig struct {
	store      *store.Store
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// WithStore makes rooms durable: deltas are appended as they are accepted
// and a snapshot is written when the last member leaves.
func WithStore(s *store.Store) Option {
	return func(c *hubConfig) {
		c.store = s
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *hubConfig) {
		c.logger = l
	}
}

// WithRegisterer registers the hub's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *hubConfig) {
		c.registerer = reg
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	cfg := hubConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Hub{
		store:   cfg.store,
		logger:  cfg.logger,
		metrics: newMetrics(cfg.registerer),
		rooms:   make(map[string]*room),
		done:    make(chan struct{}),
	}
}

type room struct {
	id    string
	graph *graph.Graph
	refs  int

	mu      sync.Mutex
	members map[*member]struct{}
}

type member struct {
	actor    ir.ActorID
	grant    Grant
	queue    *frameQueue
	presence *ir.Presence
}

// Rooms returns the number of loaded channels.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Snapshot returns the authoritative state of a loaded channel.
func (h *Hub) Snapshot(channel string) (*graph.Snapshot, bool) {
	h.mu.Lock()
	r, ok := h.rooms[channel]
	h.mu.Unlock()
	if !ok {
		return nil, false
	}
	return r.graph.Snapshot(), true
}

// acquire returns the room for channel, loading it from the store when it
// is not in memory, and takes a reference on it.
func (h *Hub) acquire(ctx context.Context, channel string) (*room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[channel]; ok {
		r.refs++
		return r, nil
	}

	g := graph.New(graph.WithLogger(h.logger))
	if h.store != nil {
		if err := LoadChannel(ctx, h.store, channel, g); err != nil {
			return nil, err
		}
	}
	r := &room{id: channel, graph: g, refs: 1, members: make(map[*member]struct{})}
	h.rooms[channel] = r
	h.metrics.rooms.Inc()
	h.logger.Info("room loaded", "channel", channel, "deltas", g.Len())
	return r, nil
}

// LoadChannel rebuilds a channel's state into g: the last snapshot, then
// the persisted deltas the snapshot does not cover.
func LoadChannel(ctx context.Context, st *store.Store, channel string, g *graph.Graph) error {
	snap, ok, err := st.LoadSnapshot(ctx, channel)
	if err != nil {
		return err
	}
	if ok {
		if err := g.ImportState(snap.State); err != nil {
			return fmt.Errorf("load channel %s: %w", channel, err)
		}
	}
	deltas, err := st.LoadDeltas(ctx, channel)
	if err != nil {
		return err
	}
	have := g.Version()
	later := deltas[:0]
	for _, d := range deltas {
		if !have.Covers(d.Actor, d.Seq) {
			later = append(later, d)
		}
	}
	if _, err := g.ApplyRemote(later); err != nil {
		return fmt.Errorf("load channel %s: %w", channel, err)
	}
	return nil
}

// release drops a reference. The last one out saves and unloads the room.
func (h *Hub) release(r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r.refs--
	if r.refs > 0 {
		return
	}
	delete(h.rooms, r.id)
	h.metrics.rooms.Dec()
	if err := h.save(context.Background(), r); err != nil {
		h.logger.Error("save room", "channel", r.id, "error", err)
	}
	h.logger.Info("room unloaded", "channel", r.id)
}

func (h *Hub) save(ctx context.Context, r *room) error {
	if h.store == nil || r.graph.Len() == 0 {
		return nil
	}
	state, err := r.graph.ExportState()
	if err != nil {
		return err
	}
	hash, err := r.graph.StateHash()
	if err != nil {
		return err
	}
	return h.store.SaveSnapshot(ctx, store.Snapshot{
		Channel: r.id,
		Format:  ir.FormatVersion,
		Hash:    hash,
		Deltas:  r.graph.Len(),
		State:   state,
	})
}

// Flush saves every loaded room. Called on shutdown.
func (h *Hub) Flush(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	for _, r := range h.rooms {
		if err := h.save(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", r.id, err))
		}
	}
	return errors.Join(errs...)
}

// Close disconnects every member and waits, bounded by ctx, until their
// rooms are saved and unloaded. Connections served afterwards are refused.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
	h.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		h.active.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close hub: %w", ctx.Err())
	}
}

// Serve runs one member connection until it closes. The first frame must
// be hello.
func (h *Hub) Serve(ctx context.Context, conn transport.Conn, channel string, grant Grant) error {
	defer conn.Close()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Send(wire.Frame{Type: wire.FrameError, Code: wire.CodeUnavailable, Message: "relay shutting down"})
		return ErrHubClosed
	}
	h.active.Add(1)
	h.mu.Unlock()
	defer h.active.Done()

	served := make(chan struct{})
	defer close(served)
	go func() {
		select {
		case <-h.done:
			conn.Close()
		case <-served:
		}
	}()

	hello, err := conn.Recv()
	if err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Type != wire.FrameHello || hello.Actor == "" {
		h.metrics.refused.WithLabelValues(wire.CodeProtocol).Inc()
		conn.Send(wire.Frame{Type: wire.FrameError, Code: wire.CodeProtocol, Message: "expected hello with actor"})
		return fmt.Errorf("expected hello, got %s", hello.Type)
	}

	r, err := h.acquire(ctx, channel)
	if err != nil {
		conn.Send(wire.Frame{Type: wire.FrameError, Code: wire.CodeProtocol, Message: "channel unavailable"})
		return err
	}
	defer h.release(r)

	m := &member{actor: hello.Actor, grant: grant, queue: newFrameQueue()}
	if err := h.join(r, m, hello.Version); err != nil {
		return err
	}
	defer h.leave(r, m)

	logger := h.logger.With("channel", channel, "actor", m.actor)
	logger.Info("member joined", "read_only", grant.ReadOnly())

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return writeLoop(ctx, conn, m.queue)
	})
	eg.Go(func() error {
		defer m.queue.Close()
		return h.readLoop(conn, r, m, logger)
	})
	eg.Go(func() error {
		<-ctx.Done()
		conn.Close()
		return nil
	})
	err = eg.Wait()
	logger.Info("member left")
	if errors.Is(err, transport.ErrClosed) {
		return nil
	}
	return err
}

// join answers hello and registers m in one critical section, so m sees
// every batch accepted after the state it was sent.
func (h *Hub) join(r *room, m *member, have ir.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, err := wire.FromDeltas(r.graph.DiffSince(have))
	if err != nil {
		return err
	}
	m.queue.Enqueue(wire.Frame{
		Type:     wire.FrameState,
		Channel:  r.id,
		Version:  r.graph.Version(),
		Deltas:   ws,
		ReadOnly: m.grant.ReadOnly(),
	})
	for other := range r.members {
		if other.presence != nil {
			p := *other.presence
			m.queue.Enqueue(wire.Frame{Type: wire.FramePresence, Presence: &p})
		}
	}
	r.members[m] = struct{}{}
	h.metrics.members.Inc()
	return nil
}

// leave unregisters m and tells the others it is gone.
func (h *Hub) leave(r *room, m *member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, m)
	h.metrics.members.Dec()
	gone := ir.Presence{Actor: m.actor, Gone: true}
	r.broadcast(m, wire.Frame{Type: wire.FramePresence, Presence: &gone})
}

// broadcast enqueues f for every member but from. Caller holds r.mu.
func (r *room) broadcast(from *member, f wire.Frame) {
	for other := range r.members {
		if other != from {
			other.queue.Enqueue(f)
		}
	}
}

func writeLoop(ctx context.Context, conn transport.Conn, q *frameQueue) error {
	for {
		for {
			f, ok := q.TryDequeue()
			if !ok {
				break
			}
			if err := conn.Send(f); err != nil {
				conn.Close()
				return err
			}
		}
		if q.Closed() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-q.Wait():
		}
	}
}

func (h *Hub) readLoop(conn transport.Conn, r *room, m *member, logger *slog.Logger) error {
	for {
		f, err := conn.Recv()
		if err != nil {
			return err
		}
		switch f.Type {
		case wire.FrameDeltas:
			h.handleDeltas(r, m, f, logger)
		case wire.FramePresence:
			if f.Presence == nil {
				continue
			}
			p := *f.Presence
			p.Actor = m.actor
			p.Gone = false
			r.mu.Lock()
			m.presence = &p
			r.broadcast(m, wire.Frame{Type: wire.FramePresence, Presence: &p})
			r.mu.Unlock()
		default:
			h.refuse(m, wire.CodeProtocol, fmt.Sprintf("unexpected %s frame", f.Type))
		}
	}
}

func (h *Hub) refuse(m *member, code, msg string) {
	h.metrics.refused.WithLabelValues(code).Inc()
	m.queue.Enqueue(wire.Frame{Type: wire.FrameError, Code: code, Message: msg})
}

// handleDeltas applies a member's batch to the room. New deltas are
// persisted before they are applied, so the room never holds or acks a
// delta the store lost.
func (h *Hub) handleDeltas(r *room, m *member, f wire.Frame, logger *slog.Logger) {
	if m.grant.ReadOnly() {
		h.refuse(m, wire.CodeReadOnly, "view members cannot edit")
		return
	}
	deltas, err := wire.ToDeltas(f.Deltas)
	if err != nil {
		h.refuse(m, wire.CodeMalformed, err.Error())
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fresh, err := r.graph.Admit(deltas)
	if err != nil {
		code := wire.CodeMalformed
		if errors.Is(err, graph.ErrDeltaConflict) {
			code = wire.CodeConflict
		}
		logger.Warn("batch refused", "code", code, "error", err)
		h.refuse(m, code, err.Error())
		return
	}
	if len(fresh) > 0 {
		if h.store != nil {
			if _, err := h.store.AppendDeltas(context.Background(), r.id, fresh); err != nil {
				logger.Error("persist deltas", "count", len(fresh), "error", err)
				h.refuse(m, wire.CodeUnavailable, "batch not persisted; resend later")
				return
			}
		}
		if fresh, err = r.graph.ApplyRemote(fresh); err != nil {
			logger.Error("apply persisted batch", "error", err)
			h.refuse(m, wire.CodeMalformed, err.Error())
			return
		}
		h.metrics.applied.Add(float64(len(fresh)))
		ws, err := wire.FromDeltas(fresh)
		if err == nil {
			r.broadcast(m, wire.Frame{Type: wire.FrameDeltas, Deltas: ws})
		}
	}
	m.queue.Enqueue(wire.Frame{Type: wire.FrameAck, Version: r.graph.Version()})
}

// Dialer returns an in-process dialer: each Dial authorizes the token and
// serves the far end of a pipe on this hub.
func (h *Hub) Dialer(auth Authorizer) transport.Dialer {
	return transport.DialerFunc(func(ctx context.Context, channel, token string) (transport.Conn, error) {
		grant, err := auth.Authorize(ctx, channel, token)
		if err != nil {
			return nil, &transport.HandshakeError{Status: 401, Err: err}
		}
		client, server := transport.Pipe()
		go func() {
			if err := h.Serve(context.Background(), server, channel, grant); err != nil {
				h.logger.Debug("local member ended", "channel", channel, "error", err)
			}
		}()
		return client, nil
	})
}
