// Package channel synchronizes a local program graph with a relay.
//
// The channel hydrates before it publishes: on every (re)connect it merges
// the relay's state into the graph and only then sends what the relay is
// missing. Local deltas are retransmitted until acknowledged; presence is
// fire-and-forget.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/geckode/internal/graph"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/transport"
	"github.com/roach88/geckode/internal/wire"
)

// BackoffSettings bounds the reconnect delay.
type BackoffSettings struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff is used when Options.Backoff is zero.
var DefaultBackoff = BackoffSettings{Initial: 250 * time.Millisecond, Max: 30 * time.Second}

// Options configures a Channel.
type Options struct {
	Actor  ir.ActorID
	Token  string
	Dialer transport.Dialer

	Backoff    BackoffSettings
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Session is one Connect call's lifetime, reconnects included.
type Session struct {
	Channel string

	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err blocks until the session ends. It is nil after Disconnect and the
// ending error otherwise.
func (s *Session) Err() error {
	<-s.done
	return s.err
}

// Channel connects one graph to one relay channel.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run on
// the channel's reader goroutine, never while the channel holds its lock.
type Channel struct {
	graph   *graph.Graph
	opts    Options
	logger  *slog.Logger
	metrics *metrics

	mu          sync.Mutex
	conn        transport.Conn
	session     *Session
	live        bool
	readOnly    bool
	outbox      *outbox
	peers       map[ir.ActorID]ir.Presence
	presenceSeq int64
	onRemote    []func([]ir.Delta)
	onPresence  []func(ir.Presence)
	unsubscribe func()
}

// New creates a channel for g. Local changes to g are queued for the relay
// from now on; they are transmitted once a session is live.
func New(g *graph.Graph, opts Options) *Channel {
	if opts.Backoff == (BackoffSettings{}) {
		opts.Backoff = DefaultBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel{
		graph:   g,
		opts:    opts,
		logger:  logger.With("actor", opts.Actor),
		metrics: newMetrics(opts.Registerer),
		outbox:  newOutbox(),
		peers:   make(map[ir.ActorID]ir.Presence),
	}
	c.unsubscribe = g.Subscribe(func(ch graph.Change) {
		if ch.Origin == graph.OriginLocal {
			c.Send(ch.Deltas...)
		}
	})
	return c
}

// Close disconnects and stops following the graph.
func (c *Channel) Close() {
	c.Disconnect()
	c.unsubscribe()
}

// OnRemoteDelta registers cb for deltas from peers that changed the graph.
func (c *Channel) OnRemoteDelta(cb func([]ir.Delta)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRemote = append(c.onRemote, cb)
}

// OnPresence registers cb for peer presence updates.
func (c *Channel) OnPresence(cb func(ir.Presence)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresence = append(c.onPresence, cb)
}

// Connect dials the relay, hydrates and starts the session. It returns
// once the first hydration completed. ctx bounds the whole session.
func (c *Channel) Connect(ctx context.Context, channelID string) (*Session, error) {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	ctx, cancel := context.WithCancel(ctx)
	sess := &Session{Channel: channelID, done: make(chan struct{}), cancel: cancel}
	c.session = sess
	c.mu.Unlock()

	conn, err := c.establish(ctx, sess)
	if err != nil {
		cancel()
		c.finish(sess, err)
		return nil, err
	}
	go c.run(ctx, sess, conn)
	return sess, nil
}

// Disconnect ends the session. Unacknowledged deltas are dropped from the
// outbox; they stay in the graph and are re-sent by the next hydration.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	sess := c.session
	conn := c.conn
	c.live = false
	c.outbox.reset(nil)
	c.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	if conn != nil {
		conn.Close()
	}
	<-sess.done
}

// Send queues local deltas and transmits them if the session is live.
// Deltas already queued are not sent twice.
func (c *Channel) Send(deltas ...ir.Delta) {
	if len(deltas) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return
	}
	added := c.outbox.add(deltas)
	if c.live && len(added) > 0 {
		c.transmit(added)
	}
}

// transmit writes deltas. Caller holds mu. A write error is left to the
// reader goroutine, which sees the same broken transport.
func (c *Channel) transmit(ds []ir.Delta) {
	ws, err := wire.FromDeltas(ds)
	if err != nil {
		c.logger.Error("encode deltas", "error", err)
		return
	}
	if err := c.conn.Send(wire.Frame{Type: wire.FrameDeltas, Deltas: ws}); err != nil {
		c.logger.Debug("send deltas", "error", err)
		return
	}
	c.metrics.sent.Add(float64(len(ds)))
}

// SendPresence publishes the local actor's presence. Dropped when not
// live.
func (c *Channel) SendPresence(p ir.Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live {
		return
	}
	c.presenceSeq++
	p.Actor = c.opts.Actor
	p.Seq = c.presenceSeq
	if err := c.conn.Send(wire.Frame{Type: wire.FramePresence, Presence: &p}); err != nil {
		c.logger.Debug("send presence", "error", err)
	}
}

// Peers returns the latest presence of every known peer, by actor.
func (c *Channel) Peers() []ir.Presence {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ir.Presence, 0, len(c.peers))
	for _, p := range c.peers {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b ir.Presence) int {
		return compareActor(a.Actor, b.Actor)
	})
	return out
}

func compareActor(a, b ir.ActorID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Live reports whether a session is hydrated and connected.
func (c *Channel) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// ReadOnly reports whether the relay admitted this actor as a viewer.
func (c *Channel) ReadOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readOnly
}

// Pending returns the deltas awaiting acknowledgement.
func (c *Channel) Pending() []ir.Delta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outbox.pending()
}

// establish dials and hydrates with backoff. Refused tokens and
// hydration conflicts are not retried.
func (c *Channel) establish(ctx context.Context, sess *Session) (transport.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.Backoff.Initial
	b.MaxInterval = c.opts.Backoff.Max

	op := func() (transport.Conn, error) {
		conn, err := c.opts.Dialer.Dial(ctx, sess.Channel, c.opts.Token)
		if err != nil {
			if transport.IsUnauthorized(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		err = c.hydrate(conn, sess.Channel)
		stop()
		if err != nil {
			conn.Close()
			var re *RelayError
			if IsHydrationConflict(err) || errors.As(err, &re) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return conn, nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn("connect failed", "channel", sess.Channel, "error", err, "retry_in", next)
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}

// hydrate runs hello -> state -> merge -> publish. Local edits made while
// it runs are queued, and covered by the final DiffSince.
func (c *Channel) hydrate(conn transport.Conn, channelID string) error {
	hello := wire.Frame{Type: wire.FrameHello, Channel: channelID, Actor: c.opts.Actor, Version: c.graph.Version()}
	if err := conn.Send(hello); err != nil {
		return err
	}
	state, err := conn.Recv()
	if err != nil {
		return err
	}
	switch state.Type {
	case wire.FrameState:
	case wire.FrameError:
		return &RelayError{Code: state.Code, Message: state.Message}
	default:
		return fmt.Errorf("expected state frame, got %s", state.Type)
	}

	deltas, err := wire.ToDeltas(state.Deltas)
	if err != nil {
		return &HydrationConflictError{Channel: channelID, Err: err}
	}
	fresh, err := c.graph.ApplyRemote(deltas)
	if err != nil {
		return &HydrationConflictError{Channel: channelID, Err: err}
	}
	c.metrics.received.Add(float64(len(fresh)))
	if len(fresh) > 0 {
		c.emitRemote(fresh)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.live = true
	c.readOnly = state.ReadOnly
	if c.readOnly {
		c.outbox.reset(nil)
	} else {
		c.outbox.reset(c.graph.DiffSince(state.Version))
		if c.outbox.size() > 0 {
			c.transmit(c.outbox.pending())
		}
	}
	c.metrics.hydrations.Inc()
	c.logger.Info("channel hydrated",
		"channel", channelID, "received", len(fresh), "published", c.outbox.size(), "read_only", c.readOnly)
	return nil
}

// run reads until the transport drops, then reconnects until the session
// is cancelled or hydration fails for good.
func (c *Channel) run(ctx context.Context, sess *Session, conn transport.Conn) {
	for {
		err := c.read(conn)

		c.mu.Lock()
		c.live = false
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			c.finish(sess, nil)
			return
		}
		c.logger.Warn("transport lost", "channel", sess.Channel, "error", fmt.Errorf("%w: %w", ErrChannelDisconnected, err))
		c.metrics.reconnects.Inc()

		// A relay that cannot persist hydrates fine; pause so the re-send
		// does not spin.
		var re *RelayError
		if errors.As(err, &re) && re.Code == wire.CodeUnavailable {
			select {
			case <-ctx.Done():
			case <-time.After(c.opts.Backoff.Initial):
			}
		}

		conn, err = c.establish(ctx, sess)
		if err != nil {
			if ctx.Err() != nil {
				err = nil
			}
			c.finish(sess, err)
			return
		}
	}
}

func (c *Channel) finish(sess *Session, err error) {
	c.mu.Lock()
	if c.session == sess {
		c.session = nil
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Error("session ended", "channel", sess.Channel, "error", err)
	}
	sess.err = err
	close(sess.done)
}

func (c *Channel) read(conn transport.Conn) error {
	for {
		f, err := conn.Recv()
		if err != nil {
			return err
		}
		switch f.Type {
		case wire.FrameDeltas:
			c.receiveDeltas(f)
		case wire.FrameAck:
			c.mu.Lock()
			c.outbox.ack(f.Version)
			c.mu.Unlock()
		case wire.FramePresence:
			if f.Presence != nil {
				c.receivePresence(*f.Presence)
			}
		case wire.FrameError:
			c.logger.Warn("relay error", "code", f.Code, "message", f.Message)
			switch f.Code {
			case wire.CodeReadOnly:
				c.mu.Lock()
				c.readOnly = true
				c.outbox.reset(nil)
				c.mu.Unlock()
			case wire.CodeUnavailable:
				// Reconnect with backoff; hydration re-sends the batch.
				return &RelayError{Code: f.Code, Message: f.Message}
			}
		default:
			c.logger.Warn("unexpected frame", "type", f.Type)
		}
	}
}

func (c *Channel) receiveDeltas(f wire.Frame) {
	deltas, err := wire.ToDeltas(f.Deltas)
	if err != nil {
		c.logger.Error("decode remote deltas", "error", err)
		return
	}
	fresh, err := c.graph.ApplyRemote(deltas)
	if err != nil {
		c.logger.Error("apply remote deltas", "error", err, "count", len(deltas))
		return
	}
	if len(fresh) == 0 {
		return
	}
	c.metrics.received.Add(float64(len(fresh)))
	c.emitRemote(fresh)
}

func (c *Channel) emitRemote(fresh []ir.Delta) {
	c.mu.Lock()
	cbs := slices.Clone(c.onRemote)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb(fresh)
	}
}

// receivePresence keeps the newest presence per actor. A gone notice
// forgets the actor so a later session may restart its sequence.
func (c *Channel) receivePresence(p ir.Presence) {
	c.mu.Lock()
	if p.Actor == c.opts.Actor {
		c.mu.Unlock()
		return
	}
	if p.Gone {
		delete(c.peers, p.Actor)
	} else {
		if cur, ok := c.peers[p.Actor]; ok && p.Seq <= cur.Seq {
			c.mu.Unlock()
			return
		}
		c.peers[p.Actor] = p
	}
	cbs := slices.Clone(c.onPresence)
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(p)
	}
}
