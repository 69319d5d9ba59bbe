package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/roach88/geckode/internal/catalog"
	"github.com/roach88/geckode/internal/channel"
	"github.com/roach88/geckode/internal/codegen"
	"github.com/roach88/geckode/internal/engine"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/registry"
	"github.com/roach88/geckode/internal/relay"
	"github.com/roach88/geckode/internal/testutil"
)

// SyncTimeout bounds how long a relay sync step waits for quiescence.
var SyncTimeout = 5 * time.Second

// Option configures a scenario run.
type Option func(*runSettings)

type runSettings struct {
	undoDepth int
}

// WithUndoDepth bounds every peer's undo and redo stacks.
// Default: engine.DefaultUndoDepth.
func WithUndoDepth(depth int) Option {
	return func(s *runSettings) {
		s.undoDepth = depth
	}
}

// Harness executes one scenario.
type Harness struct {
	scenario *Scenario
	catalog  *catalog.Catalog
	registry *registry.Registry
	logger   *slog.Logger

	mesh *testutil.Mesh

	// relay transport only
	hub      *relay.Hub
	channels map[ir.ActorID]*channel.Channel

	// seen is each peer's log length as last accounted for in the trace.
	seen map[ir.ActorID]int
}

// Run executes a scenario and returns the result. The returned error is
// for infrastructure failures; unmet expectations and failed assertions
// are reported in Result.Errors.
//
// Execution flow:
//  1. Create one replica per peer, wired by the chosen transport
//  2. Execute steps in order, checking each step's expectation
//  3. Generate code from the first peer's program
//  4. Evaluate assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	settings := runSettings{undoDepth: engine.DefaultUndoDepth}
	for _, opt := range opts {
		opt(&settings)
	}

	cat, err := catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		catalog:  cat,
		registry: registry.New(scenario.Entities...),
		logger:   testutil.Discard(),
		seen:     make(map[ir.ActorID]int),
	}

	peers := make([]*testutil.Peer, 0, len(scenario.Peers))
	for _, actor := range scenario.Peers {
		peers = append(peers, testutil.NewPeer(ir.ActorID(actor), cat,
			engine.WithRegistry(h.registry), engine.WithUndoDepth(settings.undoDepth)))
	}
	h.mesh = testutil.NewMesh(peers...)

	if scenario.Transport == TransportRelay {
		if err := h.connect(); err != nil {
			return nil, err
		}
		defer h.close()
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	out := h.generate()
	result.Bundle = out.Bundle()

	actx := &AssertionContext{Mesh: h.mesh, Output: out, Trace: result.Trace}
	for _, msg := range EvaluateAssertions(scenario, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// connect joins every peer to an in-process relay hub.
func (h *Harness) connect() error {
	h.hub = relay.NewHub(relay.WithLogger(h.logger))
	h.channels = make(map[ir.ActorID]*channel.Channel)
	dialer := h.hub.Dialer(relay.AllowAll{})

	for _, p := range h.mesh.Peers() {
		ch := channel.New(p.Graph, channel.Options{
			Actor:   p.Actor,
			Token:   string(p.Actor),
			Dialer:  dialer,
			Backoff: channel.BackoffSettings{Initial: 5 * time.Millisecond, Max: 50 * time.Millisecond},
			Logger:  h.logger,
		})
		ctx, cancel := context.WithTimeout(context.Background(), SyncTimeout)
		_, err := ch.Connect(ctx, h.scenario.Name)
		cancel()
		if err != nil {
			ch.Close()
			h.close()
			return fmt.Errorf("failed to connect %s: %w", p.Actor, err)
		}
		h.channels[p.Actor] = ch
	}
	return nil
}

func (h *Harness) close() {
	for _, ch := range h.channels {
		ch.Close()
	}
}

func (h *Harness) execute(n int, step Step, result *Result) error {
	ev := TraceEvent{Step: n, Peer: step.Peer, Do: step.Do}

	switch step.Do {
	case DoSync:
		if step.From != "" {
			ev.Peer = step.From + "->" + step.To
		}
		if err := h.sync(step); err != nil {
			return err
		}
		ev.Outcome = OutcomeOK
		ev.Deltas = h.account()

	case DoUndo, DoRedo:
		p, _ := h.mesh.Peer(ir.ActorID(step.Peer))
		before := p.Graph.HighestSeq(p.Actor)
		var done bool
		if step.Do == DoUndo {
			done = p.Engine.Undo()
		} else {
			done = p.Engine.Redo()
		}
		ev.Outcome = OutcomeOK
		if !done {
			ev.Outcome = OutcomeEmpty
		}
		ev.Deltas = int(p.Graph.HighestSeq(p.Actor) - before)
		h.seen[p.Actor] += ev.Deltas

	default:
		p, _ := h.mesh.Peer(ir.ActorID(step.Peer))
		in, err := buildIntent(step.Do, step.Args)
		if err != nil {
			return err
		}
		applied, err := p.Engine.Perform(in)
		var editErr *engine.EditError
		switch {
		case err == nil:
			ev.Outcome = OutcomeOK
		case errors.As(err, &editErr):
			ev.Outcome = OutcomeRejected
			ev.Detail = string(editErr.Code)
		default:
			ev.Outcome = OutcomeRejected
			ev.Detail = err.Error()
		}
		ev.Deltas = len(applied)
		h.seen[p.Actor] += ev.Deltas
	}

	result.Trace = append(result.Trace, ev)

	want := step.Expect
	if want == "" {
		want = OutcomeOK
	}
	if ev.Outcome != want {
		msg := fmt.Sprintf("step %d (%s %s): expected %s, got %s", n, step.Peer, step.Do, want, ev.Outcome)
		if ev.Detail != "" {
			msg += " (" + ev.Detail + ")"
		}
		result.AddError(msg)
	}
	return nil
}

// account returns how many deltas arrived from elsewhere since the last
// accounting and marks them seen.
func (h *Harness) account() int {
	total := 0
	for _, p := range h.mesh.Peers() {
		n := p.Graph.Len()
		total += n - h.seen[p.Actor]
		h.seen[p.Actor] = n
	}
	return total
}

func (h *Harness) sync(step Step) error {
	if h.hub != nil {
		return h.awaitRelay()
	}
	from, to := ir.ActorID(step.From), ir.ActorID(step.To)
	var err error
	switch {
	case from == "":
		_, err = h.mesh.SyncAll()
	case step.Seed != 0:
		_, err = h.mesh.DeliverShuffled(from, to, step.Seed)
	default:
		_, err = h.mesh.Deliver(from, to)
	}
	return err
}

// awaitRelay waits until every peer has been acknowledged and holds
// exactly the relay's state.
func (h *Harness) awaitRelay() error {
	deadline := time.Now().Add(SyncTimeout)
	for {
		if h.relayQuiet() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("relay did not settle within %s", SyncTimeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *Harness) relayQuiet() bool {
	snap, ok := h.hub.Snapshot(h.scenario.Name)
	if !ok {
		return false
	}
	want := snap.Version()
	for _, p := range h.mesh.Peers() {
		ch := h.channels[p.Actor]
		if !ch.Live() || len(ch.Pending()) > 0 {
			return false
		}
		if !maps.Equal(p.Graph.Version(), want) {
			return false
		}
	}
	return true
}

func (h *Harness) generate() *codegen.Output {
	first := h.mesh.Peers()[0]
	gen := codegen.New(codegen.WithLogger(h.logger))
	return gen.Generate(first.Graph.Snapshot(), codegen.Context{
		Entity:   h.scenario.Entity,
		Registry: h.registry.View(),
		Catalog:  h.catalog,
	})
}
