package codegen

import (
	"log/slog"

	"github.com/roach88/geckode/internal/catalog"
	"github.com/roach88/geckode/internal/graph"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/registry"
)

// Phase is the generator's lifecycle state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseTraversing Phase = "traversing"
	PhaseEmitting   Phase = "emitting"
	PhaseFailed     Phase = "failed"
)

// Transition is one phase change. Scope is empty for pass-level changes.
type Transition struct {
	From  Phase
	To    Phase
	Scope string
}

// Context is the ambient input of one workspace: the entity owning the
// program and the lookups generation needs.
type Context struct {
	Entity   string
	Registry *registry.View
	Catalog  *catalog.Catalog
}

// Workspace pairs one entity's program with its context.
type Workspace struct {
	Context
	Snapshot *graph.Snapshot
}

// Scope is one generated function.
type Scope struct {
	Entity   string    `json:"entity"`
	Event    string    `json:"event"`
	Function string    `json:"function"`
	Root     ir.NodeID `json:"root"`
	Source   string    `json:"source"`
}

// Route lists the functions the runtime calls for (Entity, Event), in
// call order.
type Route struct {
	Entity    string   `json:"entity"`
	Event     string   `json:"event"`
	Functions []string `json:"functions"`
}

// Output is the result of a pass. Scopes and Dispatch are in generation
// order; Failures holds the scopes that were dropped.
type Output struct {
	Scopes   []Scope       `json:"scopes"`
	Dispatch []Route       `json:"dispatch"`
	Failures []*ScopeError `json:"failures,omitempty"`
	// Prelude declares every variable the scopes may reference.
	Prelude string `json:"prelude"`
}

// Handlers returns the functions dispatched for entity and event.
func (o *Output) Handlers(entity, event string) []string {
	for _, r := range o.Dispatch {
		if r.Entity == entity && r.Event == event {
			return r.Functions
		}
	}
	return nil
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

// WithPhaseObserver registers fn for every phase transition.
func WithPhaseObserver(fn func(Transition)) Option {
	return func(g *Generator) {
		g.observers = append(g.observers, fn)
	}
}

// Generator turns snapshots into code. A Generator holds no state between
// passes and may be reused; passes must not run concurrently when phase
// observers are registered.
type Generator struct {
	logger    *slog.Logger
	observers []func(Transition)
	phase     Phase
}

// New returns a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{logger: slog.Default(), phase: PhaseIdle}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Phase returns the current phase.
func (g *Generator) Phase() Phase {
	return g.phase
}

func (g *Generator) enter(to Phase, scope string) {
	from := g.phase
	g.phase = to
	for _, fn := range g.observers {
		fn(Transition{From: from, To: to, Scope: scope})
	}
}

// Generate compiles a single workspace.
func (g *Generator) Generate(snap *graph.Snapshot, ctx Context) *Output {
	return g.GenerateProject([]Workspace{{Context: ctx, Snapshot: snap}})
}

// GenerateProject compiles every workspace in one pass, so function names
// are unique across the whole project.
func (g *Generator) GenerateProject(workspaces []Workspace) *Output {
	names := newNameTable()
	p := &pass{
		names: names,
		vars:  newVarTable(names),
		out:   &Output{},
	}
	g.enter(PhaseTraversing, "")
	for _, ws := range workspaces {
		p.vars.declare(ws.Snapshot.Variables())
	}
	for _, ws := range workspaces {
		g.generateWorkspace(p, ws)
	}
	p.out.Prelude = p.vars.prelude()
	g.enter(PhaseIdle, "")

	g.logger.Debug("generation finished",
		"workspaces", len(workspaces), "scopes", len(p.out.Scopes), "failures", len(p.out.Failures))
	return p.out
}

func (g *Generator) generateWorkspace(p *pass, ws Workspace) {
	reg := ws.Registry
	if reg == nil {
		reg = registry.New().View()
	}
	for _, root := range ws.Snapshot.Roots() {
		def, ok := ws.Catalog.Lookup(root.Kind)
		if !ok || def.Category != catalog.CategoryEvent {
			continue
		}
		name := p.names.claim(sanitize(def.Event) + "_" + sanitize(ws.Entity))

		g.enter(PhaseEmitting, name)
		r := &renderer{snap: ws.Snapshot, ctx: ws.Context, registry: reg, vars: p.vars, function: name}
		src, err := r.render(root)
		if err != nil {
			se := &ScopeError{
				Entity:   ws.Entity,
				Event:    def.Event,
				Function: name,
				Root:     root.ID,
				Node:     err.node,
				Reason:   err.reason,
			}
			p.out.Failures = append(p.out.Failures, se)
			g.logger.Warn("scope failed", "function", name, "node", err.node, "reason", err.reason)
			g.enter(PhaseFailed, name)
			g.enter(PhaseTraversing, "")
			continue
		}

		p.out.Scopes = append(p.out.Scopes, Scope{
			Entity:   ws.Entity,
			Event:    def.Event,
			Function: name,
			Root:     root.ID,
			Source:   src,
		})
		p.route(ws.Entity, def.Event, name)
		g.enter(PhaseTraversing, "")
	}
}

type pass struct {
	names *nameTable
	vars  *varTable
	out   *Output
}

func (p *pass) route(entity, event, fn string) {
	for i := range p.out.Dispatch {
		r := &p.out.Dispatch[i]
		if r.Entity == entity && r.Event == event {
			r.Functions = append(r.Functions, fn)
			return
		}
	}
	p.out.Dispatch = append(p.out.Dispatch, Route{Entity: entity, Event: event, Functions: []string{fn}})
}
