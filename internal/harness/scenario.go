package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/geckode/internal/registry"
)

// Scenario is one collaborative editing script.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Entity owns the program for code generation. Defaults to "hero".
	Entity string `yaml:"entity,omitempty"`

	// Entities seeds the entity registry. Defaults to the owning entity.
	Entities []registry.Entity `yaml:"entities,omitempty"`

	// Peers are the actor ids of the replicas, in order.
	Peers []string `yaml:"peers"`

	// Transport is TransportMesh (default) or TransportRelay.
	Transport string `yaml:"transport,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Transports.
const (
	TransportMesh  = "mesh"
	TransportRelay = "relay"
)

// Step is one action in a scenario.
type Step struct {
	// Peer performs edit, undo and redo steps.
	Peer string `yaml:"peer,omitempty"`

	// Do names the action: an edit, "undo", "redo" or "sync".
	Do string `yaml:"do"`

	// Args are the edit's arguments, named after the intent's fields in
	// snake case (id, kind, parent, slot, after, fields, node, name,
	// value, child, prev, next, cascade, var_name).
	Args map[string]any `yaml:"args,omitempty"`

	// From and To restrict a sync to one direction between two peers.
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`

	// Seed, when set on a directed sync, delivers deltas one at a time in
	// a random order drawn from it.
	Seed uint64 `yaml:"seed,omitempty"`

	// Expect is the expected outcome. Empty means OutcomeOK.
	Expect string `yaml:"expect,omitempty"`
}

// Step outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeEmpty    = "empty"
)

// Step actions besides edits.
const (
	DoUndo = "undo"
	DoRedo = "redo"
	DoSync = "sync"
)

// Assertion checks the final replicas or generated code.
type Assertion struct {
	Type string `yaml:"type"`

	// Peer selects the replica. Defaults to the first peer.
	Peer string `yaml:"peer,omitempty"`

	Node  string `yaml:"node,omitempty"`
	Slot  string `yaml:"slot,omitempty"`
	Child string `yaml:"child,omitempty"`
	Field string `yaml:"field,omitempty"`
	Value any    `yaml:"value,omitempty"`

	Names     []string `yaml:"names,omitempty"`
	Functions []string `yaml:"functions,omitempty"`
	Count     int      `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertConverged = "converged"
	AssertNodeAlive = "node_alive"
	AssertNodeDead  = "node_dead"
	AssertSlot      = "slot"
	AssertNext      = "next"
	AssertField     = "field"
	AssertVariables = "variables"
	AssertScopes    = "scopes"
	AssertFailures  = "failures"
)

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected so typos do not silently weaken a test.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	s.applyDefaults()
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func (s *Scenario) applyDefaults() {
	if s.Entity == "" {
		s.Entity = "hero"
	}
	if len(s.Entities) == 0 {
		s.Entities = []registry.Entity{{ID: s.Entity}}
	}
	if s.Transport == "" {
		s.Transport = TransportMesh
	}
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Peers) == 0 {
		return fmt.Errorf("peers list is required and must be non-empty")
	}
	seen := make(map[string]bool)
	for _, p := range s.Peers {
		if p == "" || seen[p] {
			return fmt.Errorf("peer ids must be non-empty and unique")
		}
		seen[p] = true
	}
	if s.Transport != TransportMesh && s.Transport != TransportRelay {
		return fmt.Errorf("unknown transport %q", s.Transport)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(s, step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(s, a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(s *Scenario, step Step) error {
	switch step.Expect {
	case "", OutcomeOK, OutcomeRejected, OutcomeEmpty:
	default:
		return fmt.Errorf("unknown expect %q", step.Expect)
	}

	if step.Do == DoSync {
		if (step.From == "") != (step.To == "") {
			return fmt.Errorf("sync needs both from and to, or neither")
		}
		if step.From != "" && s.Transport == TransportRelay {
			return fmt.Errorf("directed sync is not available over the relay")
		}
		for _, p := range []string{step.From, step.To} {
			if p != "" && !slices.Contains(s.Peers, p) {
				return fmt.Errorf("unknown peer %q", p)
			}
		}
		return nil
	}

	if !slices.Contains(s.Peers, step.Peer) {
		return fmt.Errorf("unknown peer %q", step.Peer)
	}
	if step.Do == DoUndo || step.Do == DoRedo {
		return nil
	}
	if _, err := buildIntent(step.Do, step.Args); err != nil {
		return err
	}
	if step.Expect == OutcomeEmpty {
		return fmt.Errorf("expect empty only applies to undo and redo")
	}
	return nil
}

func validateAssertion(s *Scenario, a Assertion) error {
	if a.Peer != "" && !slices.Contains(s.Peers, a.Peer) {
		return fmt.Errorf("unknown peer %q", a.Peer)
	}
	switch a.Type {
	case AssertConverged, AssertVariables, AssertScopes, AssertFailures:
	case AssertNodeAlive, AssertNodeDead, AssertNext:
		if a.Node == "" {
			return fmt.Errorf("node is required for %s", a.Type)
		}
	case AssertSlot:
		if a.Node == "" || a.Slot == "" {
			return fmt.Errorf("node and slot are required for slot")
		}
	case AssertField:
		if a.Node == "" || a.Field == "" {
			return fmt.Errorf("node and field are required for field")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
