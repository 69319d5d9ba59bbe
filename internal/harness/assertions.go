package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/geckode/internal/codegen"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/testutil"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", formatEvent(ev))
		}
	}
	return buf.String()
}

// AssertionContext is what assertions read.
type AssertionContext struct {
	Mesh   *testutil.Mesh
	Output *codegen.Output
	Trace  []TraceEvent
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(s *Scenario, actx *AssertionContext) []string {
	var msgs []string
	for i, a := range s.Assertions {
		if err := evaluate(s, a, actx); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertion %d: %s", i, err))
		}
	}
	return msgs
}

func evaluate(s *Scenario, a Assertion, actx *AssertionContext) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: actx.Trace}
	}

	actor := a.Peer
	if actor == "" {
		actor = s.Peers[0]
	}
	p, ok := actx.Mesh.Peer(ir.ActorID(actor))
	if !ok {
		return fmt.Errorf("unknown peer %q", actor)
	}

	switch a.Type {
	case AssertConverged:
		ok, err := actx.Mesh.Converged()
		if err != nil {
			return err
		}
		if !ok {
			return fail("all peers hold the same delta log", describeLogs(actx.Mesh))
		}

	case AssertNodeAlive, AssertNodeDead:
		want := a.Type == AssertNodeAlive
		if got := p.Graph.Alive(ir.NodeID(a.Node)); got != want {
			return fail(fmt.Sprintf("%s alive=%t on %s", a.Node, want, actor), fmt.Sprintf("alive=%t", got))
		}

	case AssertSlot, AssertNext:
		v, ok := p.Graph.Read(ir.NodeID(a.Node))
		if !ok {
			return fail(fmt.Sprintf("%s alive on %s", a.Node, actor), "node is dead or unknown")
		}
		var got ir.NodeID
		where := a.Node + ".next"
		if a.Type == AssertSlot {
			got = v.Slots[a.Slot]
			where = a.Node + "." + a.Slot
		} else {
			got = v.Next
		}
		if string(got) != a.Child {
			return fail(fmt.Sprintf("%s holds %s", where, orNone(a.Child)), orNone(string(got)))
		}

	case AssertField:
		v, ok := p.Graph.Read(ir.NodeID(a.Node))
		if !ok {
			return fail(fmt.Sprintf("%s alive on %s", a.Node, actor), "node is dead or unknown")
		}
		want, err := ir.FromAny(a.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		got := v.Field(a.Field)
		if !ir.EqualValues(got, want) {
			return fail(fmt.Sprintf("%s.%s = %s", a.Node, a.Field, formatValue(want)), formatValue(got))
		}

	case AssertVariables:
		var got []string
		for _, vv := range p.Graph.Variables() {
			got = append(got, vv.Name)
		}
		if !slices.Equal(got, a.Names) {
			return fail(fmt.Sprintf("variables %v", a.Names), fmt.Sprintf("%v", got))
		}

	case AssertScopes:
		var got []string
		for _, sc := range actx.Output.Scopes {
			got = append(got, sc.Function)
		}
		if !slices.Equal(got, a.Functions) {
			return fail(fmt.Sprintf("scopes %v", a.Functions), fmt.Sprintf("%v", got))
		}

	case AssertFailures:
		if got := len(actx.Output.Failures); got != a.Count {
			var reasons []string
			for _, f := range actx.Output.Failures {
				reasons = append(reasons, f.Error())
			}
			return fail(fmt.Sprintf("%d failed scopes", a.Count), fmt.Sprintf("%d %v", got, reasons))
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func describeLogs(m *testutil.Mesh) string {
	var parts []string
	for _, p := range m.Peers() {
		parts = append(parts, fmt.Sprintf("%s:%d deltas %v", p.Actor, p.Graph.Len(), p.Graph.Version()))
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func formatValue(v ir.IRValue) string {
	if ir.IsNull(v) {
		return "null"
	}
	b, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
