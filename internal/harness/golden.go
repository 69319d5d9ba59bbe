package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// FormatTrace renders a result as plain text: one line per step, then the
// generated bundle.
func FormatTrace(name string, r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	for _, ev := range r.Trace {
		b.WriteString(formatEvent(ev))
		b.WriteByte('\n')
	}
	b.WriteString("--- bundle ---\n")
	b.WriteString(r.Bundle)
	return b.String()
}

func formatEvent(ev TraceEvent) string {
	peer := ev.Peer
	if peer == "" {
		peer = "*"
	}
	line := fmt.Sprintf("%02d %s %s %s deltas=%d", ev.Step, peer, ev.Do, ev.Outcome, ev.Deltas)
	if ev.Detail != "" {
		line += " " + ev.Detail
	}
	return line
}

// RunWithGolden executes a scenario and compares its trace and bundle with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, []byte(FormatTrace(scenario.Name, result)))
	return result, nil
}
