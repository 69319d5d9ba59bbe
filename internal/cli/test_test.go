package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jumpScenario = `name: jump_on_start
description: "A start handler built by one peer reaches the other"
peers: [alice, bob]
steps:
  - peer: alice
    do: create_node
    args: { id: e1, kind: onStart }
  - peer: alice
    do: create_node
    args: { id: j1, kind: runJS, parent: e1, slot: INNER, fields: { CODE: "entity.jump()" } }
  - do: sync
assertions:
  - type: converged
  - type: scopes
    functions: [start_hero]
`

const brokenScenario = `name: wrong_child
description: "Asserts a child the program never had"
peers: [alice]
steps:
  - peer: alice
    do: create_node
    args: { id: e1, kind: onStart }
assertions:
  - type: slot
    peer: alice
    node: e1
    slot: INNER
    child: j1
`

func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	return dir
}

func TestTestCommandPassesWithoutGolden(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"jump.yaml": jumpScenario})

	stdout, _, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ jump_on_start")
	assert.Contains(t, stdout, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, stdout, "✓ All scenarios passed")
}

func TestTestCommandGoldenCycle(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"jump.yaml": jumpScenario})

	stdout, _, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ jump_on_start (golden updated)")

	golden := filepath.Join(dir, "golden", "jump.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scenario: jump_on_start\n")
	assert.Contains(t, string(data), "  entity.jump();\n")

	_, _, err = execute(t, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, append(data, "tampered\n"...), 0o644))
	stdout, _, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "trace does not match golden file")
}

func TestTestCommandReportsFailures(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"jump.yaml":   jumpScenario,
		"broken.yaml": brokenScenario,
		"notes.txt":   "not a scenario",
	})

	stdout, _, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Failed)

	for _, sr := range resp.Data.Scenarios {
		if sr.Name == "wrong_child" {
			assert.False(t, sr.Pass)
			require.NotEmpty(t, sr.Errors)
			assert.Contains(t, sr.Errors[0], "Full trace:")
		}
	}
}

func TestTestCommandFilter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"jump.yaml":   jumpScenario,
		"broken.yaml": brokenScenario,
	})

	stdout, _, err := execute(t, "test", dir, "--filter", "ju*")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 total")

	stdout, _, err = execute(t, "test", dir, "--filter", "zz*")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No scenarios found.")
}

const shallowUndoScenario = `name: shallow_undo
description: "Only the newest edit can be undone"
peers: [alice]
steps:
  - peer: alice
    do: create_node
    args: { id: e1, kind: onStart }
  - peer: alice
    do: create_node
    args: { id: e2, kind: onUpdate }
  - peer: alice
    do: undo
  - peer: alice
    do: undo
    expect: empty
`

func TestTestCommandUsesConfiguredUndoDepth(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"shallow.yaml": shallowUndoScenario})

	stdout, _, err := execute(t, "test", dir, "--config", writeConfig(t, "undo_depth: 1\n"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ shallow_undo")

	stdout, _, err = execute(t, "test", dir, "--config", writeConfig(t, ""))
	require.Error(t, err)
	assert.Contains(t, stdout, "expected empty, got ok")
}

func TestTestCommandMissingDir(t *testing.T) {
	_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "none"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
