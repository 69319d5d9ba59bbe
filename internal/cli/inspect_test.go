package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geckode/internal/graph"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/store"
)

func TestInspectListsChannels(t *testing.T) {
	db := storeChannel(t, heroPeer(t), "level-1")

	stdout, _, err := execute(t, "inspect", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "CHANNEL")
	assert.Contains(t, stdout, "level-1")
	assert.Regexp(t, `level-1\s+6\s+-`, stdout)
}

func TestInspectEmptyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	stdout, _, err := execute(t, "inspect", "--db", path)
	require.NoError(t, err)
	assert.Equal(t, "No channels stored.\n", stdout)

	stdout, _, err = execute(t, "inspect", "--db", path, "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":[]}`, stdout)
}

func TestInspectMissingDatabase(t *testing.T) {
	_, _, err := execute(t, "inspect", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInspectStateFile(t *testing.T) {
	p := heroPeer(t)
	hash, err := p.Graph.StateHash()
	require.NoError(t, err)

	stdout, _, err := execute(t, "inspect", "--state", writeState(t, p), "--config", writeConfig(t, ""))
	require.NoError(t, err)
	assert.Contains(t, stdout, "State:   "+hash+" (6 deltas)")
	assert.Contains(t, stdout, "Version: alice=6\n")
	assert.Contains(t, stdout, "Nodes (3):")
	assert.Regexp(t, `c1\s+consoleLog\s+in e1\.INNER`, stdout)
	assert.Contains(t, stdout, "Variables (0):")
}

func TestInspectJSON(t *testing.T) {
	stdout, _, err := execute(t, "inspect", "--state", writeState(t, heroPeer(t)), "--format", "json", "--config", writeConfig(t, ""))
	require.NoError(t, err)

	var resp struct {
		Data ProgramSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, 6, resp.Data.Deltas)
	assert.Equal(t, ir.Version{"alice": 6}, resp.Data.Version)
	assert.Len(t, resp.Data.Nodes, 3)
	assert.Empty(t, resp.Data.Cycles)
}

func TestInspectExportRoundTrip(t *testing.T) {
	p := heroPeer(t)
	db := storeChannel(t, p, "level-1")
	out := filepath.Join(t.TempDir(), "level-1.state")

	_, _, err := execute(t, "inspect", "--db", db, "--channel", "level-1", "--export", out, "--config", writeConfig(t, ""))
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	g := graph.New()
	require.NoError(t, g.ImportState(data))

	want, err := p.Graph.StateHash()
	require.NoError(t, err)
	got, err := g.StateHash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
