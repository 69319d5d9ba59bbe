package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geckode/internal/catalog"
	"github.com/roach88/geckode/internal/engine"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// execute runs the root command with args and captures its output.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// writeConfig writes a config file and returns its path. Logs are kept
// quiet unless extra overrides the level.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: error\n"+extra), 0o644))
	return path
}

// heroPeer builds a start handler logging "hi".
func heroPeer(t *testing.T) *testutil.Peer {
	t.Helper()
	p := testutil.NewPeer("alice", catalog.MustLoad())
	for _, in := range []engine.Intent{
		engine.CreateNode{ID: "e1", Kind: "onStart"},
		engine.CreateNode{ID: "c1", Kind: "consoleLog", Parent: "e1", Slot: "INNER"},
		engine.CreateNode{ID: "t1", Kind: "text", Fields: map[string]ir.IRValue{"TEXT": ir.IRString("hi")}, Parent: "c1", Slot: "VALUE"},
	} {
		_, err := p.Engine.Perform(in)
		require.NoError(t, err)
	}
	return p
}

const heroBundle = `function start_hero(entity) {
  console.log("hi");
}

scene.startHook = () => {
  start_hero("hero");
};

scene.update = () => {
};
`

// writeState exports p's program to a state file.
func writeState(t *testing.T, p *testutil.Peer) string {
	t.Helper()
	data, err := p.Graph.ExportState()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "hero.state")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
